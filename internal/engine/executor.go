package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quipbot/internal/trigger"
)

// Store is the persistence surface the executor needs. It is satisfied by
// every driver in internal/storage; tests inject the memory driver.
//
// Contract: FindByTrigger returns (nil, nil) for a missing key, Insert
// reports conflicts with trigger.ErrExists and UpdateByTrigger reports a
// missing key with trigger.ErrNotFound.
type Store interface {
	FindByTrigger(ctx context.Context, key string) (*trigger.Record, error)
	FindAll(ctx context.Context) ([]trigger.Record, error)
	Insert(ctx context.Context, rec trigger.Record) error
	UpdateByTrigger(ctx context.Context, key string, upd trigger.Update) error
	DeleteByTrigger(ctx context.Context, key string) (int64, error)
}

// Message is the slice of an inbound chat message the executor cares about:
// its (normalized) text and any attachments.
type Message struct {
	Text        string
	Attachments []Attachment
}

// Attachment is a platform file reference plus the MIME type, when the
// platform declared one.
type Attachment struct {
	Ref         string
	ContentType string
}

// Executor performs the add/remove/edit/list/help commands against an
// injected store. It keeps no state between invocations; trigger records in
// the store are the only persistent state.
type Executor struct {
	store Store
}

func NewExecutor(store Store) *Executor {
	return &Executor{store: store}
}

const helpText = `Trigger commands:
  --add "trigger" "response"    store a text reply for a trigger
  --add "trigger" + attachment  store the attached image/file as the reply
  --edit "trigger" "response"   replace an existing reply (attachment works too)
  --remove "trigger"            delete a trigger
  --list                        show all stored triggers
  --help                        show this help

Triggers match as case-insensitive substrings of incoming messages.`

// Help returns the static usage text. No store access.
func (e *Executor) Help() string { return helpText }

// List renders every stored record as one "trigger (type)" line.
func (e *Executor) List(ctx context.Context) (string, error) {
	recs, err := e.store.FindAll(ctx)
	if err != nil {
		return "", fmt.Errorf("list triggers: %w", err)
	}
	if len(recs) == 0 {
		return "No triggers stored yet.", nil
	}
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s)", r.Trigger, r.Type)
	}
	return b.String(), nil
}

// Add creates a new trigger record. The first quoted string names the
// trigger. With an attachment the attachment reference becomes the response
// (typed by MIME); without one, exactly two quoted strings are required and
// the second is the literal text response.
func (e *Executor) Add(ctx context.Context, src Message) (string, error) {
	quotes := ExtractQuoted(src.Text)
	key, err := triggerKey(quotes, CmdAdd)
	if err != nil {
		return "", err
	}

	existing, err := e.store.FindByTrigger(ctx, key)
	if err != nil {
		return "", fmt.Errorf("find trigger %q: %w", key, err)
	}
	if existing != nil {
		return "", &DuplicateTriggerError{Trigger: key}
	}

	resp, typ, err := resolveResponse(src, quotes, CmdAdd)
	if err != nil {
		return "", err
	}

	rec := trigger.Record{
		Trigger:   key,
		Response:  resp,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		// The unique constraint closes the check-then-insert window; a loser
		// of that race gets the same duplicate error as the pre-check.
		if errors.Is(err, trigger.ErrExists) {
			return "", &DuplicateTriggerError{Trigger: key}
		}
		return "", fmt.Errorf("insert trigger %q: %w", key, err)
	}
	return fmt.Sprintf("Added trigger %q (%s).", key, typ), nil
}

// Remove deletes the record named by the first quoted string.
func (e *Executor) Remove(ctx context.Context, src Message) (string, error) {
	quotes := ExtractQuoted(src.Text)
	key, err := triggerKey(quotes, CmdRemove)
	if err != nil {
		return "", err
	}

	n, err := e.store.DeleteByTrigger(ctx, key)
	if err != nil {
		return "", fmt.Errorf("delete trigger %q: %w", key, err)
	}
	if n == 0 {
		return "", &TriggerNotFoundError{Trigger: key}
	}
	return fmt.Sprintf("Removed trigger %q.", key), nil
}

// Edit replaces the response of an existing record using the same
// attachment-or-two-quotes rule as Add. The trigger key and CreatedAt are
// never touched; UpdatedAt is set to now.
func (e *Executor) Edit(ctx context.Context, src Message) (string, error) {
	quotes := ExtractQuoted(src.Text)
	key, err := triggerKey(quotes, CmdEdit)
	if err != nil {
		return "", err
	}

	existing, err := e.store.FindByTrigger(ctx, key)
	if err != nil {
		return "", fmt.Errorf("find trigger %q: %w", key, err)
	}
	if existing == nil {
		return "", &TriggerNotFoundError{Trigger: key}
	}

	resp, typ, err := resolveResponse(src, quotes, CmdEdit)
	if err != nil {
		return "", err
	}

	upd := trigger.Update{
		Response:  resp,
		Type:      typ,
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.store.UpdateByTrigger(ctx, key, upd); err != nil {
		if errors.Is(err, trigger.ErrNotFound) {
			return "", &TriggerNotFoundError{Trigger: key}
		}
		return "", fmt.Errorf("update trigger %q: %w", key, err)
	}
	return fmt.Sprintf("Updated trigger %q (%s).", key, typ), nil
}

func triggerKey(quotes []string, kind CommandKind) (string, error) {
	if len(quotes) == 0 {
		return "", &InvalidFormatError{Command: kind, Hint: usageFor(kind)}
	}
	key := trigger.Key(quotes[0])
	if key == "" {
		return "", &InvalidFormatError{Command: kind, Hint: "trigger cannot be empty"}
	}
	return key, nil
}

// resolveResponse applies the attachment-or-two-quotes rule shared by Add
// and Edit: an attached file wins and is typed by its MIME type; otherwise
// the message must contain exactly two quoted strings and the second one is
// the literal text response.
func resolveResponse(src Message, quotes []string, kind CommandKind) (string, trigger.ResponseType, error) {
	if len(src.Attachments) > 0 {
		att := src.Attachments[0]
		return att.Ref, trigger.ClassifyAttachment(att.ContentType), nil
	}
	if len(quotes) != 2 {
		hint := fmt.Sprintf("expected exactly two quoted strings: --%s \"trigger\" \"response\"", kind)
		return "", "", &InvalidFormatError{Command: kind, Hint: hint}
	}
	return quotes[1], trigger.TypeText, nil
}

func usageFor(kind CommandKind) string {
	switch kind {
	case CmdAdd:
		return `usage: --add "trigger" "response" (or attach a file to --add "trigger")`
	case CmdEdit:
		return `usage: --edit "trigger" "response" (or attach a file to --edit "trigger")`
	case CmdRemove:
		return `usage: --remove "trigger"`
	default:
		return `missing quoted trigger`
	}
}
