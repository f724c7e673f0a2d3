// Package bot is the message pipeline. A Dispatcher fans classified requests
// out to a worker pool; the Handler routes management commands to the engine
// executor and plain text through trigger matching; the Responder sends the
// results back through the chat adapter under per-chat rate limits.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"quipbot/internal/audit"
	"quipbot/internal/engine"
	"quipbot/internal/eventbus"
	"quipbot/internal/trigger"
	kit "quipbot/internal/transport"
	logx "quipbot/pkg/logx"
)

// Request is one inbound message plus everything derived from it up front:
// Kind and Rest come from classifying the normalized text, Text keeps the
// full normalized message for trigger matching.
type Request struct {
	Msg  *kit.Message
	Chat kit.ChatTarget

	Kind engine.CommandKind
	Text string
	Rest string

	ReqID  string
	Logger logx.Logger
}

// Handler routes one request: management commands to the executor, anything
// else through trigger matching. Users see at most the single reply sent
// here; internal failures stay in the logs.
type Handler struct {
	store     engine.Store
	exec      *engine.Executor
	responder *Responder
	bus       *eventbus.Bus
	log       logx.Logger

	mu     sync.RWMutex
	owners []int64
}

func NewHandler(store engine.Store, responder *Responder, bus *eventbus.Bus, log logx.Logger, owners []int64) *Handler {
	h := &Handler{
		store:     store,
		exec:      engine.NewExecutor(store),
		responder: responder,
		bus:       bus,
		log:       log.With(logx.String("comp", "bot")),
	}
	h.SetOwners(owners)
	return h
}

// SetOwners replaces the operator allowlist (config hot reload path). An
// empty list leaves trigger management open to everyone in the chat.
func (h *Handler) SetOwners(ids []int64) {
	cp := make([]int64, len(ids))
	copy(cp, ids)
	h.mu.Lock()
	h.owners = cp
	h.mu.Unlock()
}

func (h *Handler) ownersSnapshot() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]int64, len(h.owners))
	copy(out, h.owners)
	return out
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

func (h *Handler) Handle(ctx context.Context, req *Request) error {
	if req.Kind == engine.CmdPlainText {
		return h.handleMatches(ctx, req)
	}
	return h.handleCommand(ctx, req)
}

func (h *Handler) handleCommand(ctx context.Context, req *Request) error {
	start := time.Now()

	if req.Kind.Mutating() {
		owners := h.ownersSnapshot()
		if len(owners) > 0 && !isOwner(req.Msg.FromID, owners) {
			req.Logger.Warn("management command from non-owner")
			h.publish(req, start, targetKey(req.Rest), errors.New("unauthorized"))
			return h.responder.Reply(ctx, req.Chat, "Error: unauthorized")
		}
	}

	reply, err := h.execute(ctx, req)
	h.publish(req, start, targetKey(req.Rest), err)
	if err != nil {
		if !engine.IsUserError(err) {
			req.Logger.Error("command failed", logx.Err(err))
		}
		return h.responder.Reply(ctx, req.Chat, "Error: "+engine.UserMessage(err))
	}
	return h.responder.Reply(ctx, req.Chat, reply)
}

func (h *Handler) execute(ctx context.Context, req *Request) (string, error) {
	msg := engine.Message{Text: req.Rest, Attachments: engineAttachments(req.Msg)}
	switch req.Kind {
	case engine.CmdHelp:
		return h.exec.Help(), nil
	case engine.CmdList:
		return h.exec.List(ctx)
	case engine.CmdAdd:
		return h.exec.Add(ctx, msg)
	case engine.CmdRemove:
		return h.exec.Remove(ctx, msg)
	case engine.CmdEdit:
		return h.exec.Edit(ctx, msg)
	default:
		return "", nil
	}
}

// handleMatches runs the passive path. It never replies with errors: storage
// trouble and per-trigger delivery failures are logged and the rest of the
// matches still go out.
func (h *Handler) handleMatches(ctx context.Context, req *Request) error {
	if req.Text == "" {
		return nil
	}
	recs, err := h.store.FindAll(ctx)
	if err != nil {
		req.Logger.Error("trigger lookup failed", logx.Err(err))
		return nil
	}
	matches := engine.Match(req.Text, recs)
	if len(matches) == 0 {
		return nil
	}

	delivered := 0
	for _, rec := range matches {
		if err := h.responder.Deliver(ctx, req.Chat, rec); err != nil {
			req.Logger.Warn("response delivery failed",
				logx.String("trigger", rec.Trigger),
				logx.String("type", string(rec.Type)),
				logx.Err(err))
			continue
		}
		delivered++
	}
	req.Logger.Debug("triggers matched",
		logx.Int("matched", len(matches)), logx.Int("delivered", delivered))
	return nil
}

func (h *Handler) publish(req *Request, start time.Time, target string, err error) {
	if h.bus == nil {
		return
	}
	ev := audit.CommandEvent{
		At:            start,
		ActorID:       req.Msg.FromID,
		ActorUsername: req.Msg.FromUsername,
		ChatID:        req.Msg.ChatID,
		Command:       string(req.Kind),
		Target:        target,
		OK:            err == nil,
		Took:          time.Since(start),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.bus.Publish(eventbus.Event{Type: audit.TypeCommand, Data: ev})
}

// targetKey recovers the trigger key a command addressed, for the audit
// trail. Commands without a quoted argument audit with an empty target.
func targetKey(rest string) string {
	qs := engine.ExtractQuoted(rest)
	if len(qs) == 0 {
		return ""
	}
	return trigger.Key(qs[0])
}

func engineAttachments(msg *kit.Message) []engine.Attachment {
	if msg == nil || len(msg.Attachments) == 0 {
		return nil
	}
	out := make([]engine.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		out = append(out, engine.Attachment{Ref: a.Ref, ContentType: a.ContentType})
	}
	return out
}
