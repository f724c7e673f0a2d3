package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quipbot/internal/storage"
	"quipbot/internal/trigger"
)

func newTestExecutor() (*Executor, *storage.Memory) {
	mem := storage.NewMemory()
	return NewExecutor(mem), mem
}

func TestExecutorAdd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, mem := newTestExecutor()

	reply, err := ex.Add(ctx, Message{Text: `"hello" "hi there"`})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if reply != `Added trigger "hello" (text).` {
		t.Fatalf("unexpected reply: %q", reply)
	}

	rec, err := mem.FindByTrigger(ctx, "hello")
	if err != nil || rec == nil {
		t.Fatalf("record not stored: (%v, %v)", rec, err)
	}
	if rec.Response != "hi there" || rec.Type != trigger.TypeText {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}
	if !rec.UpdatedAt.IsZero() {
		t.Fatal("updated_at must stay zero until the first edit")
	}
}

func TestExecutorAddLowercasesTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, mem := newTestExecutor()

	if _, err := ex.Add(ctx, Message{Text: `"HeLLo World" "x"`}); err != nil {
		t.Fatalf("add: %v", err)
	}
	rec, err := mem.FindByTrigger(ctx, "hello world")
	if err != nil || rec == nil {
		t.Fatalf("lowercased key not found: (%v, %v)", rec, err)
	}
	if rec.Trigger != "hello world" {
		t.Fatalf("stored trigger not lowercased: %q", rec.Trigger)
	}
}

func TestExecutorAddDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, _ := newTestExecutor()

	if _, err := ex.Add(ctx, Message{Text: `"hello" "first"`}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := ex.Add(ctx, Message{Text: `"HELLO" "second"`})
	var dup *DuplicateTriggerError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateTriggerError, got %v", err)
	}
	if dup.Trigger != "hello" {
		t.Fatalf("error names wrong trigger: %q", dup.Trigger)
	}
}

func TestExecutorAddFormatErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name string
		text string
	}{
		{"no quotes", `hello hi`},
		{"one quoted string", `"hello"`},
		{"dangling second quote", `"hello" "hi`},
		{"three quoted strings", `"a" "b" "c"`},
		{"empty trigger", `"" "hi"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, _ := newTestExecutor()
			_, err := ex.Add(ctx, Message{Text: tc.text})
			var inv *InvalidFormatError
			if !errors.As(err, &inv) {
				t.Fatalf("expected InvalidFormatError, got %v", err)
			}
		})
	}
}

func TestExecutorAddAttachment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name        string
		contentType string
		wantType    trigger.ResponseType
	}{
		{"image mime", "image/png", trigger.TypeImage},
		{"document mime", "application/pdf", trigger.TypeFile},
		{"missing mime", "", trigger.TypeFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, mem := newTestExecutor()
			msg := Message{
				Text:        `"cat"`,
				Attachments: []Attachment{{Ref: "file-id-9", ContentType: tc.contentType}},
			}
			reply, err := ex.Add(ctx, msg)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if !strings.Contains(reply, string(tc.wantType)) {
				t.Fatalf("reply %q does not name type %s", reply, tc.wantType)
			}
			rec, _ := mem.FindByTrigger(ctx, "cat")
			if rec == nil || rec.Type != tc.wantType || rec.Response != "file-id-9" {
				t.Fatalf("unexpected record: %+v", rec)
			}
		})
	}
}

func TestExecutorAddAttachmentWinsOverSecondQuote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, mem := newTestExecutor()

	msg := Message{
		Text:        `"cat" "ignored text"`,
		Attachments: []Attachment{{Ref: "file-id-3", ContentType: "image/jpeg"}},
	}
	if _, err := ex.Add(ctx, msg); err != nil {
		t.Fatalf("add: %v", err)
	}
	rec, _ := mem.FindByTrigger(ctx, "cat")
	if rec == nil || rec.Response != "file-id-3" || rec.Type != trigger.TypeImage {
		t.Fatalf("attachment should win over quoted text: %+v", rec)
	}
}

func TestExecutorRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, mem := newTestExecutor()

	if _, err := ex.Add(ctx, Message{Text: `"hello" "hi"`}); err != nil {
		t.Fatalf("add: %v", err)
	}
	reply, err := ex.Remove(ctx, Message{Text: `"HELLO"`})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reply != `Removed trigger "hello".` {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if rec, _ := mem.FindByTrigger(ctx, "hello"); rec != nil {
		t.Fatalf("record still present: %+v", rec)
	}

	_, err = ex.Remove(ctx, Message{Text: `"hello"`})
	var nf *TriggerNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected TriggerNotFoundError, got %v", err)
	}
}

func TestExecutorEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, mem := newTestExecutor()

	if _, err := ex.Add(ctx, Message{Text: `"hello" "hi"`}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before, _ := mem.FindByTrigger(ctx, "hello")

	reply, err := ex.Edit(ctx, Message{Text: `"hello" "howdy"`})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if reply != `Updated trigger "hello" (text).` {
		t.Fatalf("unexpected reply: %q", reply)
	}

	after, _ := mem.FindByTrigger(ctx, "hello")
	if after.Response != "howdy" {
		t.Fatalf("response not replaced: %+v", after)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatal("edit must not touch created_at")
	}
	if after.UpdatedAt.IsZero() {
		t.Fatal("edit must set updated_at")
	}
}

func TestExecutorEditSwitchesTypeWithAttachment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, mem := newTestExecutor()

	if _, err := ex.Add(ctx, Message{Text: `"cat" "text for now"`}); err != nil {
		t.Fatalf("add: %v", err)
	}
	msg := Message{
		Text:        `"cat"`,
		Attachments: []Attachment{{Ref: "file-id-7", ContentType: "image/webp"}},
	}
	if _, err := ex.Edit(ctx, msg); err != nil {
		t.Fatalf("edit: %v", err)
	}
	rec, _ := mem.FindByTrigger(ctx, "cat")
	if rec.Type != trigger.TypeImage || rec.Response != "file-id-7" {
		t.Fatalf("type switch failed: %+v", rec)
	}
}

func TestExecutorEditMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, _ := newTestExecutor()

	_, err := ex.Edit(ctx, Message{Text: `"ghost" "boo"`})
	var nf *TriggerNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected TriggerNotFoundError, got %v", err)
	}
}

func TestExecutorList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex, _ := newTestExecutor()

	reply, err := ex.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if reply != "No triggers stored yet." {
		t.Fatalf("unexpected empty-list reply: %q", reply)
	}

	if _, err := ex.Add(ctx, Message{Text: `"hello" "hi"`}); err != nil {
		t.Fatalf("add hello: %v", err)
	}
	msg := Message{Text: `"cat"`, Attachments: []Attachment{{Ref: "f", ContentType: "image/png"}}}
	if _, err := ex.Add(ctx, msg); err != nil {
		t.Fatalf("add cat: %v", err)
	}

	reply, err = ex.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "hello (text)\ncat (image)"
	if reply != want {
		t.Fatalf("list output:\n%s\nwant:\n%s", reply, want)
	}
}

func TestExecutorHelp(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor()

	help := ex.Help()
	for _, token := range []string{"--add", "--remove", "--edit", "--list", "--help"} {
		if !strings.Contains(help, token) {
			t.Fatalf("help text missing %s", token)
		}
	}
}
