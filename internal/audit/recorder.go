package audit

import (
	"context"
	"time"

	"quipbot/internal/eventbus"
	"quipbot/internal/storage"
	"quipbot/pkg/logx"
)

// appendTimeout bounds a single audit write so a wedged store cannot stall
// the recorder loop; the entry is dropped (and logged) instead.
const appendTimeout = 5 * time.Second

// Sink is the slice of the store the recorder writes to.
type Sink interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Recorder subscribes to command events and appends them to the audit log.
type Recorder struct {
	sink Sink
	log  logx.Logger
}

func NewRecorder(sink Sink, log logx.Logger) *Recorder {
	return &Recorder{sink: sink, log: log.With(logx.String("comp", "audit"))}
}

// Run consumes events until ctx is cancelled or the subscription closes.
// It is meant to be driven by a supervisor goroutine.
func (r *Recorder) Run(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			r.record(ctx, e)
		}
	}
}

func (r *Recorder) record(ctx context.Context, e eventbus.Event) {
	if e.Type != TypeCommand {
		return
	}
	ev, ok := e.Data.(CommandEvent)
	if !ok {
		r.log.Warn("command event with unexpected payload", logx.Any("data", e.Data))
		return
	}

	wctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	entry := storage.AuditEntry{
		At:            ev.At,
		ActorID:       ev.ActorID,
		ActorUsername: ev.ActorUsername,
		ChatID:        ev.ChatID,
		Command:       ev.Command,
		Target:        ev.Target,
		OK:            ev.OK,
		Error:         ev.Error,
		TookMS:        ev.Took.Milliseconds(),
	}
	if err := r.sink.AppendAudit(wctx, entry); err != nil {
		r.log.Warn("audit append failed", logx.String("command", ev.Command), logx.Err(err))
	}
}
