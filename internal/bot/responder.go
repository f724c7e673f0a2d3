package bot

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"quipbot/internal/trigger"
	kit "quipbot/internal/transport"
	logx "quipbot/pkg/logx"
)

// Responder pushes replies and stored responses through the chat adapter.
// Each chat gets its own token bucket so one noisy trigger cannot trip
// platform flood limits for everyone.
type Responder struct {
	adapter kit.Adapter
	log     logx.Logger

	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func NewResponder(adapter kit.Adapter, log logx.Logger, perChatRPS float64, burst int) *Responder {
	if perChatRPS <= 0 {
		perChatRPS = 1
	}
	if burst <= 0 {
		burst = 3
	}
	return &Responder{
		adapter:  adapter,
		log:      log.With(logx.String("comp", "responder")),
		rps:      rate.Limit(perChatRPS),
		burst:    burst,
		limiters: make(map[int64]*rate.Limiter),
	}
}

func (r *Responder) limiterFor(chatID int64) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(r.rps, r.burst)
		r.limiters[chatID] = lim
	}
	return lim
}

// Reply sends command feedback. It waits for the chat's rate budget instead
// of dropping, so confirmations and error lines always land (or fail loudly).
func (r *Responder) Reply(ctx context.Context, to kit.ChatTarget, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := r.limiterFor(to.ChatID).Wait(ctx); err != nil {
		return err
	}
	_, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// TryReply sends best-effort notices such as queue-full hints. Over-budget
// chats drop the message instead of queueing behind it.
func (r *Responder) TryReply(ctx context.Context, to kit.ChatTarget, text string) {
	if !r.limiterFor(to.ChatID).Allow() {
		return
	}
	if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.log.Debug("best-effort reply dropped", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// Deliver sends one stored response to the chat, choosing the transfer mode
// from the record type.
func (r *Responder) Deliver(ctx context.Context, to kit.ChatTarget, rec trigger.Record) error {
	if err := r.limiterFor(to.ChatID).Wait(ctx); err != nil {
		return err
	}
	switch rec.Type {
	case trigger.TypeImage:
		_, err := r.adapter.SendFile(ctx, to, kit.FileRef{Ref: rec.Response, AsPhoto: true}, nil)
		if err != nil && ctx.Err() == nil {
			// A record marked image may reference something the platform will
			// not accept as a photo (document file_id, oversized image). Retry
			// as a plain document before giving up.
			r.log.Debug("photo send failed, retrying as document",
				logx.String("trigger", rec.Trigger), logx.Err(err))
			_, err = r.adapter.SendFile(ctx, to, kit.FileRef{Ref: rec.Response}, nil)
		}
		return err
	case trigger.TypeFile:
		_, err := r.adapter.SendFile(ctx, to, kit.FileRef{Ref: rec.Response}, nil)
		return err
	default:
		// Stored text may carry links on purpose, so previews stay enabled.
		_, err := r.adapter.SendText(ctx, to, rec.Response, nil)
		return err
	}
}
