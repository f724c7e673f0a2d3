package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"quipbot/internal/engine"
	rtsup "quipbot/internal/runtime/supervisor"
	kit "quipbot/internal/transport"
	logx "quipbot/pkg/logx"
)

const busyReply = "busy, try again"

// Options tunes the dispatch pool. Zero values pick the defaults.
type Options struct {
	Workers        int           // worker goroutines, default NumCPU (min 2)
	QueueSize      int           // pending job capacity, default 256
	CommandTimeout time.Duration // per-request deadline, default 10s
}

// Dispatcher reads adapter updates, classifies each message once and fans
// the work out to a bounded pool. Commands that cannot be queued get a busy
// notice; plain chatter is counted and dropped, matching is best-effort.
type Dispatcher struct {
	log       logx.Logger
	handler   *Handler
	responder *Responder

	timeout time.Duration
	workers int
	jobs    chan func()

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedPlain uint64
}

func NewDispatcher(handler *Handler, responder *Responder, log logx.Logger, opt Options) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 2 {
		workers = 2
	}
	queue := opt.QueueSize
	if queue <= 0 {
		queue = 256
	}
	timeout := opt.CommandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		log:       log.With(logx.String("comp", "bot.dispatch")),
		handler:   handler,
		responder: responder,
		timeout:   timeout,
		workers:   workers,
		jobs:      make(chan func(), queue),
	}
}

func (d *Dispatcher) setSupervisor(sup *rtsup.Supervisor, running bool) {
	d.runMu.Lock()
	d.sup = sup
	d.running = running
	d.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being
// closed during shutdown).
func (d *Dispatcher) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case d.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is cancelled or the channel
// closes. It always returns nil; worker failures surface through the
// internal supervisor's logs and restarts.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(d.log),
		rtsup.WithCancelOnError(false),
	)
	d.setSupervisor(sup, true)

	d.log.Info("dispatcher started",
		logx.Int("workers", d.workers), logx.Int("job_queue_cap", cap(d.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Mark as not running before closing so enqueue degrades gracefully.
			d.setSupervisor(sup, false)
			close(d.jobs)
		})
	}

	for i := 0; i < d.workers; i++ {
		idx := i
		name := "bot.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			d.log.Debug("worker started", logx.Int("worker", idx))
			defer d.log.Debug("worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-d.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; keep the worker alive if a
					// job slips through anyway.
					func() {
						defer func() {
							if r := recover(); r != nil {
								d.log.Error("panic in job",
									logx.Int("worker", idx),
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.setSupervisor(nil, false)
		if n := atomic.LoadUint64(&d.droppedPlain); n > 0 {
			d.log.Warn("messages skipped while queue was full", logx.Uint64("count", n))
		}
		d.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				d.log.Info("updates channel closed")
				return nil
			}
			d.route(ctx, up)
		}
	}
}

func (d *Dispatcher) route(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	req := d.newRequest(up.Message)

	final := Chain(
		d.handler.Handle,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(d.timeout),
	)

	if d.tryEnqueue(func() { _ = final(root, req) }) {
		return
	}
	if req.Kind == engine.CmdPlainText {
		atomic.AddUint64(&d.droppedPlain, 1)
		return
	}
	d.responder.TryReply(root, req.Chat, busyReply)
}

func (d *Dispatcher) newRequest(msg *kit.Message) *Request {
	text := engine.Normalize(msg.Text)
	kind, rest := engine.Classify(text)

	rid := uuid.NewString()[:8]
	reqLog := d.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("kind", string(kind)),
	)
	return &Request{
		Msg:    msg,
		Chat:   kit.ChatTarget{ChatID: msg.ChatID},
		Kind:   kind,
		Text:   text,
		Rest:   rest,
		ReqID:  rid,
		Logger: reqLog,
	}
}
