package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	logx "quipbot/pkg/logx"
)

func TestChainAppliesOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(ctx context.Context, req *Request) error {
		order = append(order, "handler")
		return nil
	}, tag("outer"), tag("inner"))

	if err := h(context.Background(), newReq("x", 1)); err != nil {
		t.Fatalf("chain: %v", err)
	}
	want := []string{"outer", "inner", "handler"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPanicRecoverTurnsPanicIntoError(t *testing.T) {
	h := Chain(func(ctx context.Context, req *Request) error {
		panic("boom")
	}, MWPanicRecover(logx.Nop()))

	err := h(context.Background(), newReq("x", 1))
	if err == nil || !strings.Contains(err.Error(), "panic: boom") {
		t.Fatalf("err = %v, want panic: boom", err)
	}
}

func TestTimeoutCancelsSlowHandlers(t *testing.T) {
	h := Chain(func(ctx context.Context, req *Request) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	}, MWTimeout(20*time.Millisecond))

	if err := h(context.Background(), newReq("x", 1)); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestTimeoutZeroLeavesContextAlone(t *testing.T) {
	h := Chain(func(ctx context.Context, req *Request) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("unexpected deadline")
		}
		return nil
	}, MWTimeout(0))

	if err := h(context.Background(), newReq("x", 1)); err != nil {
		t.Fatalf("chain: %v", err)
	}
}

func TestRequestLogPassesErrorThrough(t *testing.T) {
	want := context.DeadlineExceeded
	h := Chain(func(ctx context.Context, req *Request) error {
		return want
	}, MWRequestLog(logx.Nop()))

	if err := h(context.Background(), newReq("x", 1)); err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
