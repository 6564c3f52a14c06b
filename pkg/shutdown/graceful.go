package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Drain runs each stop function with a shared deadline once ctx is done,
// in the order given.
func Drain(ctx context.Context, log *slog.Logger, timeout time.Duration, stops ...func(context.Context) error) {
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, stop := range stops {
		if err := stop(stopCtx); err != nil {
			log.Error("shutdown step failed", "err", err)
		}
	}
}
