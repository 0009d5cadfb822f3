package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that is canceled on the first SIGINT or
// SIGTERM. In-flight transfers stop before their next part; a second signal
// exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Warn("interrupted, stopping transfers",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-parent.Done():
			cancel()
			return
		}

		select {
		case <-sigCh:
			os.Exit(130)
		case <-parent.Done():
		}
	}()

	return ctx
}
