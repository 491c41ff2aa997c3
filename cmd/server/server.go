package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/phrazzld/genflow/internal/worker"
)

// Run serves HTTP and runs the background workers until a termination
// signal arrives, ctx is canceled or one of them fails.
func (app *application) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", app.config.Server.Port, err)
	}
	return app.serve(ctx, listener)
}

func (app *application) serve(ctx context.Context, listener net.Listener) error {
	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				app.logger.Info("Shutting down server...")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Background workers.
	{
		workerCtx, workerCancel := context.WithCancel(context.WithoutCancel(ctx))
		defer workerCancel()

		g.Add(
			func() error {
				var started []*worker.Runner
				stop := func() error {
					var errs []error
					for _, r := range started {
						errs = append(errs, r.Stop())
					}
					return errors.Join(errs...)
				}

				for _, r := range app.workers {
					if err := r.Start(workerCtx); err != nil {
						return errors.Join(fmt.Errorf("failed to start worker runner: %w", err), stop())
					}
					started = append(started, r)
				}
				<-workerCtx.Done()
				// Queued and in-flight jobs finish before Stop returns.
				return stop()
			},
			func(_ error) {
				workerCancel()
			},
		)
	}

	// HTTP server.
	{
		server := &http.Server{
			Handler:           app.handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Add(
			func() error {
				app.logger.Info("Starting server", "addr", listener.Addr().String())
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					app.logger.Error("Server shutdown failed", "error", err)
				}
			},
		)
	}

	err := g.Run()
	app.logger.Info("Server shutdown completed")
	return err
}
