// Command library-mock serves an in-memory library service for local load
// runs and demos.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/library/mock"
)

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "library-mock",
		Short:        "Serve an in-memory library service",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			latency, _ := cmd.Flags().GetDuration("latency")
			failureRate, _ := cmd.Flags().GetFloat64("failure-rate")

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, addr, mock.NewServer(
				mock.WithLatency(latency),
				mock.WithFailureRate(failureRate),
				mock.WithLogger(logger),
			), logger)
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Duration("latency", 0, "Delay added to every response")
	cmd.Flags().Float64("failure-rate", 0, "Fraction of requests answered with 500")
	return cmd
}

func serve(ctx context.Context, addr string, library *mock.Server, logger *zap.Logger) error {
	// Configure server for high throughput
	server := &http.Server{
		Addr:              addr,
		Handler:           library.Handler(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving library mock", zap.String("addr", addr), zap.Int("cpus", runtime.NumCPU()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	hits := library.Hits()
	fields := make([]zap.Field, 0, len(hits))
	for route, n := range hits {
		fields = append(fields, zap.Int64(route, n))
	}
	logger.Info("shut down", fields...)
	return nil
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
