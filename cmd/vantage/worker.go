package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const workerLockTTL = 10 * time.Minute

var (
	flagOnce        bool
	flagMetricsAddr string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Fire due recurring transactions for every user on an interval",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&flagOnce, "once", false, "Run a single batch and exit")
	workerCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9102)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if flagMetricsAddr != "" {
		srv := &http.Server{
			Addr:              flagMetricsAddr,
			Handler:           promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.WithoutCancel(ctx))
	}

	runBatch := func() {
		start := time.Now()
		result, ran, err := a.recurring.ProcessAllDue(ctx, workerLockTTL)
		switch {
		case err != nil:
			logger.Error("recurring batch failed", zap.Error(err))
		case !ran:
			logger.Info("recurring batch skipped")
		default:
			logger.Info("recurring batch complete",
				zap.Int("processed", len(result.Processed)),
				zap.Int("errors", len(result.Errors)),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	}

	logger.Info("recurring worker started", zap.Duration("interval", cfg.WorkerInterval), zap.Bool("once", flagOnce))
	runBatch()
	if flagOnce {
		return nil
	}

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("recurring worker stopping")
			return nil
		case <-ticker.C:
			runBatch()
		}
	}
}
