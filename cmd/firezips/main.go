// Command firezips reports the postal codes within a radius of an active
// fire detection in the region of interest.
//
// Usage:
//
//	firezips -z US.zip -r 5
//	firezips --zip-codes zipcodes.csv --radius 2.5 -format json -o affected.json
//	firezips -z postgres://localhost/geo -serve :8080
//
// Without -serve the binary downloads the current feed once, prints the
// affected set and exits. With -serve it loads the reference table once and
// answers GET /v1/affected?radius=<km> until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thomhuang/FireZipCodes/internal/api"
	"github.com/thomhuang/FireZipCodes/internal/config"
	"github.com/thomhuang/FireZipCodes/internal/logging"
	"github.com/thomhuang/FireZipCodes/internal/observability"
	"github.com/thomhuang/FireZipCodes/internal/pipeline"
	"github.com/thomhuang/FireZipCodes/internal/proximity"
	"github.com/thomhuang/FireZipCodes/internal/report"
	"github.com/thomhuang/FireZipCodes/internal/upstream"
	"github.com/thomhuang/FireZipCodes/internal/zipcodes"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat).With("env", cfg.Environment)

	app, err := wire(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitFailure
	}

	if cfg.ServeAddr != "" {
		if err := serve(ctx, cfg.ServeAddr, app, logger); err != nil {
			logger.Error("server failed", "error", err)
			return exitFailure
		}
		return exitOK
	}

	res, err := app.runner.Run(ctx, cfg.RadiusKM)
	if err != nil {
		return exitFailure
	}
	if cfg.Output.File != "" {
		err = report.WriteFile(cfg.Output.File, res, cfg.Output.Format)
	} else {
		err = report.Write(stdout, res, cfg.Output.Format)
	}
	if err != nil {
		logger.Error("writing report failed", "error", err)
		return exitFailure
	}
	return exitOK
}

type application struct {
	runner  *pipeline.Runner
	handler *api.Handler
}

// wire builds the runtime graph. The reference table is loaded here, once.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*application, error) {
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	client := upstream.NewClient(
		&http.Client{Timeout: cfg.Fetch.Timeout},
		cfg.Fetch.RetryPolicy(),
		upstream.WithLogger(logger),
		upstream.WithObserver(metrics.ObserveFetch),
	)

	areas, err := zipcodes.NewLoader(client, cfg.ZipTable, logger).Load(ctx, cfg.ZipCodes)
	if err != nil {
		return nil, err
	}
	metrics.SetPostalAreas(len(areas))

	matcher, err := proximity.NewMatcher(cfg.Match.StrategyName(), cfg.Match.Workers, areas)
	if err != nil {
		return nil, err
	}

	runner, err := pipeline.NewRunner(client, matcher, cfg.FeedURL, cfg.Region.Bounds(), metrics, logger)
	if err != nil {
		return nil, err
	}
	return &application{
		runner:  runner,
		handler: api.NewHandler(runner, len(areas), metrics.Handler(), logger),
	}, nil
}

func serve(ctx context.Context, addr string, app *application, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
