package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tckz/viewcounter/internal/config"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
	"github.com/tckz/viewcounter/internal/httpapi"
	"github.com/tckz/viewcounter/internal/log"
	"github.com/tckz/viewcounter/internal/metrics"
	"github.com/tckz/viewcounter/internal/store"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "", "info|warn|error, LOG_LEVEL if empty")
	optAddr     = flag.String("addr", "", "listen address, HTTP_ADDR if empty")
)

func init() {
	godotenv.Load()

	flag.Parse()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if *optLogLevel != "" {
		cfg.LogLevel = *optLogLevel
	}
	if *optAddr != "" {
		cfg.HTTPAddr = *optAddr
	}

	logger = log.Must(log.NewLogger(log.WithLogLevel(cfg.LogLevel), log.WithApp(myName))).Sugar()
	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vc, closeStore, err := store.OpenCounter(ctx, cfg, counter.WithLogger(logger))
	if err != nil {
		logger.Fatalf("*** store.OpenCounter: %v", err)
	}
	defer closeStore()
	logger.Infof("store=%s, policy=%s", cfg.Store.Type, vc.Policy())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := handler.New(vc,
		handler.WithLogger(logger),
		handler.WithMetrics(metrics.New(reg)),
		handler.WithTimeout(cfg.Counter.Timeout),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listen on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Infof("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("ListenAndServe: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
