package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tckz/viewcounter/internal/config"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
	"github.com/tckz/viewcounter/internal/log"
	"github.com/tckz/viewcounter/internal/store"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optKey      = flag.String("key", "", "counter key")
	optGet      = flag.Bool("get", false, "print the current count without incrementing")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel), log.WithApp(myName))).Sugar()
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if err := run(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vc, closeStore, err := store.OpenCounter(ctx, cfg, counter.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("store.OpenCounter: %w", err)
	}
	defer closeStore()

	if *optGet {
		if err := counter.ValidateKey(*optKey); err != nil {
			return err
		}
		l, err := vc.Get(ctx, *optKey)
		if err != nil {
			return fmt.Errorf("Get: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%d\n", l.Views())
		return nil
	}

	h := handler.New(vc, handler.WithLogger(logger), handler.WithTimeout(cfg.Counter.Timeout))
	n, err := h.Handle(ctx, handler.Event{Key: *optKey})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%d\n", n)
	return nil
}
