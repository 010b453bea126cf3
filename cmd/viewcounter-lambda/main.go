package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/tckz/viewcounter/internal/config"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
	"github.com/tckz/viewcounter/internal/log"
	"github.com/tckz/viewcounter/internal/store"
)

var (
	myName  = filepath.Base(os.Args[0])
	version string
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.Must(log.NewLogger(log.WithLogLevel(cfg.LogLevel), log.WithApp(myName))).Sugar()
	logger.Infof("ver=%s", version)

	// the client outlives invocations; the runtime freezes the process between them
	vc, _, err := store.OpenCounter(context.Background(), cfg, counter.WithLogger(logger))
	if err != nil {
		logger.Fatalf("*** store.OpenCounter: %v", err)
	}
	logger.Infof("store=%s, policy=%s", cfg.Store.Type, vc.Policy())

	h := handler.New(vc, handler.WithLogger(logger), handler.WithTimeout(cfg.Counter.Timeout))
	lambda.Start(h.Handle)
}
