package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/tckz/viewcounter/internal/config"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
	"github.com/tckz/viewcounter/internal/log"
	"github.com/tckz/viewcounter/internal/store"
	"github.com/tckz/viewcounter/internal/store/redisstore"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optWorkers      = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel     = flag.String("log-level", "info", "info|warn|error")
	optSubscription = flag.String("subscription", "", "subscription name")
	optRedis        = flag.String("redis", "", "addr:port of redis for process marks, in-process marks if empty")
	optKeyAttr      = flag.String("key-attr", "key", "message attribute holding the counter key, message data if empty")
	optMarkTTL      = flag.Duration("mark-ttl", 10*time.Minute, "TTL of process marks")
)

func setup() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel), log.WithApp(myName))).Sugar()
}

func main() {
	setup()

	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	if *optSubscription == "" {
		logger.Fatalf("*** --subscription must be specified.")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("*** config.Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vc, closeStore, err := store.OpenCounter(ctx, cfg, counter.WithLogger(logger))
	if err != nil {
		logger.Fatalf("*** store.OpenCounter: %v", err)
	}
	defer closeStore()
	logger.Infof("store=%s, policy=%s", cfg.Store.Type, vc.Policy())

	pjID := os.Getenv("PROJECT_ID")

	cl, err := pubsub.NewClient(ctx, pjID)
	if err != nil {
		logger.Fatalf("*** pubsub.NewClient: %v", err)
	}
	defer cl.Close()

	var marker ProcessMarker
	if *optRedis == "" {
		marker = NewLocalMarker(*optMarkTTL)
	} else {
		rcl := redisstore.NewClient(redisstore.Config{Addr: *optRedis})
		defer rcl.Close()
		marker = &RedisMarker{client: rcl, ttl: *optMarkTTL}
	}

	p := &Processor{
		handler: handler.New(vc, handler.WithLogger(logger), handler.WithTimeout(cfg.Counter.Timeout)),
		marker:  marker,
		logger:  logger,
	}

	eg, ctx := errgroup.WithContext(ctx)
	for i := uint64(0); i < *optWorkers; i++ {
		eg.Go(func() error {
			subs := cl.Subscription(*optSubscription)
			return subs.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				key := string(msg.Data)
				if *optKeyAttr != "" {
					key = msg.Attributes[*optKeyAttr]
				}
				if p.Process(ctx, msg.ID, key) {
					msg.Ack()
				} else {
					msg.Nack()
				}
			})
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	s := <-sig
	logger.Infof("Received signal: %v", s)
	cancel()

	logger.Infof("Waiting goroutines exit")
	if err := eg.Wait(); err != nil {
		logger.Errorf("Wait: %v", err)
	}
}
