package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	vh "github.com/tckz/vegetahelper"
	"github.com/tckz/viewcounter/internal/config"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/log"
	"github.com/tckz/viewcounter/internal/store"
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
	optRate = &vh.RateFlag{
		Rate: &vegeta.Rate{
			Freq: 30,
			Per:  1 * time.Second,
		}}
	optDuration = flag.Duration("duration", 10*time.Second, "Duration of the test [0 = forever]")
	optOutput   = flag.String("output", "", "/path/to/results.bin or 'stdout'")
	optWorkers  = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optKey      = flag.String("key", "", "counter key, random 'load-<uuid>' if empty")
	optTopic    = flag.String("topic", "", "publish keys to this topic instead of incrementing directly")
	optKeyAttr  = flag.String("key-attr", "key", "message attribute holding the counter key, message data if empty")
)

func setup() {
	godotenv.Load()

	flag.Var(optRate, "rate", "Number of requests per time unit")
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel), log.WithApp(myName))).Sugar()
}

type nopWriteCloser struct {
	io.Writer
}

func (c nopWriteCloser) Close() error {
	return nil
}

func openResultFile(out string) (io.WriteCloser, error) {
	switch out {
	case "stdout":
		return &nopWriteCloser{os.Stdout}, nil
	default:
		return os.Create(out)
	}
}

func main() {
	setup()

	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	if *optOutput == "" {
		logger.Fatalf("*** --output must be specified.")
	}

	key := *optKey
	if key == "" {
		key = "load-" + uuid.New().String()
	}
	logger.Infof("key=%s", key)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *optTopic != "" {
		publish(ctx, cancel, key)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("*** config.Load: %v", err)
	}

	vc, closeStore, err := store.OpenCounter(ctx, cfg, counter.WithLogger(logger))
	if err != nil {
		logger.Fatalf("*** store.OpenCounter: %v", err)
	}
	defer closeStore()
	logger.Infof("store=%s, policy=%s", cfg.Store.Type, vc.Policy())

	var got observed
	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		n, err := vc.Increment(ctx, key)
		if err != nil {
			return nil, err
		}
		got.add(n)
		return result, nil
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "increment")

	drain(cancel, res)

	// the attack context may be canceled by now
	lookup, err := vc.Get(context.Background(), key)
	if err != nil {
		logger.Fatalf("*** Get: %v", err)
	}

	values := got.snapshot()
	logger.Infof("succeeded=%s, views=%s", humanize.Comma(int64(len(values))), humanize.Comma(lookup.Views()))
	if err := verifySequence(values, lookup.Views()); err != nil {
		logger.Fatalf("*** verifySequence: %v", err)
	}
}

// publish feeds a subscriber instead of the store; the subscriber does the counting.
func publish(ctx context.Context, cancel context.CancelFunc, key string) {
	pjID := os.Getenv("PROJECT_ID")

	cl, err := pubsub.NewClient(ctx, pjID)
	if err != nil {
		logger.Fatalf("*** pubsub.NewClient: %v", err)
	}
	defer cl.Close()

	topic := cl.Topic(*optTopic)
	topic.PublishSettings.NumGoroutines = 30
	defer topic.Stop()

	chRes := make(chan *pubsub.PublishResult, 30)
	eg, egCtx := errgroup.WithContext(ctx)
	var published int64
	for i := 0; i < 30; i++ {
		eg.Go(func() error {
			for {
				select {
				case res, ok := <-chRes:
					if !ok {
						return nil
					}

					if _, err := res.Get(egCtx); err != nil {
						logger.Errorf("*** Get: %v", err)
						return err
					}
					atomic.AddInt64(&published, 1)
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}
		})
	}

	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		msg := &pubsub.Message{}
		if *optKeyAttr == "" {
			msg.Data = []byte(key)
		} else {
			msg.Attributes = map[string]string{*optKeyAttr: key}
		}
		chRes <- topic.Publish(ctx, msg)

		return result, nil
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "publish")

	drain(cancel, res)

	close(chRes)
	logger.Infof("waiting goroutines for res.Get exit")
	if err := eg.Wait(); err != nil {
		logger.Errorf("Wait: %v", err)
	}
	logger.Infof("published=%s", humanize.Comma(atomic.LoadInt64(&published)))
}

// drain writes attack results to --output until the attack finishes or SIGINT arrives.
func drain(cancel context.CancelFunc, res <-chan *vegeta.Result) {
	out, err := openResultFile(*optOutput)
	if err != nil {
		logger.Fatal(err)
	}
	defer out.Close()
	enc := vegeta.NewEncoder(out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	defer signal.Stop(sig)

loop:
	for {
		select {
		case s := <-sig:
			logger.Infof("Received signal: %s", s)
			cancel()
			// keep loop until 'res' is closed.
		case r, ok := <-res:
			if !ok {
				break loop
			}
			if err := enc.Encode(r); err != nil {
				logger.Errorf("*** Encode: %v", err)
				break loop
			}
		}
	}
}
