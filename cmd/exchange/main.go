package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/erain9/exchange/config"
	"github.com/erain9/exchange/pkg/backend/memory"
	"github.com/erain9/exchange/pkg/backend/pebble"
	"github.com/erain9/exchange/pkg/backend/redis"
	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/db/queue"
	"github.com/erain9/exchange/pkg/logging"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/erain9/exchange/pkg/messaging/kafka"
	"github.com/erain9/exchange/pkg/otel"
	"github.com/erain9/exchange/pkg/settlement"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Pretty: cfg.Server.LogFormat == "pretty",
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Exchange stopped with error")
	}
}

// closers are run in reverse order on shutdown
type closers []func() error

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn().Err(err).Msg("Shutdown error")
		}
	}
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	var cleanup closers
	defer cleanup.closeAll()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(otel.Config{
			ServiceName:      cfg.Telemetry.ServiceName,
			ServiceVersion:   "1.0.0",
			Endpoint:         cfg.Telemetry.Endpoint,
			ConnectTimeout:   cfg.Telemetry.ConnectTimeout,
			CollectorEnabled: true,
			RuntimeMetrics:   cfg.Telemetry.RuntimeMetrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}
		cleanup = append(cleanup, func() error { shutdown(); return nil })
	}

	journal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, journal.Close)

	events := messaging.MultiSink{journal}
	// the in-process ledger settles synchronously; only the remote producer
	// sits behind the dispatcher
	ledger := settlement.NewLedger()
	settlers := messaging.MultiSettler{ledger}
	var dispatcher *queue.Dispatcher

	if cfg.Kafka.Enabled {
		writer, err := kafka.NewEventWriter(kafka.WriterConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.EventsTopic,
		})
		if err != nil {
			return err
		}
		cleanup = append(cleanup, writer.Close)
		events = append(events, writer)

		producer, err := queue.NewSettlementProducer(cfg.Kafka.Brokers, cfg.Kafka.SettlementTopic)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, producer.Close)

		// closed before the producer so buffered instructions still go out
		dispatcher = queue.NewDispatcher(producer, cfg.Engine.SettlementWorkers, cfg.Engine.SettlementBuffer)
		cleanup = append(cleanup, dispatcher.Close)
		settlers = append(settlers, dispatcher)

		if cfg.Kafka.SettlementReplay {
			stop, err := replaySettlements(ctx, cfg, ledger)
			if err != nil {
				return err
			}
			cleanup = append(cleanup, stop)
		}

		if cfg.Kafka.TailGroup != "" {
			consumer, err := kafka.SetupConsumer(ctx, kafka.ReaderConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.EventsTopic,
				GroupID: cfg.Kafka.TailGroup,
			}, log.Logger)
			if err != nil {
				return err
			}
			cleanup = append(cleanup, consumer.Close)
		}
	}

	engine := core.NewEngine(
		core.WithJournal(events),
		core.WithSettlement(settlers),
		core.WithSequenceSource(journal),
	)
	for _, symbol := range cfg.Engine.Symbols {
		if _, err := engine.RegisterSymbol(ctx, symbol); err != nil {
			return fmt.Errorf("failed to register %s: %w", symbol, err)
		}
	}

	log.Info().
		Strs("symbols", engine.Symbols()).
		Str("journal", cfg.Engine.Journal).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Exchange ready, reading commands from stdin")

	s := &session{engine: engine, journal: journal, ledger: ledger, queue: dispatcher, out: out}
	return s.run(ctx, in)
}

// replaySettlements feeds the settlement topic back into the ledger in the
// background. The ledger ignores instructions it has already applied, so
// the replay may overlap with live settlement.
func replaySettlements(ctx context.Context, cfg *config.Config, ledger *settlement.Ledger) (func() error, error) {
	consumer, err := queue.NewSettlementConsumer(cfg.Kafka.Brokers, cfg.Kafka.SettlementTopic, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().Str("topic", cfg.Kafka.SettlementTopic).Msg("Replaying settlements into the ledger")
		if err := consumer.Consume(ctx, ledger); err != nil {
			log.Error().Err(err).Msg("Settlement replay stopped")
		}
	}()

	return func() error {
		cancel()
		<-done
		return consumer.Close()
	}, nil
}

func openJournal(ctx context.Context, cfg *config.Config) (core.JournalBackend, error) {
	switch cfg.Engine.Journal {
	case config.JournalRedis:
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		backend := redis.NewRedisBackend(client, cfg.Redis.Prefix, logger)
		if err := backend.Ping(ctx); err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("redis journal at %s: %w", cfg.Redis.Addr, err)
		}
		return backend, nil

	case config.JournalPebble:
		return pebble.Open(pebble.Options{Dir: cfg.Pebble.Dir, Sync: cfg.Pebble.Sync})

	default:
		return memory.NewMemoryBackend(), nil
	}
}
