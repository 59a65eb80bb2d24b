package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func main() {
	deadLetters := flag.Int("dead-letters", 0, "print the N most recent dead-lettered events as JSON lines and exit")
	reason := flag.String("reason", "", "with -dead-letters, only show this error reason (max_attempts|non_retryable)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if *deadLetters > 0 {
		if err := printDeadLetters(cfg, logg, *deadLetters, enums.OutboxDLQErrorReason(*reason)); err != nil {
			logg.Error(context.Background(), "failed to list dead letters", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}

	topics := &topicCache{client: pubsubClient, byName: map[string]*pubsub.TopicPublisher{}}
	defer topics.stopAll()
	for _, topic := range eventRegistry.Topics() {
		if topics.get(topic) == nil {
			return fmt.Errorf("no publisher for topic %q", topic)
		}
	}

	relay, err := NewRelay(RelayParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Ping:       pubsubClient.Ping,
		Events:     outbox.NewRepository(dbClient.DB()),
		DeadLetter: outbox.NewDLQRepository(dbClient.DB()),
		Resolver:   eventRegistry,
		Topic:      topics.get,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	err = relay.Run(ctx)
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return err
}

func printDeadLetters(cfg *config.Config, logg *logger.Logger, limit int, reason enums.OutboxDLQErrorReason) (err error) {
	if reason != "" && !reason.IsValid() {
		return fmt.Errorf("unknown reason %q", reason)
	}
	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	rows, err := outbox.NewDLQRepository(dbClient.DB()).Recent(ctx, reason, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// topicCache keeps one batching publisher per topic for the life of the process.
type topicCache struct {
	client *pubsub.Client
	mu     sync.Mutex
	byName map[string]*pubsub.TopicPublisher
}

func (c *topicCache) get(topic string) topicPublisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.byName[topic]; ok {
		return pub
	}
	raw := c.client.Publisher(topic)
	if raw == nil {
		return nil
	}
	pub := pubsub.NewTopicPublisher(raw)
	c.byName[topic] = pub
	return pub
}

func (c *topicCache) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pub := range c.byName {
		pub.Stop()
	}
}
