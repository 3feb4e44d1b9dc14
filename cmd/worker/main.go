package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/danghoangnam/pos-core/internal/config"
	"github.com/danghoangnam/pos-core/internal/events"
	"github.com/danghoangnam/pos-core/internal/inventory"
	"github.com/danghoangnam/pos-core/internal/kafkax"
	"github.com/danghoangnam/pos-core/internal/postgres"
	"github.com/danghoangnam/pos-core/internal/redisx"
	"github.com/danghoangnam/pos-core/internal/versioned"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.ServiceName+"-worker")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	invRepo := &inventory.PostgresRepo{DB: db}
	reservations := inventory.NewReservationManager(invRepo, rdb, cfg.ReservationTTL, cfg.MutationRetries, logger)

	// Versioned snapshots of stock levels, keyed inventory:{product_id}, for
	// collaborators that read through the cache instead of the products table.
	store := versioned.New(
		&versioned.PostgresDurable{DB: db},
		&versioned.RedisCache{RDB: rdb},
		versioned.WithLogger(logger),
		versioned.WithPolicy("inventory", versioned.PolicyLastWriteWins),
	)

	group := getenv("WORKER_GROUP", "pos-worker")
	workers := mustAtoi(os.Getenv("WORKER_CONCURRENCY"), 4)
	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicStockUpdated, workers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("reservation sweeper started", "interval", cfg.SweepInterval)
		reservations.RunSweeper(gctx, cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		logger.Info("stock snapshot consumer started", "group", group, "topic", events.TopicStockUpdated)
		return consumer.Start(gctx, snapshotHandler(store))
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("worker exit: %v", err)
	}
	logger.Info("worker stopped")
}

// snapshotHandler folds stock_updated events into versioned inventory
// snapshot records.
func snapshotHandler(store *versioned.Store) kafkax.Handler {
	return func(ctx context.Context, m kafkago.Message) error {
		var env events.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			return err
		}
		if env.EventType != string(events.TypeStockUpdated) {
			return nil
		}
		p, err := kafkax.UnwrapPayload[events.StockUpdatedPayload](env.Payload)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("inventory:%s", p.ProductID)
		if _, err := store.Write(ctx, key, env.Payload, env.Producer); err != nil {
			return err
		}
		return nil
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
