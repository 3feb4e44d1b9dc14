package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/danghoangnam/pos-core/internal/config"
	"github.com/danghoangnam/pos-core/internal/events"
	"github.com/danghoangnam/pos-core/internal/httpx"
	"github.com/danghoangnam/pos-core/internal/inventory"
	"github.com/danghoangnam/pos-core/internal/kafkax"
	"github.com/danghoangnam/pos-core/internal/payments"
	"github.com/danghoangnam/pos-core/internal/postgres"
	"github.com/danghoangnam/pos-core/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockUpdated, 1024, logger)
	pStock.Start(ctx)
	pReorder := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockReorder, 1024, logger)
	pReorder.Start(ctx)
	pPayment := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentCompleted, 1024, logger)
	pPayment.Start(ctx)

	// event bus + durable mirror
	bus := events.NewBus(1024, logger)
	mirror := &events.KafkaMirror{Updated: pStock, Reorder: pReorder, Service: cfg.ServiceName}
	mirror.Attach(bus)

	// inventory core
	invRepo := &inventory.PostgresRepo{DB: db}
	reservations := inventory.NewReservationManager(invRepo, rdb, cfg.ReservationTTL, cfg.MutationRetries, logger)
	mutations := inventory.NewMutationService(invRepo, bus, cfg.MutationRetries, logger)
	fulfiller := &inventory.Fulfiller{Reservations: reservations, Mutations: mutations, Log: logger}

	// payment core
	payRepo := &payments.PostgresRepo{DB: db}
	orchestrator := &payments.Orchestrator{
		Repo:      payRepo,
		SM:        &payments.StateMachine{Repo: payRepo},
		Locks:     payments.NewLockManager(&payments.RedisLease{RDB: rdb}, cfg.PaymentLockTTL),
		Gateways:  payments.NewRegistry(payments.CashGateway{}),
		Fulfiller: fulfiller,
		Producer:  pPayment,
		Secret:    cfg.WebhookSecret,
		Service:   cfg.ServiceName,
		Log:       logger,
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Payments:     orchestrator,
		Reservations: reservations,
		Stock:        mutations,
		Inventory:    invRepo,
		Log:          logger,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)

	bus.Close()
	pStock.Close()
	pReorder.Close()
	pPayment.Close()
	cancel()
	pStock.WaitClosed()
	pReorder.WaitClosed()
	pPayment.WaitClosed()
}
