package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/database"
	"ms-club-ticketing/internal/database/migrations"
	"ms-club-ticketing/internal/kafka"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/order"
	orderdb "ms-club-ticketing/internal/order/db"
	"ms-club-ticketing/internal/order/order_api"
	rediswrap "ms-club-ticketing/internal/order/redis"
	paymenthandler "ms-club-ticketing/internal/payment/handler"
	payments "ms-club-ticketing/internal/payment/services"
	"ms-club-ticketing/internal/payment/storage"
	"ms-club-ticketing/internal/sse"
	ticketdb "ms-club-ticketing/internal/tickets/db"
	tickets "ms-club-ticketing/internal/tickets/service"
	"ms-club-ticketing/internal/tickets/ticket_api"
	"ms-club-ticketing/internal/utils"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDir, "club-ticketing")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("APP", "Starting club ticketing service")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.Options{Dir: cfg.Database.MigrationsDir, AutoMigrate: true}, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		runner.Close()
	}

	redisClient, err := rediswrap.Connect(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer redisClient.Close()

	var publisher kafka.Publisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.TopicNames(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled, domain events are dropped")
	}
	events := kafka.NewEvents(publisher, cfg.Kafka.Topics, log)

	orderStore := &orderdb.DB{Bun: bunDB}
	emitter := sse.NewHoldEventEmitter()
	orderService := order.NewOrderService(
		orderStore,
		rediswrap.NewHoldLedger(redisClient, cfg.Holds.TTL, log),
		rediswrap.NewSectorLock(redisClient, cfg.Holds.LockEnabled, cfg.Holds.LockTTL, cfg.Holds.LockWait),
		events,
		emitter,
		log,
	)

	ticketService := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, events, log)

	paymentService := payments.NewPaymentService(
		orderStore,
		storage.NewStore(bunDB, log),
		payments.NewAsaasClient(cfg.Asaas, log),
		ticketService,
		events,
		log,
	)

	if err := rediswrap.WatchHoldExpiry(ctx, redisClient, log, orderService.HandleHoldExpired); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Hold expiry watcher not running: %v", err))
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentStatus, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.Start(ctx, paymentService.ApplyStatus)
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	order_api.NewHandler(orderService, log).Routes(r)
	order_api.NewSSEHandler(log, emitter, orderService).Routes(r)
	log.Info("ROUTER", "Hold and order routes registered under /reservas, /pedidos and /jogos")

	ticket_api.NewHandler(ticketService, log).Routes(r)
	log.Info("ROUTER", "Ticket routes registered under /checkin and /ingressos")

	paymenthandler.NewHandler(paymentService, cfg.Asaas.WebhookToken, log).Routes(r)
	log.Info("ROUTER", "Payment routes registered under /pedidos/{id}/pagamento and /webhooks/asaas")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", "Club ticketing service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Club ticketing service shutdown complete")
	}
}
