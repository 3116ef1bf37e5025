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
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-reservation/internal/analytics"
	"ms-reservation/internal/analytics/analytics_api"
	analytics_db "ms-reservation/internal/analytics/db"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/booking"
	"ms-reservation/internal/booking/booking_api"
	booking_db "ms-reservation/internal/booking/db"
	booking_redis "ms-reservation/internal/booking/redis"
	"ms-reservation/internal/catalog"
	"ms-reservation/internal/catalog/catalog_api"
	catalog_db "ms-reservation/internal/catalog/db"
	catalog_redis "ms-reservation/internal/catalog/redis"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/descriptor"
	"ms-reservation/internal/gateway"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/notify"
	notify_db "ms-reservation/internal/notify/db"
	"ms-reservation/internal/reconcile"
	reconcile_db "ms-reservation/internal/reconcile/db"
	"ms-reservation/internal/reconcile/reconcile_api"
	"ms-reservation/internal/schedule"
	schedule_db "ms-reservation/internal/schedule/db"
	"ms-reservation/internal/schedule/schedule_api"
	"ms-reservation/internal/settlement"
	settlement_db "ms-reservation/internal/settlement/db"
	"ms-reservation/internal/settlement/settlement_api"
	"ms-reservation/internal/sse"
	"ms-reservation/internal/sweeper"
	ticket_db "ms-reservation/internal/tickets/db"
	"ms-reservation/internal/tickets/qr"
	tickets "ms-reservation/internal/tickets/service"
	"ms-reservation/internal/tickets/ticket_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	return bunDB, redisClient
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(started))
		})
	}
}

func main() {
	log := logger.NewLogger("ms-reservation")
	defer log.Close()

	log.Info("APP", "Starting Reservation Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.Options{Dir: cfg.Database.Migrations}, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", err.Error())
		}
	}

	signer, err := descriptor.NewSigner(cfg.Secrets.DescriptorSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Descriptor signer: %v", err))
	}
	qrGen, err := qr.NewGenerator(cfg.Secrets.QRSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("QR generator: %v", err))
	}
	vnpay, err := gateway.NewVNPay(cfg.Gateway)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Payment gateway: %v", err))
	}

	// Without Kafka, confirmations are mailed in-process and alerts only logged.
	var (
		publisher notify.Publisher
		alerts    reconcile.Publisher
		sink      notify.Sink
	)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))

		requiredTopics := []string{cfg.Kafka.Topics.SeatStatus, cfg.Kafka.Topics.TicketConfirmed, cfg.Kafka.Topics.Reconciliation}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		publisher, alerts = producer, producer
		sink = &notify.KafkaSink{Publisher: producer, Topic: cfg.Kafka.Topics.TicketConfirmed}
	} else {
		sink = notify.NewMailer(cfg.Mail, &notify_db.DB{Bun: bunDB}, qrGen, log)
	}

	emitter := sse.NewSeatEventEmitter()
	seatFeed := &notify.SeatFeed{Publisher: publisher, Topic: cfg.Kafka.Topics.SeatStatus, Emitter: emitter, Logger: log}
	dispatcher := notify.NewDispatcher(sink, cfg.Notify.QueueSize, log)
	dispatcher.Start()

	catalogService := catalog.NewService(&catalog_db.DB{Bun: bunDB}, catalog_redis.NewCache(redisClient, cfg.Reservation.CategoryCacheTTL), log)
	scheduleService := schedule.NewService(&schedule_db.DB{Bun: bunDB}, cfg.Reservation.AreaBuffer, log)
	ticketService := tickets.NewTicketService(&ticket_db.DB{Bun: bunDB}, qrGen, log)
	analyticsService := analytics.NewService(&analytics_db.DB{Bun: bunDB}, log)

	markers := booking_redis.NewHoldMarkers(redisClient)
	if err := markers.EnableExpiryEvents(ctx); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	}
	bookingService := booking.NewService(&booking_db.DB{Bun: bunDB}, catalogService, signer, vnpay, qrGen, cfg, log)
	bookingService.Markers = markers
	bookingService.Seats = seatFeed
	bookingService.Notifier = dispatcher

	alerter := reconcile.NewAlerter(alerts, cfg.Kafka.Topics.Reconciliation, log)
	reconcileService := reconcile.NewService(&reconcile_db.DB{Bun: bunDB}, log)

	settlementService := settlement.NewService(&settlement_db.DB{Bun: bunDB}, vnpay, signer, bookingService, alerter, qrGen, cfg.Gateway.CurrCode, log)
	settlementService.Seats = seatFeed
	settlementService.Notifier = dispatcher

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	if cfg.Reservation.SweeperEnabled {
		holdSweeper := sweeper.New(bookingService, markers, cfg.Reservation.SweepInterval, log)
		go func() {
			defer close(sweepDone)
			holdSweeper.Run(sweepCtx)
		}()
	} else {
		close(sweepDone)
		log.Warn("SWEEPER", "In-process hold sweeper disabled")
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		(&settlement_api.Handler{Service: settlementService, Logger: log}).RegisterRoutes(r)
		(&sse.Handler{Emitter: emitter, Logger: log}).RegisterRoutes(r)
		log.Info("ROUTER", "Payment callbacks and seat stream registered")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			if cfg.Auth.OIDCIssuer != "" {
				verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
				if err != nil {
					log.Fatal("AUTH", fmt.Sprintf("OIDC provider: %v", err))
				}
				r.Use(auth.Middleware(verifier, log))
				log.Info("AUTH", "JWT middleware applied to protected API routes")
			} else {
				log.Warn("AUTH", "OIDC_ISSUER not set, API routes are unauthenticated")
			}

			(&booking_api.Handler{Service: bookingService, Logger: log}).RegisterRoutes(r)
			(&catalog_api.Handler{Service: catalogService, Logger: log}).RegisterRoutes(r)
			(&schedule_api.Handler{Service: scheduleService, Logger: log}).RegisterRoutes(r)
			(&ticket_api.Handler{Service: ticketService, Logger: log}).RegisterRoutes(r)
			(&reconcile_api.Handler{Service: reconcileService, Logger: log}).RegisterRoutes(r)
			(&analytics_api.Handler{Service: analyticsService, Logger: log}).RegisterRoutes(r)
			log.Info("ROUTER", "Protected API routes registered")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Reservation Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	stopSweeper()
	<-sweepDone
	dispatcher.Stop()
	log.Info("APP", "✅ Reservation Service shutdown complete")
}
