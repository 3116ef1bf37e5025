package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-reservation/internal/booking"
	booking_db "ms-reservation/internal/booking/db"
	booking_redis "ms-reservation/internal/booking/redis"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/notify"
	"ms-reservation/internal/sweeper"
)

// The standalone sweeper only releases holds, so it runs without the catalog,
// signer or gateway. Set HOLD_SWEEPER_ENABLED=false on the API replicas when
// this binary is deployed.
func main() {
	log := logger.NewLogger("ms-reservation-sweeper")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()
	markers := booking_redis.NewHoldMarkers(redisClient)

	var expiries sweeper.ExpirySource
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable, relying on periodic sweeps only: %v", err))
	} else {
		if err := markers.EnableExpiryEvents(ctx); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
		}
		expiries = markers
	}

	holds := booking.NewService(&booking_db.DB{Bun: bunDB}, nil, nil, nil, nil, cfg, log)
	holds.Markers = markers
	seatFeed := &notify.SeatFeed{Topic: cfg.Kafka.Topics.SeatStatus, Logger: log}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		seatFeed.Publisher = producer
	}
	holds.Seats = seatFeed

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Info("APP", "Shutdown signal received, stopping sweeper")
		cancel()
	}()

	log.Info("APP", fmt.Sprintf("🚀 Hold sweeper running every %s (hold TTL %s)", cfg.Reservation.SweepInterval, cfg.Reservation.HoldTTL))
	sweeper.New(holds, expiries, cfg.Reservation.SweepInterval, log).Run(ctx)
	log.Info("APP", "✅ Hold sweeper shutdown complete")
}
