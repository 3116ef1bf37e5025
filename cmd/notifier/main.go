package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"

	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/notify"
	notify_db "ms-reservation/internal/notify/db"
	"ms-reservation/internal/tickets/qr"
)

// handleConfirmation mails one confirmation. Undecodable messages are logged
// and acknowledged so they do not block the partition.
func handleConfirmation(sink notify.Sink, log *logger.Logger) kafka.Handler {
	return func(ctx context.Context, msg kafkago.Message) error {
		var confirmation models.TicketConfirmation
		if err := json.Unmarshal(msg.Value, &confirmation); err != nil {
			log.Error("NOTIFY", fmt.Sprintf("Dropping undecodable confirmation at offset %d: %v", msg.Offset, err))
			return nil
		}
		if err := sink.Deliver(ctx, confirmation); err != nil {
			return fmt.Errorf("deliver %s: %w", confirmation.TxnRef, err)
		}
		log.Info("NOTIFY", fmt.Sprintf("Confirmation %s mailed to user %s (%d tickets)", confirmation.TxnRef, confirmation.UserID, len(confirmation.Tickets)))
		return nil
	}
}

func main() {
	log := logger.NewLogger("ms-reservation-notifier")
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

	qrGen, err := qr.NewGenerator(cfg.Secrets.QRSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("QR generator: %v", err))
	}
	mailer := notify.NewMailer(cfg.Mail, &notify_db.DB{Bun: bunDB}, qrGen, log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketConfirmed, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Info("APP", "Shutdown signal received, stopping consumer")
		cancel()
	}()

	log.Info("APP", fmt.Sprintf("🚀 Notifier consuming %s", cfg.Kafka.Topics.TicketConfirmed))
	if err := consumer.Run(ctx, handleConfirmation(mailer, log)); err != nil {
		log.Fatal("KAFKA", err.Error())
	}
	log.Info("APP", "✅ Notifier shutdown complete")
}
