package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/joho/godotenv"

	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/logger"
)

func main() {
	seed := flag.Bool("seed", false, "also apply the demo seed migrations")
	down := flag.Bool("down", false, "roll every migration back")
	dir := flag.String("dir", "", "migrations directory (defaults to DB_MIGRATIONS_DIR)")
	flag.Parse()

	log := logger.NewLogger("ms-reservation-migrate")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if *dir == "" {
		*dir = cfg.Database.Migrations
	}

	bunDB, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: *dir, Seed: *seed}, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", err.Error())
		}
	}()

	if *down {
		if err := runner.Down(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		log.Info("MIGRATE", "✅ All migrations rolled back")
		return
	}
	if err := runner.Up(); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("✅ Migrations applied from %s", *dir))
}
