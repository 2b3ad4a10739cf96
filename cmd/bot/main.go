package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ghibli-bot/internal/bot"
	"ghibli-bot/internal/config"
	"ghibli-bot/internal/database"
	"ghibli-bot/internal/imagegen"
	"ghibli-bot/internal/ledger"
	"ghibli-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage backend
	var backend database.Backend
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := database.ConnectPostgres(cfg)
		if err != nil {
			log.Fatalf("Could not connect to database: %v", err)
		}
		backend = database.NewSQLBackend(db, cfg.Storage.DocumentKey)
	default:
		backend = database.NewFileBackend(cfg.Storage.DBFile, cfg.Storage.BackupDir)
	}
	store := database.NewDocumentStore(backend, cfg, logger)

	// Ledger lock
	var locker database.Locker
	switch cfg.Lock.Driver {
	case "redis":
		rdb, err := database.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Could not connect to redis: %v", err)
		}
		locker = database.NewRedisLocker(rdb, cfg.Lock.Key, cfg.Lock.TTL, logger)
	default:
		locker = database.NewMutexLocker()
	}

	l := ledger.New(store, locker, cfg, logger)
	if _, err := l.Stats(ctx); err != nil {
		log.Fatalf("Could not open ledger: %v", err)
	}

	go worker.NewCleaner(cfg.Storage.TempDir, cfg.Storage.TempMaxAge, logger).Start(ctx)

	b, err := bot.NewBot(cfg, l, imagegen.NewClient(cfg), logger)
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}

	log.Println("Service started successfully")
	if err := b.Start(ctx); err != nil {
		log.Fatalf("Bot stopped: %v", err)
	}
}
