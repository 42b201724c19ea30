package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parcelworks/internal/blob"
	"parcelworks/internal/bootstrap"
	"parcelworks/internal/config"
	server "parcelworks/internal/http"
	"parcelworks/internal/jobs"
	"parcelworks/internal/migrate"
	"parcelworks/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	// Basic pool settings; adjust as needed
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	blobs, err := blob.New(cfg.Storage)
	if err != nil {
		log.Fatalf("storage client failed: %v", err)
	}

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Provision the bucket and scratch area before serving anything.
	if err := bootstrap.Run(context.Background(), cfg, blobs, logger); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	rootCtx := context.Background()

	switch *role {
	case "api":
		// API-only: do not start the job worker.
		s := server.NewServer(cfg, st, blobs, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		// Worker-only: run the job executor and block.
		go jobs.NewExecutor(cfg, st, blobs, logger).Start(rootCtx)
		select {}
	case "all":
		// Default: run both API and worker in one process.
		go jobs.NewExecutor(cfg, st, blobs, logger).Start(rootCtx)
		s := server.NewServer(cfg, st, blobs, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}
