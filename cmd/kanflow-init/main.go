package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"kanflow/config"
	"kanflow/storage"
)

func main() {
	cfg, err := config.LoadStorage(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(cfg.Level())
	log.WithField("driver", cfg.StorageDriver).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := storage.NewPostgres(ctx, cfg.DatabaseURL, log.StandardLogger())
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	default:
		if err := storage.Provision(ctx, cfg.StorageConnStr, []string{cfg.TasksTable}, nil); err != nil {
			log.Fatalf("provision tables: %v", err)
		}
	}

	// Queues live in Azure Storage for both drivers.
	if cfg.StorageConnStr != "" {
		if err := storage.Provision(ctx, cfg.StorageConnStr, nil, []string{cfg.EventsQueue, cfg.ContactQueue}); err != nil {
			log.Fatalf("provision queues: %v", err)
		}
	}

	log.Info("storage init complete")
}
