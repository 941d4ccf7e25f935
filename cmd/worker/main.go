package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"github.com/corrigeo/api/internal/client"
	"github.com/corrigeo/api/internal/config"
	"github.com/corrigeo/api/internal/docgen"
	"github.com/corrigeo/api/internal/ocr"
	"github.com/corrigeo/api/internal/publish"
	"github.com/corrigeo/api/internal/store"
	"github.com/corrigeo/api/internal/worker"
)

// Headless worker process. Consumes correction jobs from the queue and runs
// the full pipeline; status updates reach clients through polling, so no
// WebSocket hub is wired here.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	var correctionStore store.Store
	if cfg.Database.URL != "" {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		correctionStore = store.NewPostgresStore(pool)
	} else {
		// An in-memory store is useless across processes; only acceptable
		// when the worker runs embedded in the API. Fail loudly.
		log.Fatal("DATABASE_URL is required for the standalone worker")
	}

	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, using mock result URLs")
	}

	extractor := ocr.NewExtractor(cfg.OCR)
	grader := client.NewMistralClient(&cfg.Mistral)
	renderer := docgen.NewDocxRenderer()
	publisher := publish.NewPublisher(storageClient, correctionStore)

	correctionWorker := worker.NewCorrectionWorker(correctionStore, extractor, grader, renderer, publisher, nil, cfg.Worker.JobTimeout)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	log.Printf("Worker starting on queue %q with concurrency %d", cfg.Worker.Queue, cfg.Worker.Concurrency)
	if err := worker.RunServer(redisOpt, cfg.Worker.Queue, cfg.Worker.Concurrency, correctionWorker); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
}
