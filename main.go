package main

import (
	"context"
	"log"
	"os"

	"github.com/example/file-ingestion/config"
	cachemod "github.com/example/file-ingestion/modules/cache"
	httpservermod "github.com/example/file-ingestion/modules/httpserver"
	ingestmod "github.com/example/file-ingestion/modules/ingest"
	metadatamod "github.com/example/file-ingestion/modules/metadata"
	storagemod "github.com/example/file-ingestion/modules/storage"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("=== File Ingestion Service ===")
	log.Printf("HTTP Port: %d", cfg.HTTP.Port)
	log.Printf("Storage Backend: %s", cfg.Storage.Backend)
	log.Printf("Metadata DSN: %s", cfg.Metadata.DSN)
	log.Printf("Listing Cache: %s", cfg.Cache.Store)

	// Embedded NATS doubles as the JetStream object store backend
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(cfg.NATS.StoreDir),
		mono.WithNATSPort(cfg.NATS.Port),
	)
	if err != nil {
		log.Fatalf("Failed to create mono application: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Create modules
	storageModule := storagemod.NewModule(cfg.ForStorage(), app.Logger())
	metadataModule := metadatamod.NewModule(cfg.Metadata.DSN, cfg.Metadata.Debug, app.Logger())
	cacheModule := cachemod.NewModule(cfg.ForCache(), app.Logger())
	ingestCfg, poolCfg := cfg.ForIngest()
	ingestModule := ingestmod.NewModule(ingestCfg, poolCfg, app.Logger())
	httpServerModule := httpservermod.NewModule(cfg.HTTP.Port, cfg.HTTP.MaxBodyBytes, app.Logger())

	// Wire up dependencies
	ingestModule.SetStorageModule(storageModule)
	ingestModule.SetMetadataModule(metadataModule)
	ingestModule.SetCacheModule(cacheModule)
	ingestModule.SetRegisterer(registry)
	httpServerModule.SetIngestModule(ingestModule)
	httpServerModule.SetGatherer(registry)
	httpServerModule.AddHealthCheck(storageModule, metadataModule, cacheModule, ingestModule)

	// Registration order is start order
	app.Register(storageModule)
	app.Register(metadataModule)
	app.Register(cacheModule)
	app.Register(ingestModule)
	app.Register(httpServerModule)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	log.Println("=== Application Started ===")
	log.Printf("API available at http://localhost:%d", cfg.HTTP.Port)
	log.Println("Endpoints:")
	log.Println("  GET    /health                         - Health check")
	log.Println("  GET    /metrics                        - Prometheus metrics")
	log.Println("  POST   /api/v1/files                   - Upload files (zip archives are expanded)")
	log.Println("  POST   /api/v1/files/async             - Queue an upload in the background")
	log.Println("  GET    /api/v1/files/async/:ticket     - Background upload status")
	log.Println("  GET    /api/v1/files                   - List files by filter")
	log.Println("  GET    /api/v1/files/range             - List files by upload date range")
	log.Println("  GET    /api/v1/files/download          - Download every file matching a filter")
	log.Println("  GET    /api/v1/files/:id               - Download a file")
	log.Println("  PUT    /api/v1/files/:id               - Replace a file")
	log.Println("  PATCH  /api/v1/files/:id/name          - Rename a file")
	log.Println("  DELETE /api/v1/files                   - Delete files by id")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
