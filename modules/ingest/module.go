package ingest

import (
	"context"
	"fmt"

	"github.com/example/file-ingestion/modules/cache"
	"github.com/example/file-ingestion/modules/metadata"
	"github.com/example/file-ingestion/modules/storage"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Module runs the ingestion pipelines over the storage, metadata and cache modules.
type Module struct {
	cfg        Config
	poolCfg    PoolConfig
	storage    *storage.Module
	metadata   *metadata.Module
	cache      *cache.Module
	registry   prometheus.Registerer
	service    *Service
	background *Background
	logger     types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new ingest module.
func NewModule(cfg Config, poolCfg PoolConfig, logger types.Logger) *Module {
	return &Module{
		cfg:     cfg,
		poolCfg: poolCfg,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ingest"
}

// SetStorageModule sets the blob store dependency.
func (m *Module) SetStorageModule(s *storage.Module) {
	m.storage = s
}

// SetMetadataModule sets the metadata store dependency.
func (m *Module) SetMetadataModule(md *metadata.Module) {
	m.metadata = md
}

// SetCacheModule sets the listing cache dependency. Without it listings are read uncached.
func (m *Module) SetCacheModule(c *cache.Module) {
	m.cache = c
}

// SetRegisterer sets where pipeline metrics are registered. Without it no metrics are exported.
func (m *Module) SetRegisterer(reg prometheus.Registerer) {
	m.registry = reg
}

// Start builds the pipeline service and launches the background upload pool.
func (m *Module) Start(ctx context.Context) error {
	if m.storage == nil || m.storage.Backend() == nil {
		return fmt.Errorf("storage module not set")
	}
	if m.metadata == nil || m.metadata.Repository() == nil {
		return fmt.Errorf("metadata module not set")
	}

	var observer *Observer
	if m.registry != nil {
		o, err := NewObserver("", m.registry)
		if err != nil {
			return err
		}
		observer = o
	}

	var listings *cache.Cache
	if m.cache != nil {
		listings = m.cache.Cache()
	}

	m.service = NewService(m.cfg, m.storage.Backend(), m.metadata.Repository(), listings, observer, m.logger)

	background, err := NewBackground(m.poolCfg, m.service, m.logger)
	if err != nil {
		return err
	}
	if err := background.Start(ctx); err != nil {
		return err
	}
	m.background = background

	m.logger.Info("Ingest module started",
		"backend", m.storage.Backend().Name(),
		"cached", listings != nil,
		"scratch_dir", m.cfg.ScratchDir)
	return nil
}

// Stop drains the background upload pool.
func (m *Module) Stop(ctx context.Context) error {
	if m.background != nil {
		if err := m.background.Stop(ctx); err != nil {
			return err
		}
	}
	m.logger.Info("Ingest module stopped")
	return nil
}

// Health reports whether the background pool accepts submissions.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil || m.background == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	if !m.background.IsRunning() {
		return mono.HealthStatus{Healthy: false, Message: "background pool stopped"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"workers":    m.background.config.Workers,
			"queue_size": m.background.config.QueueSize,
		},
	}
}

// Service returns the pipeline service. It is nil before Start.
func (m *Module) Service() *Service {
	return m.service
}

// Background returns the fire-and-forget upload pool. It is nil before Start.
func (m *Module) Background() *Background {
	return m.background
}
