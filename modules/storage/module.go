package storage

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Backend names accepted by Config.Backend.
const (
	BackendLocal     = "local"
	BackendJetStream = "jetstream"
	BackendS3        = "s3"
)

// Config selects and configures the blob store.
type Config struct {
	Backend   string
	LocalRoot string
	NATSURL   string
	Bucket    string
	S3        S3Config
}

// Module owns the blob store backend selected at process start.
type Module struct {
	cfg     Config
	backend Backend
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new storage module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "storage"
}

// Backend returns the active backend. It is nil before Start.
func (m *Module) Backend() Backend {
	return m.backend
}

// Start opens the configured backend.
func (m *Module) Start(ctx context.Context) error {
	backend, err := Open(ctx, m.cfg)
	if err != nil {
		return err
	}
	m.backend = backend
	m.logger.Info("Storage backend ready", "backend", backend.Name())
	return nil
}

// Stop releases backend connections.
func (m *Module) Stop(_ context.Context) error {
	if js, ok := m.backend.(*JetStream); ok {
		return js.Close()
	}
	return nil
}

// Health reports whether the backend is reachable.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.backend == nil {
		return mono.HealthStatus{Healthy: false, Message: "backend not initialized"}
	}

	details := map[string]any{"backend": m.backend.Name()}
	switch b := m.backend.(type) {
	case *JetStream:
		details["bucket"] = b.Bucket()
		if !b.IsConnected() {
			return mono.HealthStatus{Healthy: false, Message: "disconnected", Details: details}
		}
	case *S3:
		details["bucket"] = b.Bucket()
	case *Local:
		details["root"] = b.Root()
	}

	if _, err := m.backend.Exists(ctx, ".health"); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("backend probe failed: %v", err),
			Details: details,
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocal(cfg.LocalRoot)
	case BackendJetStream:
		return NewJetStream(ctx, cfg.NATSURL, cfg.Bucket)
	case BackendS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
