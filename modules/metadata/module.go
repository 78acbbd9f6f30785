package metadata

import (
	"context"
	"fmt"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Module owns the metadata database connection.
type Module struct {
	dsn    string
	debug  bool
	db     *gorm.DB
	repo   *Repository
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new metadata module backed by the SQLite database at dsn.
func NewModule(dsn string, debug bool, logger types.Logger) *Module {
	return &Module{
		dsn:    dsn,
		debug:  debug,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "metadata"
}

// Repository returns the record repository. It is nil before Start.
func (m *Module) Repository() *Repository {
	return m.repo
}

// Start opens the database and runs migrations.
func (m *Module) Start(_ context.Context) error {
	db, err := Open(m.dsn, m.debug)
	if err != nil {
		return err
	}
	m.db = db
	m.repo = NewRepository(db)

	m.logger.Info("Metadata store ready", "dsn", m.dsn)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.logger.Info("Metadata store closed")
	return nil
}

// Health pings the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{Healthy: false, Message: "database not initialized"}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping failed: %v", err)}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": "sqlite",
			"dsn":    m.dsn,
		},
	}
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, domain.MetadataError.New("connect to database: %v", err)
	}

	if err := db.AutoMigrate(&domain.Record{}); err != nil {
		return nil, domain.MetadataError.New("run migrations: %v", err)
	}
	return db, nil
}
