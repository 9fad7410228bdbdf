package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the storage backend.
type Config struct {
	Driver      string
	Path        string
	DatabaseURL string
	Debug       bool
}

// Module provides room and message persistence services.
type Module struct {
	cfg    Config
	repo   Repository
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
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

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.createRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListRooms, json.Unmarshal, json.Marshal, m.listRooms,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRooms, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetRoom, json.Unmarshal, json.Marshal, m.getRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecordJoin, json.Unmarshal, json.Marshal, m.recordJoin,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecordJoin, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecordExit, json.Unmarshal, json.Marshal, m.recordExit,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecordExit, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceAppendMessage, json.Unmarshal, json.Marshal, m.appendMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceAppendMessage, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecentMessages, json.Unmarshal, json.Marshal, m.recentMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecentMessages, err)
	}

	m.logger.Info("Registered storage services",
		"services", []string{
			ServiceCreateRoom, ServiceListRooms, ServiceGetRoom,
			ServiceRecordJoin, ServiceRecordExit, ServiceAppendMessage, ServiceRecentMessages,
		})
	return nil
}

// Start opens the configured database and runs migrations.
func (m *Module) Start(ctx context.Context) error {
	// Skip database initialization if a repository is already injected (for testing)
	if m.repo != nil {
		m.logger.Info("Storage module started with injected repository")
		return nil
	}

	switch m.cfg.Driver {
	case DriverSQLite:
		repo, err := openSQLite(m.cfg)
		if err != nil {
			return err
		}
		m.repo = repo
	case DriverPostgres:
		repo, err := openPostgres(ctx, m.cfg)
		if err != nil {
			return err
		}
		m.repo = repo
	default:
		return fmt.Errorf("unsupported database driver %q", m.cfg.Driver)
	}

	m.logger.Info("Storage module started", "driver", m.cfg.Driver)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.repo == nil {
		return nil
	}
	if err := m.repo.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.logger.Info("Storage module stopped")
	return nil
}

// Health performs a health check on the storage module.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.repo == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	if err := m.repo.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.cfg.Driver,
		},
	}
}

func openSQLite(cfg Config) (*GormRepository, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := NewGormRepository(db)
	if err := repo.Migrate(); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func openPostgres(ctx context.Context, cfg Config) (*PgRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := NewPgRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}
