// Package store persists vehicles, detections and missions. Postgres is the
// primary backend; when it is unreachable the store falls back to a local
// SQLite file so a field deployment without infrastructure still records.
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/model"
)

// Manager owns the database connection.
type Manager struct {
	db     *gorm.DB
	logger zerolog.Logger

	// Backend reports which backend Connect ended up on.
	Backend string
}

// NewManager creates an unconnected store.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Connect opens Postgres using the db.* config keys, falling back to SQLite
// when Postgres is unreachable.
func (m *Manager) Connect() error {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		config.GetString("db.host"),
		config.GetString("db.port"),
		config.GetString("db.username"),
		config.GetString("db.password"),
		config.GetString("db.database"),
	)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err == nil {
		m.db = db
		m.Backend = "postgres"
		m.logger.Info().Str("host", config.GetString("db.host")).Msg("connected to postgres")
		return nil
	}

	m.logger.Warn().Err(err).Msg("postgres unreachable, falling back to sqlite")
	return m.ConnectSQLite(config.GetString("db.sqlitePath"))
}

// ConnectSQLite opens the SQLite backend directly. Used by the fallback
// path and by tests with ":memory:".
func (m *Manager) ConnectSQLite(path string) error {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return fmt.Errorf("opening sqlite at %s: %w", path, err)
	}

	// WAL keeps readers from blocking the recording writes.
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA synchronous = NORMAL")
	db.Exec("PRAGMA busy_timeout = 5000")

	m.db = db
	m.Backend = "sqlite"
	m.logger.Info().Str("path", path).Msg("connected to sqlite")
	return nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// Migrate creates or updates the schema for every registered model.
func (m *Manager) Migrate() error {
	if err := m.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	m.logger.Info().Int("models", len(model.DatabaseModels)).Msg("schema migrated")
	return nil
}

// DB exposes the underlying handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}
