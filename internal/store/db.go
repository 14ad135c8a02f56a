package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeris-engine/aeris/internal/config"
)

// Store owns the shared Postgres handle. It is the only durable owner of
// readings; all writes go through transactional batches (see writer.go).
type Store struct {
	db  *sql.DB
	cfg *config.AppConfig
	log *slog.Logger
}

// Open connects to Postgres and validates connectivity early.
func Open(cfg *config.AppConfig, log *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBSSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return &Store{db: db, cfg: cfg, log: log}, nil
}

// DB exposes the raw handle for collaborators that manage their own tables
// (the station registry).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// truncHour normalizes a reading timestamp to the top of its hour, UTC.
func truncHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
