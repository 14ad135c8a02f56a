package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// EnsureSchema creates the three time-partitioned reading tables. Safe under
// concurrent job runs; a table already present is a no-op. When TimescaleDB
// is installed the tables are additionally converted to hypertables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weather_data (
			time TIMESTAMPTZ NOT NULL,
			temperature_celsius NUMERIC,
			humidity_percent NUMERIC,
			wind_speed_ms NUMERIC,
			conditions_text TEXT,
			PRIMARY KEY (time)
		);`,
		`CREATE TABLE IF NOT EXISTS aqi_data (
			time TIMESTAMPTZ NOT NULL,
			station_name TEXT NOT NULL,
			pollutant_id TEXT NOT NULL,
			pollutant_avg NUMERIC,
			PRIMARY KEY (time, station_name, pollutant_id)
		);`,
		`CREATE TABLE IF NOT EXISTS traffic_data (
			time TIMESTAMPTZ NOT NULL,
			station_name VARCHAR(100) NOT NULL,
			current_speed FLOAT,
			free_flow_speed FLOAT,
			congestion_factor FLOAT,
			UNIQUE (time, station_name)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// Hypertable conversion only works with the TimescaleDB extension;
	// plain Postgres serves the same queries, just slower.
	for _, table := range []string{"weather_data", "aqi_data", "traffic_data"} {
		_, err := s.db.ExecContext(ctx,
			fmt.Sprintf("SELECT create_hypertable('%s', 'time', if_not_exists => TRUE);", table))
		if err != nil {
			s.log.Debug("hypertable conversion skipped", "table", table, "reason", err)
		}
	}
	return nil
}

// RepairCredentials re-asserts the configured password on the database role.
// The deployment has a history of drift between the locally-held credential
// and the container's actual one; re-running the assertion is idempotent.
// Called before the first job of each hourly cycle.
func (s *Store) RepairCredentials(ctx context.Context) error {
	if s.cfg.DBPass == "" {
		s.log.Warn("no DB password configured; skipping credential repair")
		return nil
	}
	stmt := fmt.Sprintf("ALTER USER %s WITH PASSWORD %s",
		pq.QuoteIdentifier(s.cfg.DBUser), pq.QuoteLiteral(s.cfg.DBPass))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("credential repair: %w", err)
	}
	return nil
}
