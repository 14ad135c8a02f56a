package station

import (
	"context"
	"database/sql"
	"fmt"
)

// Registry persists the station table (name, coordinates). It doubles as
// the station list the traffic poller and the dashboard iterate over.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Station is one registry row.
type Station struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// defaultStations seed the registry on first run.
var defaultStations = []Station{
	{Name: "Silk Board", Latitude: 12.917, Longitude: 77.623},
	{Name: "Hebbal", Latitude: 13.035, Longitude: 77.597},
	{Name: "Peenya", Latitude: 13.032, Longitude: 77.513},
	{Name: "MG Road", Latitude: 12.975, Longitude: 77.606},
	{Name: "Whitefield", Latitude: 12.969, Longitude: 77.749},
}

// EnsureSeeded creates the stations table if needed and seeds the default
// set when it is empty. Safe to call from concurrent job runs.
func (r *Registry) EnsureSeeded(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stations (
			id SERIAL PRIMARY KEY,
			station_name VARCHAR(100) UNIQUE,
			latitude FLOAT,
			longitude FLOAT
		);`)
	if err != nil {
		return fmt.Errorf("create stations table: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n); err != nil {
		return fmt.Errorf("count stations: %w", err)
	}
	if n > 0 {
		return nil
	}

	for _, s := range defaultStations {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO stations (station_name, latitude, longitude)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING;`, s.Name, s.Latitude, s.Longitude)
		if err != nil {
			return fmt.Errorf("seed station %s: %w", s.Name, err)
		}
	}
	return nil
}

// List returns every registered station.
func (r *Registry) List(ctx context.Context) ([]Station, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT station_name, latitude, longitude FROM stations`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
