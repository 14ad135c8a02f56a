package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Batch groups the writes of one fetch cycle into a single transaction.
// A failed statement poisons the batch: the caller rolls back and the cycle
// commits nothing. Conflict policy per table:
//
//	aqi_data     (time, station, pollutant) last write wins
//	weather_data (time)                     first write wins
//	traffic_data (time, station)            first write wins
type Batch struct {
	tx     *sql.Tx
	stored int
}

// Begin opens a write batch. The caller must Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{tx: tx}, nil
}

// UpsertPollutant stores one pollutant reading with replace-on-conflict
// semantics. Values <= 0 are treated as sensor or link dropouts and are
// never stored; the call is a no-op returning false.
func (b *Batch) UpsertPollutant(ctx context.Context, t time.Time, station, pollutantID string, value float64) (bool, error) {
	if value <= 0 {
		return false, nil
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO aqi_data (time, station_name, pollutant_id, pollutant_avg)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (time, station_name, pollutant_id)
		DO UPDATE SET pollutant_avg = EXCLUDED.pollutant_avg;`,
		truncHour(t), station, pollutantID, value)
	if err != nil {
		return false, fmt.Errorf("upsert pollutant %s/%s: %w", station, pollutantID, err)
	}
	b.stored++
	return true, nil
}

// InsertWeather stores the city-wide weather reading for an hour. The first
// committed reading for an hour wins; later duplicates are silent no-ops.
func (b *Batch) InsertWeather(ctx context.Context, t time.Time, tempC, humidityPct, windMS float64, conditions string) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO weather_data (time, temperature_celsius, humidity_percent, wind_speed_ms, conditions_text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (time) DO NOTHING;`,
		truncHour(t), tempC, humidityPct, windMS, conditions)
	if err != nil {
		return fmt.Errorf("insert weather: %w", err)
	}
	b.stored++
	return nil
}

// InsertTraffic stores one traffic flow reading, insert-if-absent on
// (time, station). The congestion factor is derived here so every writer
// shares the same division guard.
func (b *Batch) InsertTraffic(ctx context.Context, t time.Time, station string, currentSpeed, freeFlowSpeed float64) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO traffic_data (time, station_name, current_speed, free_flow_speed, congestion_factor)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (time, station_name) DO NOTHING;`,
		truncHour(t), station, currentSpeed, freeFlowSpeed, CongestionFactor(currentSpeed, freeFlowSpeed))
	if err != nil {
		return fmt.Errorf("insert traffic %s: %w", station, err)
	}
	b.stored++
	return nil
}

// Stored reports how many rows this batch has written so far.
func (b *Batch) Stored() int {
	return b.stored
}

func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

// CongestionFactor is free-flow speed over current speed, or 0 when the
// road is stopped (never divides by zero). 1.0 means free-flowing traffic.
func CongestionFactor(currentSpeed, freeFlowSpeed float64) float64 {
	if currentSpeed <= 0 {
		return 0.0
	}
	return freeFlowSpeed / currentSpeed
}
