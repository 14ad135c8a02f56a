package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PollutantRow is one stored pollutant reading.
type PollutantRow struct {
	Time    time.Time
	Station string
	Value   float64
}

// TrafficRow is one stored traffic flow reading.
type TrafficRow struct {
	Time             time.Time
	Station          string
	CurrentSpeed     float64
	CongestionFactor float64
}

// WeatherRow is one stored city-wide weather reading.
type WeatherRow struct {
	Time        time.Time
	Temperature float64
	Humidity    float64
	WindSpeed   float64
}

// PollutantSeries returns readings for one pollutant since the given time,
// ordered by (station, time).
func (s *Store) PollutantSeries(ctx context.Context, pollutantID string, since time.Time) ([]PollutantRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, station_name, pollutant_avg
		FROM aqi_data
		WHERE time > $1 AND pollutant_id = $2 AND pollutant_avg IS NOT NULL
		ORDER BY station_name, time;`, since, pollutantID)
	if err != nil {
		return nil, fmt.Errorf("pollutant series: %w", err)
	}
	defer rows.Close()

	var out []PollutantRow
	for rows.Next() {
		var r PollutantRow
		if err := rows.Scan(&r.Time, &r.Station, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrafficSeries returns traffic readings since the given time.
func (s *Store) TrafficSeries(ctx context.Context, since time.Time) ([]TrafficRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, station_name, current_speed, congestion_factor
		FROM traffic_data
		WHERE time > $1
		ORDER BY station_name, time;`, since)
	if err != nil {
		return nil, fmt.Errorf("traffic series: %w", err)
	}
	defer rows.Close()

	var out []TrafficRow
	for rows.Next() {
		var r TrafficRow
		if err := rows.Scan(&r.Time, &r.Station, &r.CurrentSpeed, &r.CongestionFactor); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeatherSeries returns city-wide weather readings since the given time.
func (s *Store) WeatherSeries(ctx context.Context, since time.Time) ([]WeatherRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, temperature_celsius, humidity_percent, wind_speed_ms
		FROM weather_data
		WHERE time > $1
		ORDER BY time;`, since)
	if err != nil {
		return nil, fmt.Errorf("weather series: %w", err)
	}
	defer rows.Close()

	var out []WeatherRow
	for rows.Next() {
		var r WeatherRow
		if err := rows.Scan(&r.Time, &r.Temperature, &r.Humidity, &r.WindSpeed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StationStatus is one station board row for the dashboard: the latest
// PM2.5 reading, or nil pointers when the station has no recent data
// (reported as offline, never as an error).
type StationStatus struct {
	Name       string     `json:"name"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	LatestPM25 *float64   `json:"latestPm25,omitempty"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

// StationBoard returns every registered station with its most recent PM2.5
// value, if any.
func (s *Store) StationBoard(ctx context.Context) ([]StationStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.station_name, s.latitude, s.longitude, a.pollutant_avg, a.time
		FROM stations s
		LEFT JOIN LATERAL (
			SELECT pollutant_avg, time
			FROM aqi_data
			WHERE station_name = s.station_name AND pollutant_id = 'PM2.5'
			ORDER BY time DESC
			LIMIT 1
		) a ON TRUE;`)
	if err != nil {
		return nil, fmt.Errorf("station board: %w", err)
	}
	defer rows.Close()

	var out []StationStatus
	for rows.Next() {
		var st StationStatus
		if err := rows.Scan(&st.Name, &st.Latitude, &st.Longitude, &st.LatestPM25, &st.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LatestPollutant returns the newest stored value for one station and
// pollutant. The bool is false when the station has no data.
func (s *Store) LatestPollutant(ctx context.Context, station, pollutantID string) (float64, time.Time, bool, error) {
	var v float64
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT pollutant_avg, time
		FROM aqi_data
		WHERE station_name = $1 AND pollutant_id = $2 AND pollutant_avg IS NOT NULL
		ORDER BY time DESC
		LIMIT 1;`, station, pollutantID).Scan(&v, &t)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("latest pollutant: %w", err)
	}
	return v, t, true, nil
}
