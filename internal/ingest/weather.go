package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aeris-engine/aeris/internal/providers"
)

type weatherFetcher interface {
	FetchCurrent(ctx context.Context, lat, lon float64) (providers.WeatherObservation, error)
}

// WeatherJob stores the hourly city-wide weather reading.
type WeatherJob struct {
	fetcher weatherFetcher
	opener  Opener
	lat     float64
	lon     float64
	log     *slog.Logger
}

func NewWeatherJob(fetcher weatherFetcher, opener Opener, lat, lon float64, log *slog.Logger) *WeatherJob {
	return &WeatherJob{fetcher: fetcher, opener: opener, lat: lat, lon: lon, log: log}
}

func (j *WeatherJob) Name() string { return "weather" }

func (j *WeatherJob) Run(ctx context.Context) error {
	obs, err := j.fetcher.FetchCurrent(ctx, j.lat, j.lon)
	if err != nil {
		return fmt.Errorf("weather fetch: %w", err)
	}

	batch, err := j.opener.Begin(ctx)
	if err != nil {
		return err
	}

	if err := batch.InsertWeather(ctx, obs.Time, obs.Temperature, obs.Humidity, obs.WindSpeed, obs.Conditions); err != nil {
		_ = batch.Rollback()
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	logReport(j.log, j.Name(), Report{Fetched: 1, Stored: 1})
	return nil
}
