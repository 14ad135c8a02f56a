// Package fusion aligns the three stored series into one time-aligned
// record per station-hour, fills gaps, and cuts fixed-width feature windows
// for the forecasting model.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/aeris-engine/aeris/internal/store"
)

// Source is the read surface the engine pulls from; *store.Store
// satisfies it.
type Source interface {
	PollutantSeries(ctx context.Context, pollutantID string, since time.Time) ([]store.PollutantRow, error)
	TrafficSeries(ctx context.Context, since time.Time) ([]store.TrafficRow, error)
	WeatherSeries(ctx context.Context, since time.Time) ([]store.WeatherRow, error)
}

// Record is one fused station-hour. It exists only in memory, derived from
// the store; it is never written back.
type Record struct {
	Time             time.Time `json:"time"`
	Station          string    `json:"station"`
	Pollutant        float64   `json:"pollutant"`
	CurrentSpeed     float64   `json:"currentSpeed"`
	CongestionFactor float64   `json:"congestionFactor"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	WindSpeed        float64   `json:"windSpeed"`
	HourSin          float64   `json:"hourSin"`
	HourCos          float64   `json:"hourCos"`
	DaySin           float64   `json:"daySin"`
	DayCos           float64   `json:"dayCos"`
}

// Feature vector layout. The target column must keep its position: the
// scaler's inverse transform and the window label both index it.
const (
	idxTemperature = iota
	idxHumidity
	idxWindSpeed
	idxCurrentSpeed
	idxCongestion
	idxPollutant
	idxHourSin
	idxHourCos
	idxDaySin
	idxDayCos

	NumFeatures = 10
	TargetIndex = idxPollutant
)

// numFilled is the prefix of the feature vector subject to gap filling;
// the cyclical encodings are derived from the timestamp and never missing.
const numFilled = 6

// Features returns the record as a model feature vector.
func (r Record) Features() []float64 {
	return []float64{
		r.Temperature, r.Humidity, r.WindSpeed,
		r.CurrentSpeed, r.CongestionFactor, r.Pollutant,
		r.HourSin, r.HourCos, r.DaySin, r.DayCos,
	}
}

// Engine fuses the stored series for one target pollutant.
type Engine struct {
	src       Source
	pollutant string
	log       *slog.Logger
	now       func() time.Time
}

func NewEngine(src Source, pollutant string, log *slog.Logger) *Engine {
	return &Engine{src: src, pollutant: pollutant, log: log, now: time.Now}
}

// FetchFused pulls readings inside the lookback window, truncates each
// timestamp to the top of its hour, de-duplicates weather to one row per
// hour, and joins the series: pollutant and traffic on (hour, station),
// weather on hour alone. A station-hour appears when weather is present and
// at least one station-dimension series has data; the missing field is
// filled from its neighbours afterwards, and rows that still miss a field
// are discarded. Output is sorted by (station, hour).
func (e *Engine) FetchFused(ctx context.Context, lookbackDays int) ([]Record, error) {
	since := e.now().UTC().Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	pollutants, err := e.src.PollutantSeries(ctx, e.pollutant, since)
	if err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	traffic, err := e.src.TrafficSeries(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	weather, err := e.src.WeatherSeries(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}

	// Weather has no station dimension; keep the first reading per hour.
	weatherByHour := make(map[time.Time]store.WeatherRow, len(weather))
	for _, w := range weather {
		hour := w.Time.UTC().Truncate(time.Hour)
		if _, ok := weatherByHour[hour]; !ok {
			w.Time = hour
			weatherByHour[hour] = w
		}
	}

	type key struct {
		hour    time.Time
		station string
	}
	pollByKey := make(map[key]float64, len(pollutants))
	for _, p := range pollutants {
		pollByKey[key{p.Time.UTC().Truncate(time.Hour), p.Station}] = p.Value
	}
	trafByKey := make(map[key]store.TrafficRow, len(traffic))
	for _, t := range traffic {
		k := key{t.Time.UTC().Truncate(time.Hour), t.Station}
		if _, ok := trafByKey[k]; !ok {
			trafByKey[k] = t
		}
	}

	hours := make(map[key]bool, len(pollByKey)+len(trafByKey))
	for k := range pollByKey {
		hours[k] = true
	}
	for k := range trafByKey {
		hours[k] = true
	}

	nan := math.NaN()
	var records []Record
	for k := range hours {
		w, ok := weatherByHour[k.hour]
		if !ok {
			continue
		}
		rec := Record{
			Time:             k.hour,
			Station:          k.station,
			Pollutant:        nan,
			CurrentSpeed:     nan,
			CongestionFactor: nan,
			Temperature:      w.Temperature,
			Humidity:         w.Humidity,
			WindSpeed:        w.WindSpeed,
		}
		if v, ok := pollByKey[k]; ok {
			rec.Pollutant = v
		}
		if t, ok := trafByKey[k]; ok {
			rec.CurrentSpeed = t.CurrentSpeed
			rec.CongestionFactor = t.CongestionFactor
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Station != records[j].Station {
			return records[i].Station < records[j].Station
		}
		return records[i].Time.Before(records[j].Time)
	})

	records = FillGaps(records)
	for i := range records {
		records[i].encodeTime()
	}

	e.log.Debug("fused series", "records", len(records),
		"pollutant_rows", len(pollutants), "traffic_rows", len(traffic), "weather_hours", len(weatherByHour))
	return records, nil
}

// encodeTime writes the cyclical hour-of-day and day-of-week features.
// Days count from Monday=0 to match the trained model's encoding.
func (r *Record) encodeTime() {
	hour := float64(r.Time.UTC().Hour())
	day := float64((int(r.Time.UTC().Weekday()) + 6) % 7)
	r.HourSin = math.Sin(2 * math.Pi * hour / 24)
	r.HourCos = math.Cos(2 * math.Pi * hour / 24)
	r.DaySin = math.Sin(2 * math.Pi * day / 7)
	r.DayCos = math.Cos(2 * math.Pi * day / 7)
}
