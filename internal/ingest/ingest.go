// Package ingest holds the per-source fetch-and-store jobs the scheduler
// triggers every hour. Each job fetches from one provider family and writes
// through a single transactional batch: a store failure rolls the whole
// cycle back, while per-record problems (malformed rows, unresolvable
// stations, rate-limited stations) are counted and skipped.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/aeris-engine/aeris/internal/station"
	"github.com/aeris-engine/aeris/internal/store"
)

// Batch is the transactional write surface of one fetch cycle.
// *store.Batch satisfies it; tests substitute fakes.
type Batch interface {
	UpsertPollutant(ctx context.Context, t time.Time, stationName, pollutantID string, value float64) (bool, error)
	InsertWeather(ctx context.Context, t time.Time, tempC, humidityPct, windMS float64, conditions string) error
	InsertTraffic(ctx context.Context, t time.Time, stationName string, currentSpeed, freeFlowSpeed float64) error
	Commit() error
	Rollback() error
}

// Opener starts a new write batch.
type Opener interface {
	Begin(ctx context.Context) (Batch, error)
}

// StoreOpener adapts *store.Store to the Opener interface.
type StoreOpener struct {
	S *store.Store
}

func (o StoreOpener) Begin(ctx context.Context) (Batch, error) {
	return o.S.Begin(ctx)
}

// Resolver is the station identity surface jobs depend on.
type Resolver interface {
	Resolve(rawName string) (string, bool)
	ForceList() []string
}

// StationLister supplies the registry rows the traffic poller iterates.
type StationLister interface {
	List(ctx context.Context) ([]station.Station, error)
}

// Report aggregates the per-record outcomes of one job run. It replaces
// silent catch-all suppression: every skipped or dropped record is counted
// under its failure mode and surfaced in the job's completion log line.
type Report struct {
	Fetched             int
	Stored              int
	DroppedMalformed    int
	DroppedUnresolved   int
	SkippedTransient    int
	RejectedNonPositive int
}

func (r Report) attrs() []any {
	return []any{
		"fetched", r.Fetched,
		"stored", r.Stored,
		"malformed", r.DroppedMalformed,
		"unresolved", r.DroppedUnresolved,
		"transient", r.SkippedTransient,
		"nonpositive", r.RejectedNonPositive,
	}
}

func logReport(log *slog.Logger, job string, r Report) {
	log.Info("job report", append([]any{"job", job}, r.attrs()...)...)
}
