package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aeris-engine/aeris/internal/providers"
)

type trafficFetcher interface {
	FetchFlow(ctx context.Context, lat, lon float64) (providers.FlowSegment, error)
}

// TrafficJob polls the flow segment nearest each registered station. The
// stations are visited sequentially with a fixed inter-request delay to
// respect the provider's rate limits; a rate-limited or otherwise failing
// station is skipped for the cycle without blocking the rest.
type TrafficJob struct {
	fetcher  trafficFetcher
	stations StationLister
	opener   Opener
	delay    time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewTrafficJob(fetcher trafficFetcher, stations StationLister, opener Opener, delay time.Duration, log *slog.Logger) *TrafficJob {
	return &TrafficJob{
		fetcher:  fetcher,
		stations: stations,
		opener:   opener,
		delay:    delay,
		log:      log,
		now:      time.Now,
	}
}

func (j *TrafficJob) Name() string { return "traffic" }

func (j *TrafficJob) Run(ctx context.Context) error {
	stations, err := j.stations.List(ctx)
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}
	if len(stations) == 0 {
		j.log.Warn("no stations registered; nothing to poll")
		return nil
	}

	batch, err := j.opener.Begin(ctx)
	if err != nil {
		return err
	}

	// One timestamp per cycle so every station lands in the same hour row.
	cycleTime := j.now().UTC()

	var rep Report
	for i, st := range stations {
		if err := ctx.Err(); err != nil {
			_ = batch.Rollback()
			return err
		}

		seg, err := j.fetcher.FetchFlow(ctx, st.Latitude, st.Longitude)
		if err != nil {
			var te *providers.TransientError
			if errors.As(err, &te) {
				rep.SkippedTransient++
				j.log.Warn("station skipped this cycle", "station", st.Name, "error", err)
				continue
			}
			_ = batch.Rollback()
			return fmt.Errorf("traffic fetch %s: %w", st.Name, err)
		}
		rep.Fetched++

		if err := batch.InsertTraffic(ctx, cycleTime, st.Name, seg.CurrentSpeed, seg.FreeFlowSpeed); err != nil {
			_ = batch.Rollback()
			return err
		}
		rep.Stored++

		if i < len(stations)-1 {
			sleep(ctx, j.delay)
		}
	}

	if err := batch.Commit(); err != nil {
		return err
	}
	logReport(j.log, j.Name(), rep)
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
