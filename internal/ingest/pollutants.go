package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aeris-engine/aeris/internal/providers"
)

type govFetcher interface {
	FetchCityPollutants(ctx context.Context, city string) ([]providers.PollutantRecord, []*providers.MalformedRecordError, error)
}

type waqiFetcher interface {
	ScanBounds(ctx context.Context, bounds string) ([]string, error)
	FetchFeed(ctx context.Context, uid string) (providers.WAQIFeed, error)
}

// PollutantJob is the dual-source AQI job: the community network first, the
// governmental averages second. Both phases run unconditionally; a failure
// in one is logged and never prevents the other.
type PollutantJob struct {
	waqi     waqiFetcher
	gov      govFetcher
	resolver Resolver
	opener   Opener
	bounds   string
	city     string
	log      *slog.Logger
}

func NewPollutantJob(waqi waqiFetcher, gov govFetcher, resolver Resolver, opener Opener, bounds, city string, log *slog.Logger) *PollutantJob {
	return &PollutantJob{
		waqi:     waqi,
		gov:      gov,
		resolver: resolver,
		opener:   opener,
		bounds:   bounds,
		city:     city,
		log:      log,
	}
}

func (j *PollutantJob) Name() string { return "pollutants" }

func (j *PollutantJob) Run(ctx context.Context) error {
	waqiErr := j.runWAQIPhase(ctx)
	if waqiErr != nil {
		j.log.Error("community AQI phase failed", "error", waqiErr)
	}

	govErr := j.runGovPhase(ctx)
	if govErr != nil {
		j.log.Error("governmental AQI phase failed", "error", govErr)
	}

	return errors.Join(waqiErr, govErr)
}

// runWAQIPhase scans the bounding box, merges in the force list, fetches
// each station feed and stores its pollutant readings in one batch.
func (j *PollutantJob) runWAQIPhase(ctx context.Context) error {
	uids, err := j.waqi.ScanBounds(ctx, j.bounds)
	if err != nil {
		// The force list still gives the phase something to fetch.
		j.log.Warn("bounding-box scan failed; continuing with force list", "error", err)
	}

	seen := make(map[string]bool, len(uids))
	for _, uid := range uids {
		seen[uid] = true
	}
	for _, fid := range j.resolver.ForceList() {
		uid, err := providers.ParseUID(fid)
		if err != nil {
			j.log.Warn("invalid force-list uid", "uid", fid, "error", err)
			continue
		}
		if !seen[uid] {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return fmt.Errorf("waqi: no stations to fetch")
	}

	batch, err := j.opener.Begin(ctx)
	if err != nil {
		return err
	}

	var rep Report
	for _, uid := range uids {
		feed, err := j.waqi.FetchFeed(ctx, uid)
		if err != nil {
			var te *providers.TransientError
			var mr *providers.MalformedRecordError
			switch {
			case errors.As(err, &te):
				rep.SkippedTransient++
				j.log.Warn("station feed skipped", "uid", uid, "error", err)
			case errors.As(err, &mr):
				rep.DroppedMalformed++
				j.log.Warn("station feed dropped", "uid", uid, "error", err)
			default:
				_ = batch.Rollback()
				return fmt.Errorf("waqi feed %s: %w", uid, err)
			}
			continue
		}
		rep.Fetched++

		canonical, ok := j.resolver.Resolve(feed.Name)
		if !ok {
			rep.DroppedUnresolved++
			j.log.Debug("unresolvable station dropped", "raw", feed.Name)
			continue
		}

		for pollutant, value := range feed.Pollutants {
			stored, err := batch.UpsertPollutant(ctx, feed.Time, canonical, pollutant, value)
			if err != nil {
				_ = batch.Rollback()
				return err
			}
			if stored {
				rep.Stored++
			} else {
				rep.RejectedNonPositive++
			}
		}
	}

	if err := batch.Commit(); err != nil {
		return err
	}
	logReport(j.log, "pollutants/waqi", rep)
	return nil
}

// runGovPhase stores the city's rows from the nationwide averages payload.
func (j *PollutantJob) runGovPhase(ctx context.Context) error {
	records, malformed, err := j.gov.FetchCityPollutants(ctx, j.city)
	if err != nil {
		return fmt.Errorf("gov fetch: %w", err)
	}

	batch, err := j.opener.Begin(ctx)
	if err != nil {
		return err
	}

	rep := Report{Fetched: len(records), DroppedMalformed: len(malformed)}
	for _, m := range malformed {
		j.log.Warn("malformed gov record dropped", "error", m)
	}

	for _, rec := range records {
		canonical, ok := j.resolver.Resolve(rec.StationRaw)
		if !ok {
			rep.DroppedUnresolved++
			j.log.Debug("unresolvable station dropped", "raw", rec.StationRaw)
			continue
		}
		stored, err := batch.UpsertPollutant(ctx, rec.Time, canonical, rec.Pollutant, rec.Value)
		if err != nil {
			_ = batch.Rollback()
			return err
		}
		if stored {
			rep.Stored++
		} else {
			rep.RejectedNonPositive++
		}
	}

	if err := batch.Commit(); err != nil {
		return err
	}
	logReport(j.log, "pollutants/gov", rep)
	return nil
}
