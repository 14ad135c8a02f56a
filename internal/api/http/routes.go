// Package httpapi exposes the read-only dashboard surface. Handlers never
// write to the store; ingestion stays the scheduler's job.
package httpapi

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aeris-engine/aeris/internal/forecast"
	"github.com/aeris-engine/aeris/internal/fusion"
	"github.com/aeris-engine/aeris/internal/scheduler"
	"github.com/aeris-engine/aeris/internal/store"
)

var validate = validator.New()

// A station is reported offline once its latest reading is older than this.
const staleAfter = 3 * time.Hour

// Board lists the registered stations with their most recent reading;
// *store.Store satisfies it.
type Board interface {
	StationBoard(ctx context.Context) ([]store.StationStatus, error)
	LatestPollutant(ctx context.Context, station, pollutantID string) (float64, time.Time, bool, error)
}

// Fuser produces the fused per-station hourly series; *fusion.Engine
// satisfies it.
type Fuser interface {
	FetchFused(ctx context.Context, lookbackDays int) ([]fusion.Record, error)
}

// JobReporter exposes scheduler state; *scheduler.Scheduler satisfies it.
type JobReporter interface {
	Snapshot() []scheduler.JobStatus
}

// Server bundles the handler dependencies. Scaler and Predictor may be nil
// when the process runs without a model; the forecast endpoint then degrades
// to 503 while the rest of the surface keeps working.
type Server struct {
	Board     Board
	Fuser     Fuser
	Jobs      JobReporter
	Scaler    *fusion.Scaler
	Predictor forecast.Predictor

	WindowSize   int
	LookbackDays int

	now func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	if s.now == nil {
		s.now = time.Now
	}

	v1 := app.Group("/api/v1")
	v1.Get("/stations", s.handleStations)
	v1.Get("/stations/:name/history", s.handleHistory)
	v1.Get("/stations/:name/forecast", s.handleForecast)
	v1.Get("/jobs", s.handleJobs)
}

type stationView struct {
	store.StationStatus
	Status string `json:"status"`
}

func (s *Server) handleStations(c *fiber.Ctx) error {
	board, err := s.Board.StationBoard(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load station board")
	}

	cutoff := s.now().UTC().Add(-staleAfter)
	views := make([]stationView, len(board))
	for i, st := range board {
		views[i] = stationView{StationStatus: st, Status: "offline"}
		if st.ObservedAt != nil && st.ObservedAt.After(cutoff) {
			views[i].Status = "ok"
		}
	}
	return c.JSON(fiber.Map{"stations": views})
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Hours int `validate:"min=1,max=168"`
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	name, err := stationParam(c)
	if err != nil {
		return err
	}

	q := historyQuery{Hours: 24}
	if raw := c.Query("hours"); raw != "" {
		q.Hours, err = strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "hours must be an integer")
		}
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "hours must be between 1 and 168")
	}

	records, err := s.Fuser.FetchFused(c.Context(), s.LookbackDays)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to assemble history")
	}

	since := s.now().UTC().Add(-time.Duration(q.Hours) * time.Hour)
	out := make([]fusion.Record, 0, q.Hours)
	for _, r := range records {
		if r.Station == name && !r.Time.Before(since) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no readings for station in requested range")
	}
	return c.JSON(fiber.Map{"station": name, "hours": q.Hours, "records": out})
}

func (s *Server) handleForecast(c *fiber.Ctx) error {
	name, err := stationParam(c)
	if err != nil {
		return err
	}
	if s.Scaler == nil || s.Predictor == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "forecasting model is not configured")
	}

	records, err := s.Fuser.FetchFused(c.Context(), s.LookbackDays)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to assemble model input")
	}

	features, err := s.Scaler.Transform(records)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "scaler is not fitted yet")
	}

	inputs, last, ok := fusion.LatestWindow(records, features, s.WindowSize, name)
	if !ok {
		return fiber.NewError(fiber.StatusServiceUnavailable, "not enough consecutive readings for a forecast")
	}

	scaled, err := s.Predictor.Predict(c.Context(), name, inputs)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "model did not answer")
	}

	out := fiber.Map{
		"station":   name,
		"pollutant": "PM2.5",
		"predicted": s.Scaler.InverseTarget(scaled),
		"validAt":   last.Add(time.Hour),
	}
	if current, at, ok, err := s.Board.LatestPollutant(c.Context(), name, "PM2.5"); err == nil && ok {
		out["current"] = current
		out["observedAt"] = at
	}
	return c.JSON(out)
}

func (s *Server) handleJobs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"jobs": s.Jobs.Snapshot()})
}

// stationParam decodes the :name path segment; station names carry commas
// and spaces.
func stationParam(c *fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid station name")
	}
	return name, nil
}
