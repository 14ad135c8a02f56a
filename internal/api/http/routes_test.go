package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aeris-engine/aeris/internal/fusion"
	"github.com/aeris-engine/aeris/internal/scheduler"
	"github.com/aeris-engine/aeris/internal/store"
)

var testNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type fakeBoard struct {
	statuses []store.StationStatus
	latest   float64
}

func (f *fakeBoard) StationBoard(context.Context) ([]store.StationStatus, error) {
	return f.statuses, nil
}

func (f *fakeBoard) LatestPollutant(context.Context, string, string) (float64, time.Time, bool, error) {
	return f.latest, testNow.Add(-time.Hour), f.latest != 0, nil
}

type fakeFuser struct {
	records []fusion.Record
}

func (f *fakeFuser) FetchFused(context.Context, int) ([]fusion.Record, error) {
	return f.records, nil
}

type fakeJobs struct{}

func (fakeJobs) Snapshot() []scheduler.JobStatus {
	return []scheduler.JobStatus{{Name: "weather", State: scheduler.StateIdle}}
}

type fakePredictor struct {
	scaled float64
	err    error
}

func (f *fakePredictor) Predict(context.Context, string, [][]float64) (float64, error) {
	return f.scaled, f.err
}

// fusedRun builds n consecutive hourly records ending one hour before
// testNow, with pollutant values 40, 50, 60, ...
func fusedRun(stationName string, n int) []fusion.Record {
	out := make([]fusion.Record, n)
	start := testNow.Add(-time.Duration(n) * time.Hour)
	for i := range out {
		out[i] = fusion.Record{
			Time:             start.Add(time.Duration(i) * time.Hour),
			Station:          stationName,
			Pollutant:        float64(40 + 10*i),
			CurrentSpeed:     30,
			CongestionFactor: 1.2,
			Temperature:      25,
			Humidity:         60,
			WindSpeed:        2,
		}
	}
	return out
}

func newTestApp(s *Server) *fiber.App {
	s.now = func() time.Time { return testNow }
	if s.LookbackDays == 0 {
		s.LookbackDays = 30
	}
	app := fiber.New()
	s.RegisterRoutes(app)
	return app
}

func TestStationBoardStatuses(t *testing.T) {
	fresh := testNow.Add(-30 * time.Minute)
	stale := testNow.Add(-26 * time.Hour)
	pm := 82.0
	board := &fakeBoard{statuses: []store.StationStatus{
		{Name: "Hebbal", LatestPM25: &pm, ObservedAt: &fresh},
		{Name: "Peenya", LatestPM25: &pm, ObservedAt: &stale},
		{Name: "Whitefield"},
	}}
	app := newTestApp(&Server{Board: board, Jobs: fakeJobs{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Stations []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"stations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{"Hebbal": "ok", "Peenya": "offline", "Whitefield": "offline"}
	for _, st := range body.Stations {
		if want[st.Name] != st.Status {
			t.Fatalf("station %s status = %s, want %s", st.Name, st.Status, want[st.Name])
		}
	}
}

func TestHistoryHoursValidation(t *testing.T) {
	app := newTestApp(&Server{Fuser: &fakeFuser{}, Jobs: fakeJobs{}})

	for _, q := range []string{"hours=0", "hours=169", "hours=abc"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations/Hebbal/history?"+q, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestHistoryFiltersStationAndRange(t *testing.T) {
	records := append(fusedRun("Hebbal", 48), fusedRun("Peenya", 48)...)
	app := newTestApp(&Server{Fuser: &fakeFuser{records: records}, Jobs: fakeJobs{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations/Hebbal/history?hours=6", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Station string          `json:"station"`
		Records []fusion.Record `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Station != "Hebbal" || len(body.Records) != 6 {
		t.Fatalf("got %d records for %q, want 6 for Hebbal", len(body.Records), body.Station)
	}
	for _, r := range body.Records {
		if r.Station != "Hebbal" {
			t.Fatalf("leaked record from %s", r.Station)
		}
	}
}

func TestHistoryUnknownStation(t *testing.T) {
	app := newTestApp(&Server{Fuser: &fakeFuser{records: fusedRun("Hebbal", 10)}, Jobs: fakeJobs{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations/Nowhere/history", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestForecastHappyPath(t *testing.T) {
	records := fusedRun("Hebbal", 25)
	scaler := &fusion.Scaler{}
	if err := scaler.Fit(records); err != nil {
		t.Fatalf("fit: %v", err)
	}

	app := newTestApp(&Server{
		Board:      &fakeBoard{latest: 280},
		Fuser:      &fakeFuser{records: records},
		Jobs:       fakeJobs{},
		Scaler:     scaler,
		Predictor:  &fakePredictor{scaled: 0.5},
		WindowSize: 24,
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations/Hebbal/forecast", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Predicted float64   `json:"predicted"`
		Current   float64   `json:"current"`
		ValidAt   time.Time `json:"validAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Pollutant spans 40..280, so scaled 0.5 inverts to 160.
	if body.Predicted != 160 {
		t.Fatalf("predicted = %v, want 160", body.Predicted)
	}
	if body.Current != 280 {
		t.Fatalf("current = %v, want 280", body.Current)
	}
	if !body.ValidAt.Equal(testNow) {
		t.Fatalf("validAt = %v, want %v", body.ValidAt, testNow)
	}
}

func TestForecastNeedsFullWindow(t *testing.T) {
	records := fusedRun("Hebbal", 10)
	scaler := &fusion.Scaler{}
	if err := scaler.Fit(records); err != nil {
		t.Fatalf("fit: %v", err)
	}

	app := newTestApp(&Server{
		Fuser:      &fakeFuser{records: records},
		Jobs:       fakeJobs{},
		Scaler:     scaler,
		Predictor:  &fakePredictor{scaled: 0.5},
		WindowSize: 24,
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations/Hebbal/forecast", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestForecastWithoutModelConfigured(t *testing.T) {
	app := newTestApp(&Server{Fuser: &fakeFuser{}, Jobs: fakeJobs{}, WindowSize: 24})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations/Hebbal/forecast", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestJobsSnapshot(t *testing.T) {
	app := newTestApp(&Server{Jobs: fakeJobs{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
