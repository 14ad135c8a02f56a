package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func TestDataGovFiltersAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-key") != "k" {
			t.Errorf("missing api key in query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"records": [
			{"city": "Bengaluru", "station": "Peenya, Bengaluru - CPCB", "pollutant_id": "PM2.5", "avg_value": "82", "last_update": "28-08-2026 14:00:00"},
			{"city": "Delhi", "station": "Anand Vihar", "pollutant_id": "PM2.5", "avg_value": "250", "last_update": "28-08-2026 14:00:00"},
			{"city": "Bengaluru", "station": "Hebbal, Bengaluru - KSPCB", "pollutant_id": "NO2", "avg_value": "NA", "last_update": "28-08-2026 14:00:00"},
			{"city": "Bengaluru", "station": "Silk Board, Bengaluru - KSPCB", "pollutant_id": "PM10", "avg_value": "110", "last_update": "not-a-date"}
		]}`))
	}))
	defer srv.Close()

	c := NewDataGovClient(testClient(), "k", 0)
	c.baseURL = srv.URL

	records, malformed, err := c.FetchCityPollutants(context.Background(), "Bengaluru")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}
	rec := records[0]
	if rec.StationRaw != "Peenya, Bengaluru - CPCB" || rec.Pollutant != "PM2.5" || rec.Value != 82 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	want := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	if !rec.Time.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", rec.Time, want)
	}
	if len(malformed) != 2 {
		t.Fatalf("expected 2 malformed rows, got %d", len(malformed))
	}
}

func TestWAQIScanBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "data": [{"uid": 1234}, {"uid": 5678}]}`))
	}))
	defer srv.Close()

	c := NewWAQIClient(testClient(), "tok", 0)
	c.baseURL = srv.URL

	uids, err := c.ScanBounds(context.Background(), "12.7,77.35,13.25,77.85")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(uids) != 2 || uids[0] != "1234" || uids[1] != "5678" {
		t.Fatalf("unexpected uids: %v", uids)
	}
}

func TestWAQIFetchFeedNormalizesPollutants(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"status": "ok", "data": {
			"city": {"name": "Peenya, Bangalore, India"},
			"time": {"s": "2026-08-28 14:00:00"},
			"iaqi": {"pm25": {"v": 94.0}, "pm10": {"v": 120.0}, "t": {"v": 27.0}}
		}}`))
	}))
	defer srv.Close()

	c := NewWAQIClient(testClient(), "tok", 0)
	c.baseURL = srv.URL

	feed, err := c.FetchFeed(context.Background(), "1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/feed/@1234/" {
		t.Fatalf("numeric uid must be addressed as @uid, got %s", gotPath)
	}
	if feed.Name != "Peenya, Bangalore, India" {
		t.Fatalf("unexpected name: %s", feed.Name)
	}
	if v, ok := feed.Pollutants["PM2.5"]; !ok || v != 94.0 {
		t.Fatalf("pm25 not normalized to PM2.5: %+v", feed.Pollutants)
	}
	if _, ok := feed.Pollutants["T"]; ok {
		t.Fatal("temperature iaqi key must not be treated as a pollutant")
	}
}

func TestWAQIFetchFeedManagedUIDAndBadTimestamp(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"status": "ok", "data": {
			"city": {"name": "Hidden Station"},
			"time": {"s": "yesterday"},
			"iaqi": {"pm25": {"v": 50}}
		}}`))
	}))
	defer srv.Close()

	c := NewWAQIClient(testClient(), "tok", 0)
	c.baseURL = srv.URL

	_, err := c.FetchFeed(context.Background(), "A568831")
	if gotPath != "/feed/A568831/" {
		t.Fatalf("managed uid must be used verbatim, got %s", gotPath)
	}
	var mr *MalformedRecordError
	if !errors.As(err, &mr) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
}

func TestTomTomRateLimitSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewTomTomClient(testClient(), "k", 10*time.Millisecond)
	c.baseURL = srv.URL

	start := time.Now()
	_, err := c.FetchFlow(context.Background(), 12.917, 77.623)
	var te *TransientError
	if !errors.As(err, &te) || !te.RateLimited {
		t.Fatalf("expected rate-limited TransientError, got %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected the fixed backoff to run before giving up")
	}
}

func TestTomTomFetchFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"flowSegmentData": {"currentSpeed": 20, "freeFlowSpeed": 40}}`))
	}))
	defer srv.Close()

	c := NewTomTomClient(testClient(), "k", 0)
	c.baseURL = srv.URL

	seg, err := c.FetchFlow(context.Background(), 12.917, 77.623)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.CurrentSpeed != 20 || seg.FreeFlowSpeed != 40 {
		t.Fatalf("unexpected segment: %+v", seg)
	}
}

func TestOpenWeatherFetchCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current": {"dt": 1787300400, "temp": 24.5, "humidity": 68, "wind_speed": 3.2,
			"weather": [{"description": "scattered clouds"}]}}`))
	}))
	defer srv.Close()

	c := NewOpenWeatherClient(testClient(), "k", 0)
	c.baseURL = srv.URL

	obs, err := c.FetchCurrent(context.Background(), 12.9716, 77.5946)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Temperature != 24.5 || obs.Humidity != 68 || obs.WindSpeed != 3.2 {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if obs.Conditions != "scattered clouds" {
		t.Fatalf("unexpected conditions: %s", obs.Conditions)
	}
	if !obs.Time.Equal(time.Unix(1787300400, 0).UTC()) {
		t.Fatalf("unexpected time: %v", obs.Time)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenWeatherClient(testClient(), "k", 0)
	c.baseURL = srv.URL

	_, err := c.FetchCurrent(context.Background(), 0, 0)
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError for 5xx, got %v", err)
	}
}
