package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// waqiTimeLayout is the station-local observation time in the feed payload.
const waqiTimeLayout = "2006-01-02 15:04:05"

// trackedPollutants is the subset of iaqi keys worth storing.
var trackedPollutants = map[string]bool{
	"PM2.5": true, "PM10": true, "NO2": true,
	"SO2": true, "CO": true, "O3": true, "NH3": true,
}

// WAQIFeed is one station's parsed community air-quality feed.
type WAQIFeed struct {
	Name       string // display name, fed through the identity resolver
	Time       time.Time
	Pollutants map[string]float64
}

// WAQIClient talks to the community air-quality network in two phases: a
// geographic bounding-box scan for station UIDs, then a per-UID feed fetch.
type WAQIClient struct {
	token   string
	baseURL string
	httpCfg httpConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWAQIClient(client *http.Client, token string, backoff time.Duration) *WAQIClient {
	return &WAQIClient{
		token:   token,
		baseURL: "https://api.waqi.info",
		httpCfg: httpConfig{client: client, backoff: backoff},
		circuit: newBreaker("waqi"),
	}
}

// ScanBounds returns the UIDs of every station inside the bounding box
// ("lat1,lon1,lat2,lon2"). UIDs are returned as strings because managed
// stations carry "A"-prefixed identifiers.
func (c *WAQIClient) ScanBounds(ctx context.Context, bounds string) ([]string, error) {
	if c.token == "" {
		return nil, fmt.Errorf("waqi: token is not configured")
	}

	values := url.Values{}
	values.Set("latlng", bounds)
	values.Set("token", c.token)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/map/bounds/?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, "waqi", c.httpCfg, c.circuit, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Status string `json:"status"`
		Data   []struct {
			UID json.Number `json:"uid"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("waqi: decode bounds: %w", err)
	}
	if payload.Status != "ok" {
		return nil, &TransientError{Source: "waqi", Err: fmt.Errorf("bounds scan status %q", payload.Status)}
	}

	uids := make([]string, 0, len(payload.Data))
	for _, s := range payload.Data {
		uids = append(uids, s.UID.String())
	}
	return uids, nil
}

// FetchFeed pulls one station's feed. Numeric UIDs are addressed as "@uid";
// managed "A…" identifiers are used verbatim.
func (c *WAQIClient) FetchFeed(ctx context.Context, uid string) (WAQIFeed, error) {
	if c.token == "" {
		return WAQIFeed{}, fmt.Errorf("waqi: token is not configured")
	}

	feedID := uid
	if !strings.HasPrefix(uid, "A") {
		feedID = "@" + uid
	}

	values := url.Values{}
	values.Set("token", c.token)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/feed/"+feedID+"/?"+values.Encode(), nil)
	if err != nil {
		return WAQIFeed{}, err
	}

	resp, err := doRequest(ctx, "waqi", c.httpCfg, c.circuit, req)
	if err != nil {
		return WAQIFeed{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Status string `json:"status"`
		Data   struct {
			City struct {
				Name string `json:"name"`
			} `json:"city"`
			Time struct {
				S string `json:"s"`
			} `json:"time"`
			IAQI map[string]struct {
				V float64 `json:"v"`
			} `json:"iaqi"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return WAQIFeed{}, fmt.Errorf("waqi: decode feed %s: %w", uid, err)
	}
	if payload.Status != "ok" {
		return WAQIFeed{}, &TransientError{Source: "waqi", Err: fmt.Errorf("feed %s status %q", uid, payload.Status)}
	}

	ts, err := time.Parse(waqiTimeLayout, payload.Data.Time.S)
	if err != nil {
		return WAQIFeed{}, &MalformedRecordError{
			Source: "waqi",
			Reason: "bad timestamp",
			Raw:    fmt.Sprintf("%s|%s", payload.Data.City.Name, payload.Data.Time.S),
		}
	}

	feed := WAQIFeed{
		Name:       payload.Data.City.Name,
		Time:       ts,
		Pollutants: make(map[string]float64),
	}
	for key, info := range payload.Data.IAQI {
		id := normalizePollutantID(key)
		if trackedPollutants[id] {
			feed.Pollutants[id] = info.V
		}
	}
	return feed, nil
}

// normalizePollutantID maps WAQI iaqi keys onto the canonical pollutant ids
// used by the store (matching the governmental feed's spelling).
func normalizePollutantID(key string) string {
	id := strings.ToUpper(key)
	if id == "PM25" {
		return "PM2.5"
	}
	return id
}

// ParseUID validates a scan UID; kept exported for the force list, whose
// entries bypass the scan entirely.
func ParseUID(s string) (string, error) {
	if strings.HasPrefix(s, "A") {
		return s, nil
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", fmt.Errorf("waqi: invalid uid %q", s)
	}
	return s, nil
}
