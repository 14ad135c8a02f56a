package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// FlowSegment is the current road state nearest to a station's coordinates.
type FlowSegment struct {
	CurrentSpeed  float64
	FreeFlowSpeed float64
}

// TomTomClient queries the proprietary traffic-flow endpoint per station.
// Callers iterate stations sequentially with a fixed delay; a rate-limited
// response skips that station for the cycle and never blocks the others.
type TomTomClient struct {
	apiKey  string
	baseURL string
	httpCfg httpConfig
	circuit *gobreaker.CircuitBreaker
}

func NewTomTomClient(client *http.Client, apiKey string, backoff time.Duration) *TomTomClient {
	return &TomTomClient{
		apiKey:  apiKey,
		baseURL: "https://api.tomtom.com/traffic/services/4/flowSegmentData/absolute/10/json",
		httpCfg: httpConfig{client: client, backoff: backoff},
		circuit: newBreaker("tomtom"),
	}
}

// FetchFlow returns the flow segment nearest to the given point.
func (c *TomTomClient) FetchFlow(ctx context.Context, lat, lon float64) (FlowSegment, error) {
	if c.apiKey == "" {
		return FlowSegment{}, fmt.Errorf("tomtom: api key is not configured")
	}

	values := url.Values{}
	values.Set("key", c.apiKey)
	values.Set("point", fmt.Sprintf("%f,%f", lat, lon))

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return FlowSegment{}, err
	}

	resp, err := doRequest(ctx, "tomtom", c.httpCfg, c.circuit, req)
	if err != nil {
		return FlowSegment{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		FlowSegmentData struct {
			CurrentSpeed  float64 `json:"currentSpeed"`
			FreeFlowSpeed float64 `json:"freeFlowSpeed"`
		} `json:"flowSegmentData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FlowSegment{}, fmt.Errorf("tomtom: decode: %w", err)
	}

	return FlowSegment{
		CurrentSpeed:  payload.FlowSegmentData.CurrentSpeed,
		FreeFlowSpeed: payload.FlowSegmentData.FreeFlowSpeed,
	}, nil
}
