// Package forecast calls the externally hosted forecasting model. The model
// is trained offline; this process only serves its predictions.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aeris-engine/aeris/internal/providers"
)

// Predictor turns one scaled input window into one scaled next-hour value.
type Predictor interface {
	Predict(ctx context.Context, stationName string, window [][]float64) (float64, error)
}

// HTTPPredictor posts the window to a model server.
type HTTPPredictor struct {
	url    string
	client *http.Client
}

func NewHTTPPredictor(url string, client *http.Client) *HTTPPredictor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPredictor{url: url, client: client}
}

type predictRequest struct {
	Station string      `json:"station"`
	Window  [][]float64 `json:"window"`
}

type predictResponse struct {
	Prediction float64 `json:"prediction"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, stationName string, window [][]float64) (float64, error) {
	body, err := json.Marshal(predictRequest{Station: stationName, Window: window})
	if err != nil {
		return 0, fmt.Errorf("forecast: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("forecast: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &providers.TransientError{Source: "model", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, &providers.TransientError{Source: "model", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("forecast: unexpected status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("forecast: decode response: %w", err)
	}
	return out.Prediction, nil
}
