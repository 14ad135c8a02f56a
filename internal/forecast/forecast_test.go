package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aeris-engine/aeris/internal/providers"
)

func TestPredictPostsWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Station != "Hebbal" || len(req.Window) != 2 {
			t.Fatalf("unexpected payload: %+v", req)
		}
		json.NewEncoder(w).Encode(predictResponse{Prediction: 0.42})
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL, srv.Client())
	got, err := p.Predict(context.Background(), "Hebbal", [][]float64{{0.1, 0.2}, {0.3, 0.4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.42 {
		t.Fatalf("prediction = %v, want 0.42", got)
	}
}

func TestPredictServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL, srv.Client())
	_, err := p.Predict(context.Background(), "Hebbal", nil)
	var te *providers.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
