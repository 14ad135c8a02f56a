package fusion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Scaler min-max normalizes feature vectors into [0, 1] per column. The
// fitted bounds are persisted so a restarted process scales inference input
// with the exact bounds the model was served with, instead of refitting on
// whatever data happens to be in the lookback window.
type Scaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

var ErrNotFitted = errors.New("scaler is not fitted")

// Fit learns per-column bounds from the records.
func (s *Scaler) Fit(records []Record) error {
	if len(records) == 0 {
		return errors.New("scaler: cannot fit on empty data")
	}
	s.Min = make([]float64, NumFeatures)
	s.Max = make([]float64, NumFeatures)
	copy(s.Min, records[0].Features())
	copy(s.Max, records[0].Features())
	for _, r := range records[1:] {
		for i, v := range r.Features() {
			if v < s.Min[i] {
				s.Min[i] = v
			}
			if v > s.Max[i] {
				s.Max[i] = v
			}
		}
	}
	return nil
}

// Transform scales each record into a feature row. Constant columns map
// to 0 rather than dividing by zero.
func (s *Scaler) Transform(records []Record) ([][]float64, error) {
	if len(s.Min) != NumFeatures || len(s.Max) != NumFeatures {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(records))
	for i, r := range records {
		row := r.Features()
		for j, v := range row {
			span := s.Max[j] - s.Min[j]
			if span == 0 {
				row[j] = 0
			} else {
				row[j] = (v - s.Min[j]) / span
			}
		}
		out[i] = row
	}
	return out, nil
}

// FitTransform fits the bounds and scales in one pass.
func (s *Scaler) FitTransform(records []Record) ([][]float64, error) {
	if err := s.Fit(records); err != nil {
		return nil, err
	}
	return s.Transform(records)
}

// InverseTarget maps a scaled model output back to pollutant units.
func (s *Scaler) InverseTarget(v float64) float64 {
	if len(s.Min) != NumFeatures {
		return v
	}
	return v*(s.Max[TargetIndex]-s.Min[TargetIndex]) + s.Min[TargetIndex]
}

// Save writes the fitted bounds as JSON.
func (s *Scaler) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("scaler: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("scaler: %w", err)
	}
	return nil
}

// LoadScaler reads previously saved bounds. A missing file surfaces as
// os.ErrNotExist so the caller can fall back to fitting fresh.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scaler %s: %w", path, err)
	}
	if len(s.Min) != NumFeatures || len(s.Max) != NumFeatures {
		return nil, fmt.Errorf("scaler %s: expected %d columns, got %d", path, NumFeatures, len(s.Min))
	}
	return &s, nil
}
