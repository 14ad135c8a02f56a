package fusion

import "math"

// FillGaps repairs missing numeric fields per station: linear interpolation
// between known neighbours, then forward fill, then backward fill. A station
// with no data at all for some field cannot be repaired and is excluded
// entirely. The input must be sorted by (station, time); ordering is
// preserved.
func FillGaps(records []Record) []Record {
	out := records[:0]
	for start := 0; start < len(records); {
		end := start
		for end < len(records) && records[end].Station == records[start].Station {
			end++
		}
		group := records[start:end]
		if fillGroup(group) {
			out = append(out, group...)
		}
		start = end
	}
	return out
}

// fillGroup repairs one station's rows in place. It reports false when some
// field has no observed value anywhere in the group.
func fillGroup(group []Record) bool {
	col := make([]float64, len(group))
	for f := 0; f < numFilled; f++ {
		for i := range group {
			col[i] = fieldAt(&group[i], f)
		}
		if !fillColumn(col) {
			return false
		}
		for i := range group {
			setFieldAt(&group[i], f, col[i])
		}
	}
	return true
}

// fillColumn interpolates, forward-fills, and backward-fills NaN runs in
// place. It reports false when the column holds no value at all.
func fillColumn(col []float64) bool {
	prev := -1 // index of the last known value
	any := false
	for i := 0; i < len(col); i++ {
		if math.IsNaN(col[i]) {
			continue
		}
		any = true
		if prev >= 0 && i-prev > 1 {
			// Linear ramp across the gap.
			step := (col[i] - col[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				col[j] = col[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if !any {
		return false
	}

	// Trailing gap: forward fill from the last known value.
	for i := prev + 1; i < len(col); i++ {
		col[i] = col[prev]
	}
	// Leading gap: backward fill from the first known value.
	for i := 0; i < len(col) && math.IsNaN(col[i]); {
		first := i
		for first < len(col) && math.IsNaN(col[first]) {
			first++
		}
		for j := i; j < first; j++ {
			col[j] = col[first]
		}
		i = first
	}
	return true
}

func fieldAt(r *Record, f int) float64 {
	switch f {
	case idxTemperature:
		return r.Temperature
	case idxHumidity:
		return r.Humidity
	case idxWindSpeed:
		return r.WindSpeed
	case idxCurrentSpeed:
		return r.CurrentSpeed
	case idxCongestion:
		return r.CongestionFactor
	default:
		return r.Pollutant
	}
}

func setFieldAt(r *Record, f int, v float64) {
	switch f {
	case idxTemperature:
		r.Temperature = v
	case idxHumidity:
		r.Humidity = v
	case idxWindSpeed:
		r.WindSpeed = v
	case idxCurrentSpeed:
		r.CurrentSpeed = v
	case idxCongestion:
		r.CongestionFactor = v
	default:
		r.Pollutant = v
	}
}
