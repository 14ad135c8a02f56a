package fusion

import (
	"fmt"
	"time"
)

// Window is one training or inference sample: the scaled feature rows of
// width-1 consecutive hours plus the scaled pollutant value of the hour
// that follows them.
type Window struct {
	Station string
	Start   time.Time
	End     time.Time
	Inputs  [][]float64
	Label   float64
}

// BuildWindows slides a width-sized frame over each station's records and
// emits a window per position. Frames never cross station boundaries or
// hour gaps: a run of n strictly consecutive hourly records yields n-width+1
// windows, and a shorter run yields none. features must be the scaled rows
// aligned one-to-one with records.
func BuildWindows(records []Record, features [][]float64, width int) ([]Window, error) {
	if width < 2 {
		return nil, fmt.Errorf("window width %d: need at least 2", width)
	}
	if len(records) != len(features) {
		return nil, fmt.Errorf("got %d records but %d feature rows", len(records), len(features))
	}

	var windows []Window
	for start := 0; start < len(records); {
		end := contiguousRunEnd(records, start)
		for lo := start; lo+width <= end; lo++ {
			hi := lo + width // exclusive
			windows = append(windows, Window{
				Station: records[lo].Station,
				Start:   records[lo].Time,
				End:     records[hi-1].Time,
				Inputs:  features[lo : hi-1 : hi-1],
				Label:   features[hi-1][TargetIndex],
			})
		}
		start = end
	}
	return windows, nil
}

// LatestWindow returns the most recent width-1 consecutive feature rows for
// one station, i.e. the input sequence whose label the model is asked to
// predict. ok is false when the station's trailing run is too short.
func LatestWindow(records []Record, features [][]float64, width int, stationName string) (inputs [][]float64, last time.Time, ok bool) {
	if width < 2 || len(records) != len(features) {
		return nil, time.Time{}, false
	}

	end := -1
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Station == stationName {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return nil, time.Time{}, false
	}

	need := width - 1
	lo := end - 1
	for lo > end-need && lo > 0 &&
		records[lo-1].Station == stationName &&
		records[lo].Time.Equal(records[lo-1].Time.Add(time.Hour)) {
		lo--
	}
	if end-lo < need {
		return nil, time.Time{}, false
	}
	return features[lo:end:end], records[end-1].Time, true
}

// contiguousRunEnd finds the exclusive end of the run of same-station,
// strictly hour-consecutive records starting at i.
func contiguousRunEnd(records []Record, i int) int {
	j := i + 1
	for j < len(records) &&
		records[j].Station == records[i].Station &&
		records[j].Time.Equal(records[j-1].Time.Add(time.Hour)) {
		j++
	}
	return j
}
