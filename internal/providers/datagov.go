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

// dataGovResourceID identifies the national hourly pollutant-averages
// dataset on data.gov.in.
const dataGovResourceID = "3b01bcb8-0b14-4abf-b6f2-c1bfd384ba69"

// dataGovTimeLayout is the "last_update" format in the gov payload.
const dataGovTimeLayout = "02-01-2006 15:04:05"

// PollutantRecord is one parsed pollutant observation from any AQI source.
type PollutantRecord struct {
	Time       time.Time
	StationRaw string // provider spelling; resolved by the caller
	Pollutant  string
	Value      float64
}

// DataGovClient polls the governmental pollutant-averages endpoint. The
// endpoint returns records for the whole country; filtering to the target
// city happens client-side.
type DataGovClient struct {
	apiKey  string
	baseURL string
	httpCfg httpConfig
	circuit *gobreaker.CircuitBreaker
}

func NewDataGovClient(client *http.Client, apiKey string, backoff time.Duration) *DataGovClient {
	return &DataGovClient{
		apiKey:  apiKey,
		baseURL: "https://api.data.gov.in/resource/" + dataGovResourceID,
		httpCfg: httpConfig{client: client, backoff: backoff},
		circuit: newBreaker("datagov"),
	}
}

// FetchCityPollutants returns all parseable pollutant records for the given
// city, plus one MalformedRecordError per dropped row.
func (c *DataGovClient) FetchCityPollutants(ctx context.Context, city string) ([]PollutantRecord, []*MalformedRecordError, error) {
	if c.apiKey == "" {
		return nil, nil, fmt.Errorf("datagov: api key is not configured")
	}

	values := url.Values{}
	values.Set("api-key", c.apiKey)
	values.Set("format", "json")
	values.Set("limit", "2000")

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := doRequest(ctx, "datagov", c.httpCfg, c.circuit, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Records []struct {
			City        string `json:"city"`
			Station     string `json:"station"`
			PollutantID string `json:"pollutant_id"`
			AvgValue    string `json:"avg_value"`
			LastUpdate  string `json:"last_update"`
		} `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("datagov: decode: %w", err)
	}

	var (
		records   []PollutantRecord
		malformed []*MalformedRecordError
	)
	for _, rec := range payload.Records {
		if strings.TrimSpace(rec.City) != city {
			continue
		}

		ts, err := time.Parse(dataGovTimeLayout, rec.LastUpdate)
		if err != nil {
			malformed = append(malformed, &MalformedRecordError{
				Source: "datagov",
				Reason: "bad timestamp",
				Raw:    fmt.Sprintf("%s|%s|%s", rec.Station, rec.PollutantID, rec.LastUpdate),
			})
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(rec.AvgValue), 64)
		if err != nil {
			malformed = append(malformed, &MalformedRecordError{
				Source: "datagov",
				Reason: "non-numeric value",
				Raw:    fmt.Sprintf("%s|%s|%s", rec.Station, rec.PollutantID, rec.AvgValue),
			})
			continue
		}

		records = append(records, PollutantRecord{
			Time:       ts,
			StationRaw: rec.Station,
			Pollutant:  rec.PollutantID,
			Value:      value,
		})
	}
	return records, malformed, nil
}
