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

// WeatherObservation is the current city-wide weather reading.
type WeatherObservation struct {
	Time        time.Time
	Temperature float64 // °C
	Humidity    float64 // %
	WindSpeed   float64 // m/s
	Conditions  string
}

// OpenWeatherClient fetches the single city-wide weather observation.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	httpCfg httpConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherClient(client *http.Client, apiKey string, backoff time.Duration) *OpenWeatherClient {
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/3.0/onecall",
		httpCfg: httpConfig{client: client, backoff: backoff},
		circuit: newBreaker("openweather"),
	}
}

// FetchCurrent returns the current conditions at the given point.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, lat, lon float64) (WeatherObservation, error) {
	if c.apiKey == "" {
		return WeatherObservation{}, fmt.Errorf("openweather: api key is not configured")
	}

	values := url.Values{}
	values.Set("lat", fmt.Sprintf("%f", lat))
	values.Set("lon", fmt.Sprintf("%f", lon))
	values.Set("units", "metric")
	values.Set("appid", c.apiKey)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return WeatherObservation{}, err
	}

	resp, err := doRequest(ctx, "openweather", c.httpCfg, c.circuit, req)
	if err != nil {
		return WeatherObservation{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Dt        int64   `json:"dt"`
			Temp      float64 `json:"temp"`
			Humidity  float64 `json:"humidity"`
			WindSpeed float64 `json:"wind_speed"`
			Weather   []struct {
				Description string `json:"description"`
			} `json:"weather"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return WeatherObservation{}, fmt.Errorf("openweather: decode: %w", err)
	}

	if payload.Current.Dt == 0 {
		return WeatherObservation{}, &MalformedRecordError{
			Source: "openweather",
			Reason: "missing observation timestamp",
			Raw:    "current.dt = 0",
		}
	}

	conditions := "N/A"
	if len(payload.Current.Weather) > 0 {
		conditions = payload.Current.Weather[0].Description
	}

	return WeatherObservation{
		Time:        time.Unix(payload.Current.Dt, 0).UTC(),
		Temperature: payload.Current.Temp,
		Humidity:    payload.Current.Humidity,
		WindSpeed:   payload.Current.WindSpeed,
		Conditions:  conditions,
	}, nil
}
