// Package weather resolves a location to its current ambient temperature
// using the OpenWeatherMap current-weather API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"plant-monitor/backend/internal/poller"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org"
	weatherPath    = "/data/2.5/weather"

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20
)

var (
	// ErrMissingTemperature is returned when the response lacks main.temp.
	ErrMissingTemperature = errors.New("response has no main.temp")
	// ErrMissingAPIKey is returned when the client was built without a key.
	ErrMissingAPIKey = errors.New("openweathermap api key not configured")
)

// Client queries OpenWeatherMap. It implements poller.Lookup.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ poller.Lookup = (*Client)(nil)

// NewClient returns a client for baseURL. An empty baseURL uses DefaultBaseURL and
// a nil httpClient uses one with a 15s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type currentWeather struct {
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

// AmbientTemperature returns the current temperature at loc in °C.
func (c *Client) AmbientTemperature(ctx context.Context, loc poller.Location) (float64, error) {
	if c.apiKey == "" {
		return 0, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("units", "metric")
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+weatherPath+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the query string, which carries the key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return 0, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, fmt.Errorf("failed to read weather response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	// the response carries many more fields than main.temp, so decoding is lenient
	var cw currentWeather
	if err := json.Unmarshal(body, &cw); err != nil {
		return 0, fmt.Errorf("failed to decode weather response: %w", err)
	}

	if cw.Main.Temp == nil {
		return 0, ErrMissingTemperature
	}

	return *cw.Main.Temp, nil
}
