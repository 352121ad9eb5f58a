package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

const (
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	DefaultArchiveURL    = "https://archive-api.open-meteo.com/v1/archive"
	DefaultForecastURL   = "https://api.open-meteo.com/v1/forecast"

	openMeteoTimeLayout = "2006-01-02T15:04"
	openMeteoDateLayout = "2006-01-02"

	pollutantParam = "pm2_5"
	weatherParams  = "temperature_2m,relative_humidity_2m,wind_speed_10m,surface_pressure"
)

var (
	// ErrNoData is returned when the upstream API yields no aligned hour.
	ErrNoData = errors.New("no aligned observations returned")

	errNoCoordinates = errors.New("location has no coordinates")
	errMisaligned    = errors.New("hourly arrays have different lengths")
)

// OpenMeteoConfig holds the endpoints and request settings for OpenMeteo.
type OpenMeteoConfig struct {
	AirQualityURL string
	ArchiveURL    string
	ForecastURL   string
	Timezone      string
	MaxRetries    int
}

// OpenMeteo fetches hourly PM2.5 and weather series from Open-Meteo and
// aligns them by timestamp.
type OpenMeteo struct {
	cfg     OpenMeteoConfig
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewOpenMeteo creates an Open-Meteo client. Empty URLs fall back to the
// public endpoints.
func NewOpenMeteo(client *http.Client, cfg OpenMeteoConfig) *OpenMeteo {
	if cfg.AirQualityURL == "" {
		cfg.AirQualityURL = DefaultAirQualityURL
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "GMT"
	}

	return &OpenMeteo{
		cfg: cfg,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newCircuitBreaker("openmeteo"),
		now:     time.Now,
	}
}

// Name identifies the source in logs.
func (p *OpenMeteo) Name() string {
	return "openmeteo"
}

// FetchRange returns the observations between start and end (whole days),
// using the weather archive for covariates.
func (p *OpenMeteo) FetchRange(ctx context.Context, loc aqi.Location, start, end time.Time) ([]aqi.Observation, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end %s before start %s", end.Format(openMeteoDateLayout), start.Format(openMeteoDateLayout))
	}
	window := func(v url.Values) {
		v.Set("start_date", start.UTC().Format(openMeteoDateLayout))
		v.Set("end_date", end.UTC().Format(openMeteoDateLayout))
	}
	return p.fetch(ctx, loc, p.cfg.ArchiveURL, window)
}

// FetchRecent returns the observations of the last pastDays days, using the
// forecast endpoint for covariates. Hours in the future are dropped.
func (p *OpenMeteo) FetchRecent(ctx context.Context, loc aqi.Location, pastDays int) ([]aqi.Observation, error) {
	if pastDays <= 0 {
		return nil, fmt.Errorf("pastDays must be greater than zero")
	}
	window := func(v url.Values) {
		v.Set("past_days", strconv.Itoa(pastDays))
		v.Set("forecast_days", "1")
	}
	return p.fetch(ctx, loc, p.cfg.ForecastURL, window)
}

type hourlyPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Hourly           struct {
		Time        []string   `json:"time"`
		PM25        []*float64 `json:"pm2_5"`
		Temperature []*float64 `json:"temperature_2m"`
		Humidity    []*float64 `json:"relative_humidity_2m"`
		WindSpeed   []*float64 `json:"wind_speed_10m"`
		Pressure    []*float64 `json:"surface_pressure"`
	} `json:"hourly"`
}

func (p *OpenMeteo) fetch(ctx context.Context, loc aqi.Location, weatherURL string, window func(url.Values)) ([]aqi.Observation, error) {
	if !loc.HasCoordinates() {
		return nil, fmt.Errorf("openmeteo: %w: %s", errNoCoordinates, loc.Key())
	}

	air, err := p.get(ctx, p.cfg.AirQualityURL, loc, pollutantParam, window)
	if err != nil {
		return nil, fmt.Errorf("openmeteo air quality: %w", err)
	}
	wx, err := p.get(ctx, weatherURL, loc, weatherParams, window)
	if err != nil {
		return nil, fmt.Errorf("openmeteo weather: %w", err)
	}

	obs, err := alignHourly(loc.Key(), air, wx, p.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, ErrNoData
	}
	return obs, nil
}

func (p *OpenMeteo) get(ctx context.Context, baseURL string, loc aqi.Location, hourly string, window func(url.Values)) (hourlyPayload, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(*loc.Lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(*loc.Lon, 'f', 4, 64))
		values.Set("hourly", hourly)
		values.Set("timezone", p.cfg.Timezone)
		window(values)

		u := fmt.Sprintf("%s?%s", baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return hourlyPayload{}, err
	}
	defer resp.Body.Close()

	var payload hourlyPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return hourlyPayload{}, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

// alignHourly inner-joins the air quality and weather series on their
// timestamps. Hours without a pollutant value or later than now are skipped.
func alignHourly(location string, air, wx hourlyPayload, now time.Time) ([]aqi.Observation, error) {
	if len(air.Hourly.PM25) != len(air.Hourly.Time) {
		return nil, fmt.Errorf("air quality: %w", errMisaligned)
	}
	for _, series := range [][]*float64{wx.Hourly.Temperature, wx.Hourly.Humidity, wx.Hourly.WindSpeed, wx.Hourly.Pressure} {
		if series != nil && len(series) != len(wx.Hourly.Time) {
			return nil, fmt.Errorf("weather: %w", errMisaligned)
		}
	}

	weatherIdx := make(map[time.Time]int, len(wx.Hourly.Time))
	for i, raw := range wx.Hourly.Time {
		ts, err := parseHour(raw, wx.UTCOffsetSeconds)
		if err != nil {
			return nil, err
		}
		weatherIdx[ts] = i
	}

	obs := make([]aqi.Observation, 0, len(air.Hourly.Time))
	for i, raw := range air.Hourly.Time {
		ts, err := parseHour(raw, air.UTCOffsetSeconds)
		if err != nil {
			return nil, err
		}
		if ts.After(now) || air.Hourly.PM25[i] == nil {
			continue
		}
		j, ok := weatherIdx[ts]
		if !ok {
			continue
		}

		obs = append(obs, aqi.Observation{
			Timestamp:   ts,
			Location:    location,
			AQIValue:    *air.Hourly.PM25[i],
			Temperature: at(wx.Hourly.Temperature, j),
			Humidity:    at(wx.Hourly.Humidity, j),
			WindSpeed:   at(wx.Hourly.WindSpeed, j),
			Pressure:    at(wx.Hourly.Pressure, j),
		})
	}
	return obs, nil
}

// parseHour converts Open-Meteo's local "YYYY-MM-DDTHH:MM" into UTC.
func parseHour(raw string, utcOffsetSeconds int) (time.Time, error) {
	ts, err := time.Parse(openMeteoTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hourly timestamp %q: %w", raw, err)
	}
	return ts.Add(-time.Duration(utcOffsetSeconds) * time.Second).UTC().Truncate(time.Hour), nil
}

func at(series []*float64, i int) *float64 {
	if i >= len(series) || series[i] == nil {
		return nil
	}
	v := *series[i]
	return &v
}
