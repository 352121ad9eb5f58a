package aqi

import (
	"time"
)

// Column names shared by raw observations and feature records.
const (
	ColumnAQIValue    = "aqi_value"
	ColumnTemperature = "temperature"
	ColumnHumidity    = "humidity"
	ColumnWindSpeed   = "wind_speed"
	ColumnPressure    = "pressure"
)

// RawColumns lists the numeric observation columns in their canonical order.
var RawColumns = []string{
	ColumnAQIValue,
	ColumnTemperature,
	ColumnHumidity,
	ColumnWindSpeed,
	ColumnPressure,
}

// Location represents the place a series is collected for.
// Lat/Lon may be nil when the location still has to be geocoded.
type Location struct {
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Key returns the tag written on every record collected for this location.
func (l Location) Key() string {
	if l.Country == "" {
		return l.Name
	}
	return l.Name + ":" + l.Country
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// Observation is one hourly pollutant reading aligned with the weather
// covariates available for the same hour.
type Observation struct {
	Timestamp   time.Time `json:"timestamp"` // always UTC, hour resolution
	Location    string    `json:"location"`
	AQIValue    float64   `json:"aqi_value"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	WindSpeed   *float64  `json:"wind_speed,omitempty"`
	Pressure    *float64  `json:"pressure,omitempty"`
}

// Numeric returns the observation's numeric columns. Covariates that were
// not reported for this hour are left out.
func (o Observation) Numeric() map[string]float64 {
	out := map[string]float64{ColumnAQIValue: o.AQIValue}
	optional := map[string]*float64{
		ColumnTemperature: o.Temperature,
		ColumnHumidity:    o.Humidity,
		ColumnWindSpeed:   o.WindSpeed,
		ColumnPressure:    o.Pressure,
	}
	for name, v := range optional {
		if v != nil {
			out[name] = *v
		}
	}
	return out
}

// FeatureRecord is one supervised training row derived from the raw series.
type FeatureRecord struct {
	Timestamp time.Time          `json:"timestamp"`
	Location  string             `json:"location"`
	Target    float64            `json:"target"`
	Features  map[string]float64 `json:"features"`
}

// Current returns the pollutant value observed at the record's timestamp.
func (r FeatureRecord) Current() float64 {
	return r.Features[ColumnAQIValue]
}

// Status describes the outcome of a prediction request.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNotReady Status = "not_ready"
	StatusNoData   Status = "no_data"
	StatusError    Status = "error"
)

// PredictionResult is the ephemeral answer handed to the dashboard.
type PredictionResult struct {
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"current_time"`
	Current      float64   `json:"current_aqi"`
	Predicted    float64   `json:"predicted_aqi"`
	HorizonHours int       `json:"horizon_hours,omitempty"`
	Model        string    `json:"model,omitempty"`
}

// OK reports whether the result carries a usable forecast.
func (p PredictionResult) OK() bool {
	return p.Status == StatusSuccess
}
