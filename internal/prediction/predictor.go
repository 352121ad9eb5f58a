// Package prediction turns the latest feature record and the current
// artifact set into a next-horizon forecast.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/common"
)

// Predictor serves one-step predictions for a location.
type Predictor struct {
	repo     *aqi.Repository
	arts     *artifacts.Store
	location string
}

// NewPredictor creates a Predictor reading features for location.
func NewPredictor(repo *aqi.Repository, arts *artifacts.Store, location string) *Predictor {
	return &Predictor{repo: repo, arts: arts, location: location}
}

// Predict forecasts the pollutant value one horizon after the latest feature
// record. Missing artifacts and an empty feature collection are reported
// through the result status; the error is only set for store failures.
func (p *Predictor) Predict(ctx context.Context) (aqi.PredictionResult, error) {
	set, err := p.arts.Load()
	if err != nil {
		log.Printf("prediction: artifacts unavailable: %v", err)
		return aqi.PredictionResult{Status: aqi.StatusNotReady, Reason: "model artifacts not ready, run training first"}, nil
	}

	rec, err := p.repo.LatestFeature(ctx, p.location)
	if errors.Is(err, aqi.ErrNoRecords) {
		return aqi.PredictionResult{Status: aqi.StatusNoData, Reason: "no feature records found, run feature engineering first"}, nil
	}
	if err != nil {
		return aqi.PredictionResult{Status: aqi.StatusError, Reason: err.Error()}, err
	}

	value, err := PredictRecord(set, rec)
	if err != nil {
		return aqi.PredictionResult{Status: aqi.StatusError, Reason: err.Error()}, err
	}

	return aqi.PredictionResult{
		Status:       aqi.StatusSuccess,
		Timestamp:    rec.Timestamp,
		Current:      rec.Current(),
		Predicted:    value,
		HorizonHours: set.Metrics.HorizonHours,
		Model:        set.Metrics.Winner,
	}, nil
}

// PredictRecord applies the artifact set to one record. The result is
// floored at 0 and rounded to 2 decimals.
func PredictRecord(set artifacts.Set, rec aqi.FeatureRecord) (float64, error) {
	raw, err := predictRaw(set, []aqi.FeatureRecord{rec})
	if err != nil {
		return 0, err
	}
	return common.Round(common.FloorZero(raw[0]), 2), nil
}

// Vector lays the record out in the given column order. Columns the record
// does not carry are 0.
func Vector(rec aqi.FeatureRecord, columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, c := range columns {
		out[i] = rec.Features[c]
	}
	return out
}

// Matrix stacks the vectors of recs into a design matrix.
func Matrix(recs []aqi.FeatureRecord, columns []string) *mat.Dense {
	X := mat.NewDense(len(recs), len(columns), nil)
	for i, rec := range recs {
		X.SetRow(i, Vector(rec, columns))
	}
	return X
}

// predictRaw returns unfloored model outputs for recs.
func predictRaw(set artifacts.Set, recs []aqi.FeatureRecord) ([]float64, error) {
	scaled, err := set.Scaler.Transform(Matrix(recs, set.Features))
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}
	out, err := set.Model.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return out, nil
}

// Health categories for a forecast value.
const (
	CategoryGood      = "Good"
	CategoryModerate  = "Moderate"
	CategoryUnhealthy = "Unhealthy"

	PrecautionMask = "Wear Mask"
	PrecautionSafe = "Safe for outdoors"
)

// Category maps a pollutant value to its health category.
func Category(v float64) string {
	switch {
	case v < 50:
		return CategoryGood
	case v < 100:
		return CategoryModerate
	default:
		return CategoryUnhealthy
	}
}

// Precaution returns the advice shown next to a forecast value.
func Precaution(v float64) string {
	if v > 100 {
		return PrecautionMask
	}
	return PrecautionSafe
}

// ForecastDay is one entry of a multi-day forecast.
type ForecastDay struct {
	Date       time.Time `json:"date"`
	Weekday    string    `json:"weekday"`
	Predicted  float64   `json:"predicted_aqi"`
	Category   string    `json:"health_category"`
	Precaution string    `json:"precaution"`
}

// Forecast is the multi-day view built on top of one prediction.
type Forecast struct {
	Base aqi.PredictionResult `json:"base"`
	// DailyDrift is the fixed amount added per day ahead. It is a display
	// heuristic, not a model output.
	DailyDrift float64       `json:"daily_drift"`
	Days       []ForecastDay `json:"days"`
}

// Forecast extends the one-step prediction over days calendar days by adding
// drift per day. The base result is returned untouched when it is not a
// success.
func (p *Predictor) Forecast(ctx context.Context, days int, drift float64, now time.Time) (Forecast, error) {
	if days <= 0 {
		return Forecast{}, fmt.Errorf("days must be greater than zero")
	}
	base, err := p.Predict(ctx)
	f := Forecast{Base: base, DailyDrift: drift}
	if err != nil || !base.OK() {
		return f, err
	}
	f.Days = Extend(base.Predicted, days, drift, now)
	return f, nil
}

// Extend builds the day entries for Forecast.
func Extend(base float64, days int, drift float64, now time.Time) []ForecastDay {
	out := make([]ForecastDay, 0, days)
	for i := 1; i <= days; i++ {
		d := now.AddDate(0, 0, i)
		v := common.Round(common.FloorZero(base+float64(i)*drift), 2)
		out = append(out, ForecastDay{
			Date:       time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()),
			Weekday:    d.Weekday().String(),
			Predicted:  v,
			Category:   Category(v),
			Precaution: Precaution(v),
		})
	}
	return out
}
