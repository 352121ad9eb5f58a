package httpapi

import (
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/air-quality-forecast/internal/analysis"
	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/jobs"
	"github.com/i474232898/air-quality-forecast/internal/prediction"
)

var validate = validator.New()

// importanceRecords is how many recent records permutation importance uses.
const importanceRecords = 200

// JobStatus exposes the last report of each pipeline job.
type JobStatus interface {
	Last() map[jobs.Job]jobs.Report
}

// Deps are the read-side components the dashboard API serves from.
type Deps struct {
	Repo       *aqi.Repository
	Artifacts  *artifacts.Store
	Predictor  *prediction.Predictor
	Jobs       JobStatus // optional
	Location   string
	DailyDrift float64
	Now        func() time.Time
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		resp := fiber.Map{"location": d.Location}

		latest, err := d.Repo.LatestFeature(c.UserContext(), d.Location)
		switch {
		case err == nil:
			resp["latest"] = latest
		case errors.Is(err, aqi.ErrNoRecords):
			resp["latest"] = nil
		default:
			log.Printf("ERROR: status: latest feature: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read feature store")
		}

		if m, err := d.Artifacts.LoadMetrics(); err == nil {
			resp["model"] = m
		} else {
			resp["model"] = fiber.Map{"status": aqi.StatusNotReady}
		}
		if d.Jobs != nil {
			resp["jobs"] = d.Jobs.Last()
		}
		return c.JSON(resp)
	})

	v1.Get("/history", func(c *fiber.Ctx) error {
		req := historyQuery{Hours: c.QueryInt("hours", 48)}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		recs, err := d.Repo.Features(c.UserContext(), aqi.Query{
			Filter: aqi.Filter{Location: d.Location},
			Order:  aqi.Descending,
			Limit:  req.Hours,
		})
		if err != nil {
			log.Printf("ERROR: history: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read feature history")
		}
		if len(recs) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no feature history for location")
		}

		points := make([]historyPoint, len(recs))
		for i, rec := range recs {
			// oldest first
			points[len(recs)-1-i] = historyPoint{Timestamp: rec.Timestamp, Actual: rec.Current(), Target: rec.Target}
		}
		return c.JSON(fiber.Map{
			"location": d.Location,
			"hours":    req.Hours,
			"points":   points,
		})
	})

	v1.Get("/prediction", func(c *fiber.Ctx) error {
		res, err := d.Predictor.Predict(c.UserContext())
		if err != nil {
			log.Printf("ERROR: prediction: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "prediction failed")
		}
		return c.Status(statusCode(res.Status)).JSON(res)
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		if c.Query("days") == "" {
			return fiber.NewError(fiber.StatusBadRequest, "days query parameter is required")
		}
		req := forecastQuery{Days: c.QueryInt("days", 0)}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		f, err := d.Predictor.Forecast(c.UserContext(), req.Days, d.DailyDrift, d.Now())
		if err != nil {
			log.Printf("ERROR: forecast: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "forecast failed")
		}
		return c.Status(statusCode(f.Base.Status)).JSON(f)
	})

	analysisGroup := v1.Group("/analysis")

	analysisGroup.Get("/correlation", func(c *fiber.Ctx) error {
		req := correlationQuery{Limit: c.QueryInt("limit", 720)}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		recs, err := d.Repo.Features(c.UserContext(), aqi.Query{
			Filter: aqi.Filter{Location: d.Location},
			Order:  aqi.Descending,
			Limit:  req.Limit,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read feature history")
		}
		corr, err := analysis.Correlate(recs)
		if errors.Is(err, analysis.ErrTooFewRecords) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return err
		}
		return c.JSON(corr)
	})

	analysisGroup.Get("/importance", func(c *fiber.Ctx) error {
		set, err := d.Artifacts.Load()
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "model artifacts not ready")
		}
		recs, err := d.Repo.Features(c.UserContext(), aqi.Query{
			Filter: aqi.Filter{Location: d.Location},
			Order:  aqi.Descending,
			Limit:  importanceRecords,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read feature history")
		}
		imp, err := analysis.PermutationImportance(set, recs, 3, 42)
		if errors.Is(err, analysis.ErrTooFewRecords) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			log.Printf("ERROR: importance: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "importance computation failed")
		}
		return c.JSON(fiber.Map{
			"model":      set.Metrics.Winner,
			"records":    len(recs),
			"importance": imp,
		})
	})
}

// statusCode maps a prediction status to its HTTP status.
func statusCode(s aqi.Status) int {
	switch s {
	case aqi.StatusSuccess:
		return fiber.StatusOK
	case aqi.StatusNotReady:
		return fiber.StatusServiceUnavailable
	case aqi.StatusNoData:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Hours int `validate:"min=1,max=720"`
}

// forecastQuery holds query parameters for the forecast endpoint.
type forecastQuery struct {
	Days int `validate:"min=1,max=7"`
}

type correlationQuery struct {
	Limit int `validate:"min=2,max=10000"`
}

type historyPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Actual    float64   `json:"actual_aqi"`
	Target    float64   `json:"target_aqi"`
}
