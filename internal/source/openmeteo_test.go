package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

const airBody = `{
  "utc_offset_seconds": 0,
  "hourly": {
    "time": ["2025-01-01T00:00", "2025-01-01T01:00", "2025-01-01T02:00", "2025-01-01T03:00", "2025-01-02T00:00"],
    "pm2_5": [10.5, null, 12.0, 13.0, 99.0]
  }
}`

const weatherBody = `{
  "utc_offset_seconds": 0,
  "hourly": {
    "time": ["2025-01-01T00:00", "2025-01-01T01:00", "2025-01-01T02:00", "2025-01-02T00:00"],
    "temperature_2m": [20.1, 20.2, null, 19.0],
    "relative_humidity_2m": [60, 61, 62, 70],
    "wind_speed_10m": [3.1, 3.2, 3.3, 2.0],
    "surface_pressure": [1012, 1012, 1011, 1010]
  }
}`

func testLocation() aqi.Location {
	lat, lon := 24.8608, 67.0011
	return aqi.Location{Name: "Karachi", Country: "PK", Lat: &lat, Lon: &lon}
}

func newTestServer(t *testing.T, air, weather string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/air", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hourly") != pollutantParam {
			t.Errorf("unexpected hourly param %q", r.URL.Query().Get("hourly"))
		}
		_, _ = w.Write([]byte(air))
	})
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weather))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, maxRetries int) *OpenMeteo {
	p := NewOpenMeteo(srv.Client(), OpenMeteoConfig{
		AirQualityURL: srv.URL + "/air",
		ArchiveURL:    srv.URL + "/weather",
		ForecastURL:   srv.URL + "/weather",
		MaxRetries:    maxRetries,
	})
	p.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestFetchRangeAlignsSeries(t *testing.T) {
	srv := newTestServer(t, airBody, weatherBody)
	p := newTestClient(srv, 0)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	obs, err := p.FetchRange(context.Background(), testLocation(), start, start)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}

	// 01:00 has no pm2_5, 03:00 has no weather, 2025-01-02 is after now.
	if len(obs) != 2 {
		t.Fatalf("expected 2 aligned observations, got %d: %+v", len(obs), obs)
	}
	if obs[0].AQIValue != 10.5 || obs[0].Location != "Karachi:PK" {
		t.Errorf("unexpected first observation: %+v", obs[0])
	}
	if obs[0].Temperature == nil || *obs[0].Temperature != 20.1 {
		t.Errorf("temperature not carried over: %+v", obs[0])
	}
	if obs[1].Temperature != nil {
		t.Errorf("null temperature should stay nil, got %v", *obs[1].Temperature)
	}
	if obs[1].Pressure == nil || *obs[1].Pressure != 1011 {
		t.Errorf("pressure not carried over: %+v", obs[1])
	}
}

func TestFetchRecentNoData(t *testing.T) {
	srv := newTestServer(t, `{"hourly":{"time":[],"pm2_5":[]}}`, weatherBody)
	p := newTestClient(srv, 0)

	_, err := p.FetchRecent(context.Background(), testLocation(), 2)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestFetchRequiresCoordinates(t *testing.T) {
	srv := newTestServer(t, airBody, weatherBody)
	p := newTestClient(srv, 0)

	_, err := p.FetchRecent(context.Background(), aqi.Location{Name: "Nowhere"}, 1)
	if !errors.Is(err, errNoCoordinates) {
		t.Fatalf("expected errNoCoordinates, got %v", err)
	}
}

func TestFetchMisalignedPayload(t *testing.T) {
	bad := `{"hourly":{"time":["2025-01-01T00:00","2025-01-01T01:00"],"pm2_5":[1]}}`
	srv := newTestServer(t, bad, weatherBody)
	p := newTestClient(srv, 0)

	_, err := p.FetchRecent(context.Background(), testLocation(), 1)
	if !errors.Is(err, errMisaligned) {
		t.Fatalf("expected errMisaligned, got %v", err)
	}
}

func TestServerErrorWithoutRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewOpenMeteo(srv.Client(), OpenMeteoConfig{AirQualityURL: srv.URL, ForecastURL: srv.URL})
	_, err := p.FetchRecent(context.Background(), testLocation(), 1)
	if !errors.Is(err, errServerError) {
		t.Fatalf("expected errServerError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/air", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(airBody))
	})
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weatherBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestClient(srv, 1)
	obs, err := p.FetchRecent(context.Background(), testLocation(), 1)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(obs) != 2 || calls.Load() != 2 {
		t.Fatalf("expected recovery on second attempt, got %d obs after %d calls", len(obs), calls.Load())
	}
}

func TestParseHourAppliesOffset(t *testing.T) {
	ts, err := parseHour("2025-01-01T05:00", 5*3600)
	if err != nil {
		t.Fatalf("parseHour: %v", err)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("parseHour = %s, want %s", ts, want)
	}
}

func TestResolveLocation(t *testing.T) {
	loc := testLocation()
	got, err := ResolveLocation(loc, "")
	if err != nil || got.Lat != loc.Lat {
		t.Fatalf("location with coordinates should pass through, got %+v, %v", got, err)
	}

	if _, err := ResolveLocation(aqi.Location{Name: "Lahore", Country: "PK"}, ""); !errors.Is(err, errNoCoordinates) {
		t.Fatalf("expected errNoCoordinates without api key, got %v", err)
	}
}
