package source

import (
	"fmt"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

// ResolveLocation fills in missing coordinates through the Google geocoding
// API. A location that already has coordinates is returned unchanged.
func ResolveLocation(loc aqi.Location, apiKey string) (aqi.Location, error) {
	if loc.HasCoordinates() {
		return loc, nil
	}
	if apiKey == "" {
		return loc, fmt.Errorf("%w and no geocoder api key is configured: %s", errNoCoordinates, loc.Key())
	}

	// The geocoder package reads the key from a package-level variable.
	geocoder.ApiKey = apiKey
	res, err := geocoder.Geocoding(geocoder.Address{
		City:    loc.Name,
		Country: loc.Country,
	})
	if err != nil {
		return loc, fmt.Errorf("geocode %s: %w", loc.Key(), err)
	}

	lat, lon := res.Latitude, res.Longitude
	loc.Lat = &lat
	loc.Lon = &lon
	return loc, nil
}
