// Package enrichment resolves optional weather and location context for an
// activity from public upstream APIs. Enrichment is strictly best-effort:
// any upstream failure degrades to a nil result so analysis can proceed
// without context.
package enrichment

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/intelligence"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
)

const (
	// DefaultWeatherURL is the Open-Meteo archive endpoint used to look up
	// historical conditions at the activity start.
	DefaultWeatherURL = "https://archive-api.open-meteo.com/v1/archive"

	// DefaultGeocodeURL is the Nominatim reverse-geocoding endpoint.
	DefaultGeocodeURL = "https://nominatim.openstreetmap.org/reverse"

	requestTimeout = 10 * time.Second
)

// Service resolves weather and location context. The zero URLs fall back to
// the public defaults.
type Service struct {
	weatherURL string
	geocodeURL string
	client     *http.Client
}

// NewService creates an enrichment service with the default upstreams.
func NewService() *Service {
	return &Service{
		weatherURL: DefaultWeatherURL,
		geocodeURL: DefaultGeocodeURL,
		client:     &http.Client{Timeout: requestTimeout},
	}
}

// WithURLs overrides the upstream endpoints. Used by tests.
func (s *Service) WithURLs(weatherURL, geocodeURL string) *Service {
	s.weatherURL = weatherURL
	s.geocodeURL = geocodeURL
	return s
}

// Enrich resolves the full context for one activity. Missing coordinates
// yield an empty context, never an error.
func (s *Service) Enrich(ctx context.Context, activity *providers.Activity) *intelligence.Context {
	enriched := &intelligence.Context{}
	if activity.StartCoordinates == nil {
		return enriched
	}
	fix := *activity.StartCoordinates
	enriched.Weather = s.Weather(ctx, fix, activity.StartTime)
	enriched.Location = s.Location(ctx, fix)
	return enriched
}

// Weather looks up conditions at the given position and time. Returns nil on
// any upstream failure.
func (s *Service) Weather(ctx context.Context, fix providers.GPSFix, at time.Time) *intelligence.Weather {
	day := at.UTC().Format("2006-01-02")
	q := url.Values{
		"latitude":        {formatCoord(fix.Latitude)},
		"longitude":       {formatCoord(fix.Longitude)},
		"start_date":      {day},
		"end_date":        {day},
		"hourly":          {"temperature_2m,wind_speed_10m,relative_humidity_2m,precipitation,snowfall"},
		"wind_speed_unit": {"ms"},
	}

	body, err := providers.GetJSON(ctx, s.client, s.weatherURL+"?"+q.Encode(), "")
	if err != nil {
		logger.Debugw("Weather lookup failed", "error", err)
		return nil
	}

	hour := at.UTC().Hour()
	hourly := gjson.GetBytes(body, "hourly")
	temps := hourly.Get("temperature_2m").Array()
	if hour >= len(temps) {
		return nil
	}

	weather := &intelligence.Weather{
		TemperatureCelsius: temps[hour].Float(),
		Condition:          "clear",
	}
	if winds := hourly.Get("wind_speed_10m").Array(); hour < len(winds) {
		weather.WindSpeedMps = winds[hour].Float()
	}
	if humidity := hourly.Get("relative_humidity_2m").Array(); hour < len(humidity) {
		weather.HumidityPercent = humidity[hour].Float()
	}
	if snow := hourly.Get("snowfall").Array(); hour < len(snow) && snow[hour].Float() > 0 {
		weather.Condition = "snow"
	} else if rain := hourly.Get("precipitation").Array(); hour < len(rain) && rain[hour].Float() > 0 {
		weather.Condition = "rain"
	}
	return weather
}

// Location reverse-geocodes the given position. Returns nil on any upstream
// failure.
func (s *Service) Location(ctx context.Context, fix providers.GPSFix) *intelligence.Location {
	q := url.Values{
		"lat":    {formatCoord(fix.Latitude)},
		"lon":    {formatCoord(fix.Longitude)},
		"format": {"json"},
		"zoom":   {"14"},
	}

	body, err := providers.GetJSON(ctx, s.client, s.geocodeURL+"?"+q.Encode(), "")
	if err != nil {
		logger.Debugw("Reverse geocoding failed", "error", err)
		return nil
	}

	address := gjson.GetBytes(body, "address")
	if !address.Exists() {
		return nil
	}

	location := &intelligence.Location{
		City:    firstOf(address, "city", "town", "village"),
		Region:  address.Get("state").String(),
		Country: address.Get("country").String(),
	}
	// Nominatim reports named paths under road for trail-zoom lookups.
	if category := gjson.GetBytes(body, "category").String(); category == "highway" {
		if name := address.Get("road").String(); name != "" {
			location.TrailName = name
		}
	}
	if location.City == "" && location.Country == "" && location.TrailName == "" {
		return nil
	}
	return location
}

func firstOf(address gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := address.Get(key); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}
