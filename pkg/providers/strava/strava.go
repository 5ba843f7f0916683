// Package strava implements the provider adapter contract against the Strava
// v3 REST API.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
)

// Name is the registry name of this adapter.
const Name = "strava"

// DefaultBaseURL is the Strava v3 API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

// maxPerPage is Strava's page size ceiling.
const maxPerPage = 200

func init() {
	providers.Register(Name, func(refresh providers.RefreshFunc) providers.Provider {
		return New(refresh)
	})
}

// Adapter speaks the provider contract against Strava. It is safe for
// concurrent calls; credentials are guarded because a 401-triggered refresh
// may replace them mid-flight.
type Adapter struct {
	baseURL string
	client  *http.Client
	refresh providers.RefreshFunc

	mu        sync.RWMutex
	creds     providers.Credentials
	athleteID string
	bound     bool
}

// New creates an unbound Strava adapter.
func New(refresh providers.RefreshFunc) *Adapter {
	return &Adapter{
		baseURL: DefaultBaseURL,
		client:  providers.NewHTTPClient(),
		refresh: refresh,
	}
}

// WithBaseURL overrides the API root. Used by tests.
func (a *Adapter) WithBaseURL(base string) *Adapter {
	a.baseURL = base
	return a
}

var _ providers.Provider = (*Adapter)(nil)

// Name returns the adapter's registry name.
func (a *Adapter) Name() string { return Name }

// Authenticate binds the adapter to the given credentials.
func (a *Adapter) Authenticate(_ context.Context, creds providers.Credentials) error {
	if creds.AccessToken == "" {
		return errors.New("access token is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creds = creds
	a.bound = true
	return nil
}

// stravaAthlete is the wire form of GET /athlete.
type stravaAthlete struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Weight    *float64 `json:"weight"`
}

// GetAthlete fetches the authenticated athlete's profile.
func (a *Adapter) GetAthlete(ctx context.Context) (*providers.Athlete, error) {
	body, err := a.get(ctx, "/athlete", nil)
	if err != nil {
		return nil, err
	}

	var wire stravaAthlete
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding athlete: %w", err)
	}

	a.mu.Lock()
	a.athleteID = strconv.FormatInt(wire.ID, 10)
	a.mu.Unlock()

	return &providers.Athlete{
		ID:        strconv.FormatInt(wire.ID, 10),
		Username:  wire.Username,
		FirstName: wire.FirstName,
		LastName:  wire.LastName,
		City:      wire.City,
		Country:   wire.Country,
		WeightKg:  wire.Weight,
		Provider:  Name,
	}, nil
}

// stravaActivity is the wire form of a summary activity.
type stravaActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	SportType          string    `json:"sport_type"`
	Type               string    `json:"type"`
	StartDate          string    `json:"start_date"`
	MovingTime         int64     `json:"moving_time"`
	Distance           *float64  `json:"distance"`
	TotalElevationGain *float64  `json:"total_elevation_gain"`
	AverageHeartrate   *float64  `json:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate"`
	AverageSpeed       *float64  `json:"average_speed"`
	MaxSpeed           *float64  `json:"max_speed"`
	Calories           *float64  `json:"calories"`
	StartLatLng        []float64 `json:"start_latlng"`
}

// GetActivities fetches activities. Strava paginates with page/per_page, so
// the walk starts at the page containing offset, skips the leading rows of
// that page, and continues page by page until the requested range is covered
// or a short page signals the end of the athlete's history.
func (a *Adapter) GetActivities(ctx context.Context, limit, offset int) ([]providers.Activity, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > maxPerPage {
		limit = maxPerPage
	}
	if offset < 0 {
		offset = 0
	}

	perPage := limit
	page := offset/perPage + 1
	skip := offset % perPage

	collected := make([]stravaActivity, 0, limit)
	for len(collected) < limit {
		q := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		}
		body, err := a.get(ctx, "/athlete/activities", q)
		if err != nil {
			return nil, err
		}

		var wire []stravaActivity
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("decoding activities: %w", err)
		}

		if skip < len(wire) {
			collected = append(collected, wire[skip:]...)
		}
		short := len(wire) < perPage
		skip = 0
		page++
		if short {
			break
		}
	}
	if len(collected) > limit {
		collected = collected[:limit]
	}

	activities := make([]providers.Activity, 0, len(collected))
	for i := range collected {
		activities = append(activities, convertActivity(&collected[i]))
	}
	return activities, nil
}

func convertActivity(wire *stravaActivity) providers.Activity {
	sportType := wire.SportType
	if sportType == "" {
		sportType = wire.Type
	}

	startTime, err := time.Parse(time.RFC3339, wire.StartDate)
	if err != nil {
		logger.Warnw("Unparseable activity start date", "activity_id", wire.ID, "start_date", wire.StartDate)
	}

	activity := providers.Activity{
		ID:              strconv.FormatInt(wire.ID, 10),
		Name:            wire.Name,
		SportType:       providers.SportTypeFromProvider(sportType),
		StartTime:       startTime.UTC(),
		DurationSeconds: wire.MovingTime,
		DistanceMeters:  wire.Distance,
		ElevationGain:   wire.TotalElevationGain,
		AvgHeartRate:    wire.AverageHeartrate,
		MaxHeartRate:    wire.MaxHeartrate,
		AvgSpeed:        wire.AverageSpeed,
		MaxSpeed:        wire.MaxSpeed,
		Calories:        wire.Calories,
		Provider:        Name,
	}
	if len(wire.StartLatLng) == 2 {
		activity.StartCoordinates = &providers.GPSFix{
			Latitude:  wire.StartLatLng[0],
			Longitude: wire.StartLatLng[1],
		}
	}
	return activity
}

// stravaStats is the wire form of GET /athletes/{id}/stats.
type stravaStats struct {
	AllRideTotals stravaTotals `json:"all_ride_totals"`
	AllRunTotals  stravaTotals `json:"all_run_totals"`
	AllSwimTotals stravaTotals `json:"all_swim_totals"`
}

type stravaTotals struct {
	Count         int64   `json:"count"`
	Distance      float64 `json:"distance"`
	MovingTime    int64   `json:"moving_time"`
	ElevationGain float64 `json:"elevation_gain"`
}

// GetStats fetches aggregate statistics from Strava's stats endpoint. The
// endpoint requires the athlete id, so the profile is fetched first if it has
// not been already.
func (a *Adapter) GetStats(ctx context.Context) (*providers.Stats, error) {
	a.mu.RLock()
	athleteID := a.athleteID
	a.mu.RUnlock()

	if athleteID == "" {
		if _, err := a.GetAthlete(ctx); err != nil {
			return nil, err
		}
		a.mu.RLock()
		athleteID = a.athleteID
		a.mu.RUnlock()
	}

	body, err := a.get(ctx, "/athletes/"+athleteID+"/stats", nil)
	if err != nil {
		return nil, err
	}

	var wire stravaStats
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}

	totals := []stravaTotals{wire.AllRideTotals, wire.AllRunTotals, wire.AllSwimTotals}
	stats := &providers.Stats{}
	for _, t := range totals {
		stats.TotalActivities += t.Count
		stats.TotalDistance += t.Distance
		stats.TotalDuration += t.MovingTime
		stats.TotalElevation += t.ElevationGain
	}
	return stats, nil
}

// get performs an authenticated GET against the API, refreshing credentials
// and retrying exactly once when the token is rejected.
func (a *Adapter) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	a.mu.RLock()
	bound := a.bound
	token := a.creds.AccessToken
	a.mu.RUnlock()
	if !bound {
		return nil, providers.ErrNotAuthenticated
	}

	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := providers.GetJSON(ctx, a.client, endpoint, token)
	if !errors.Is(err, providers.ErrUnauthorized) || a.refresh == nil {
		return body, err
	}

	// One refresh-and-retry on 401.
	creds, refreshErr := a.refresh(ctx)
	if refreshErr != nil {
		return nil, fmt.Errorf("refreshing credentials: %w", refreshErr)
	}
	a.mu.Lock()
	a.creds = creds
	a.mu.Unlock()

	logger.Debugw("Retrying Strava call after token refresh", "path", path)
	return providers.GetJSON(ctx, a.client, endpoint, creds.AccessToken)
}
