// Package fitbit implements the provider adapter contract against the Fitbit
// Web API.
package fitbit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
)

// Name is the registry name of this adapter.
const Name = "fitbit"

// DefaultBaseURL is the Fitbit Web API root.
const DefaultBaseURL = "https://api.fitbit.com"

// pageSize is Fitbit's activity-list page ceiling.
const pageSize = 100

// maxWindows bounds the date-window walk used to satisfy large offsets.
const maxWindows = 10

func init() {
	providers.Register(Name, func(refresh providers.RefreshFunc) providers.Provider {
		return New(refresh)
	})
}

// Adapter speaks the provider contract against Fitbit.
type Adapter struct {
	baseURL string
	client  *http.Client
	refresh providers.RefreshFunc

	mu    sync.RWMutex
	creds providers.Credentials
	bound bool
}

// New creates an unbound Fitbit adapter.
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

// GetAthlete fetches the user profile.
func (a *Adapter) GetAthlete(ctx context.Context) (*providers.Athlete, error) {
	body, err := a.get(ctx, "/1/user/-/profile.json", nil)
	if err != nil {
		return nil, err
	}

	user := gjson.GetBytes(body, "user")
	if !user.Exists() {
		return nil, fmt.Errorf("malformed profile response")
	}

	athlete := &providers.Athlete{
		ID:        user.Get("encodedId").String(),
		Username:  user.Get("displayName").String(),
		FirstName: user.Get("firstName").String(),
		LastName:  user.Get("lastName").String(),
		City:      user.Get("city").String(),
		Country:   user.Get("country").String(),
		Provider:  Name,
	}
	if weight := user.Get("weight"); weight.Exists() && weight.Float() > 0 {
		w := weight.Float()
		athlete.WeightKg = &w
	}
	return athlete, nil
}

// GetActivities fetches activities. Fitbit paginates with beforeDate windows
// sorted descending, so limit/offset map onto a bounded walk of windows: each
// fetch advances beforeDate to the oldest activity seen until the requested
// range is covered.
func (a *Adapter) GetActivities(ctx context.Context, limit, offset int) ([]providers.Activity, error) {
	if limit <= 0 {
		limit = 30
	}
	if offset < 0 {
		offset = 0
	}

	var collected []providers.Activity
	before := time.Now().UTC()
	remaining := offset + limit

	for window := 0; window < maxWindows && remaining > 0; window++ {
		fetch := remaining
		if fetch > pageSize {
			fetch = pageSize
		}

		q := url.Values{
			"beforeDate": {before.Format("2006-01-02T15:04:05")},
			"sort":       {"desc"},
			"limit":      {strconv.Itoa(fetch)},
			"offset":     {"0"},
		}
		body, err := a.get(ctx, "/1/user/-/activities/list.json", q)
		if err != nil {
			return nil, err
		}

		page := gjson.GetBytes(body, "activities").Array()
		if len(page) == 0 {
			break
		}

		for _, raw := range page {
			collected = append(collected, convertActivity(raw))
		}
		remaining -= len(page)

		oldest := collected[len(collected)-1].StartTime
		if oldest.IsZero() || !oldest.Before(before) {
			break
		}
		before = oldest
	}

	if offset >= len(collected) {
		return []providers.Activity{}, nil
	}
	collected = collected[offset:]
	if len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}

// convertActivity maps one Fitbit activity log entry onto the normalized
// model. Fitbit reports distance in kilometers and speed in km/h; both are
// normalized to SI here.
func convertActivity(raw gjson.Result) providers.Activity {
	startTime, err := time.Parse(time.RFC3339, raw.Get("startTime").String())
	if err != nil {
		logger.Warnw("Unparseable activity start time",
			"activity_id", raw.Get("logId").String(), "start_time", raw.Get("startTime").String())
	}

	activity := providers.Activity{
		ID:              raw.Get("logId").String(),
		Name:            raw.Get("activityName").String(),
		SportType:       providers.SportTypeFromProvider(raw.Get("activityName").String()),
		StartTime:       startTime.UTC(),
		DurationSeconds: raw.Get("duration").Int() / 1000,
		Provider:        Name,
	}

	if distance := raw.Get("distance"); distance.Exists() {
		meters := distance.Float() * 1000
		activity.DistanceMeters = &meters
	}
	if elevation := raw.Get("elevationGain"); elevation.Exists() {
		gain := elevation.Float()
		activity.ElevationGain = &gain
	}
	if hr := raw.Get("averageHeartRate"); hr.Exists() {
		avg := hr.Float()
		activity.AvgHeartRate = &avg
	}
	if calories := raw.Get("calories"); calories.Exists() {
		c := calories.Float()
		activity.Calories = &c
	}
	if speed := raw.Get("speed"); speed.Exists() {
		mps := speed.Float() / 3.6
		activity.AvgSpeed = &mps
	}

	return activity
}

// GetStats derives aggregate statistics from a bounded scan of recent
// activities; Fitbit exposes no aggregate endpoint matching our model.
func (a *Adapter) GetStats(ctx context.Context) (*providers.Stats, error) {
	activities, err := a.GetActivities(ctx, pageSize, 0)
	if err != nil {
		return nil, err
	}

	stats := &providers.Stats{}
	for i := range activities {
		stats.TotalActivities++
		stats.TotalDuration += activities[i].DurationSeconds
		if activities[i].DistanceMeters != nil {
			stats.TotalDistance += *activities[i].DistanceMeters
		}
		if activities[i].ElevationGain != nil {
			stats.TotalElevation += *activities[i].ElevationGain
		}
	}
	return stats, nil
}

// get performs an authenticated GET, refreshing credentials and retrying
// exactly once when the token is rejected.
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

	creds, refreshErr := a.refresh(ctx)
	if refreshErr != nil {
		return nil, fmt.Errorf("refreshing credentials: %w", refreshErr)
	}
	a.mu.Lock()
	a.creds = creds
	a.mu.Unlock()

	logger.Debugw("Retrying Fitbit call after token refresh", "path", path)
	return providers.GetJSON(ctx, a.client, endpoint, creds.AccessToken)
}
