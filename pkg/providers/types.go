// Package providers defines the adapter contract every fitness provider
// implements, the normalized data model, and the per-user session cache that
// binds adapters to stored credentials.
package providers

import (
	"strings"
	"time"
)

// SportType is an open enumeration of activity kinds. Known provider values
// normalize onto the canonical constants; unknown values pass through
// lowercased so no provider data is lost.
type SportType string

// Canonical sport types.
const (
	SportRun            SportType = "run"
	SportRide           SportType = "ride"
	SportSwim           SportType = "swim"
	SportWalk           SportType = "walk"
	SportHike           SportType = "hike"
	SportVirtualRide    SportType = "virtual_ride"
	SportVirtualRun     SportType = "virtual_run"
	SportWorkout        SportType = "workout"
	SportYoga           SportType = "yoga"
	SportWeightTraining SportType = "weight_training"
	SportCrossTraining  SportType = "cross_training"
	SportSkiing         SportType = "skiing"
	SportSnowboarding   SportType = "snowboarding"
	SportKayaking       SportType = "kayaking"
	SportRowing         SportType = "rowing"
	SportClimbing       SportType = "climbing"
	SportGolf           SportType = "golf"
	SportSoccer         SportType = "soccer"
	SportTennis         SportType = "tennis"
)

// sportTypeTable maps provider vocabulary onto canonical sport types.
// Strava uses CamelCase activity types; Fitbit uses display names.
var sportTypeTable = map[string]SportType{
	"run":              SportRun,
	"running":          SportRun,
	"trailrun":         SportRun,
	"treadmill":        SportRun,
	"ride":             SportRide,
	"bike":             SportRide,
	"biking":           SportRide,
	"cycling":          SportRide,
	"mountainbikeride": SportRide,
	"gravelride":       SportRide,
	"virtualride":      SportVirtualRide,
	"virtualrun":       SportVirtualRun,
	"swim":             SportSwim,
	"swimming":         SportSwim,
	"walk":             SportWalk,
	"walking":          SportWalk,
	"hike":             SportHike,
	"hiking":           SportHike,
	"workout":          SportWorkout,
	"yoga":             SportYoga,
	"weighttraining":   SportWeightTraining,
	"weights":          SportWeightTraining,
	"crossfit":         SportCrossTraining,
	"elliptical":       SportCrossTraining,
	"alpineski":        SportSkiing,
	"backcountryski":   SportSkiing,
	"nordicski":        SportSkiing,
	"snowboard":        SportSnowboarding,
	"kayaking":         SportKayaking,
	"rowing":           SportRowing,
	"rockclimbing":     SportClimbing,
	"golf":             SportGolf,
	"soccer":           SportSoccer,
	"tennis":           SportTennis,
}

// SportTypeFromProvider normalizes a provider's sport-type string. Unknown
// values are preserved as-is (lowercased, spaces collapsed) rather than
// collapsed to a lossy "other" bucket.
func SportTypeFromProvider(raw string) SportType {
	key := strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	if st, ok := sportTypeTable[key]; ok {
		return st
	}
	return SportType(strings.ToLower(strings.TrimSpace(raw)))
}

// Known reports whether the sport type is one of the canonical constants.
func (s SportType) Known() bool {
	for _, canonical := range sportTypeTable {
		if s == canonical {
			return true
		}
	}
	return false
}

// GPSFix is an optional activity start coordinate.
type GPSFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Activity is a normalized activity record. All units are SI: meters,
// seconds, meters per second. StartTime is UTC.
type Activity struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SportType       SportType `json:"sport_type"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int64     `json:"duration_seconds"`

	DistanceMeters   *float64 `json:"distance_meters,omitempty"`
	ElevationGain    *float64 `json:"elevation_gain,omitempty"`
	AvgHeartRate     *float64 `json:"average_heart_rate,omitempty"`
	MaxHeartRate     *float64 `json:"max_heart_rate,omitempty"`
	AvgSpeed         *float64 `json:"average_speed,omitempty"`
	MaxSpeed         *float64 `json:"max_speed,omitempty"`
	Calories         *float64 `json:"calories,omitempty"`
	StartCoordinates *GPSFix  `json:"start_coordinates,omitempty"`

	Provider string `json:"provider"`
}

// Athlete is a normalized provider athlete profile.
type Athlete struct {
	ID        string   `json:"id"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	Provider  string   `json:"provider"`
}

// Stats aggregates an athlete's recent training volume.
type Stats struct {
	TotalActivities int64   `json:"total_activities"`
	TotalDistance   float64 `json:"total_distance"`
	TotalDuration   int64   `json:"total_duration"`
	TotalElevation  float64 `json:"total_elevation_gain"`
}
