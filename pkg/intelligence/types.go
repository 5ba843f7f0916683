// Package intelligence derives performance metrics, zone estimates, personal
// records and a natural-language summary from a single activity. It is a pure
// transformation: all context (weather, location, baselines) is supplied by
// the caller and the same inputs always produce the same output apart from
// the generation timestamp.
package intelligence

import "time"

// Weather is the observed conditions at the activity's start.
type Weather struct {
	TemperatureCelsius float64 `json:"temperature_celsius"`
	WindSpeedMps       float64 `json:"wind_speed_mps"`
	HumidityPercent    float64 `json:"humidity_percent"`
	// Condition is a coarse label such as "clear", "rain" or "snow".
	Condition string `json:"condition"`
}

// Location is the reverse-geocoded start position.
type Location struct {
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	TrailName string `json:"trail_name,omitempty"`
}

// Baseline carries the user's recent bests, used for personal-record and
// trend detection. Zero values mean "no baseline for that quantity".
type Baseline struct {
	LongestDistanceMeters  float64 `json:"longest_distance_meters"`
	BestAvgSpeedMps        float64 `json:"best_avg_speed_mps"`
	LongestDurationSeconds int64   `json:"longest_duration_seconds"`
	MostElevationGain      float64 `json:"most_elevation_gain"`
}

// Context is the optional enrichment supplied alongside the activity.
type Context struct {
	Weather  *Weather
	Location *Location
	Baseline *Baseline
}

// ZoneDistribution is the estimated share of time in each heart-rate zone.
// The five percentages sum to 100.
type ZoneDistribution struct {
	Zone1Percent float64 `json:"zone1_percent"`
	Zone2Percent float64 `json:"zone2_percent"`
	Zone3Percent float64 `json:"zone3_percent"`
	Zone4Percent float64 `json:"zone4_percent"`
	Zone5Percent float64 `json:"zone5_percent"`
}

// PersonalRecord is one detected best, with the improvement over the previous
// best when a baseline was supplied.
type PersonalRecord struct {
	Type               string   `json:"type"`
	Value              float64  `json:"value"`
	Unit               string   `json:"unit"`
	PreviousBest       *float64 `json:"previous_best,omitempty"`
	ImprovementPercent float64  `json:"improvement_percent"`
}

// TrendIndicators compares this activity against the supplied baseline.
type TrendIndicators struct {
	DistanceTrend string `json:"distance_trend"`
	PaceTrend     string `json:"pace_trend"`
}

// PerformanceMetrics is the derived quantitative layer.
type PerformanceMetrics struct {
	RelativeEffort   float64           `json:"relative_effort"`
	ZoneDistribution *ZoneDistribution `json:"zone_distribution,omitempty"`
	EfficiencyScore  *float64          `json:"efficiency_score,omitempty"`
	PersonalRecords  []PersonalRecord  `json:"personal_records"`
	TrendIndicators  TrendIndicators   `json:"trend_indicators"`
}

// ContextualFactors echoes the context the analysis was computed under.
type ContextualFactors struct {
	TimeOfDay string    `json:"time_of_day"`
	Weather   *Weather  `json:"weather,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// Insight is one natural-language observation about the activity.
type Insight struct {
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// Intelligence is the full analysis of one activity.
type Intelligence struct {
	Summary     string             `json:"summary"`
	Insights    []Insight          `json:"insights"`
	Metrics     PerformanceMetrics `json:"performance_metrics"`
	Contextual  ContextualFactors  `json:"contextual_factors"`
	GeneratedAt time.Time          `json:"generated_at"`
}
