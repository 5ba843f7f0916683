package intelligence

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
)

const (
	minEffort = 1.0
	maxEffort = 10.0

	baseEfficiency = 50.0

	// restingFloor anchors the intensity estimate; heart rates are measured
	// against a nominal 60 bpm resting rate.
	restingFloor = 60.0
)

// Analyzer derives an Intelligence record from a single activity. The zero
// value is ready to use; Clock exists so tests can pin the generation
// timestamp.
type Analyzer struct {
	Clock func() time.Time
}

// Analyze computes the full intelligence record for one activity.
func (a *Analyzer) Analyze(activity *providers.Activity, ctx *Context) *Intelligence {
	if ctx == nil {
		ctx = &Context{}
	}

	effort := relativeEffort(activity)
	zones := zoneDistribution(activity)
	efficiency := efficiencyScore(activity)
	records := personalRecords(activity, ctx.Baseline)
	trends := trendIndicators(activity, ctx.Baseline)
	insights := buildInsights(activity, effort, zones, records, ctx)

	now := time.Now
	if a.Clock != nil {
		now = a.Clock
	}

	return &Intelligence{
		Summary:  buildSummary(activity, effort, zones, insights, ctx),
		Insights: insights,
		Metrics: PerformanceMetrics{
			RelativeEffort:   effort,
			ZoneDistribution: zones,
			EfficiencyScore:  efficiency,
			PersonalRecords:  records,
			TrendIndicators:  trends,
		},
		Contextual: ContextualFactors{
			TimeOfDay: TimeOfDay(activity.StartTime),
			Weather:   ctx.Weather,
			Location:  ctx.Location,
		},
		GeneratedAt: now().UTC(),
	}
}

// relativeEffort scores the activity on a 1-10 scale from duration, heart
// rate, sport-scaled distance and elevation gain.
func relativeEffort(activity *providers.Activity) float64 {
	effort := 1.0
	effort += 1.5 * float64(activity.DurationSeconds) / 3600

	if activity.AvgHeartRate != nil && activity.MaxHeartRate != nil && *activity.MaxHeartRate > 0 {
		effort += 4.0 * *activity.AvgHeartRate / *activity.MaxHeartRate
	}

	if activity.DistanceMeters != nil {
		km := *activity.DistanceMeters / 1000
		switch activity.SportType {
		case providers.SportRun, providers.SportVirtualRun:
			effort += 0.8 * km / 10
		case providers.SportRide, providers.SportVirtualRide:
			effort += 0.5 * km / 50
		default:
			effort += 0.6 * km / 20
		}
	}

	if activity.ElevationGain != nil {
		effort += 0.3 * *activity.ElevationGain / 100
	}

	return clamp(effort, minEffort, maxEffort)
}

// zoneBuckets maps an intensity band to a fixed five-zone split. Each row
// sums to 100.
var zoneBuckets = []struct {
	ceiling float64
	dist    ZoneDistribution
}{
	{0.5, ZoneDistribution{Zone1Percent: 40, Zone2Percent: 35, Zone3Percent: 20, Zone4Percent: 5, Zone5Percent: 0}},
	{0.6, ZoneDistribution{Zone1Percent: 30, Zone2Percent: 35, Zone3Percent: 25, Zone4Percent: 8, Zone5Percent: 2}},
	{0.7, ZoneDistribution{Zone1Percent: 20, Zone2Percent: 30, Zone3Percent: 30, Zone4Percent: 15, Zone5Percent: 5}},
	{0.85, ZoneDistribution{Zone1Percent: 10, Zone2Percent: 20, Zone3Percent: 30, Zone4Percent: 30, Zone5Percent: 10}},
	{math.Inf(1), ZoneDistribution{Zone1Percent: 5, Zone2Percent: 10, Zone3Percent: 25, Zone4Percent: 35, Zone5Percent: 25}},
}

// zoneDistribution estimates time in zones from average and max heart rate.
// Returns nil when heart-rate data is missing.
func zoneDistribution(activity *providers.Activity) *ZoneDistribution {
	intensity, ok := intensity(activity)
	if !ok {
		return nil
	}
	for _, bucket := range zoneBuckets {
		if intensity < bucket.ceiling {
			dist := bucket.dist
			return &dist
		}
	}
	return nil
}

func intensity(activity *providers.Activity) (float64, bool) {
	if activity.AvgHeartRate == nil || activity.MaxHeartRate == nil {
		return 0, false
	}
	maxHR := *activity.MaxHeartRate
	if maxHR <= restingFloor {
		return 0, false
	}
	return (*activity.AvgHeartRate - restingFloor) / (maxHR - restingFloor), true
}

// efficiencyScore rates how economically the activity was performed. The
// base of 50 always applies; each bonus term is added only when the data it
// needs is present.
func efficiencyScore(activity *providers.Activity) *float64 {
	score := baseEfficiency

	hasSpeed := activity.AvgSpeed != nil && *activity.AvgSpeed > 0

	if hasSpeed && activity.AvgHeartRate != nil && *activity.AvgHeartRate > 0 {
		pacePerKm := 1000 / *activity.AvgSpeed
		score += 10 * 1000 / (*activity.AvgHeartRate * pacePerKm)
	}

	if hasSpeed && activity.MaxSpeed != nil && *activity.MaxSpeed > 0 {
		variance := *activity.MaxSpeed - *activity.AvgSpeed
		score += 20 * (1 - variance / *activity.MaxSpeed)
	}

	score = clamp(score, 0, 100)
	return &score
}

// personalRecords compares the activity against the supplied baseline, or
// falls back to heuristic thresholds when no baseline exists.
func personalRecords(activity *providers.Activity, baseline *Baseline) []PersonalRecord {
	records := []PersonalRecord{}

	if activity.DistanceMeters != nil {
		distance := *activity.DistanceMeters
		switch {
		case baseline != nil && baseline.LongestDistanceMeters > 0 && distance > baseline.LongestDistanceMeters:
			previous := baseline.LongestDistanceMeters
			records = append(records, PersonalRecord{
				Type:               "longest_distance",
				Value:              distance,
				Unit:               "meters",
				PreviousBest:       &previous,
				ImprovementPercent: improvement(distance, previous),
			})
		case baseline == nil && distance >= heuristicDistance(activity.SportType):
			records = append(records, PersonalRecord{
				Type:  "notable_distance",
				Value: distance,
				Unit:  "meters",
			})
		}
	}

	if activity.AvgSpeed != nil && baseline != nil && baseline.BestAvgSpeedMps > 0 &&
		*activity.AvgSpeed > baseline.BestAvgSpeedMps {
		previous := baseline.BestAvgSpeedMps
		records = append(records, PersonalRecord{
			Type:               "fastest_average_speed",
			Value:              *activity.AvgSpeed,
			Unit:               "meters_per_second",
			PreviousBest:       &previous,
			ImprovementPercent: improvement(*activity.AvgSpeed, previous),
		})
	}

	if baseline != nil && baseline.LongestDurationSeconds > 0 &&
		activity.DurationSeconds > baseline.LongestDurationSeconds {
		previous := float64(baseline.LongestDurationSeconds)
		records = append(records, PersonalRecord{
			Type:               "longest_duration",
			Value:              float64(activity.DurationSeconds),
			Unit:               "seconds",
			PreviousBest:       &previous,
			ImprovementPercent: improvement(float64(activity.DurationSeconds), previous),
		})
	}

	if activity.ElevationGain != nil && baseline != nil && baseline.MostElevationGain > 0 &&
		*activity.ElevationGain > baseline.MostElevationGain {
		previous := baseline.MostElevationGain
		records = append(records, PersonalRecord{
			Type:               "most_elevation_gain",
			Value:              *activity.ElevationGain,
			Unit:               "meters",
			PreviousBest:       &previous,
			ImprovementPercent: improvement(*activity.ElevationGain, previous),
		})
	}

	return records
}

// heuristicDistance is the no-baseline threshold above which a distance is
// worth calling out.
func heuristicDistance(sport providers.SportType) float64 {
	switch sport {
	case providers.SportRun, providers.SportVirtualRun:
		return 15000
	case providers.SportRide, providers.SportVirtualRide:
		return 60000
	case providers.SportSwim:
		return 3000
	default:
		return 20000
	}
}

func improvement(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return math.Round((current-previous)/previous*1000) / 10
}

func trendIndicators(activity *providers.Activity, baseline *Baseline) TrendIndicators {
	trends := TrendIndicators{
		DistanceTrend: "insufficient_data",
		PaceTrend:     "insufficient_data",
	}
	if baseline == nil {
		return trends
	}

	if activity.DistanceMeters != nil && baseline.LongestDistanceMeters > 0 {
		trends.DistanceTrend = trend(*activity.DistanceMeters, baseline.LongestDistanceMeters)
	}
	if activity.AvgSpeed != nil && baseline.BestAvgSpeedMps > 0 {
		trends.PaceTrend = trend(*activity.AvgSpeed, baseline.BestAvgSpeedMps)
	}
	return trends
}

func trend(current, best float64) string {
	switch {
	case current >= best:
		return "improving"
	case current >= best*0.9:
		return "stable"
	default:
		return "declining"
	}
}

// TimeOfDay buckets the start hour into a named period.
func TimeOfDay(start time.Time) string {
	switch hour := start.Hour(); {
	case hour >= 5 && hour <= 6:
		return "early_morning"
	case hour >= 7 && hour <= 10:
		return "morning"
	case hour >= 11 && hour <= 13:
		return "midday"
	case hour >= 14 && hour <= 17:
		return "afternoon"
	case hour >= 18 && hour <= 20:
		return "evening"
	default:
		return "night"
	}
}

func buildInsights(activity *providers.Activity, effort float64, zones *ZoneDistribution,
	records []PersonalRecord, ctx *Context) []Insight {
	insights := []Insight{}

	for _, record := range records {
		if record.PreviousBest != nil {
			insights = append(insights, Insight{
				Message:    fmt.Sprintf("New personal record: %s improved by %.1f%%.", strings.ReplaceAll(record.Type, "_", " "), record.ImprovementPercent),
				Confidence: 0.95,
			})
		}
	}

	switch {
	case effort >= 8:
		insights = append(insights, Insight{
			Message:    "This was a maximal effort; plan an easy day to recover.",
			Confidence: 0.8,
		})
	case effort >= 6:
		insights = append(insights, Insight{
			Message:    "Solid hard effort that should drive fitness gains.",
			Confidence: 0.8,
		})
	case effort <= 2.5:
		insights = append(insights, Insight{
			Message:    "Light session, good for active recovery.",
			Confidence: 0.7,
		})
	}

	if zones != nil && zones.Zone4Percent+zones.Zone5Percent >= 40 {
		insights = append(insights, Insight{
			Message:    "A large share of this session was spent above threshold.",
			Confidence: 0.75,
		})
	}

	if ctx.Weather != nil {
		if phrase := weatherInsight(ctx.Weather); phrase != "" {
			insights = append(insights, Insight{Message: phrase, Confidence: 0.7})
		}
	}

	if len(insights) == 0 {
		insights = append(insights, Insight{
			Message:    "Steady session in line with a typical " + sportNoun(activity.SportType) + ".",
			Confidence: 0.6,
		})
	}
	return insights
}

func weatherInsight(weather *Weather) string {
	switch {
	case weather.Condition == "rain":
		return "Completed despite the rain; conditions likely slowed the pace."
	case weather.Condition == "snow":
		return "Snowy conditions make this effort more impressive than the numbers show."
	case weather.WindSpeedMps >= 8:
		return "Strong wind added meaningful resistance to this session."
	case weather.TemperatureCelsius >= 28:
		return "Heat stress elevated heart rate beyond the mechanical workload."
	case weather.TemperatureCelsius <= 2:
		return "Cold conditions; extended warm-up was likely needed."
	}
	return ""
}

// buildSummary composes the deterministic one-paragraph summary.
func buildSummary(activity *providers.Activity, effort float64, zones *ZoneDistribution,
	insights []Insight, ctx *Context) string {
	var b strings.Builder

	b.WriteString(timeOfDayPhrase(activity.StartTime))
	b.WriteString(" ")
	b.WriteString(sportNoun(activity.SportType))

	if ctx.Weather != nil {
		if phrase := weatherPhrase(ctx.Weather); phrase != "" {
			b.WriteString(" ")
			b.WriteString(phrase)
		}
	}
	if ctx.Location != nil {
		if phrase := locationPhrase(ctx.Location); phrase != "" {
			b.WriteString(" ")
			b.WriteString(phrase)
		}
	}

	b.WriteString(": a ")
	b.WriteString(effortDescriptor(effort))
	b.WriteString(" effort")
	if zones != nil {
		b.WriteString(", ")
		b.WriteString(zoneDescriptor(zones))
	}
	b.WriteString(".")

	if activity.DistanceMeters != nil {
		fmt.Fprintf(&b, " Covered %.1f km.", *activity.DistanceMeters/1000)
	}
	if len(insights) > 0 {
		b.WriteString(" ")
		b.WriteString(insights[0].Message)
	}
	return b.String()
}

func timeOfDayPhrase(start time.Time) string {
	switch TimeOfDay(start) {
	case "early_morning":
		return "Early-morning"
	case "morning":
		return "Morning"
	case "midday":
		return "Midday"
	case "afternoon":
		return "Afternoon"
	case "evening":
		return "Evening"
	default:
		return "Night"
	}
}

func sportNoun(sport providers.SportType) string {
	switch sport {
	case providers.SportRun, providers.SportVirtualRun:
		return "run"
	case providers.SportRide, providers.SportVirtualRide:
		return "ride"
	case providers.SportSwim:
		return "swim"
	case providers.SportWalk:
		return "walk"
	case providers.SportHike:
		return "hike"
	default:
		return strings.ReplaceAll(string(sport), "_", " ")
	}
}

func weatherPhrase(weather *Weather) string {
	switch {
	case weather.Condition == "rain":
		return "in the rain"
	case weather.Condition == "snow":
		return "in the snow"
	case weather.WindSpeedMps >= 8:
		return "in strong wind"
	case weather.TemperatureCelsius >= 28:
		return "in the heat"
	case weather.TemperatureCelsius <= 2:
		return "in the cold"
	}
	return ""
}

func locationPhrase(location *Location) string {
	switch {
	case location.TrailName != "":
		return "on " + location.TrailName
	case location.City != "" && location.Region != "":
		return "in " + location.City + ", " + location.Region
	case location.City != "":
		return "in " + location.City
	}
	return ""
}

func effortDescriptor(effort float64) string {
	switch {
	case effort < 3:
		return "light"
	case effort < 5:
		return "moderate"
	case effort < 7:
		return "hard"
	case effort < 8.5:
		return "very hard"
	default:
		return "maximal"
	}
}

func zoneDescriptor(zones *ZoneDistribution) string {
	switch {
	case zones.Zone4Percent+zones.Zone5Percent >= 40:
		return "mostly above threshold"
	case zones.Zone3Percent+zones.Zone4Percent >= 45:
		return "largely tempo work"
	case zones.Zone1Percent+zones.Zone2Percent >= 60:
		return "mostly aerobic"
	default:
		return "a mixed-intensity session"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
