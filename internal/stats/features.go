// Package stats layers statistical enhancement over rule-based findings.
package stats

import (
	"sort"
	"time"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// FeatureVector summarises one component's raw numeric behaviour.
type FeatureVector struct {
	Component       string
	EventCount      float64
	ErrorCount      float64
	ErrorRatio      float64
	EventsPerMinute float64
	MeanGapSeconds  float64
}

// featureNames orders the numeric dimensions for scoring and flag labels.
var featureNames = []string{"event_count", "error_count", "error_ratio", "events_per_minute", "mean_gap_seconds"}

func (f FeatureVector) dims() []float64 {
	return []float64{f.EventCount, f.ErrorCount, f.ErrorRatio, f.EventsPerMinute, f.MeanGapSeconds}
}

// BuildFeatures derives per-component feature vectors from parsed records,
// sorted by component name for deterministic downstream scoring.
func BuildFeatures(records []models.Record) []FeatureVector {
	type accumulator struct {
		events     int
		errors     int
		timestamps []time.Time
	}

	byComponent := make(map[string]*accumulator)
	for _, record := range records {
		component := record.Component
		if component == "" {
			component = "agent"
		}
		acc, ok := byComponent[component]
		if !ok {
			acc = &accumulator{}
			byComponent[component] = acc
		}
		acc.events++
		if record.Level == "error" || record.Level == "critical" {
			acc.errors++
		}
		if !record.Timestamp.IsZero() {
			acc.timestamps = append(acc.timestamps, record.Timestamp)
		}
	}

	components := make([]string, 0, len(byComponent))
	for component := range byComponent {
		components = append(components, component)
	}
	sort.Strings(components)

	features := make([]FeatureVector, 0, len(components))
	for _, component := range components {
		acc := byComponent[component]
		fv := FeatureVector{
			Component:  component,
			EventCount: float64(acc.events),
			ErrorCount: float64(acc.errors),
		}
		if acc.events > 0 {
			fv.ErrorRatio = float64(acc.errors) / float64(acc.events)
		}
		if len(acc.timestamps) >= 2 {
			sort.Slice(acc.timestamps, func(i, j int) bool { return acc.timestamps[i].Before(acc.timestamps[j]) })
			span := acc.timestamps[len(acc.timestamps)-1].Sub(acc.timestamps[0])
			if span > 0 {
				fv.EventsPerMinute = float64(acc.events) / span.Minutes()
				fv.MeanGapSeconds = span.Seconds() / float64(len(acc.timestamps)-1)
			}
		}
		features = append(features, fv)
	}
	return features
}
