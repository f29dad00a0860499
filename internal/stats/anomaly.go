package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Detector flags components whose feature vectors are outliers against the
// rest of the bundle. A fixed contamination fraction bounds how many
// components can be flagged per run.
type Detector struct {
	Contamination float64
	MinSamples    int
}

// NewDetector constructs a Detector with sane bounds applied.
func NewDetector(contamination float64, minSamples int) *Detector {
	if contamination <= 0 || contamination >= 1 {
		contamination = 0.05
	}
	if minSamples <= 0 {
		minSamples = 4
	}
	return &Detector{Contamination: contamination, MinSamples: minSamples}
}

// Detect z-scores every feature dimension across components and flags the
// worst offenders up to the contamination budget. Bundles with fewer than
// MinSamples components are suppressed entirely; short logs produce too few
// samples for the deviation estimate to mean anything.
func (d *Detector) Detect(features []FeatureVector) []models.Anomaly {
	if len(features) < d.MinSamples {
		return nil
	}

	dimCount := len(featureNames)
	means := make([]float64, dimCount)
	stddevs := make([]float64, dimCount)
	for dim := 0; dim < dimCount; dim++ {
		column := make([]float64, len(features))
		for i, fv := range features {
			column[i] = fv.dims()[dim]
		}
		means[dim] = stat.Mean(column, nil)
		stddevs[dim] = stat.StdDev(column, nil)
		if stddevs[dim] == 0 || math.IsNaN(stddevs[dim]) {
			stddevs[dim] = 1
		}
	}

	type scored struct {
		component string
		feature   string
		value     float64
		score     float64
	}
	candidates := make([]scored, 0, len(features))
	for _, fv := range features {
		dims := fv.dims()
		best := scored{component: fv.Component}
		for dim := 0; dim < dimCount; dim++ {
			z := math.Abs(dims[dim]-means[dim]) / stddevs[dim]
			if z > best.score {
				best.score = z
				best.feature = featureNames[dim]
				best.value = dims[dim]
			}
		}
		if best.score >= 2 {
			candidates = append(candidates, best)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].component < candidates[j].component
	})

	budget := int(math.Ceil(d.Contamination * float64(len(features))))
	if budget < 1 {
		budget = 1
	}
	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	anomalies := make([]models.Anomaly, 0, len(candidates))
	for _, c := range candidates {
		anomalies = append(anomalies, models.Anomaly{
			Component: c.component,
			Feature:   c.feature,
			Value:     c.value,
			Score:     c.score,
		})
	}
	return anomalies
}
