// Package health turns structural and dependency metrics into a health tier
// using a fixed additive point system.
package health

import (
	"github.com/QTest-hq/codehealth/pkg/model"
)

// Metrics are the structural inputs of the scorer
type Metrics struct {
	Maintainability float64
	Complexity      int
	Difficulty      float64
	FunctionCount   int
}

// MetricsOf extracts scorer inputs from an analysis payload
func MetricsOf(a *model.Analysis) Metrics {
	return Metrics{
		Maintainability: a.Maintainability,
		Complexity:      a.Complexity,
		Difficulty:      a.Difficulty,
		FunctionCount:   len(a.Functions),
	}
}

// Contribution is the points one factor added to the score
type Contribution struct {
	Factor string  `json:"factor"`
	Value  float64 `json:"value"`
	Points int     `json:"points"`
}

// Breakdown is a scored result with every contribution listed
type Breakdown struct {
	Contributions []Contribution   `json:"contributions"`
	Total         int              `json:"total"`
	Tier          model.HealthTier `json:"tier"`
}

// Explain scores m and, when deps is non-nil, its dependency profile
func Explain(m Metrics, deps *model.DependencyProfile) Breakdown {
	b := Breakdown{Contributions: make([]Contribution, 0, 8)}
	add := func(factor string, value float64, points int) {
		b.Contributions = append(b.Contributions, Contribution{Factor: factor, Value: value, Points: points})
		b.Total += points
	}

	add("maintainability", m.Maintainability, maintainabilityPoints(m.Maintainability))
	add("complexity", float64(m.Complexity), complexityPoints(m.Complexity))
	add("difficulty", m.Difficulty, difficultyPoints(m.Difficulty))
	add("functionCount", float64(m.FunctionCount), functionCountPoints(m.FunctionCount))

	if deps != nil {
		add("dependencyCount", float64(deps.DependencyCount), dependencyCountPoints(deps.DependencyCount))
		add("depth", float64(deps.Depth), depthPoints(deps.Depth))

		cycle := 0
		if deps.HasCircularDependencies {
			cycle = -2
		}
		add("circularDependencies", float64(len(deps.CircularDependencies)), cycle)

		dependents := 0
		if deps.DependentCount > 10 {
			dependents = 1
		}
		add("dependentCount", float64(deps.DependentCount), dependents)
	}

	b.Tier = Classify(b.Total)
	return b
}

// Score returns the total points for m and the optional dependency profile
func Score(m Metrics, deps *model.DependencyProfile) int {
	return Explain(m, deps).Total
}

// Tier scores and classifies in one step
func Tier(m Metrics, deps *model.DependencyProfile) model.HealthTier {
	return Classify(Score(m, deps))
}

// Classify maps a total score to a tier
func Classify(total int) model.HealthTier {
	switch {
	case total >= 8:
		return model.TierExcellent
	case total >= 6:
		return model.TierGood
	case total >= 4:
		return model.TierFair
	case total >= 2:
		return model.TierPoor
	default:
		return model.TierCritical
	}
}

func maintainabilityPoints(v float64) int {
	switch {
	case v > 85:
		return 3
	case v > 65:
		return 2
	case v > 50:
		return 1
	}
	return 0
}

func complexityPoints(v int) int {
	switch {
	case v < 5:
		return 3
	case v < 10:
		return 2
	case v < 20:
		return 1
	}
	return 0
}

func difficultyPoints(v float64) int {
	switch {
	case v < 10:
		return 2
	case v < 20:
		return 1
	}
	return 0
}

func functionCountPoints(n int) int {
	switch {
	case n < 5:
		return 1
	case n > 20:
		return -1
	}
	return 0
}

func dependencyCountPoints(n int) int {
	switch {
	case n < 5:
		return 1
	case n > 15:
		return -1
	}
	return 0
}

func depthPoints(n int) int {
	switch {
	case n < 3:
		return 1
	case n > 6:
		return -1
	}
	return 0
}
