package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/codehealth/pkg/model"
)

func TestMaintainabilityThresholds(t *testing.T) {
	tests := []struct {
		value float64
		want  int
	}{
		{100, 3},
		{85.01, 3},
		{85.0, 2},
		{65.01, 2},
		{65.0, 1},
		{50.01, 1},
		{50.0, 0},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, maintainabilityPoints(tt.value), "maintainability %v", tt.value)
	}
}

func TestComplexityThresholds(t *testing.T) {
	tests := []struct {
		value int
		want  int
	}{
		{1, 3},
		{4, 3},
		{5, 2},
		{9, 2},
		{10, 1},
		{19, 1},
		{20, 0},
		{200, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, complexityPoints(tt.value), "complexity %d", tt.value)
	}
}

func TestDifficultyThresholds(t *testing.T) {
	tests := []struct {
		value float64
		want  int
	}{
		{1, 2},
		{9.99, 2},
		{10, 1},
		{19.99, 1},
		{20, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, difficultyPoints(tt.value), "difficulty %v", tt.value)
	}
}

func TestCountThresholds(t *testing.T) {
	assert.Equal(t, 1, functionCountPoints(4))
	assert.Equal(t, 0, functionCountPoints(5))
	assert.Equal(t, 0, functionCountPoints(20))
	assert.Equal(t, -1, functionCountPoints(21))

	assert.Equal(t, 1, dependencyCountPoints(4))
	assert.Equal(t, 0, dependencyCountPoints(5))
	assert.Equal(t, 0, dependencyCountPoints(15))
	assert.Equal(t, -1, dependencyCountPoints(16))

	assert.Equal(t, 1, depthPoints(2))
	assert.Equal(t, 0, depthPoints(3))
	assert.Equal(t, 0, depthPoints(6))
	assert.Equal(t, -1, depthPoints(7))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		total int
		want  model.HealthTier
	}{
		{12, model.TierExcellent},
		{8, model.TierExcellent},
		{7, model.TierGood},
		{6, model.TierGood},
		{5, model.TierFair},
		{4, model.TierFair},
		{3, model.TierPoor},
		{2, model.TierPoor},
		{1, model.TierCritical},
		{0, model.TierCritical},
		{-3, model.TierCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.total), "total %d", tt.total)
	}
}

func TestScore_WithoutDependencies(t *testing.T) {
	m := Metrics{Maintainability: 100, Complexity: 1, Difficulty: 1, FunctionCount: 0}
	assert.Equal(t, 9, Score(m, nil))
	assert.Equal(t, model.TierExcellent, Tier(m, nil))

	b := Explain(m, nil)
	assert.Len(t, b.Contributions, 4)
}

func TestScore_DependencyContributions(t *testing.T) {
	m := Metrics{Maintainability: 70, Complexity: 12, Difficulty: 15, FunctionCount: 8}
	// 2 + 1 + 1 + 0
	assert.Equal(t, 4, Score(m, nil))

	deps := &model.DependencyProfile{DependencyCount: 2, Depth: 1, DependentCount: 11}
	// +1 deps, +1 depth, +1 dependents
	assert.Equal(t, 7, Score(m, deps))

	heavy := &model.DependencyProfile{DependencyCount: 16, Depth: 7}
	assert.Equal(t, 2, Score(m, heavy))
}

func TestScore_CyclePenalty(t *testing.T) {
	m := Metrics{Maintainability: 90, Complexity: 3, Difficulty: 2, FunctionCount: 1}
	clean := &model.DependencyProfile{DependencyCount: 1, Depth: 1}
	cyclic := &model.DependencyProfile{
		DependencyCount:         1,
		Depth:                   1,
		HasCircularDependencies: true,
		CircularDependencies:    [][]string{{"a.ts", "b.ts"}},
	}

	assert.Equal(t, Score(m, clean)-2, Score(m, cyclic))

	b := Explain(m, cyclic)
	require.Len(t, b.Contributions, 8)
	assert.Equal(t, "circularDependencies", b.Contributions[6].Factor)
	assert.Equal(t, -2, b.Contributions[6].Points)
	assert.Equal(t, float64(1), b.Contributions[6].Value)
}

func TestScore_Deterministic(t *testing.T) {
	m := Metrics{Maintainability: 85, Complexity: 10, Difficulty: 20, FunctionCount: 21}
	deps := &model.DependencyProfile{DependencyCount: 15, Depth: 6, HasCircularDependencies: true}

	first := Explain(m, deps)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Explain(m, deps))
	}
	// 2 + 1 + 0 - 1 + 0 + 0 - 2 + 0
	assert.Equal(t, 0, first.Total)
	assert.Equal(t, model.TierCritical, first.Tier)
}

func TestMetricsOf(t *testing.T) {
	a := &model.Analysis{
		Maintainability: 77.5,
		Complexity:      6,
		Difficulty:      3.2,
		Functions:       []model.FunctionRecord{{Name: "a"}, {Name: "b"}, {Name: "c"}},
	}
	assert.Equal(t, Metrics{Maintainability: 77.5, Complexity: 6, Difficulty: 3.2, FunctionCount: 3}, MetricsOf(a))
}
