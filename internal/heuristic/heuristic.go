// Package heuristic computes text-only source metrics. It never needs a
// syntax tree, so it always succeeds; the engine uses it as the sole result
// when structural parsing fails and as the maintainability baseline otherwise.
package heuristic

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/QTest-hq/codehealth/pkg/model"
)

var (
	functionPattern   = regexp.MustCompile(`(?:function\s+\w+|const\s+\w+\s*=\s*\([^)]*\)\s*=>|\w+\s*\([^)]*\)\s*\{|export\s+(?:default\s+)?function)`)
	complexityPattern = regexp.MustCompile(`\b(?:if|else|for|while|switch|case|catch)\b|&&|\|\|`)
)

// Metrics holds the heuristic measurements of one source text
type Metrics struct {
	TotalLines      int
	LOC             int // non-empty, non-comment lines
	FunctionCount   int
	Cyclomatic      int
	MaxNestingDepth int
	Maintainability float64
	Difficulty      float64
	Effort          float64
}

// Analyze scans source text line by line and with regular expressions
func Analyze(source string) Metrics {
	lines := strings.Split(source, "\n")

	loc := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isCommentLine(trimmed) {
			continue
		}
		loc++
	}

	functionCount := len(functionPattern.FindAllString(source, -1))
	cyclomatic := max(1, len(complexityPattern.FindAllString(source, -1)))

	maxDepth, depth := 0, 0
	for _, line := range lines {
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		maxDepth = max(maxDepth, depth)
	}

	m := Metrics{
		TotalLines:      len(lines),
		LOC:             loc,
		FunctionCount:   functionCount,
		Cyclomatic:      cyclomatic,
		MaxNestingDepth: maxDepth,
	}
	m.Maintainability = Maintainability(loc, cyclomatic, functionCount, maxDepth)
	m.Difficulty = math.Max(1, float64(cyclomatic)*0.5+float64(functionCount)*0.2)
	m.Effort = float64(cyclomatic) * m.Difficulty

	return m
}

// Maintainability applies the fixed linear penalties to a starting score of
// 100 and clamps the result to [0, 100].
func Maintainability(loc, cyclomatic, functionCount, nesting int) float64 {
	score := 100.0
	if loc > 100 {
		score -= float64(loc-100) * 0.1
	}
	if cyclomatic > 10 {
		score -= float64(cyclomatic-10) * 2
	}
	if functionCount > 10 {
		score -= float64(functionCount-10) * 1
	}
	if nesting > 3 {
		score -= float64(nesting-3) * 5
	}
	return math.Max(0, math.Min(100, score))
}

// Functions returns synthetic records splitting the file's complexity,
// difficulty and LOC evenly across the naive function matches.
func (m Metrics) Functions() []model.FunctionRecord {
	fns := make([]model.FunctionRecord, 0, m.FunctionCount)
	if m.FunctionCount == 0 {
		return fns
	}

	for i := 0; i < m.FunctionCount; i++ {
		fns = append(fns, model.FunctionRecord{
			Name:       fmt.Sprintf("function_%d", i),
			Parameters: []model.Parameter{},
			ReturnType: "unknown",
			Complexity: max(1, m.Cyclomatic/m.FunctionCount),
			LOC:        m.LOC / m.FunctionCount,
			Difficulty: max(1, int(math.Floor(m.Difficulty/float64(m.FunctionCount)))),
			Effort:     1,
		})
	}
	return fns
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*")
}
