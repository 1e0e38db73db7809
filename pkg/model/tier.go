package model

import (
	"fmt"
	"strings"
	"time"
)

// HealthTier is an ordinal classification of a file's maintainability risk
type HealthTier string

const (
	TierExcellent HealthTier = "excellent"
	TierGood      HealthTier = "good"
	TierFair      HealthTier = "fair"
	TierPoor      HealthTier = "poor"
	TierCritical  HealthTier = "critical"
)

var tierOrder = []HealthTier{TierExcellent, TierGood, TierFair, TierPoor, TierCritical}

// Tiers returns all tiers ordered best to worst
func Tiers() []HealthTier {
	out := make([]HealthTier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// Rank returns the tier position, 0 being best. Unknown tiers rank -1.
func (t HealthTier) Rank() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the five known tiers
func (t HealthTier) Valid() bool {
	return t.Rank() >= 0
}

// WorseThan reports whether t ranks strictly below other
func (t HealthTier) WorseThan(other HealthTier) bool {
	return t.Rank() > other.Rank()
}

// ParseTier parses a tier name, case-insensitively
func ParseTier(s string) (HealthTier, error) {
	t := HealthTier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown health tier: %q", s)
	}
	return t, nil
}

// HealthIndexEntry is the lightweight per-tier rollup of one analyzed file
type HealthIndexEntry struct {
	FilePath        string    `json:"filePath"`
	Maintainability float64   `json:"maintainability"`
	Complexity      int       `json:"complexity"`
	Difficulty      float64   `json:"difficulty"`
	LOC             int       `json:"loc"`
	FunctionCount   int       `json:"functionCount"`
	AnalyzedAt      time.Time `json:"analyzedAt"`
}

// NewIndexEntry builds the index entry for a record
func NewIndexEntry(rec *AnalysisRecord, at time.Time) HealthIndexEntry {
	return HealthIndexEntry{
		FilePath:        rec.FilePath,
		Maintainability: rec.Analysis.Maintainability,
		Complexity:      rec.Analysis.Complexity,
		Difficulty:      rec.Analysis.Difficulty,
		LOC:             rec.Analysis.LOC,
		FunctionCount:   len(rec.Analysis.Functions),
		AnalyzedAt:      at,
	}
}
