// Package analyzer fuses structural, heuristic and dependency metrics into
// tier-labelled analysis records, for one file (Engine) or a whole
// directory (Runner).
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/codehealth/internal/depgraph"
	"github.com/QTest-hq/codehealth/internal/health"
	"github.com/QTest-hq/codehealth/internal/heuristic"
	"github.com/QTest-hq/codehealth/internal/parser"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// FallbackNote is attached to records produced without a syntax tree
const FallbackNote = "Fallback to simple analysis - structural parsing failed"

// Engine analyzes single files. It is safe for concurrent use.
type Engine struct {
	parser *parser.Parser
	graphs *depgraph.Cache
}

// NewEngine creates an engine. Dependency graphs are shared through graphs so
// every file under one project root reuses a single build.
func NewEngine(p *parser.Parser, graphs *depgraph.Cache) *Engine {
	return &Engine{parser: p, graphs: graphs}
}

// outcome is the tagged result of the structural pass
type outcome struct {
	mode   string
	parsed *parser.ParsedFile
	reason error
}

// AnalyzeFile reads and analyzes one source file. Only I/O errors are
// returned; a file the grammar rejects is analyzed heuristically instead.
func (e *Engine) AnalyzeFile(ctx context.Context, path, projectRoot string) (*model.AnalysisRecord, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return e.AnalyzeSource(ctx, absPath, string(content), projectRoot), nil
}

// AnalyzeSource analyzes already-loaded source text for absPath
func (e *Engine) AnalyzeSource(ctx context.Context, absPath, source, projectRoot string) *model.AnalysisRecord {
	h := heuristic.Analyze(source)

	out := e.structural(ctx, absPath, source)
	switch out.mode {
	case model.ModeStructural:
		return e.structuralRecord(ctx, absPath, projectRoot, h, out.parsed)
	default:
		log.Warn().Err(out.reason).Str("file", absPath).Msg("structural parse failed, using heuristic analysis")
		return fallbackRecord(absPath, h)
	}
}

func (e *Engine) structural(ctx context.Context, absPath, source string) outcome {
	parsed, err := e.parser.ParseContent(ctx, absPath, source)
	if err != nil {
		return outcome{mode: model.ModeFallback, reason: err}
	}
	return outcome{mode: model.ModeStructural, parsed: parsed}
}

func (e *Engine) structuralRecord(ctx context.Context, absPath, projectRoot string, h heuristic.Metrics, parsed *parser.ParsedFile) *model.AnalysisRecord {
	var deps model.DependencyProfile
	if projectRoot == "" || e.graphs == nil {
		deps = model.EmptyProfile("no project root given")
	} else {
		deps = depgraph.Profile(e.graphs.GetOrBuild(ctx, projectRoot), absPath, projectRoot)
	}

	analysis := model.Analysis{
		Maintainability: h.Maintainability,
		Complexity:      max(parsed.TotalComplexity(), h.Cyclomatic),
		Difficulty:      h.Difficulty,
		Effort:          h.Effort,
		LOC:             h.LOC,
		TotalLines:      h.TotalLines,
		MaxNestingDepth: h.MaxNestingDepth,
		Functions:       parsed.Functions,
		Classes:         parsed.Classes,
		Interfaces:      parsed.Interfaces,
		Types:           parsed.Types,
		Imports:         parsed.Imports,
		Exports:         parsed.Exports,
		Dependencies:    deps,
		Mode:            model.ModeStructural,
	}
	analysis.Stats = statsOf(&analysis)

	return &model.AnalysisRecord{
		FilePath:    absPath,
		HealthLevel: health.Tier(health.MetricsOf(&analysis), &deps),
		Analysis:    analysis,
	}
}

// fallbackRecord scores heuristic metrics alone; no dependency profile is
// consulted
func fallbackRecord(absPath string, h heuristic.Metrics) *model.AnalysisRecord {
	analysis := model.Analysis{
		Maintainability: h.Maintainability,
		Complexity:      h.Cyclomatic,
		Difficulty:      h.Difficulty,
		Effort:          h.Effort,
		LOC:             h.LOC,
		TotalLines:      h.TotalLines,
		MaxNestingDepth: h.MaxNestingDepth,
		Functions:       h.Functions(),
		Classes:         []model.ClassRecord{},
		Interfaces:      []model.InterfaceRecord{},
		Types:           []model.TypeAliasRecord{},
		Imports:         []model.ImportRecord{},
		Exports:         []model.ExportRecord{},
		Dependencies:    model.EmptyProfile("dependency analysis skipped for fallback"),
		Mode:            model.ModeFallback,
		Note:            FallbackNote,
	}
	analysis.Stats = statsOf(&analysis)

	return &model.AnalysisRecord{
		FilePath:    absPath,
		HealthLevel: health.Tier(health.MetricsOf(&analysis), nil),
		Analysis:    analysis,
	}
}

func statsOf(a *model.Analysis) model.Stats {
	s := model.Stats{
		FunctionCount:           len(a.Functions),
		ClassCount:              len(a.Classes),
		InterfaceCount:          len(a.Interfaces),
		TypeCount:               len(a.Types),
		ImportCount:             len(a.Imports),
		ExportCount:             len(a.Exports),
		DependencyCount:         a.Dependencies.DependencyCount,
		DependentCount:          a.Dependencies.DependentCount,
		DependencyDepth:         a.Dependencies.Depth,
		HasCircularDependencies: a.Dependencies.HasCircularDependencies,
	}

	if len(a.Functions) == 0 {
		return s
	}

	sum := 0
	most := a.Functions[0]
	for _, fn := range a.Functions {
		sum += fn.Complexity
		if fn.Complexity > most.Complexity {
			most = fn
		}
	}
	s.AverageFunctionComplexity = round2(float64(sum) / float64(len(a.Functions)))
	s.MostComplexFunction = &most

	return s
}
