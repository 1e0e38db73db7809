package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/codehealth/internal/report"
	"github.com/QTest-hq/codehealth/internal/vcs"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// ErrNoFiles is returned when a target contains nothing to analyze
var ErrNoFiles = errors.New("no supported source files found")

// Recommendation thresholds for the run summary
const (
	HighComplexityThreshold     = 10
	LowMaintainabilityThreshold = 65.0
)

// Sink receives every successfully analyzed record of a run
type Sink interface {
	Deliver(ctx context.Context, runID uuid.UUID, rec *model.AnalysisRecord, entry model.HealthIndexEntry) error
}

// SummarySink is a Sink that also stores the finished run summary
type SummarySink interface {
	Sink
	Complete(ctx context.Context, summary *Summary) error
}

// Options controls file collection and fan-out
type Options struct {
	Extensions  []string
	ExcludeDirs []string
	Exclude     []string // doublestar globs relative to the target
	MaxFiles    int      // 0 means unlimited
	Workers     int
}

// DefaultOptions returns the standard collection settings
func DefaultOptions() Options {
	return Options{
		Extensions:  []string{".ts", ".tsx", ".js", ".jsx"},
		ExcludeDirs: []string{"node_modules", ".git", ".next", "dist", "build", "out", "coverage"},
		Workers:     3,
	}
}

// Request describes one run
type Request struct {
	Target      string // file or directory
	ProjectRoot string // dependency scope and mirror base; defaults to Target
	OutputDir   string
}

// FileResult is the outcome of one file
type FileResult struct {
	FilePath   string           `json:"filePath"`
	ReportPath string           `json:"reportPath,omitempty"`
	Tier       model.HealthTier `json:"tier,omitempty"`
	Fallback   bool             `json:"fallback,omitempty"`
	Error      string           `json:"error,omitempty"`

	record *model.AnalysisRecord
}

// Recommendation flags a file worth attention
type Recommendation struct {
	Type     string  `json:"type"`
	FilePath string  `json:"filePath"`
	Value    float64 `json:"value"`
	Message  string  `json:"message"`
}

// Summary reports a finished run
type Summary struct {
	RunID       uuid.UUID                `json:"runId"`
	Target      string                   `json:"target"`
	ProjectRoot string                   `json:"projectRoot"`
	OutputDir   string                   `json:"outputDir"`
	Head        *vcs.Head                `json:"head,omitempty"`
	StartedAt   time.Time                `json:"startedAt"`
	Duration    time.Duration            `json:"duration"`
	Total       int                      `json:"total"`
	Errors      int                      `json:"errors"`
	Fallbacks   int                      `json:"fallbacks"`
	Tiers       map[model.HealthTier]int `json:"tiers"`
	Failures    []FileResult             `json:"failures"`

	AverageComplexity      float64          `json:"averageComplexity"`
	AverageMaintainability float64          `json:"averageMaintainability"`
	Recommendations        []Recommendation `json:"recommendations"`

	Results []FileResult `json:"-"`
}

// Percent returns the share of analyzed files in tier, in percent
func (s *Summary) Percent(tier model.HealthTier) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Tiers[tier]) / float64(s.Total) * 100
}

// Runner analyzes whole directories with a bounded number of workers
type Runner struct {
	engine *Engine
	opts   Options
	sinks  []Sink

	mu      sync.Mutex
	writers map[string]*report.Writer
}

// NewRunner creates a runner
func NewRunner(engine *Engine, opts Options, sinks ...Sink) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}
	return &Runner{
		engine:  engine,
		opts:    opts,
		sinks:   sinks,
		writers: make(map[string]*report.Writer),
	}
}

// Writer returns the shared writer of outputDir so concurrent runs into one
// directory serialize their index updates
func (r *Runner) Writer(outputDir string) *report.Writer {
	key := outputDir
	if abs, err := filepath.Abs(outputDir); err == nil {
		key = abs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[key]
	if !ok {
		w = report.NewWriter(key)
		r.writers[key] = w
	}
	return w
}

// Run analyzes every supported file under the request target. Per-file
// failures are counted in the summary; only an unusable target is an error.
func (r *Runner) Run(ctx context.Context, req Request) (*Summary, error) {
	target, err := filepath.Abs(req.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target: %w", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	files, err := r.collect(ctx, target, info)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, target)
	}

	graphRoot := target
	if !info.IsDir() {
		graphRoot = filepath.Dir(target)
	}
	mirrorRoot := ""
	if req.ProjectRoot != "" {
		if graphRoot, err = filepath.Abs(req.ProjectRoot); err != nil {
			return nil, fmt.Errorf("failed to resolve project root: %w", err)
		}
		mirrorRoot = graphRoot
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = "reports"
	}
	writer := r.Writer(outputDir)

	summary := &Summary{
		RunID:       uuid.New(),
		Target:      target,
		ProjectRoot: graphRoot,
		OutputDir:   writer.OutputDir(),
		StartedAt:   time.Now().UTC(),
		Tiers:       make(map[model.HealthTier]int),
		Failures:    make([]FileResult, 0),
	}
	for _, tier := range model.Tiers() {
		summary.Tiers[tier] = 0
	}

	if head, err := vcs.ReadHead(graphRoot); err != nil {
		log.Debug().Err(err).Str("root", graphRoot).Msg("no VCS metadata")
	} else {
		summary.Head = head
	}

	log.Info().
		Str("run_id", summary.RunID.String()).
		Str("target", target).
		Int("files", len(files)).
		Int("workers", r.opts.Workers).
		Msg("starting analysis run")

	// One graph build per root, before any file needs it. A failed build is
	// served to every file of this run and retried by the next run.
	if r.engine.graphs != nil {
		if graph := r.engine.graphs.GetOrBuild(ctx, graphRoot); graph.BuildErr != nil {
			r.engine.graphs.Keep(graphRoot, graph)
			defer r.engine.graphs.Invalidate(graphRoot)
		}
	}

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, file := range files {
		g.Go(func() error {
			results[i] = r.analyzeOne(gctx, summary.RunID, writer, file, target, graphRoot, mirrorRoot)
			return nil
		})
	}
	// Workers never return errors
	_ = g.Wait()

	summary.Results = results
	summarize(summary)
	summary.Duration = time.Since(summary.StartedAt)

	for _, sink := range r.sinks {
		if ss, ok := sink.(SummarySink); ok {
			if err := ss.Complete(ctx, summary); err != nil {
				log.Warn().Err(err).Str("run_id", summary.RunID.String()).Msg("failed to store run summary")
			}
		}
	}

	log.Info().
		Str("run_id", summary.RunID.String()).
		Int("total", summary.Total).
		Int("errors", summary.Errors).
		Int("fallbacks", summary.Fallbacks).
		Dur("duration", summary.Duration).
		Msg("analysis run completed")

	return summary, nil
}

func (r *Runner) analyzeOne(ctx context.Context, runID uuid.UUID, writer *report.Writer, file, target, graphRoot, mirrorRoot string) (result FileResult) {
	result = FileResult{FilePath: file}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("file", file).Msg("panic analyzing file")
			result = FileResult{FilePath: file, Error: fmt.Sprintf("panic: %v", p)}
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	rec, err := r.engine.AnalyzeFile(ctx, file, graphRoot)
	if err != nil {
		log.Warn().Err(err).Str("file", file).Msg("error analyzing file")
		result.Error = err.Error()
		return result
	}
	result.Tier = rec.HealthLevel
	result.Fallback = rec.IsFallback()

	reportPath, err := writer.Save(rec, target, mirrorRoot)
	if err != nil {
		log.Warn().Err(err).Str("file", file).Msg("failed to save record")
		result.Error = err.Error()
		return result
	}
	result.ReportPath = reportPath

	entry, err := writer.UpdateIndex(rec)
	if err != nil {
		log.Warn().Err(err).Str("file", file).Msg("failed to update health index")
		result.Error = err.Error()
		return result
	}
	result.record = rec

	for _, sink := range r.sinks {
		if err := sink.Deliver(ctx, runID, rec, entry); err != nil {
			log.Warn().Err(err).Str("file", file).Msg("sink delivery failed")
		}
	}

	log.Debug().Str("file", file).Str("tier", string(rec.HealthLevel)).Msg("file analyzed")
	return result
}

// collect lists the files of a target: the file itself, or every supported
// file below a directory in lexical order
func (r *Runner) collect(ctx context.Context, target string, info fs.FileInfo) ([]string, error) {
	if !info.IsDir() {
		if !r.supported(target) {
			return nil, fmt.Errorf("%w: %s is not a TypeScript/JavaScript file", ErrNoFiles, target)
		}
		return []string{target}, nil
	}

	skipDirs := make(map[string]bool, len(r.opts.ExcludeDirs))
	for _, d := range r.opts.ExcludeDirs {
		skipDirs[d] = true
	}

	var files []string
	errLimit := errors.New("file limit reached")

	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("walk error")
			if d != nil && d.IsDir() && path != target {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, _ := filepath.Rel(target, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != target && (skipDirs[d.Name()] || r.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !r.supported(path) || r.excluded(rel) {
			return nil
		}

		files = append(files, path)
		if r.opts.MaxFiles > 0 && len(files) >= r.opts.MaxFiles {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, fmt.Errorf("failed to collect files: %w", err)
	}

	return files, nil
}

func (r *Runner) supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (r *Runner) excluded(rel string) bool {
	for _, pattern := range r.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// summarize tallies tiers and failures and derives the aggregate stats
func summarize(s *Summary) {
	var complexity, maintainability float64
	s.Recommendations = make([]Recommendation, 0)

	for _, res := range s.Results {
		if res.Error != "" || res.record == nil {
			s.Errors++
			s.Failures = append(s.Failures, res)
			continue
		}

		s.Total++
		s.Tiers[res.Tier]++
		if res.Fallback {
			s.Fallbacks++
		}

		a := res.record.Analysis
		complexity += float64(a.Complexity)
		maintainability += a.Maintainability

		if a.Complexity > HighComplexityThreshold {
			s.Recommendations = append(s.Recommendations, Recommendation{
				Type:     "high_complexity",
				FilePath: res.FilePath,
				Value:    float64(a.Complexity),
				Message:  fmt.Sprintf("High complexity (%d) - consider refactoring", a.Complexity),
			})
		}
		if a.Maintainability < LowMaintainabilityThreshold {
			s.Recommendations = append(s.Recommendations, Recommendation{
				Type:     "low_maintainability",
				FilePath: res.FilePath,
				Value:    a.Maintainability,
				Message:  fmt.Sprintf("Low maintainability (%.2f) - needs attention", a.Maintainability),
			})
		}
	}

	if s.Total > 0 {
		s.AverageComplexity = round2(complexity / float64(s.Total))
		s.AverageMaintainability = round2(maintainability / float64(s.Total))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
