package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// Run statuses
const (
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial" // finished with per-file errors
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_runs (
		id           UUID PRIMARY KEY,
		target       TEXT NOT NULL,
		project_root TEXT NOT NULL,
		output_dir   TEXT NOT NULL,
		commit_sha   TEXT,
		branch       TEXT,
		status       TEXT NOT NULL,
		total        INTEGER NOT NULL DEFAULT 0,
		errors       INTEGER NOT NULL DEFAULT 0,
		fallbacks    INTEGER NOT NULL DEFAULT 0,
		tiers        JSONB NOT NULL DEFAULT '{}',
		summary      JSONB,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS health_entries (
		file_path       TEXT PRIMARY KEY,
		run_id          UUID NOT NULL,
		tier            TEXT NOT NULL,
		maintainability DOUBLE PRECISION NOT NULL,
		complexity      INTEGER NOT NULL,
		difficulty      DOUBLE PRECISION NOT NULL,
		loc             INTEGER NOT NULL,
		function_count  INTEGER NOT NULL,
		analyzed_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS health_entries_tier_idx ON health_entries (tier, complexity DESC)`,
}

// Tables lists every table the store owns
var Tables = []string{"health_entries", "analysis_runs"}

// Store provides database operations
type Store struct {
	pool *pgxpool.Pool
}

var _ analyzer.SummarySink = (*Store)(nil)

// NewStore creates a new store
func NewStore(db *DB) *Store {
	return &Store{pool: db.Pool()}
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the store's tables when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Run is a stored analysis run
type Run struct {
	ID          uuid.UUID                `json:"id"`
	Target      string                   `json:"target"`
	ProjectRoot string                   `json:"project_root"`
	OutputDir   string                   `json:"output_dir"`
	CommitSHA   *string                  `json:"commit_sha,omitempty"`
	Branch      *string                  `json:"branch,omitempty"`
	Status      string                   `json:"status"`
	Total       int                      `json:"total"`
	Errors      int                      `json:"errors"`
	Fallbacks   int                      `json:"fallbacks"`
	Tiers       map[model.HealthTier]int `json:"tiers"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// Entry is a mirrored index entry with the run that produced it
type Entry struct {
	RunID uuid.UUID        `json:"run_id"`
	Tier  model.HealthTier `json:"tier"`
	model.HealthIndexEntry
}

// Deliver mirrors one analyzed file; a file lives in exactly one tier
func (s *Store) Deliver(ctx context.Context, runID uuid.UUID, rec *model.AnalysisRecord, entry model.HealthIndexEntry) error {
	return s.UpsertEntry(ctx, runID, rec.HealthLevel, entry)
}

// Complete stores the finished run summary
func (s *Store) Complete(ctx context.Context, summary *analyzer.Summary) error {
	return s.SaveRun(ctx, summary)
}

// UpsertEntry inserts or replaces the entry of a file
func (s *Store) UpsertEntry(ctx context.Context, runID uuid.UUID, tier model.HealthTier, entry model.HealthIndexEntry) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid tier %q", tier)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO health_entries (file_path, run_id, tier, maintainability, complexity, difficulty, loc, function_count, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (file_path) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			tier = EXCLUDED.tier,
			maintainability = EXCLUDED.maintainability,
			complexity = EXCLUDED.complexity,
			difficulty = EXCLUDED.difficulty,
			loc = EXCLUDED.loc,
			function_count = EXCLUDED.function_count,
			analyzed_at = EXCLUDED.analyzed_at
	`, entry.FilePath, runID, string(tier), entry.Maintainability, entry.Complexity, entry.Difficulty,
		entry.LOC, entry.FunctionCount, entry.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}

	return nil
}

// ListTier lists a tier's entries by descending complexity
func (s *Store) ListTier(ctx context.Context, tier model.HealthTier, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, tier, file_path, maintainability, complexity, difficulty, loc, function_count, analyzed_at
		FROM health_entries
		WHERE tier = $1
		ORDER BY complexity DESC, file_path
		LIMIT $2
	`, string(tier), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tier: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var t string
		if err := rows.Scan(&e.RunID, &t, &e.FilePath, &e.Maintainability, &e.Complexity, &e.Difficulty,
			&e.LOC, &e.FunctionCount, &e.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Tier = model.HealthTier(t)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// TierCounts returns the number of files per tier, every tier present
func (s *Store) TierCounts(ctx context.Context) (map[model.HealthTier]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT tier, COUNT(*) FROM health_entries GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tiers: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.HealthTier]int)
	for _, tier := range model.Tiers() {
		counts[tier] = 0
	}
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		counts[model.HealthTier(tier)] = n
	}

	return counts, rows.Err()
}

// SaveRun inserts or replaces a run from its summary
func (s *Store) SaveRun(ctx context.Context, summary *analyzer.Summary) error {
	run := runFromSummary(summary)

	tiers, err := json.Marshal(run.Tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal tiers: %w", err)
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analysis_runs (id, target, project_root, output_dir, commit_sha, branch, status,
			total, errors, fallbacks, tiers, summary, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			errors = EXCLUDED.errors,
			fallbacks = EXCLUDED.fallbacks,
			tiers = EXCLUDED.tiers,
			summary = EXCLUDED.summary,
			completed_at = EXCLUDED.completed_at
	`, run.ID, run.Target, run.ProjectRoot, run.OutputDir, run.CommitSHA, run.Branch, run.Status,
		run.Total, run.Errors, run.Fallbacks, tiers, body, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun gets a run by ID
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, target, project_root, output_dir, commit_sha, branch, status,
			total, errors, fallbacks, tiers, started_at, completed_at
		FROM analysis_runs WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, target, project_root, output_dir, commit_sha, branch, status,
			total, errors, fallbacks, tiers, started_at, completed_at
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	run := &Run{}
	var tiers []byte
	if err := row.Scan(&run.ID, &run.Target, &run.ProjectRoot, &run.OutputDir, &run.CommitSHA, &run.Branch,
		&run.Status, &run.Total, &run.Errors, &run.Fallbacks, &tiers, &run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}

	run.Tiers = make(map[model.HealthTier]int)
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &run.Tiers); err != nil {
			return nil, fmt.Errorf("failed to decode tiers: %w", err)
		}
	}
	return run, nil
}

// runFromSummary maps a finished run summary to its row
func runFromSummary(s *analyzer.Summary) *Run {
	completed := s.StartedAt.Add(s.Duration)
	run := &Run{
		ID:          s.RunID,
		Target:      s.Target,
		ProjectRoot: s.ProjectRoot,
		OutputDir:   s.OutputDir,
		Status:      RunStatusCompleted,
		Total:       s.Total,
		Errors:      s.Errors,
		Fallbacks:   s.Fallbacks,
		Tiers:       s.Tiers,
		StartedAt:   s.StartedAt,
		CompletedAt: &completed,
	}
	if s.Errors > 0 {
		run.Status = RunStatusPartial
	}
	if s.Head != nil {
		sha := s.Head.CommitSHA
		run.CommitSHA = &sha
		if s.Head.Branch != "" {
			branch := s.Head.Branch
			run.Branch = &branch
		}
	}
	return run
}
