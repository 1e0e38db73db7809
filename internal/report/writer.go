// Package report persists analysis records under an output directory that
// mirrors the analyzed project, and keeps one index file per health tier.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/codehealth/pkg/model"
)

var (
	// ErrInvalidTier is returned for tier names outside the five known tiers
	ErrInvalidTier = errors.New("invalid health tier")
	// ErrInvalidRecordPath is returned by LoadRecord for paths that cannot name a record
	ErrInvalidRecordPath = errors.New("invalid record path")
)

var sourceExtension = regexp.MustCompile(`\.(ts|tsx|js|jsx)$`)

// Writer saves records and maintains the tier indexes of one output directory.
// Index updates for the same tier are serialized; separate processes sharing
// an output directory are not coordinated.
type Writer struct {
	outputDir string
	locks     map[model.HealthTier]*sync.Mutex
	now       func() time.Time
}

// Option configures a Writer
type Option func(*Writer)

// WithClock overrides the time source used for analyzedAt
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a writer rooted at outputDir
func NewWriter(outputDir string, opts ...Option) *Writer {
	w := &Writer{
		outputDir: outputDir,
		locks:     make(map[model.HealthTier]*sync.Mutex),
		now:       time.Now,
	}
	for _, tier := range model.Tiers() {
		w.locks[tier] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OutputDir returns the writer's root directory
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// RecordPath returns where the record of filePath is written. The path is
// mirrored relative to projectRoot when it exists, to the file name alone when
// sourceRoot is a single file, and relative to sourceRoot otherwise.
func (w *Writer) RecordPath(filePath, sourceRoot, projectRoot string) (string, error) {
	var rel string
	switch {
	case projectRoot != "" && exists(projectRoot):
		r, err := filepath.Rel(projectRoot, filePath)
		if err != nil {
			return "", fmt.Errorf("failed to relate %s to project root: %w", filePath, err)
		}
		rel = r
	case isRegularFile(sourceRoot):
		rel = filepath.Base(filePath)
	default:
		r, err := filepath.Rel(sourceRoot, filePath)
		if err != nil {
			return "", fmt.Errorf("failed to relate %s to source root: %w", filePath, err)
		}
		rel = r
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the analyzed root", filePath)
	}

	return filepath.Join(w.outputDir, ReportName(rel)), nil
}

// ReportName swaps a source extension for .json; other names get .json appended
func ReportName(rel string) string {
	if sourceExtension.MatchString(rel) {
		return sourceExtension.ReplaceAllString(rel, ".json")
	}
	return rel + ".json"
}

// Save writes rec as indented JSON, replacing any earlier record for the file
func (w *Writer) Save(rec *model.AnalysisRecord, sourceRoot, projectRoot string) (string, error) {
	path, err := w.RecordPath(rec.FilePath, sourceRoot, projectRoot)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := writeFile(path, data); err != nil {
		return "", err
	}

	log.Debug().Str("file", rec.FilePath).Str("report", path).Msg("record saved")
	return path, nil
}

// UpdateIndex replaces the file's entry in its tier index and re-sorts the
// index by descending complexity. Entries for the same file left in other
// tiers by an earlier analysis are removed.
func (w *Writer) UpdateIndex(rec *model.AnalysisRecord) (model.HealthIndexEntry, error) {
	tier := rec.HealthLevel
	if !tier.Valid() {
		return model.HealthIndexEntry{}, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return model.HealthIndexEntry{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	entry := model.NewIndexEntry(rec, w.now().UTC())

	for _, other := range model.Tiers() {
		if other == tier {
			continue
		}
		if err := w.removeEntry(other, rec.FilePath); err != nil {
			return model.HealthIndexEntry{}, err
		}
	}

	mu := w.locks[tier]
	mu.Lock()
	defer mu.Unlock()

	index := w.readIndex(tier)
	index = withoutPath(index, rec.FilePath)
	index = append(index, entry)
	sort.SliceStable(index, func(i, j int) bool {
		return index[i].Complexity > index[j].Complexity
	})

	if err := w.writeIndex(tier, index); err != nil {
		return model.HealthIndexEntry{}, err
	}

	return entry, nil
}

func (w *Writer) removeEntry(tier model.HealthTier, filePath string) error {
	mu := w.locks[tier]
	mu.Lock()
	defer mu.Unlock()

	if !exists(w.indexPath(tier)) {
		return nil
	}

	index := w.readIndex(tier)
	pruned := withoutPath(index, filePath)
	if len(pruned) == len(index) {
		return nil
	}
	return w.writeIndex(tier, pruned)
}

// LoadIndex returns the entries of one tier index; a missing index is empty
func (w *Writer) LoadIndex(tier model.HealthTier) ([]model.HealthIndexEntry, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	data, err := os.ReadFile(w.indexPath(tier))
	if errors.Is(err, fs.ErrNotExist) {
		return []model.HealthIndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s index: %w", tier, err)
	}

	var index []model.HealthIndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode %s index: %w", tier, err)
	}
	return index, nil
}

// LoadRecord reads a saved record by its path relative to the output directory
func (w *Writer) LoadRecord(rel string) (*model.AnalysisRecord, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q escapes the output directory", ErrInvalidRecordPath, rel)
	}
	if IsIndexFile(filepath.Base(clean)) && filepath.Dir(clean) == "." {
		return nil, fmt.Errorf("%w: %s is a tier index", ErrInvalidRecordPath, rel)
	}

	data, err := os.ReadFile(filepath.Join(w.outputDir, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec model.AnalysisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// WalkRecords calls fn for every saved record, skipping the tier indexes at
// the output root
func (w *Writer) WalkRecords(fn func(rel string, rec *model.AnalysisRecord) error) error {
	return filepath.WalkDir(w.outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		rel, err := filepath.Rel(w.outputDir, path)
		if err != nil {
			return err
		}
		if filepath.Dir(rel) == "." && IsIndexFile(rel) {
			return nil
		}

		rec, err := w.LoadRecord(rel)
		if err != nil {
			log.Warn().Err(err).Str("report", path).Msg("skipping unreadable record")
			return nil
		}
		return fn(filepath.ToSlash(rel), rec)
	})
}

// IsIndexFile reports whether name is one of the five tier index files
func IsIndexFile(name string) bool {
	for _, tier := range model.Tiers() {
		if name == string(tier)+".json" {
			return true
		}
	}
	return false
}

func (w *Writer) indexPath(tier model.HealthTier) string {
	return filepath.Join(w.outputDir, string(tier)+".json")
}

// readIndex loads a tier index, starting over when it is missing or corrupt
func (w *Writer) readIndex(tier model.HealthTier) []model.HealthIndexEntry {
	index, err := w.LoadIndex(tier)
	if err != nil {
		log.Warn().Err(err).Str("tier", string(tier)).Msg("resetting unreadable index")
		return []model.HealthIndexEntry{}
	}
	return index
}

func (w *Writer) writeIndex(tier model.HealthTier, index []model.HealthIndexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s index: %w", tier, err)
	}
	return writeFile(w.indexPath(tier), data)
}

func withoutPath(index []model.HealthIndexEntry, filePath string) []model.HealthIndexEntry {
	kept := make([]model.HealthIndexEntry, 0, len(index)+1)
	for _, e := range index {
		if e.FilePath != filePath {
			kept = append(kept, e)
		}
	}
	return kept
}

// writeFile replaces path through a temporary file in the same directory
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
