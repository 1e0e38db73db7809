package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/codehealth/pkg/model"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	return NewWriter(t.TempDir(), WithClock(func() time.Time { return fixedTime }))
}

func record(path string, tier model.HealthTier, complexity int) *model.AnalysisRecord {
	return &model.AnalysisRecord{
		FilePath:    path,
		HealthLevel: tier,
		Analysis: model.Analysis{
			Maintainability: 90,
			Complexity:      complexity,
			Difficulty:      1.5,
			LOC:             10,
			Functions:       []model.FunctionRecord{{Name: "f", Complexity: complexity}},
			Mode:            model.ModeStructural,
		},
	}
}

func TestReportName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"src/a.ts", "src/a.json"},
		{"src/App.tsx", "src/App.json"},
		{"lib/x.js", "lib/x.json"},
		{"lib/x.jsx", "lib/x.json"},
		{"lib/x.mjs", "lib/x.mjs.json"},
		{"a.d.ts", "a.d.json"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ReportName(tt.in))
		})
	}
}

func TestRecordPath(t *testing.T) {
	project := t.TempDir()
	src := filepath.Join(project, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	file := filepath.Join(src, "a.ts")
	require.NoError(t, os.WriteFile(file, []byte("export {};\n"), 0644))

	w := NewWriter("/out")

	// Project root wins when it exists
	p, err := w.RecordPath(file, src, project)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "src", "a.json"), p)

	// Source root directory
	p, err = w.RecordPath(file, src, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a.json"), p)

	// Single-file target keeps only the base name
	p, err = w.RecordPath(file, file, filepath.Join(project, "missing"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a.json"), p)

	// Files outside the root are rejected
	_, err = w.RecordPath("/elsewhere/b.ts", src, "")
	assert.Error(t, err)
}

func TestWriter_SaveAndLoad(t *testing.T) {
	project := t.TempDir()
	w := newTestWriter(t)

	rec := record(filepath.Join(project, "src", "a.ts"), model.TierGood, 4)
	path, err := w.Save(rec, project, project)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.OutputDir(), "src", "a.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "good", raw["healthLevel"])
	assert.Contains(t, raw, "analysis")

	loaded, err := w.LoadRecord("src/a.json")
	require.NoError(t, err)
	assert.Equal(t, rec.FilePath, loaded.FilePath)
	assert.Equal(t, 4, loaded.Analysis.Complexity)
}

func TestWriter_SaveOverwrites(t *testing.T) {
	project := t.TempDir()
	w := newTestWriter(t)
	file := filepath.Join(project, "a.ts")

	_, err := w.Save(record(file, model.TierGood, 4), project, project)
	require.NoError(t, err)
	_, err = w.Save(record(file, model.TierPoor, 17), project, project)
	require.NoError(t, err)

	loaded, err := w.LoadRecord("a.json")
	require.NoError(t, err)
	assert.Equal(t, model.TierPoor, loaded.HealthLevel)
	assert.Equal(t, 17, loaded.Analysis.Complexity)
}

func TestWriter_UpdateIndex(t *testing.T) {
	w := newTestWriter(t)

	for i, c := range []int{3, 9, 5} {
		_, err := w.UpdateIndex(record(fmt.Sprintf("/p/f%d.ts", i), model.TierFair, c))
		require.NoError(t, err)
	}

	index, err := w.LoadIndex(model.TierFair)
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, []int{9, 5, 3}, []int{index[0].Complexity, index[1].Complexity, index[2].Complexity})
	assert.Equal(t, "/p/f1.ts", index[0].FilePath)
	assert.Equal(t, 1, index[0].FunctionCount)
	assert.True(t, fixedTime.Equal(index[0].AnalyzedAt))
}

func TestWriter_ReanalysisLeavesOneEntry(t *testing.T) {
	w := newTestWriter(t)
	file := "/p/a.ts"

	_, err := w.UpdateIndex(record(file, model.TierFair, 5))
	require.NoError(t, err)
	_, err = w.UpdateIndex(record(file, model.TierFair, 7))
	require.NoError(t, err)

	index, err := w.LoadIndex(model.TierFair)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, 7, index[0].Complexity)

	// Moving to another tier removes the stale entry
	_, err = w.UpdateIndex(record(file, model.TierCritical, 30))
	require.NoError(t, err)

	fair, err := w.LoadIndex(model.TierFair)
	require.NoError(t, err)
	assert.Empty(t, fair)

	critical, err := w.LoadIndex(model.TierCritical)
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, file, critical[0].FilePath)
}

func TestWriter_UpdateIndexConcurrent(t *testing.T) {
	w := newTestWriter(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.UpdateIndex(record(fmt.Sprintf("/p/f%02d.ts", i), model.TierGood, i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	index, err := w.LoadIndex(model.TierGood)
	require.NoError(t, err)
	assert.Len(t, index, 20)
	assert.True(t, sort.SliceIsSorted(index, func(i, j int) bool {
		return index[i].Complexity > index[j].Complexity
	}))
}

func TestWriter_CorruptIndexIsReset(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, os.WriteFile(filepath.Join(w.OutputDir(), "poor.json"), []byte("{not json"), 0644))

	_, err := w.LoadIndex(model.TierPoor)
	assert.Error(t, err)

	_, err = w.UpdateIndex(record("/p/a.ts", model.TierPoor, 12))
	require.NoError(t, err)

	index, err := w.LoadIndex(model.TierPoor)
	require.NoError(t, err)
	assert.Len(t, index, 1)
}

func TestWriter_InvalidTier(t *testing.T) {
	w := newTestWriter(t)

	_, err := w.UpdateIndex(record("/p/a.ts", "meh", 1))
	assert.True(t, errors.Is(err, ErrInvalidTier))

	_, err = w.LoadIndex("meh")
	assert.True(t, errors.Is(err, ErrInvalidTier))
}

func TestWriter_LoadIndexMissing(t *testing.T) {
	index, err := newTestWriter(t).LoadIndex(model.TierExcellent)
	require.NoError(t, err)
	assert.NotNil(t, index)
	assert.Empty(t, index)
}

func TestWriter_LoadRecordRejects(t *testing.T) {
	w := newTestWriter(t)

	_, err := w.LoadRecord("../secret.json")
	assert.ErrorIs(t, err, ErrInvalidRecordPath)

	_, err = w.LoadRecord("excellent.json")
	assert.ErrorIs(t, err, ErrInvalidRecordPath)

	_, err = w.LoadRecord("missing.json")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWriter_WalkRecordsSkipsIndexes(t *testing.T) {
	project := t.TempDir()
	w := newTestWriter(t)

	for _, rel := range []string{"a.ts", "lib/b.ts", "lib/deep/c.tsx"} {
		rec := record(filepath.Join(project, filepath.FromSlash(rel)), model.TierGood, 2)
		_, err := w.Save(rec, project, project)
		require.NoError(t, err)
		_, err = w.UpdateIndex(rec)
		require.NoError(t, err)
	}

	var seen []string
	err := w.WalkRecords(func(rel string, rec *model.AnalysisRecord) error {
		seen = append(seen, rel)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(seen)
	assert.Equal(t, []string{"a.json", "lib/b.json", "lib/deep/c.json"}, seen)
}

func TestIsIndexFile(t *testing.T) {
	for _, tier := range model.Tiers() {
		assert.True(t, IsIndexFile(string(tier)+".json"))
	}
	assert.False(t, IsIndexFile("great.json"))
	assert.False(t, IsIndexFile("excellent.ts"))
}
