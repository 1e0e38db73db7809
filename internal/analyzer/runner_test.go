package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/codehealth/internal/depgraph"
	"github.com/QTest-hq/codehealth/internal/parser"
	"github.com/QTest-hq/codehealth/internal/report"
	"github.com/QTest-hq/codehealth/internal/testutil"
	"github.com/QTest-hq/codehealth/pkg/model"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered map[string]model.HealthTier
	runIDs    map[uuid.UUID]bool
	summary   *Summary
	fail      bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		delivered: make(map[string]model.HealthTier),
		runIDs:    make(map[uuid.UUID]bool),
	}
}

func (s *recordingSink) Deliver(_ context.Context, runID uuid.UUID, rec *model.AnalysisRecord, entry model.HealthIndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered[entry.FilePath] = rec.HealthLevel
	s.runIDs[runID] = true
	if s.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

func (s *recordingSink) Complete(_ context.Context, summary *Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	return nil
}

func fixtureProject(t *testing.T) string {
	return testutil.WriteProject(t, map[string]string{
		"src/a.ts":                "import { b } from \"./b\";\n" + testutil.NestedConditions("check", 15),
		"src/b.ts":                "import { check } from \"./a\";\nexport const b = check(1);\n",
		"src/util.ts":             "export const one = 1;\n",
		"src/broken.ts":           "const s = \"unterminated;\nfunction f() {\n",
		"src/util.test.ts":        "import { one } from \"./util\";\n",
		"node_modules/x/index.js": "module.exports = 1;\n",
		"README.md":               "# fixture\n",
	})
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Exclude = []string{"**/*.test.ts"}
	return opts
}

func loadAllEntries(t *testing.T, w *report.Writer) map[string]model.HealthTier {
	t.Helper()
	all := make(map[string]model.HealthTier)
	for _, tier := range model.Tiers() {
		entries, err := w.LoadIndex(tier)
		require.NoError(t, err)
		for _, e := range entries {
			_, dup := all[e.FilePath]
			assert.False(t, dup, "%s indexed twice", e.FilePath)
			all[e.FilePath] = tier
		}
	}
	return all
}

func TestRunner_Run(t *testing.T) {
	root := fixtureProject(t)
	out := t.TempDir()
	sink := newRecordingSink()

	runner := NewRunner(newEngine(), testOptions(), sink)
	summary, err := runner.Run(context.Background(), Request{Target: root, OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Zero(t, summary.Errors)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 1, summary.Fallbacks)
	assert.Len(t, summary.Results, 4)
	assert.Len(t, summary.Tiers, 5)
	assert.NotEqual(t, uuid.Nil, summary.RunID)

	tally := 0
	for _, n := range summary.Tiers {
		tally += n
	}
	assert.Equal(t, summary.Total, tally)
	assert.Equal(t, 3, summary.Tiers[model.TierExcellent])

	// The nested file triggers both recommendations
	a := filepath.Join(root, "src", "a.ts")
	var types []string
	for _, rec := range summary.Recommendations {
		assert.Equal(t, a, rec.FilePath)
		types = append(types, rec.Type)
	}
	assert.ElementsMatch(t, []string{"high_complexity", "low_maintainability"}, types)

	for _, name := range []string{"a", "b", "util", "broken"} {
		assert.FileExists(t, filepath.Join(out, "src", name+".json"))
	}
	assert.NoFileExists(t, filepath.Join(out, "src", "util.test.json"))
	assert.NoDirExists(t, filepath.Join(out, "node_modules"))

	entries := loadAllEntries(t, runner.Writer(out))
	assert.Len(t, entries, 4)
	assert.Equal(t, model.TierExcellent, entries[filepath.Join(root, "src", "broken.ts")])

	assert.Len(t, sink.delivered, 4)
	assert.Len(t, sink.runIDs, 1)
	require.NotNil(t, sink.summary)
	assert.Equal(t, summary.RunID, sink.summary.RunID)
}

func TestRunner_RerunIsIdempotent(t *testing.T) {
	root := fixtureProject(t)
	out := t.TempDir()
	runner := NewRunner(newEngine(), testOptions())

	first, err := runner.Run(context.Background(), Request{Target: root, OutputDir: out})
	require.NoError(t, err)
	before := loadAllEntries(t, runner.Writer(out))

	second, err := runner.Run(context.Background(), Request{Target: root, OutputDir: out})
	require.NoError(t, err)
	after := loadAllEntries(t, runner.Writer(out))

	assert.Equal(t, first.Tiers, second.Tiers)
	assert.Equal(t, before, after)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunner_ProjectRootMirrorsPaths(t *testing.T) {
	root := fixtureProject(t)
	out := t.TempDir()

	summary, err := NewRunner(newEngine(), testOptions()).Run(context.Background(), Request{
		Target:      filepath.Join(root, "src"),
		ProjectRoot: root,
		OutputDir:   out,
	})
	require.NoError(t, err)

	assert.Equal(t, root, summary.ProjectRoot)
	assert.FileExists(t, filepath.Join(out, "src", "a.json"))
	assert.NoFileExists(t, filepath.Join(out, "a.json"))
}

func TestRunner_SingleFileTarget(t *testing.T) {
	root := fixtureProject(t)
	out := t.TempDir()

	summary, err := NewRunner(newEngine(), testOptions()).Run(context.Background(), Request{
		Target:    filepath.Join(root, "src", "util.ts"),
		OutputDir: out,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Tiers[model.TierExcellent])
	assert.FileExists(t, filepath.Join(out, "util.json"))
}

func TestRunner_UnsupportedSingleFile(t *testing.T) {
	root := fixtureProject(t)

	_, err := NewRunner(newEngine(), testOptions()).Run(context.Background(), Request{
		Target:    filepath.Join(root, "README.md"),
		OutputDir: t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestRunner_NoFiles(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{"docs/readme.md": "hi\n"})

	_, err := NewRunner(newEngine(), DefaultOptions()).Run(context.Background(), Request{Target: root, OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestRunner_MissingTarget(t *testing.T) {
	_, err := NewRunner(newEngine(), DefaultOptions()).Run(context.Background(), Request{
		Target: filepath.Join(t.TempDir(), "missing"),
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFiles)
}

func TestRunner_MaxFiles(t *testing.T) {
	root := fixtureProject(t)
	opts := testOptions()
	opts.MaxFiles = 2

	summary, err := NewRunner(newEngine(), opts).Run(context.Background(), Request{Target: root, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Len(t, summary.Results, 2)
}

func TestRunner_PersistenceFailuresAreCounted(t *testing.T) {
	root := fixtureProject(t)
	blocker := filepath.Join(t.TempDir(), "reports")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	sink := newRecordingSink()
	summary, err := NewRunner(newEngine(), testOptions(), sink).Run(context.Background(), Request{
		Target:    root,
		OutputDir: blocker,
	})
	require.NoError(t, err)

	assert.Zero(t, summary.Total)
	assert.Equal(t, 4, summary.Errors)
	assert.Len(t, summary.Failures, 4)
	for _, f := range summary.Failures {
		assert.NotEmpty(t, f.Error)
	}
	assert.Empty(t, sink.delivered)
	assert.Zero(t, summary.AverageComplexity)
}

func TestRunner_SinkErrorsDoNotFailRun(t *testing.T) {
	root := fixtureProject(t)
	sink := newRecordingSink()
	sink.fail = true

	summary, err := NewRunner(newEngine(), testOptions(), sink).Run(context.Background(), Request{Target: root, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Zero(t, summary.Errors)
}

type panickingSink struct{}

func (panickingSink) Deliver(context.Context, uuid.UUID, *model.AnalysisRecord, model.HealthIndexEntry) error {
	panic("sink exploded")
}

func TestRunner_PanicsAreCountedPerFile(t *testing.T) {
	root := fixtureProject(t)

	summary, err := NewRunner(newEngine(), testOptions(), panickingSink{}).Run(context.Background(), Request{Target: root, OutputDir: t.TempDir()})
	require.NoError(t, err)

	assert.Zero(t, summary.Total)
	assert.Equal(t, 4, summary.Errors)
	require.Len(t, summary.Failures, 4)
	for _, f := range summary.Failures {
		assert.Equal(t, "panic: sink exploded", f.Error)
	}
}

type failingBuilder struct{}

func (failingBuilder) Build(context.Context, string) (*depgraph.Graph, error) {
	return nil, errors.New("unreadable root")
}

func TestRunner_FailedGraphBuiltOncePerRun(t *testing.T) {
	root := fixtureProject(t)
	cache := depgraph.NewCache(failingBuilder{}, nil)
	runner := NewRunner(NewEngine(parser.NewParser(), cache), testOptions())

	summary, err := runner.Run(context.Background(), Request{Target: root, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, int64(1), cache.Builds())

	// The next run retries the build
	_, err = runner.Run(context.Background(), Request{Target: root, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Builds())
}

func TestRunner_WriterIsSharedPerDirectory(t *testing.T) {
	runner := NewRunner(newEngine(), DefaultOptions())
	dir := t.TempDir()

	assert.Same(t, runner.Writer(dir), runner.Writer(filepath.Join(dir, ".")))
	assert.NotSame(t, runner.Writer(dir), runner.Writer(t.TempDir()))
}

func TestSummary_Percent(t *testing.T) {
	s := &Summary{Total: 4, Tiers: map[model.HealthTier]int{model.TierGood: 1}}
	assert.Equal(t, 25.0, s.Percent(model.TierGood))
	assert.Zero(t, s.Percent(model.TierPoor))
	assert.Zero(t, (&Summary{}).Percent(model.TierGood))
}

func TestSummarize_Averages(t *testing.T) {
	s := &Summary{
		Tiers: make(map[model.HealthTier]int),
		Results: []FileResult{
			{FilePath: "/a.ts", Tier: model.TierGood, record: &model.AnalysisRecord{Analysis: model.Analysis{Complexity: 3, Maintainability: 90}}},
			{FilePath: "/b.ts", Tier: model.TierFair, record: &model.AnalysisRecord{Analysis: model.Analysis{Complexity: 4, Maintainability: 80.5}}},
			{FilePath: "/c.ts", Tier: model.TierFair, record: &model.AnalysisRecord{Analysis: model.Analysis{Complexity: 4, Maintainability: 70}}},
			{FilePath: "/d.ts", Error: "boom"},
		},
	}

	summarize(s)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 3.67, s.AverageComplexity)
	assert.Equal(t, 80.17, s.AverageMaintainability)
	assert.Equal(t, 2, s.Tiers[model.TierFair])
	assert.Empty(t, s.Recommendations)
}
