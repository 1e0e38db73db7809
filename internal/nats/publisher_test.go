package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/internal/vcs"
	"github.com/QTest-hq/codehealth/pkg/model"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	messages []message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, message{subject: subject, data: data})
	return &jetstream.PubAck{Stream: StreamAnalysis, Sequence: uint64(len(f.messages))}, nil
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestPublisher(f *fakePublisher) *Publisher {
	p := newPublisher(f)
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestPublisher_Deliver(t *testing.T) {
	fake := &fakePublisher{}
	runID := uuid.New()

	rec := &model.AnalysisRecord{
		FilePath:    "/work/app/src/a.ts",
		HealthLevel: model.TierPoor,
		Analysis: model.Analysis{
			Mode: model.ModeStructural,
			Dependencies: model.DependencyProfile{
				CircularDependencies: [][]string{{"src/a.ts", "src/b.ts"}},
			},
		},
	}
	entry := model.HealthIndexEntry{FilePath: rec.FilePath, Complexity: 32}

	require.NoError(t, newTestPublisher(fake).Deliver(context.Background(), runID, rec, entry))
	require.Len(t, fake.messages, 1)
	assert.Equal(t, "codehealth.analysis.poor", fake.messages[0].subject)

	var event AnalysisEvent
	require.NoError(t, json.Unmarshal(fake.messages[0].data, &event))
	assert.Equal(t, EventFileAnalyzed, event.Type)
	assert.Equal(t, runID, event.RunID)
	assert.Equal(t, model.TierPoor, event.Tier)
	assert.Equal(t, model.ModeStructural, event.Mode)
	assert.Equal(t, 32, event.Entry.Complexity)
	assert.Equal(t, 1, event.Cycles)
	assert.True(t, fixedNow.Equal(event.Published))
}

func TestPublisher_DeliverRejectsUnknownTier(t *testing.T) {
	fake := &fakePublisher{}
	rec := &model.AnalysisRecord{HealthLevel: "bogus"}

	err := newTestPublisher(fake).Deliver(context.Background(), uuid.New(), rec, model.HealthIndexEntry{})
	assert.Error(t, err)
	assert.Empty(t, fake.messages)
}

func TestPublisher_DeliverPropagatesPublishErrors(t *testing.T) {
	fake := &fakePublisher{err: errors.New("no responders")}
	rec := &model.AnalysisRecord{HealthLevel: model.TierGood}

	err := newTestPublisher(fake).Deliver(context.Background(), uuid.New(), rec, model.HealthIndexEntry{})
	assert.ErrorContains(t, err, "no responders")
}

func TestPublisher_Complete(t *testing.T) {
	fake := &fakePublisher{}
	summary := &analyzer.Summary{
		RunID:     uuid.New(),
		Target:    "/work/app",
		Head:      &vcs.Head{CommitSHA: "abc123", Branch: "main"},
		Total:     5,
		Errors:    1,
		Fallbacks: 2,
		Tiers:     map[model.HealthTier]int{model.TierExcellent: 5},
	}

	require.NoError(t, newTestPublisher(fake).Complete(context.Background(), summary))
	require.Len(t, fake.messages, 1)
	assert.Equal(t, SubjectRunCompleted, fake.messages[0].subject)

	var event RunEvent
	require.NoError(t, json.Unmarshal(fake.messages[0].data, &event))
	assert.Equal(t, EventRunCompleted, event.Type)
	assert.Equal(t, summary.RunID, event.RunID)
	assert.Equal(t, "abc123", event.CommitSHA)
	assert.Equal(t, 5, event.Tiers[model.TierExcellent])
	assert.Equal(t, 2, event.Fallbacks)
}
