package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// Event types
const (
	EventFileAnalyzed = "file.analyzed"
	EventRunCompleted = "run.completed"
)

// AnalysisEvent is published for every analyzed file
type AnalysisEvent struct {
	Type      string                 `json:"type"`
	RunID     uuid.UUID              `json:"runId"`
	Tier      model.HealthTier       `json:"tier"`
	Mode      string                 `json:"mode"`
	Entry     model.HealthIndexEntry `json:"entry"`
	Cycles    int                    `json:"cycles"`
	Published time.Time              `json:"publishedAt"`
}

// RunEvent is published once per finished run
type RunEvent struct {
	Type      string                   `json:"type"`
	RunID     uuid.UUID                `json:"runId"`
	Target    string                   `json:"target"`
	CommitSHA string                   `json:"commitSha,omitempty"`
	Total     int                      `json:"total"`
	Errors    int                      `json:"errors"`
	Fallbacks int                      `json:"fallbacks"`
	Tiers     map[model.HealthTier]int `json:"tiers"`
	Published time.Time                `json:"publishedAt"`
}

// publisher is the part of Client the Publisher needs
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// Publisher turns analysis results into JetStream events
type Publisher struct {
	client publisher
	now    func() time.Time
}

var _ analyzer.SummarySink = (*Publisher)(nil)

// NewPublisher creates a publisher on client
func NewPublisher(client *Client) *Publisher {
	return newPublisher(client)
}

func newPublisher(p publisher) *Publisher {
	return &Publisher{client: p, now: time.Now}
}

// Deliver publishes the analysis event of one file on its tier subject
func (p *Publisher) Deliver(ctx context.Context, runID uuid.UUID, rec *model.AnalysisRecord, entry model.HealthIndexEntry) error {
	subject := SubjectForTier(rec.HealthLevel)
	if subject == "" {
		return fmt.Errorf("no subject for tier %q", rec.HealthLevel)
	}

	return p.publish(ctx, subject, AnalysisEvent{
		Type:      EventFileAnalyzed,
		RunID:     runID,
		Tier:      rec.HealthLevel,
		Mode:      rec.Analysis.Mode,
		Entry:     entry,
		Cycles:    len(rec.Analysis.Dependencies.CircularDependencies),
		Published: p.now().UTC(),
	})
}

// Complete publishes the run summary
func (p *Publisher) Complete(ctx context.Context, summary *analyzer.Summary) error {
	event := RunEvent{
		Type:      EventRunCompleted,
		RunID:     summary.RunID,
		Target:    summary.Target,
		Total:     summary.Total,
		Errors:    summary.Errors,
		Fallbacks: summary.Fallbacks,
		Tiers:     summary.Tiers,
		Published: p.now().UTC(),
	}
	if summary.Head != nil {
		event.CommitSHA = summary.Head.CommitSHA
	}

	return p.publish(ctx, SubjectRunCompleted, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.client.Publish(ctx, subject, data); err != nil {
		return err
	}
	return nil
}
