package nats

import (
	"context"
	"time"

	"github.com/QTest-hq/codehealth/pkg/model"
)

// Stream names
const (
	StreamAnalysis = "CODEHEALTH"
)

// Subject patterns for analysis events
const (
	// SubjectAll matches every event of the stream
	SubjectAll = "codehealth.>"

	// SubjectAnalysisPrefix is followed by the tier of the analyzed file
	SubjectAnalysisPrefix = "codehealth.analysis."

	// SubjectRunCompleted carries finished run summaries
	SubjectRunCompleted = "codehealth.runs.completed"
)

// Consumer names
const (
	// ConsumerCriticalWatch follows files that land in the critical tier
	ConsumerCriticalWatch = "critical-watch"
	// ConsumerRuns follows finished runs
	ConsumerRuns = "run-watch"
)

// DefaultStreamConfig returns the default stream configuration for
// analysis events
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        StreamAnalysis,
		Subjects:    []string{SubjectAll},
		MaxMsgs:     1000000,
		MaxBytes:    1024 * 1024 * 500, // 500MB
		MaxAge:      30 * 24 * time.Hour,
		Replicas:    1,
		Description: "Code health analysis events",
	}
}

// SetupStreams creates the event stream and its standing consumers
func (c *Client) SetupStreams(ctx context.Context) error {
	if _, err := c.CreateStream(ctx, DefaultStreamConfig()); err != nil {
		return err
	}

	consumers := []struct {
		name    string
		subject string
	}{
		{ConsumerCriticalWatch, SubjectForTier(model.TierCritical)},
		{ConsumerRuns, SubjectRunCompleted},
	}

	for _, cons := range consumers {
		if _, err := c.CreateConsumer(ctx, StreamAnalysis, cons.name, cons.subject); err != nil {
			return err
		}
	}

	return nil
}

// SubjectForTier returns the subject analysis events of a tier go to, or
// "" for an unknown tier
func SubjectForTier(tier model.HealthTier) string {
	if !tier.Valid() {
		return ""
	}
	return SubjectAnalysisPrefix + string(tier)
}
