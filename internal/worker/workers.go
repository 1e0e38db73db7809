package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	healthnats "github.com/QTest-hq/codehealth/internal/nats"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// Alert kinds
const (
	AlertCritical   = "critical_file"
	AlertRegression = "run_regression"
)

// Alert is raised when a watcher sees something worth attention
type Alert struct {
	Kind    string    `json:"kind"`
	RunID   uuid.UUID `json:"runId"`
	Subject string    `json:"subject"` // file path or run target
	Message string    `json:"message"`
}

// AlertFunc receives alerts; it must be safe for concurrent use
type AlertFunc func(Alert)

// LogAlert writes alerts to the global logger
func LogAlert(a Alert) {
	log.Warn().
		Str("kind", a.Kind).
		Str("run_id", a.RunID.String()).
		Str("subject", a.Subject).
		Msg(a.Message)
}

// CriticalWatcher follows files that land in the critical tier
type CriticalWatcher struct {
	*BaseWorker
	alert AlertFunc

	mu       sync.Mutex
	critical map[string]healthnats.AnalysisEvent
}

// NewCriticalWatcher creates a watcher reading the critical-tier consumer
func NewCriticalWatcher(alert AlertFunc) *CriticalWatcher {
	if alert == nil {
		alert = LogAlert
	}
	w := &CriticalWatcher{
		alert:    alert,
		critical: make(map[string]healthnats.AnalysisEvent),
	}
	w.BaseWorker = NewBaseWorker(BaseWorkerConfig{
		Name:         "critical",
		ConsumerName: healthnats.ConsumerCriticalWatch,
		Handler:      w.handle,
	})
	return w
}

func (w *CriticalWatcher) handle(ctx context.Context, subject string, data []byte) error {
	var event healthnats.AnalysisEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if event.Type != healthnats.EventFileAnalyzed || event.Entry.FilePath == "" {
		return fmt.Errorf("%w: unexpected %q event on %s", ErrMalformed, event.Type, subject)
	}

	// Events from other tiers only clear a tracked file
	if event.Tier != model.TierCritical {
		w.mu.Lock()
		delete(w.critical, event.Entry.FilePath)
		w.mu.Unlock()
		return nil
	}

	w.mu.Lock()
	_, known := w.critical[event.Entry.FilePath]
	w.critical[event.Entry.FilePath] = event
	w.mu.Unlock()

	if known {
		return nil
	}

	w.alert(Alert{
		Kind:    AlertCritical,
		RunID:   event.RunID,
		Subject: event.Entry.FilePath,
		Message: fmt.Sprintf("file is in critical health (complexity %d, maintainability %.2f)",
			event.Entry.Complexity, event.Entry.Maintainability),
	})
	return nil
}

// Critical returns the tracked critical files ordered by path
func (w *CriticalWatcher) Critical() []healthnats.AnalysisEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]healthnats.AnalysisEvent, 0, len(w.critical))
	for _, e := range w.critical {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.FilePath < out[j].Entry.FilePath })
	return out
}

// RunWatcher compares each finished run with the previous run of the same
// target and alerts when files moved into the bad tiers
type RunWatcher struct {
	*BaseWorker
	alert AlertFunc

	mu   sync.Mutex
	last map[string]healthnats.RunEvent
}

// NewRunWatcher creates a watcher reading the run consumer
func NewRunWatcher(alert AlertFunc) *RunWatcher {
	if alert == nil {
		alert = LogAlert
	}
	w := &RunWatcher{
		alert: alert,
		last:  make(map[string]healthnats.RunEvent),
	}
	w.BaseWorker = NewBaseWorker(BaseWorkerConfig{
		Name:         "runs",
		ConsumerName: healthnats.ConsumerRuns,
		Handler:      w.handle,
	})
	return w
}

func (w *RunWatcher) handle(ctx context.Context, subject string, data []byte) error {
	var event healthnats.RunEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if event.Type != healthnats.EventRunCompleted || event.Target == "" {
		return fmt.Errorf("%w: unexpected %q event on %s", ErrMalformed, event.Type, subject)
	}

	w.mu.Lock()
	prev, ok := w.last[event.Target]
	w.last[event.Target] = event
	w.mu.Unlock()

	log.Info().
		Str("run_id", event.RunID.String()).
		Str("target", event.Target).
		Int("total", event.Total).
		Int("errors", event.Errors).
		Msg("run completed")

	if !ok {
		return nil
	}
	if regressed, msg := Regression(prev, event); regressed {
		w.alert(Alert{
			Kind:    AlertRegression,
			RunID:   event.RunID,
			Subject: event.Target,
			Message: msg,
		})
	}
	return nil
}

// Regression reports whether cur has more poor or critical files than prev
func Regression(prev, cur healthnats.RunEvent) (bool, string) {
	before := prev.Tiers[model.TierPoor] + prev.Tiers[model.TierCritical]
	after := cur.Tiers[model.TierPoor] + cur.Tiers[model.TierCritical]
	if after <= before {
		return false, ""
	}
	return true, fmt.Sprintf("poor and critical files rose from %d to %d", before, after)
}
