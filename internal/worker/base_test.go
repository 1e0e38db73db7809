package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeMsg struct {
	subject string
	data    []byte
	settled string
}

func (m *fakeMsg) Subject() string { return m.subject }

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) Ack() error {
	m.settled = "ack"
	return nil
}

func (m *fakeMsg) Nak() error {
	m.settled = "nak"
	return nil
}

func (m *fakeMsg) Term() error {
	m.settled = "term"
	return nil
}

func TestNewBaseWorker(t *testing.T) {
	base := NewBaseWorker(BaseWorkerConfig{
		Name:         "critical",
		ConsumerName: "critical-watch",
	})

	if base == nil {
		t.Fatal("base worker should not be nil")
	}
	if base.Name() != "critical" {
		t.Errorf("Name() = %s, want critical", base.Name())
	}
	if base.ConsumerName() != "critical-watch" {
		t.Errorf("ConsumerName() = %s, want critical-watch", base.ConsumerName())
	}
	if !strings.HasPrefix(base.WorkerID(), "critical-") {
		t.Errorf("workerID should start with 'critical-', got %s", base.WorkerID())
	}
}

func TestNewBaseWorker_WithWorkerID(t *testing.T) {
	base := NewBaseWorker(BaseWorkerConfig{
		Name:     "runs",
		WorkerID: "custom-worker-id",
	})

	if base.WorkerID() != "custom-worker-id" {
		t.Errorf("WorkerID() = %s, want custom-worker-id", base.WorkerID())
	}
}

func TestBaseWorker_Settings(t *testing.T) {
	base := NewBaseWorker(BaseWorkerConfig{Name: "runs"})

	if base.pollPeriod != 5*time.Second {
		t.Errorf("default pollPeriod = %v, want 5s", base.pollPeriod)
	}
	if base.batchSize != 10 {
		t.Errorf("default batchSize = %d, want 10", base.batchSize)
	}

	base.SetPollPeriod(time.Second)
	base.SetBatchSize(3)
	base.SetBatchSize(0)

	if base.pollPeriod != time.Second {
		t.Errorf("pollPeriod = %v, want 1s", base.pollPeriod)
	}
	if base.batchSize != 3 {
		t.Errorf("batchSize = %d, want 3", base.batchSize)
	}
}

func TestBaseWorker_RunWithoutConsumer(t *testing.T) {
	base := NewBaseWorker(BaseWorkerConfig{Name: "runs"})

	if err := base.Run(context.Background()); err == nil {
		t.Error("Run without a consumer should fail")
	}
}

func TestBaseWorker_Process(t *testing.T) {
	tests := []struct {
		name       string
		handlerErr error
		want       string
	}{
		{"success acks", nil, "ack"},
		{"malformed terminates", fmt.Errorf("%w: bad json", ErrMalformed), "term"},
		{"other errors nak", errors.New("store down"), "nak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSubject string
			base := NewBaseWorker(BaseWorkerConfig{
				Name: "test",
				Handler: func(ctx context.Context, subject string, data []byte) error {
					gotSubject = subject
					return tt.handlerErr
				},
			})

			msg := &fakeMsg{subject: "codehealth.analysis.critical", data: []byte("{}")}
			base.process(context.Background(), msg)

			if msg.settled != tt.want {
				t.Errorf("settled = %q, want %q", msg.settled, tt.want)
			}
			if gotSubject != msg.subject {
				t.Errorf("handler subject = %q, want %q", gotSubject, msg.subject)
			}
		})
	}
}
