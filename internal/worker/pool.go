package worker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	healthnats "github.com/QTest-hq/codehealth/internal/nats"
)

// WorkerType represents the type of worker
type WorkerType string

const (
	WorkerCritical WorkerType = "critical"
	WorkerRuns     WorkerType = "runs"
	WorkerAll      WorkerType = "all"
)

// Worker is the interface all workers must implement
type Worker interface {
	Name() string
	ConsumerName() string
	Bind(consumer jetstream.Consumer)
	Run(ctx context.Context) error
}

// Pool manages a pool of workers
type Pool struct {
	workerType WorkerType
	workers    []Worker
	nats       *healthnats.Client
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerType string
	NATS       *healthnats.Client
	Alert      AlertFunc
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) (*Pool, error) {
	p := &Pool{
		workerType: WorkerType(cfg.WorkerType),
		workers:    make([]Worker, 0),
		nats:       cfg.NATS,
	}

	switch p.workerType {
	case WorkerAll:
		p.workers = append(p.workers, NewCriticalWatcher(cfg.Alert), NewRunWatcher(cfg.Alert))
	case WorkerCritical:
		p.workers = append(p.workers, NewCriticalWatcher(cfg.Alert))
	case WorkerRuns:
		p.workers = append(p.workers, NewRunWatcher(cfg.Alert))
	default:
		return nil, fmt.Errorf("unknown worker type: %s", p.workerType)
	}

	return p, nil
}

// Run binds every worker to its consumer and blocks until ctx is cancelled
func (p *Pool) Run(ctx context.Context) error {
	if len(p.workers) == 0 {
		return fmt.Errorf("no workers configured")
	}
	if p.nats == nil || !p.nats.IsConnected() {
		return fmt.Errorf("workers need a NATS connection")
	}

	if err := p.nats.SetupStreams(ctx); err != nil {
		return fmt.Errorf("failed to setup NATS streams: %w", err)
	}
	log.Info().Msg("NATS streams configured")

	for _, w := range p.workers {
		consumer, err := p.nats.JetStream().Consumer(ctx, healthnats.StreamAnalysis, w.ConsumerName())
		if err != nil {
			return fmt.Errorf("failed to get consumer %s: %w", w.ConsumerName(), err)
		}
		w.Bind(consumer)
	}

	errCh := make(chan error, len(p.workers))

	// Start all workers
	for _, w := range p.workers {
		go func(worker Worker) {
			log.Info().Str("worker", worker.Name()).Msg("starting worker")
			if err := worker.Run(ctx); err != nil {
				errCh <- fmt.Errorf("worker %s failed: %w", worker.Name(), err)
			}
		}(w)
	}

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		log.Info().Msg("context cancelled, stopping workers")
		return nil
	case err := <-errCh:
		return err
	}
}

// Workers returns the configured workers
func (p *Pool) Workers() []Worker {
	return p.workers
}
