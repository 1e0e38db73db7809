// Package worker consumes analysis events from NATS JetStream
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ErrMalformed marks a message that can never be handled; it is terminated
// instead of redelivered
var ErrMalformed = errors.New("malformed event")

// MessageHandler processes the payload of one message
type MessageHandler func(ctx context.Context, subject string, data []byte) error

// message is the part of jetstream.Msg a worker needs
type message interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// BaseWorker provides the fetch loop shared by all workers
type BaseWorker struct {
	name          string
	workerID      string
	consumerName  string
	consumer      jetstream.Consumer
	handler       MessageHandler
	pollPeriod    time.Duration
	batchSize     int
	handleTimeout time.Duration
}

// BaseWorkerConfig configures a base worker
type BaseWorkerConfig struct {
	Name         string
	WorkerID     string
	ConsumerName string
	Handler      MessageHandler
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(cfg BaseWorkerConfig) *BaseWorker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("%s-%s", cfg.Name, uuid.New().String()[:8])
	}

	return &BaseWorker{
		name:          cfg.Name,
		workerID:      workerID,
		consumerName:  cfg.ConsumerName,
		handler:       cfg.Handler,
		pollPeriod:    5 * time.Second,
		batchSize:     10,
		handleTimeout: 30 * time.Second,
	}
}

// Name returns the worker name
func (w *BaseWorker) Name() string {
	return w.name
}

// ConsumerName returns the durable consumer the worker reads from
func (w *BaseWorker) ConsumerName() string {
	return w.consumerName
}

// Bind attaches the consumer the worker fetches from
func (w *BaseWorker) Bind(consumer jetstream.Consumer) {
	w.consumer = consumer
}

// Run fetches and handles messages until ctx is cancelled
func (w *BaseWorker) Run(ctx context.Context) error {
	if w.consumer == nil {
		return fmt.Errorf("worker %s has no consumer", w.name)
	}

	logger := log.With().
		Str("worker_id", w.workerID).
		Str("consumer", w.consumerName).
		Logger()

	logger.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				logger.Error().Err(err).Msg("error fetching events")
				// Back off before the next fetch
				select {
				case <-ctx.Done():
				case <-time.After(w.pollPeriod):
				}
			}
		}
	}
}

// processNext fetches one batch and handles every message in it
func (w *BaseWorker) processNext(ctx context.Context) error {
	msgs, err := w.consumer.Fetch(w.batchSize, jetstream.FetchMaxWait(w.pollPeriod))
	if err != nil {
		if isTimeout(err) || ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to fetch from NATS: %w", err)
	}

	for msg := range msgs.Messages() {
		w.process(ctx, msg)
	}

	if err := msgs.Error(); err != nil && !isTimeout(err) {
		return err
	}
	return nil
}

// process runs the handler and settles the message: ack on success, term
// for malformed payloads, nak otherwise so it is redelivered
func (w *BaseWorker) process(ctx context.Context, msg message) {
	handleCtx, cancel := context.WithTimeout(ctx, w.handleTimeout)
	defer cancel()

	err := w.handler(handleCtx, msg.Subject(), msg.Data())

	var settleErr error
	switch {
	case err == nil:
		settleErr = msg.Ack()
	case errors.Is(err, ErrMalformed):
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed event")
		settleErr = msg.Term()
	default:
		log.Warn().Err(err).Str("subject", msg.Subject()).Msg("event handling failed, will retry")
		settleErr = msg.Nak()
	}

	if settleErr != nil {
		log.Warn().Err(settleErr).Str("subject", msg.Subject()).Msg("failed to settle message")
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout)
}

// WorkerID returns the worker's unique ID
func (w *BaseWorker) WorkerID() string {
	return w.workerID
}

// SetPollPeriod sets the fetch wait
func (w *BaseWorker) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// SetBatchSize sets how many messages one fetch asks for
func (w *BaseWorker) SetBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}
