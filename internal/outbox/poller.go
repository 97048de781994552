package outbox

import (
	"context"
	"time"

	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/transaction"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Repo is the slice of the transaction ledger the poller reads.
type Repo interface {
	UnprocessedEvents(ctx context.Context, limit int) ([]*transaction.OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, id int64) error
	StuckAttempts(ctx context.Context, before time.Time) ([]*transaction.Attempt, error)

	// ReleaseAttempt restores the attempt's stock and closes it atomically.
	ReleaseAttempt(ctx context.Context, id string) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Poller publishes committed sale events to kafka and sweeps settlement
// attempts that reserved stock but never committed, releasing their stock.
// The sweep is the crash-reconciliation path: after a restart, stock held by
// an interrupted settlement flows back to the catalog.
type Poller struct {
	repo         Repo
	writer       MessageWriter
	clock        clock.Clock
	logger       *zap.Logger
	eventTick    time.Duration
	recoveryTick time.Duration
	stuckAfter   time.Duration
}

func NewPoller(repo Repo, writer MessageWriter, clk clock.Clock, logger *zap.Logger) *Poller {
	return &Poller{
		repo:         repo,
		writer:       writer,
		clock:        clk,
		logger:       logger,
		eventTick:    time.Second,
		recoveryTick: 5 * time.Second,
		stuckAfter:   time.Minute,
	}
}

// NewWriter builds the kafka writer the poller publishes through.
func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func (p *Poller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) processUnpublishedEvents(ctx context.Context) {
	if p.writer == nil {
		// No broker configured. Events stay queued in the outbox and the
		// recovery sweep keeps running.
		return
	}

	events, err := p.repo.UnprocessedEvents(ctx, 100)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Error("failed to publish event",
				zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark event as processed",
				zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}

func (p *Poller) recoverStuckAttempts(ctx context.Context) {
	cutoff := p.clock.Now().Add(-p.stuckAfter)
	attempts, err := p.repo.StuckAttempts(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to fetch stuck settlement attempts", zap.Error(err))
		return
	}

	for _, attempt := range attempts {
		p.logger.Warn("releasing stock of interrupted settlement",
			zap.String("attempt_id", attempt.ID),
			zap.Time("reserved_at", attempt.UpdatedAt))

		if err := p.repo.ReleaseAttempt(ctx, attempt.ID); err != nil {
			// Retried on the next sweep.
			p.logger.Error("failed to release stuck attempt",
				zap.String("attempt_id", attempt.ID), zap.Error(err))
		}
	}
}

func (p *Poller) publish(ctx context.Context, event *transaction.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // transaction id, for per-sale ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
