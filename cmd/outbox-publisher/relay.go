package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollEvery   = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	backoffJitter      = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher blocks until the broker acknowledges the message.
type topicPublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Ping       func(context.Context) error
	Events     eventStore
	DeadLetter deadLetterStore
	Resolver   eventResolver
	// Topic returns the publisher for a topic, or nil when none is configured.
	Topic func(topic string) topicPublisher
}

// Relay moves committed order and payment events from the outbox table to Pub/Sub.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	ping        func(context.Context) error
	events      eventStore
	deadLetter  deadLetterStore
	resolver    eventResolver
	topic       func(string) topicPublisher
	batchSize   int
	maxAttempts int
	pollEvery   time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetter == nil:
		return nil, errors.New("dlq repository is required")
	case p.Resolver == nil:
		return nil, errors.New("event registry is required")
	case p.Topic == nil:
		return nil, errors.New("topic publisher factory is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		ping:        p.Ping,
		events:      p.Events,
		deadLetter:  p.DeadLetter,
		resolver:    p.Resolver,
		topic:       p.Topic,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		pollEvery:   time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollEvery <= 0 {
		r.pollEvery = defaultPollEvery
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by another; an empty one waits for the poll interval and a
// failing one backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if r.ping != nil {
		if err := r.ping(ctx); err != nil {
			return fmt.Errorf("pubsub ping: %w", err)
		}
	}

	backoff := r.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = backoff.Next()
		case n > 0:
			backoff = r.newBackoff()
			continue
		default:
			backoff = r.newBackoff()
			wait = r.pollEvery
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.pollEvery)
	b = retry.WithJitter(backoffJitter, b)
	return retry.WithCappedDuration(maxIdleBackoff, b)
}

// drain handles one locked batch and returns how many rows it looked at.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var handled int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		handled = len(rows)
		for _, row := range rows {
			if err := r.deliver(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return handled, err
}

// deliver publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	fields := rowFields(row)

	resolved, err := r.resolver.Resolve(row)
	if err != nil {
		return r.bury(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID
	for k, v := range payloadFields(resolved.Payload) {
		fields[k] = v
	}

	pubErr := r.publish(ctx, row, resolved)
	if pubErr == nil {
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	if registry.IsPermanent(pubErr) {
		return r.bury(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}
	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		return r.bury(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr), fields)
	}

	logCtx := r.logg.WithFields(ctx, fields)
	r.logg.Warn(r.logg.WithField(logCtx, "error", pubErr.Error()), "outbox publish failed, will retry")
	if err := r.events.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub := r.topic(resolved.Descriptor.Topic)
	if pub == nil {
		return registry.Permanentf("no publisher for topic %q", resolved.Descriptor.Topic)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return pub.Publish(ctx, row.Payload, map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// bury copies the row to the dead letter table and stops further attempts.
func (r *Relay) bury(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := r.logg.WithFields(ctx, fields)
	r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox event moved to dead letter")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.deadLetter.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

// payloadFields lifts the business identifiers support staff search logs by.
func payloadFields(payload any) map[string]any {
	switch p := payload.(type) {
	case *payloads.OrderCreatedEvent:
		return map[string]any{"order_number": p.OrderNumber, "total": p.Total.StringFixed(2), "currency": p.Currency}
	case *payloads.OrderStatusChangedEvent:
		return map[string]any{"order_number": p.OrderNumber, "from": p.From, "to": p.To}
	case *payloads.OrderCancelledEvent:
		return map[string]any{"order_number": p.OrderNumber, "restored_lines": len(p.Restored)}
	case *payloads.PaymentEvent:
		return map[string]any{"payment_reference": p.Reference, "payment_status": p.Status, "method": p.Method}
	default:
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
