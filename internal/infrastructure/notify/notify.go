package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
)

type EventType string

const (
	EventProposalCreated  EventType = "proposal.created"
	EventProposalRejected EventType = "proposal.rejected"
)

type Event struct {
	Type        EventType       `json:"type"`
	ProposalID  string          `json:"proposal_id"`
	BorrowerID  string          `json:"borrower_id"`
	Flow        loan.Flow       `json:"flow"`
	Installment decimal.Decimal `json:"installment"`
	Shortfall   decimal.Decimal `json:"shortfall"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Notifier delivers proposal events to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// RedisPublisher publishes events as JSON on a pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

func (p *RedisPublisher) Notify(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.Type, err)
	}
	p.logger.DebugContext(ctx, "publishing proposal event",
		"event_type", evt.Type,
		"proposal_id", evt.ProposalID,
		"channel", p.channel,
	)
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// LogNotifier writes an audit line per event.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier { return &LogNotifier{logger: logger} }

func (n *LogNotifier) Notify(ctx context.Context, evt Event) error {
	n.logger.InfoContext(ctx, "proposal event",
		"event_type", evt.Type,
		"proposal_id", evt.ProposalID,
		"borrower_id", evt.BorrowerID,
		"flow", evt.Flow,
		"installment", evt.Installment.StringFixed(2),
		"shortfall", evt.Shortfall.StringFixed(2),
	)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
