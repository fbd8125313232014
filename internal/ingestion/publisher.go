package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CoverPool/internal/engine"
)

// OutboundPublisher publishes applied events to NATS for downstream
// consumers. Publishing is best-effort: the event log is the source of
// truth, so a failed publish is logged and skipped, never retried at the
// cost of stalling.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan engine.Output
	log       zerolog.Logger
}

// publishedEvent is the outbound wire format.
type publishedEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	PolicyID       *string         `json:"policy_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan engine.Output, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       logger.With().Str("component", "publisher").Logger(),
	}
}

// Run publishes until ctx is canceled or the channel closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out); err != nil {
				// Non-fatal: downstream consumers can query the event log.
				op.log.Warn().Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

// publish sends to cover.ledger.events.{event_type}.
func (op *OutboundPublisher) publish(ctx context.Context, out engine.Output) error {
	env := out.Envelope

	var policyID *string
	if env.PolicyID != nil {
		s := env.PolicyID.String()
		policyID = &s
	}

	data, err := json.Marshal(publishedEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		PolicyID:       policyID,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		Timestamp:      env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("cover.ledger.events.%s", env.EventType.String())
	_, err = op.js.Publish(ctx, subject, data)
	return err
}
