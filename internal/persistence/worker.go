package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"CoverPool/internal/engine"
	"CoverPool/internal/observability"
)

// ToEventRow flattens an engine output envelope into its database row.
func ToEventRow(out engine.Output) EventRow {
	env := out.Envelope

	var policyID *string
	if env.PolicyID != nil {
		s := env.PolicyID.String()
		policyID = &s
	}

	return EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		PolicyID:       policyID,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
	}
}

// ToJournalRows flattens an output's journal batch. Events without money
// movement (cancel, expire, votes, param updates) return nil.
func ToJournalRows(out engine.Output) []JournalRow {
	if out.Batch == nil {
		return nil
	}

	rows := make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		rows = append(rows, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			AssetID:       uint16(j.AssetID),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}
	return rows
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// This goroutine runs independently from the deterministic engine. The
// persist channel uses BLOCKING sends from the engine, so if this worker
// falls behind, the engine stalls rather than losing an event.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *EventLogWriter
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          logger.With().Str("component", "persistence").Logger(),
		metrics:      metrics,
	}
}

// Run processes outputs until ctx is canceled, then drains the channel and
// flushes whatever remains. Caller should close the persist channel after
// the engine has stopped producing.
func (pw *PersistenceWorker) Run(ctx context.Context) {
	var pending []engine.Output
	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case out, ok := <-pw.inputChan:
			if !ok {
				pw.finalFlush(pending)
				return
			}
			pending = append(pending, out)
			if len(pending) >= pw.batchSize {
				pw.flushWithRetry(ctx, pending)
				pending = pending[:0]
				resetTimer(timer, pw.flushTimeout)
			}

		case <-timer.C:
			if len(pending) > 0 {
				pw.flushWithRetry(ctx, pending)
				pending = pending[:0]
			}
			timer.Reset(pw.flushTimeout)

		case <-ctx.Done():
			// Drain anything the engine managed to enqueue before stopping.
		drain:
			for {
				select {
				case out, ok := <-pw.inputChan:
					if !ok {
						break drain
					}
					pending = append(pending, out)
				default:
					break drain
				}
			}
			pw.finalFlush(pending)
			return
		}
	}
}

// finalFlush writes remaining outputs with a background context: losing
// acknowledged events on shutdown is worse than a slow exit.
func (pw *PersistenceWorker) finalFlush(pending []engine.Output) {
	if len(pending) == 0 {
		pw.log.Info().Msg("persistence worker stopped, nothing pending")
		return
	}
	pw.log.Info().Int("pending", len(pending)).Msg("final flush before shutdown")

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pw.flushWithRetry(flushCtx, pending)
}

// flushWithRetry retries with exponential backoff until the flush succeeds
// or ctx expires. The event log is the source of truth: giving up on a
// batch would silently fork durable state from memory.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, pending []engine.Output) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		err := pw.flush(ctx, pending)
		if err == nil {
			return
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("flush").Inc()
			pw.metrics.PersistRetry.Inc()
		}
		pw.log.Error().Err(err).
			Int("batch", len(pending)).
			Dur("backoff", backoff).
			Msg("flush failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			pw.log.Error().Int("batch", len(pending)).Msg("flush abandoned, context expired")
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// flush writes the batch in a single transaction.
func (pw *PersistenceWorker) flush(ctx context.Context, pending []engine.Output) error {
	start := time.Now()

	events := make([]EventRow, 0, len(pending))
	var journals []JournalRow
	for _, out := range pending {
		events = append(events, ToEventRow(out))
		journals = append(journals, ToJournalRows(out)...)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		tx.Rollback()
		return err
	}
	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
	}

	pw.log.Debug().
		Int("events", len(events)).
		Int("journals", len(journals)).
		Int64("last_sequence", events[len(events)-1].Sequence).
		Msg("batch flushed")
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
