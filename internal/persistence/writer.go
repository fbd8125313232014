package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventRow is the database representation of an event envelope.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	PolicyID       *string // nullable: pool-level and admin events carry none
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// JournalRow is the database representation of one journal entry.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   string
	Timestamp     int64
}

// EventLogWriter writes events and journals to the event_log schema.
// Batch writes run inside a caller-supplied transaction so an event and
// its journals commit atomically. ON CONFLICT DO NOTHING makes retried
// flushes safe after a partial failure.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch inserts events with a single multi-row statement.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO event_log.events
			(sequence, event_type, idempotency_key, policy_id, payload, state_hash, prev_hash, timestamp)
		VALUES `)

	args := make([]interface{}, 0, len(events)*8)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.PolicyID,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}
	sb.WriteString(" ON CONFLICT (sequence) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("write event batch: %w", err)
	}
	return nil
}

// WriteJournalBatch inserts journal entries with a single multi-row statement.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO event_log.journal
			(journal_id, batch_id, event_ref, sequence, debit_account, credit_account,
			 asset_id, amount, journal_type, timestamp)
		VALUES `)

	args := make([]interface{}, 0, len(journals)*10)
	for i, j := range journals {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, int32(j.AssetID), j.Amount,
			j.JournalType, j.Timestamp,
		)
	}
	sb.WriteString(" ON CONFLICT (journal_id) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("write journal batch: %w", err)
	}
	return nil
}
