package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CoverPool/internal/ledger"
	"CoverPool/internal/observability"
)

// QueryService provides read-only access to projection tables. All
// responses include as_of_sequence for freshness semantics: callers can
// compare it against the engine sequence to judge projection lag.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// GetPolicy returns one policy read model.
func (qs *QueryService) GetPolicy(ctx context.Context, policyID uuid.UUID) (*PolicyResponse, error) {
	defer qs.observe("policy", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p PolicyResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT policy_id, owner_id, asset, strike_price, coverage_amount, premium_amount,
		       status, months_active, total_premiums_paid, next_payment_due, grace_period_end
		FROM projections.policies
		WHERE policy_id = $1
	`, policyID).Scan(
		&p.PolicyID, &p.Owner, &p.Asset, &p.StrikePrice, &p.CoverageAmount, &p.PremiumAmount,
		&p.Status, &p.MonthsActive, &p.TotalPremiumsPaid, &p.NextPaymentDue, &p.GracePeriodEnd,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPoliciesByOwner returns all policies held by one member.
func (qs *QueryService) GetPoliciesByOwner(ctx context.Context, ownerID uuid.UUID) ([]PolicyResponse, error) {
	defer qs.observe("policies_by_owner", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT policy_id, owner_id, asset, strike_price, coverage_amount, premium_amount,
		       status, months_active, total_premiums_paid, next_payment_due, grace_period_end
		FROM projections.policies
		WHERE owner_id = $1
		ORDER BY policy_id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []PolicyResponse
	for rows.Next() {
		var p PolicyResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PolicyID, &p.Owner, &p.Asset, &p.StrikePrice, &p.CoverageAmount, &p.PremiumAmount,
			&p.Status, &p.MonthsActive, &p.TotalPremiumsPaid, &p.NextPaymentDue, &p.GracePeriodEnd,
		); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

// GetClaimHistory returns claim-related events for a policy with
// cursor-based pagination (descending sequence).
func (qs *QueryService) GetClaimHistory(
	ctx context.Context,
	policyID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]ClaimHistoryEntry, error) {
	defer qs.observe("claim_history", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, policy_id, proposal_id, kind, amount, occurred_at
		FROM projections.claim_history
		WHERE policy_id = $1
	`
	args := []interface{}{policyID}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ClaimHistoryEntry
	for rows.Next() {
		var h ClaimHistoryEntry
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.PolicyID, &h.ProposalID, &h.Kind, &h.Amount, &h.OccurredAt,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching a member's accounts
// with cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	memberID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	defer qs.observe("journal_history", time.Now())

	accountPrefix := fmt.Sprintf("member:%s:%%", memberID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetPoolSummary returns journaled pool and treasury balances.
func (qs *QueryService) GetPoolSummary(ctx context.Context) (*PoolSummary, error) {
	defer qs.observe("pool_summary", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	poolPath := ledger.NewSystemAccountKey(ledger.SubTypeSystemPool, ledger.QuoteAssetID()).AccountPath()
	treasuryPath := ledger.NewSystemAccountKey(ledger.SubTypeSystemTreasury, ledger.QuoteAssetID()).AccountPath()

	pool, err := qs.getProjectedBalance(ctx, poolPath)
	if err != nil {
		return nil, err
	}
	treasury, err := qs.getProjectedBalance(ctx, treasuryPath)
	if err != nil {
		return nil, err
	}

	return &PoolSummary{
		PoolBalance:     pool,
		TreasuryBalance: treasury,
		AsOfSequence:    asOfSeq,
	}, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the event log and the
// zero-sum invariant across projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer qs.observe("verify_integrity", time.Now())

	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 1 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (qs *QueryService) observe(endpoint string, start time.Time) {
	if qs.metrics != nil {
		qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
