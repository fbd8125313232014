package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CoverPool/internal/claims"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	fpmath "CoverPool/internal/math"
	"CoverPool/internal/observability"
	"CoverPool/internal/oracle"
	"CoverPool/internal/policy"
	"CoverPool/internal/pool"
	"CoverPool/internal/token"
)

var (
	ErrMissingRef            = errors.New("idempotency ref must be set")
	ErrDuplicateCommand      = errors.New("duplicate command")
	ErrNoBreach              = errors.New("oracle price has not breached the strike")
	ErrNoReward              = errors.New("no loyalty reward available")
	ErrFlashAmountTooLarge   = errors.New("amount exceeds flash claim threshold")
	ErrAmountExceedsCoverage = errors.New("amount exceeds policy coverage")
	ErrInvalidParam          = errors.New("invalid parameter value")
)

// Params are the tunable protocol parameters. Admin operations mutate
// them at runtime; every change is recorded as a ParamUpdated event.
type Params struct {
	GraceDays              uint32
	FeeBps                 uint32
	FlashClaimThreshold    uint64
	LoyaltyMonthsThreshold uint32
	LoyaltyRewardBps       uint32

	// TreasuryAccount is the member wallet designated to receive
	// accumulated protocol fees on settlement. Zero means fees stay in
	// the internal treasury account.
	TreasuryAccount uuid.UUID
}

func DefaultParams() Params {
	return Params{
		GraceDays:              15,
		FeeBps:                 100,
		FlashClaimThreshold:    100_000_000,
		LoyaltyMonthsThreshold: 12,
		LoyaltyRewardBps:       500,
	}
}

func (p Params) graceSeconds() int64 {
	return int64(p.GraceDays) * 24 * 3600
}

// Output is what the engine emits per applied event: the envelope for
// the event log plus the journal batch (nil for state-only events) and
// the decoded payload for downstream publishers.
type Output struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch
	Event    event.Event
}

// Config wires an Engine.
type Config struct {
	Oracle    oracle.Client
	Transfer  token.Transferer
	Params    Params
	VoteScope claims.VoteScope

	// PersistChan receives every applied event; sends BLOCK when full so
	// nothing is ever lost ahead of the event log. ProjectionChan is
	// best-effort: sends are dropped when full and the projection worker
	// catches up from Postgres.
	PersistChan    chan<- Output
	ProjectionChan chan<- Output

	DBChecker   DBIdempotencyChecker
	LRUCapacity int

	Clock   func() time.Time
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Engine is the single writer over all insurance state: policies, the
// pool, claim proposals, and the journaled ledger. Every operation runs
// under one lock, emits exactly one event per state transition, and
// extends the state-hash chain.
type Engine struct {
	mu       sync.Mutex
	sequence int64

	policies  *policy.Ledger
	pool      *pool.Accounting
	claimsEng *claims.Engine

	oracle   oracle.Client
	transfer token.Transferer

	tracker    *ledger.BalanceTracker
	journalGen *ledger.JournalGenerator
	validator  *ledger.InvariantValidator

	hasher      *StateHasher
	idempotency *IdempotencyChecker
	params      Params

	persistChan    chan<- Output
	projectionChan chan<- Output

	activePolicies   int64
	openProposals    int64
	lastLRUEvictions int64

	clock   func() time.Time
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = 100_000
	}

	tracker := ledger.NewBalanceTracker()

	idem := NewIdempotencyChecker(cfg.LRUCapacity, cfg.DBChecker)
	idem.prom = cfg.Metrics

	return &Engine{
		sequence:       1,
		policies:       policy.NewLedger(),
		pool:           pool.NewAccounting(),
		claimsEng:      claims.NewEngine(cfg.VoteScope),
		oracle:         cfg.Oracle,
		transfer:       cfg.Transfer,
		tracker:        tracker,
		journalGen:     ledger.NewJournalGenerator(1, tracker),
		validator:      ledger.NewInvariantValidator(tracker),
		hasher:         NewStateHasher(),
		idempotency:    idem,
		params:         cfg.Params,
		persistChan:    cfg.PersistChan,
		projectionChan: cfg.ProjectionChan,
		clock:          cfg.Clock,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

// ============================================================================
// Policy lifecycle
// ============================================================================

// CreatePolicy opens a policy, collecting the first premium up front.
// The fee split goes to the treasury; the net enters the pool.
func (e *Engine) CreatePolicy(ref string, owner uuid.UUID, asset string, strike, coverage, premium uint64) (*policy.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypePolicyCreated, time.Now())

	if err := e.checkDuplicate(event.EventTypePolicyCreated, ref); err != nil {
		return nil, err
	}
	ts := e.clock()
	now := ts.Unix()

	if !e.oracle.Supported(asset) {
		e.rejected(event.EventTypePolicyCreated, "unsupported_asset")
		return nil, fmt.Errorf("asset %s: %w", asset, oracle.ErrUnsupportedAsset)
	}
	if strike == 0 || coverage == 0 || premium == 0 {
		e.rejected(event.EventTypePolicyCreated, "validation")
		return nil, fmt.Errorf("strike, coverage and premium must be non-zero: %w", policy.ErrInvalidInput)
	}

	net, fee, err := pool.ApplyFee(premium, e.params.FeeBps)
	if err != nil {
		e.rejected(event.EventTypePolicyCreated, "validation")
		return nil, err
	}

	// Funds cross the boundary before any state mutation
	if err := e.transfer.TransferFrom(owner, premium); err != nil {
		e.rejected(event.EventTypePolicyCreated, "transfer")
		return nil, fmt.Errorf("collect premium: %w", err)
	}

	p, err := e.policies.Create(owner, asset, strike, coverage, premium, e.params.graceSeconds(), now)
	if err != nil {
		e.refund(owner, premium)
		return nil, err
	}
	batch, err := e.journalGen.GeneratePremium(owner, ref, premium, net, fee, now)
	if err != nil {
		panic(fmt.Sprintf("premium journal for policy %s: %v", p.ID, err))
	}
	if err := e.pool.Credit(net); err != nil {
		panic(fmt.Sprintf("pool credit for policy %s: %v", p.ID, err))
	}
	if err := e.pool.AddExposure(coverage); err != nil {
		panic(fmt.Sprintf("pool exposure for policy %s: %v", p.ID, err))
	}

	e.commit(&event.PolicyCreated{
		Ref:            ref,
		ID:             p.ID,
		Owner:          owner,
		Asset:          asset,
		StrikePrice:    strike,
		CoverageAmount: coverage,
		PremiumAmount:  premium,
		FeePaid:        fee,
		NetToPool:      net,
		CreatedAt:      now,
		NextPaymentDue: p.NextPaymentDue,
		GracePeriodEnd: p.GracePeriodEnd,
	}, batch, ts)

	e.activePolicies++
	return p, nil
}

// PayPremium collects a monthly renewal. A policy past its grace period
// is lapsed first and the payment is rejected.
func (e *Engine) PayPremium(ref string, policyID, payer uuid.UUID) (*policy.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypePremiumPaid, time.Now())

	if err := e.checkDuplicate(event.EventTypePremiumPaid, ref); err != nil {
		return nil, err
	}
	ts := e.clock()
	now := ts.Unix()

	expired, p, err := e.expireIfLapsed(policyID, ts)
	if err != nil {
		e.rejected(event.EventTypePremiumPaid, "not_found")
		return nil, err
	}
	if expired {
		e.rejected(event.EventTypePremiumPaid, "lapsed")
		return nil, fmt.Errorf("policy %s: %w", policyID, policy.ErrPolicyLapsed)
	}

	// Pre-validate before funds move; the ledger re-checks as a backstop.
	if p.Owner != payer {
		e.rejected(event.EventTypePremiumPaid, "unauthorized")
		return nil, fmt.Errorf("payer %s: %w", payer, policy.ErrUnauthorized)
	}
	if !p.Active {
		e.rejected(event.EventTypePremiumPaid, "inactive")
		return nil, fmt.Errorf("policy %s: %w", policyID, policy.ErrInactive)
	}
	if now < p.NextPaymentDue {
		e.rejected(event.EventTypePremiumPaid, "not_due")
		return nil, fmt.Errorf("due at %d, now %d: %w", p.NextPaymentDue, now, policy.ErrPaymentNotYetDue)
	}

	premium := p.PremiumAmount
	net, fee, err := pool.ApplyFee(premium, e.params.FeeBps)
	if err != nil {
		e.rejected(event.EventTypePremiumPaid, "validation")
		return nil, err
	}

	if err := e.transfer.TransferFrom(payer, premium); err != nil {
		e.rejected(event.EventTypePremiumPaid, "transfer")
		return nil, fmt.Errorf("collect premium: %w", err)
	}

	p, rec, err := e.policies.PayPremium(policyID, payer, e.params.graceSeconds(), now)
	if err != nil {
		e.refund(payer, premium)
		return nil, err
	}
	batch, err := e.journalGen.GeneratePremium(payer, ref, premium, net, fee, now)
	if err != nil {
		panic(fmt.Sprintf("premium journal for policy %s: %v", policyID, err))
	}
	if err := e.pool.Credit(net); err != nil {
		panic(fmt.Sprintf("pool credit for policy %s: %v", policyID, err))
	}

	e.commit(&event.PremiumPaid{
		Ref:               ref,
		ID:                p.ID,
		Owner:             p.Owner,
		MonthIndex:        rec.MonthIndex,
		Amount:            premium,
		FeePaid:           fee,
		NetToPool:         net,
		NextPaymentDue:    p.NextPaymentDue,
		GracePeriodEnd:    p.GracePeriodEnd,
		MonthsActive:      p.MonthsActive,
		MonthsSinceClaim:  p.MonthsSinceClaim,
		TotalPremiumsPaid: p.TotalPremiumsPaid,
		PaidAt:            now,
	}, batch, ts)

	return p, nil
}

// CancelPolicy deactivates a policy at the owner's request. Premiums
// already paid are not refunded; the pool's exposure is released.
func (e *Engine) CancelPolicy(ref string, policyID, caller uuid.UUID) (*policy.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypePolicyCanceled, time.Now())

	if err := e.checkDuplicate(event.EventTypePolicyCanceled, ref); err != nil {
		return nil, err
	}
	ts := e.clock()

	p, err := e.policies.Cancel(policyID, caller)
	if err != nil {
		e.rejected(event.EventTypePolicyCanceled, "validation")
		return nil, err
	}
	if err := e.pool.ReleaseExposure(p.CoverageAmount); err != nil {
		panic(fmt.Sprintf("release exposure for policy %s: %v", policyID, err))
	}

	e.commit(&event.PolicyCanceled{
		Ref:              ref,
		ID:               p.ID,
		Owner:            p.Owner,
		CoverageReleased: p.CoverageAmount,
		CanceledAt:       ts.Unix(),
	}, nil, ts)

	e.activePolicies--
	return p, nil
}

// CheckExpiry lapses a single policy past its grace period. Idempotent.
func (e *Engine) CheckExpiry(policyID uuid.UUID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	expired, _, err := e.expireIfLapsed(policyID, e.clock())
	return expired, err
}

// SweepExpired lapses every policy past its grace period and returns the
// count. Driven by the cron scheduler.
func (e *Engine) SweepExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.clock()
	count := 0
	for _, p := range e.policies.GetAll() {
		if !p.Active {
			continue
		}
		expired, _, err := e.expireIfLapsed(p.ID, ts)
		if err != nil {
			continue
		}
		if expired {
			count++
		}
	}

	if e.metrics != nil {
		e.metrics.SweepRuns.Inc()
		e.metrics.SweepExpired.Add(float64(count))
	}
	if count > 0 {
		e.log.Info().Int("expired", count).Msg("expiry sweep lapsed policies")
	}
	return count
}

// expireIfLapsed runs the lapse check and, when the policy expires,
// releases exposure and emits PolicyExpired under a deterministic ref.
// Callers hold the engine lock.
func (e *Engine) expireIfLapsed(policyID uuid.UUID, ts time.Time) (bool, *policy.Policy, error) {
	expired, p, err := e.policies.CheckExpiry(policyID, ts.Unix())
	if err != nil {
		return false, nil, err
	}
	if !expired {
		return false, p, nil
	}

	if err := e.pool.ReleaseExposure(p.CoverageAmount); err != nil {
		panic(fmt.Sprintf("release exposure for policy %s: %v", policyID, err))
	}

	e.commit(&event.PolicyExpired{
		Ref:              "expire:" + p.ID.String(),
		ID:               p.ID,
		Owner:            p.Owner,
		CoverageReleased: p.CoverageAmount,
		ExpiredAt:        ts.Unix(),
	}, nil, ts)

	e.activePolicies--
	return true, p, nil
}

// ============================================================================
// Claims
// ============================================================================

// CheckAndPayout pays the full coverage to the owner when the oracle
// price is strictly below the strike. Terminal for the policy.
func (e *Engine) CheckAndPayout(ref string, policyID uuid.UUID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeClaimPaid, time.Now())

	if err := e.checkDuplicate(event.EventTypeClaimPaid, ref); err != nil {
		return 0, err
	}
	ts := e.clock()
	now := ts.Unix()

	expired, p, err := e.expireIfLapsed(policyID, ts)
	if err != nil {
		e.rejected(event.EventTypeClaimPaid, "not_found")
		return 0, err
	}
	if expired {
		e.rejected(event.EventTypeClaimPaid, "lapsed")
		return 0, fmt.Errorf("policy %s: %w", policyID, policy.ErrPolicyLapsed)
	}
	if !p.Active {
		e.rejected(event.EventTypeClaimPaid, "inactive")
		return 0, fmt.Errorf("policy %s: %w", policyID, policy.ErrInactive)
	}

	price, err := e.oracle.Price(p.Asset, now)
	if err != nil {
		e.rejected(event.EventTypeClaimPaid, "oracle")
		return 0, err
	}
	if price >= p.StrikePrice {
		e.rejected(event.EventTypeClaimPaid, "no_breach")
		return 0, fmt.Errorf("price %d, strike %d: %w", price, p.StrikePrice, ErrNoBreach)
	}
	if !e.pool.CanCover(p.CoverageAmount) {
		e.rejected(event.EventTypeClaimPaid, "pool_funds")
		return 0, fmt.Errorf("payout %d: %w", p.CoverageAmount, pool.ErrInsufficientPoolBalance)
	}

	batch, err := e.journalGen.GenerateClaimPayout(p.Owner, ref, p.CoverageAmount, now)
	if err != nil {
		e.rejected(event.EventTypeClaimPaid, "journal")
		return 0, err
	}
	if err := e.transfer.TransferTo(p.Owner, p.CoverageAmount); err != nil {
		e.rejected(event.EventTypeClaimPaid, "transfer")
		return 0, fmt.Errorf("pay claim: %w", err)
	}

	e.payFromPool(p.CoverageAmount)
	if err := e.pool.ReleaseExposure(p.CoverageAmount); err != nil {
		panic(fmt.Sprintf("release exposure for policy %s: %v", policyID, err))
	}
	if err := e.policies.RecordClaim(policyID, now); err != nil {
		panic(fmt.Sprintf("record claim for policy %s: %v", policyID, err))
	}
	if _, err := e.policies.Deactivate(policyID); err != nil {
		panic(fmt.Sprintf("deactivate policy %s: %v", policyID, err))
	}

	e.commit(&event.ClaimPaid{
		Ref:         ref,
		ID:          p.ID,
		Owner:       p.Owner,
		Amount:      p.CoverageAmount,
		OraclePrice: price,
		StrikePrice: p.StrikePrice,
		PaidAt:      now,
	}, batch, ts)

	e.activePolicies--
	return p.CoverageAmount, nil
}

// FlashClaim pays a partial amount under the flash threshold without
// voting. Requires a live breach; the policy stays active but the
// claim-free streak resets.
func (e *Engine) FlashClaim(ref string, policyID, caller uuid.UUID, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeFlashClaimPaid, time.Now())

	if err := e.checkDuplicate(event.EventTypeFlashClaimPaid, ref); err != nil {
		return 0, err
	}
	ts := e.clock()
	now := ts.Unix()

	expired, p, err := e.expireIfLapsed(policyID, ts)
	if err != nil {
		e.rejected(event.EventTypeFlashClaimPaid, "not_found")
		return 0, err
	}
	if expired {
		e.rejected(event.EventTypeFlashClaimPaid, "lapsed")
		return 0, fmt.Errorf("policy %s: %w", policyID, policy.ErrPolicyLapsed)
	}
	if !p.Active {
		e.rejected(event.EventTypeFlashClaimPaid, "inactive")
		return 0, fmt.Errorf("policy %s: %w", policyID, policy.ErrInactive)
	}
	if p.Owner != caller {
		e.rejected(event.EventTypeFlashClaimPaid, "unauthorized")
		return 0, fmt.Errorf("caller %s: %w", caller, policy.ErrUnauthorized)
	}
	if amount == 0 {
		e.rejected(event.EventTypeFlashClaimPaid, "validation")
		return 0, fmt.Errorf("amount must be non-zero: %w", policy.ErrInvalidInput)
	}
	if amount > e.params.FlashClaimThreshold {
		e.rejected(event.EventTypeFlashClaimPaid, "threshold")
		return 0, fmt.Errorf("amount %d, threshold %d: %w", amount, e.params.FlashClaimThreshold, ErrFlashAmountTooLarge)
	}
	if amount > p.CoverageAmount {
		e.rejected(event.EventTypeFlashClaimPaid, "coverage")
		return 0, fmt.Errorf("amount %d, coverage %d: %w", amount, p.CoverageAmount, ErrAmountExceedsCoverage)
	}

	price, err := e.oracle.Price(p.Asset, now)
	if err != nil {
		e.rejected(event.EventTypeFlashClaimPaid, "oracle")
		return 0, err
	}
	if price >= p.StrikePrice {
		e.rejected(event.EventTypeFlashClaimPaid, "no_breach")
		return 0, fmt.Errorf("price %d, strike %d: %w", price, p.StrikePrice, ErrNoBreach)
	}
	if !e.pool.CanCover(amount) {
		e.rejected(event.EventTypeFlashClaimPaid, "pool_funds")
		return 0, fmt.Errorf("payout %d: %w", amount, pool.ErrInsufficientPoolBalance)
	}

	batch, err := e.journalGen.GenerateFlashClaimPayout(p.Owner, ref, amount, now)
	if err != nil {
		e.rejected(event.EventTypeFlashClaimPaid, "journal")
		return 0, err
	}
	if err := e.transfer.TransferTo(p.Owner, amount); err != nil {
		e.rejected(event.EventTypeFlashClaimPaid, "transfer")
		return 0, fmt.Errorf("pay flash claim: %w", err)
	}

	e.payFromPool(amount)
	if err := e.policies.RecordClaim(policyID, now); err != nil {
		panic(fmt.Sprintf("record claim for policy %s: %v", policyID, err))
	}

	e.commit(&event.FlashClaimPaid{
		Ref:         ref,
		ID:          p.ID,
		Owner:       p.Owner,
		Amount:      amount,
		OraclePrice: price,
		PaidAt:      now,
	}, batch, ts)

	return amount, nil
}

// ClaimLoyaltyReward pays reward = totalPremiumsPaid * loyaltyRewardBps
// after loyaltyMonthsThreshold claim-free months, then resets the streak.
func (e *Engine) ClaimLoyaltyReward(ref string, policyID, caller uuid.UUID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeLoyaltyRewardClaimed, time.Now())

	if err := e.checkDuplicate(event.EventTypeLoyaltyRewardClaimed, ref); err != nil {
		return 0, err
	}
	ts := e.clock()
	now := ts.Unix()

	expired, p, err := e.expireIfLapsed(policyID, ts)
	if err != nil {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "not_found")
		return 0, err
	}
	if expired {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "lapsed")
		return 0, fmt.Errorf("policy %s: %w", policyID, policy.ErrPolicyLapsed)
	}
	if !p.Active {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "inactive")
		return 0, fmt.Errorf("policy %s: %w", policyID, policy.ErrInactive)
	}
	if p.Owner != caller {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "unauthorized")
		return 0, fmt.Errorf("caller %s: %w", caller, policy.ErrUnauthorized)
	}

	streak := p.MonthsSinceClaim
	if streak < e.params.LoyaltyMonthsThreshold {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "not_eligible")
		return 0, fmt.Errorf("streak %d months, need %d: %w", streak, e.params.LoyaltyMonthsThreshold, ErrNoReward)
	}
	reward, err := fpmath.Bps(p.TotalPremiumsPaid, e.params.LoyaltyRewardBps)
	if err != nil {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "validation")
		return 0, err
	}
	if reward == 0 {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "zero_reward")
		return 0, fmt.Errorf("premiums %d at %d bps: %w", p.TotalPremiumsPaid, e.params.LoyaltyRewardBps, ErrNoReward)
	}
	if !e.pool.CanCover(reward) {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "pool_funds")
		return 0, fmt.Errorf("pool cannot fund reward of %d: %w", reward, ErrNoReward)
	}

	batch, err := e.journalGen.GenerateLoyaltyPayout(p.Owner, ref, reward, now)
	if err != nil {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "journal")
		return 0, err
	}
	if err := e.transfer.TransferTo(p.Owner, reward); err != nil {
		e.rejected(event.EventTypeLoyaltyRewardClaimed, "transfer")
		return 0, fmt.Errorf("pay reward: %w", err)
	}

	if err := e.pool.Debit(reward); err != nil {
		panic(fmt.Sprintf("pool debit for reward on policy %s: %v", policyID, err))
	}
	if err := e.policies.RecordLoyaltyReward(policyID, reward); err != nil {
		panic(fmt.Sprintf("record reward for policy %s: %v", policyID, err))
	}

	e.commit(&event.LoyaltyRewardClaimed{
		Ref:              ref,
		ID:               p.ID,
		Owner:            p.Owner,
		Reward:           reward,
		MonthsSinceClaim: streak,
		PaidAt:           now,
	}, batch, ts)

	return reward, nil
}

// ============================================================================
// Claim voting
// ============================================================================

// SubmitClaim opens a community claim proposal for an active policy.
func (e *Engine) SubmitClaim(ref string, policyID, claimant uuid.UUID, amount uint64, reason string) (*claims.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeClaimSubmitted, time.Now())

	if err := e.checkDuplicate(event.EventTypeClaimSubmitted, ref); err != nil {
		return nil, err
	}
	ts := e.clock()
	now := ts.Unix()

	expired, p, err := e.expireIfLapsed(policyID, ts)
	if err != nil {
		e.rejected(event.EventTypeClaimSubmitted, "not_found")
		return nil, err
	}
	if expired {
		e.rejected(event.EventTypeClaimSubmitted, "lapsed")
		return nil, fmt.Errorf("policy %s: %w", policyID, policy.ErrPolicyLapsed)
	}
	if !p.Active {
		e.rejected(event.EventTypeClaimSubmitted, "inactive")
		return nil, fmt.Errorf("policy %s: %w", policyID, policy.ErrInactive)
	}
	if p.Owner != claimant {
		e.rejected(event.EventTypeClaimSubmitted, "unauthorized")
		return nil, fmt.Errorf("claimant %s: %w", claimant, policy.ErrUnauthorized)
	}
	if amount > p.CoverageAmount {
		e.rejected(event.EventTypeClaimSubmitted, "coverage")
		return nil, fmt.Errorf("amount %d, coverage %d: %w", amount, p.CoverageAmount, ErrAmountExceedsCoverage)
	}

	prop, err := e.claimsEng.Submit(policyID, claimant, amount, reason, now)
	if err != nil {
		e.rejected(event.EventTypeClaimSubmitted, "validation")
		return nil, err
	}

	e.commit(&event.ClaimSubmitted{
		Ref:         ref,
		ProposalID:  prop.ID,
		ID:          policyID,
		Claimant:    claimant,
		Amount:      amount,
		Reason:      reason,
		SubmittedAt: now,
	}, nil, ts)

	e.openProposals++
	if e.metrics != nil {
		e.metrics.ProposalsOpen.Set(float64(e.openProposals))
	}
	return prop, nil
}

// VoteClaim records one vote under the configured scope.
func (e *Engine) VoteClaim(ref string, proposalID, voter uuid.UUID, approve bool) (*claims.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeClaimVoted, time.Now())

	if err := e.checkDuplicate(event.EventTypeClaimVoted, ref); err != nil {
		return nil, err
	}
	ts := e.clock()

	prop, err := e.claimsEng.Vote(proposalID, voter, approve)
	if err != nil {
		e.rejected(event.EventTypeClaimVoted, "validation")
		return nil, err
	}

	e.commit(&event.ClaimVoted{
		Ref:        ref,
		ProposalID: prop.ID,
		Voter:      voter,
		Approve:    approve,
		YesVotes:   prop.YesVotes,
		NoVotes:    prop.NoVotes,
		VotedAt:    ts.Unix(),
	}, nil, ts)

	return prop, nil
}

// FinalizeClaim closes voting once quorum is met. An approved, funded
// proposal pays the claimant and terminates the policy. An approved but
// unfunded (or dead-policy) proposal still executes, pays nothing, and
// surfaces the error to the caller.
func (e *Engine) FinalizeClaim(ref string, proposalID uuid.UUID) (bool, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeClaimPaidViaVote, time.Now())

	if ref == "" {
		return false, 0, ErrMissingRef
	}
	// Either outcome event can carry this ref
	if e.idempotency.IsDuplicate(event.EventTypeClaimPaidViaVote.String(), ref) ||
		e.idempotency.IsDuplicate(event.EventTypeClaimRejected.String(), ref) {
		e.rejected(event.EventTypeClaimPaidViaVote, "duplicate")
		return false, 0, fmt.Errorf("ref %s: %w", ref, ErrDuplicateCommand)
	}
	ts := e.clock()
	now := ts.Unix()

	approved, prop, err := e.claimsEng.Finalize(proposalID)
	if err != nil {
		e.rejected(event.EventTypeClaimPaidViaVote, "validation")
		return false, 0, err
	}

	e.openProposals--
	if e.metrics != nil {
		e.metrics.ProposalsOpen.Set(float64(e.openProposals))
	}

	if !approved {
		e.commit(&event.ClaimRejected{
			Ref:        ref,
			ProposalID: prop.ID,
			ID:         prop.PolicyID,
			YesVotes:   prop.YesVotes,
			NoVotes:    prop.NoVotes,
			Approved:   false,
			ExecutedAt: now,
		}, nil, ts)
		return false, 0, nil
	}

	rejectApproved := func() {
		e.commit(&event.ClaimRejected{
			Ref:        ref,
			ProposalID: prop.ID,
			ID:         prop.PolicyID,
			YesVotes:   prop.YesVotes,
			NoVotes:    prop.NoVotes,
			Approved:   true,
			ExecutedAt: now,
		}, nil, ts)
	}

	p, err := e.policies.Get(prop.PolicyID)
	if err != nil || !p.Active {
		rejectApproved()
		return true, 0, fmt.Errorf("policy %s: %w", prop.PolicyID, policy.ErrInactive)
	}
	if !e.pool.CanCover(prop.Amount) {
		rejectApproved()
		return true, 0, fmt.Errorf("proposal %s approved but unfunded: %w", prop.ID, pool.ErrInsufficientPoolBalance)
	}

	batch, err := e.journalGen.GenerateClaimPayout(prop.Claimant, ref, prop.Amount, now)
	if err != nil {
		rejectApproved()
		return true, 0, err
	}
	if err := e.transfer.TransferTo(prop.Claimant, prop.Amount); err != nil {
		rejectApproved()
		return true, 0, fmt.Errorf("pay claim: %w", err)
	}

	e.payFromPool(prop.Amount)
	if err := e.pool.ReleaseExposure(p.CoverageAmount); err != nil {
		panic(fmt.Sprintf("release exposure for policy %s: %v", p.ID, err))
	}
	if err := e.policies.RecordClaim(p.ID, now); err != nil {
		panic(fmt.Sprintf("record claim for policy %s: %v", p.ID, err))
	}
	if _, err := e.policies.Deactivate(p.ID); err != nil {
		panic(fmt.Sprintf("deactivate policy %s: %v", p.ID, err))
	}

	e.commit(&event.ClaimPaidViaVote{
		Ref:        ref,
		ProposalID: prop.ID,
		ID:         p.ID,
		Claimant:   prop.Claimant,
		Amount:     prop.Amount,
		YesVotes:   prop.YesVotes,
		NoVotes:    prop.NoVotes,
		ExecutedAt: now,
	}, batch, ts)

	e.activePolicies--
	return true, prop.Amount, nil
}

// ============================================================================
// Liquidity
// ============================================================================

// DepositLiquidity mints LP shares against a pool contribution.
func (e *Engine) DepositLiquidity(ref string, provider uuid.UUID, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypePoolFunded, time.Now())

	if err := e.checkDuplicate(event.EventTypePoolFunded, ref); err != nil {
		return 0, err
	}
	ts := e.clock()
	now := ts.Unix()

	if _, err := e.pool.PreviewDeposit(amount); err != nil {
		e.rejected(event.EventTypePoolFunded, "validation")
		return 0, err
	}
	batch, err := e.journalGen.GenerateLiquidityDeposit(provider, ref, amount, now)
	if err != nil {
		e.rejected(event.EventTypePoolFunded, "journal")
		return 0, err
	}

	if err := e.transfer.TransferFrom(provider, amount); err != nil {
		e.rejected(event.EventTypePoolFunded, "transfer")
		return 0, fmt.Errorf("collect deposit: %w", err)
	}

	minted, err := e.pool.Deposit(provider, amount)
	if err != nil {
		// Previewed above: a failure here is a code bug
		panic(fmt.Sprintf("deposit for provider %s: %v", provider, err))
	}

	e.commit(&event.PoolFunded{
		Ref:          ref,
		Provider:     provider,
		Amount:       amount,
		SharesMinted: minted,
		PoolBalance:  e.pool.Balance(),
		TotalShares:  e.pool.TotalShares(),
		FundedAt:     now,
	}, batch, ts)

	return minted, nil
}

// WithdrawLiquidity redeems shares for their proportional pool value.
func (e *Engine) WithdrawLiquidity(ref string, provider uuid.UUID, shares uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypeLPWithdraw, time.Now())

	if err := e.checkDuplicate(event.EventTypeLPWithdraw, ref); err != nil {
		return 0, err
	}
	ts := e.clock()
	now := ts.Unix()

	amountOut, err := e.pool.PreviewWithdraw(provider, shares)
	if err != nil {
		e.rejected(event.EventTypeLPWithdraw, "validation")
		return 0, err
	}

	var batch *ledger.Batch
	if amountOut > 0 {
		batch, err = e.journalGen.GenerateLiquidityWithdrawal(provider, ref, amountOut, now)
		if err != nil {
			e.rejected(event.EventTypeLPWithdraw, "journal")
			return 0, err
		}
		if err := e.transfer.TransferTo(provider, amountOut); err != nil {
			e.rejected(event.EventTypeLPWithdraw, "transfer")
			return 0, fmt.Errorf("pay withdrawal: %w", err)
		}
	}

	if _, err := e.pool.Withdraw(provider, shares); err != nil {
		panic(fmt.Sprintf("withdraw for provider %s: %v", provider, err))
	}

	e.commit(&event.LPWithdraw{
		Ref:          ref,
		Provider:     provider,
		SharesBurned: shares,
		AmountOut:    amountOut,
		PoolBalance:  e.pool.Balance(),
		TotalShares:  e.pool.TotalShares(),
		WithdrawnAt:  now,
	}, batch, ts)

	return amountOut, nil
}

// ============================================================================
// Admin
// ============================================================================

// AdjustPremium changes a policy's premium for future renewals.
func (e *Engine) AdjustPremium(ref string, policyID uuid.UUID, newPremium uint64) (*policy.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe(event.EventTypePremiumAdjusted, time.Now())

	if err := e.checkDuplicate(event.EventTypePremiumAdjusted, ref); err != nil {
		return nil, err
	}
	ts := e.clock()

	old, p, err := e.policies.AdjustPremium(policyID, newPremium)
	if err != nil {
		e.rejected(event.EventTypePremiumAdjusted, "validation")
		return nil, err
	}

	e.commit(&event.PremiumAdjusted{
		Ref:        ref,
		ID:         p.ID,
		OldPremium: old,
		NewPremium: newPremium,
		AdjustedAt: ts.Unix(),
	}, nil, ts)

	return p, nil
}

func (e *Engine) SetGraceDays(ref string, days uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if days == 0 {
		return fmt.Errorf("grace days must be non-zero: %w", ErrInvalidParam)
	}
	old := e.params.GraceDays
	return e.updateParam(ref, "grace_days",
		strconv.FormatUint(uint64(old), 10), strconv.FormatUint(uint64(days), 10),
		func() { e.params.GraceDays = days })
}

func (e *Engine) SetFeeBps(ref string, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bps > fpmath.BpsDenominator {
		return fmt.Errorf("fee %d bps exceeds %d: %w", bps, fpmath.BpsDenominator, ErrInvalidParam)
	}
	old := e.params.FeeBps
	return e.updateParam(ref, "fee_bps",
		strconv.FormatUint(uint64(old), 10), strconv.FormatUint(uint64(bps), 10),
		func() { e.params.FeeBps = bps })
}

func (e *Engine) SetFlashClaimThreshold(ref string, threshold uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.params.FlashClaimThreshold
	return e.updateParam(ref, "flash_claim_threshold",
		strconv.FormatUint(old, 10), strconv.FormatUint(threshold, 10),
		func() { e.params.FlashClaimThreshold = threshold })
}

func (e *Engine) SetLoyaltyMonthsThreshold(ref string, months uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if months == 0 {
		return fmt.Errorf("loyalty months must be non-zero: %w", ErrInvalidParam)
	}
	old := e.params.LoyaltyMonthsThreshold
	return e.updateParam(ref, "loyalty_months_threshold",
		strconv.FormatUint(uint64(old), 10), strconv.FormatUint(uint64(months), 10),
		func() { e.params.LoyaltyMonthsThreshold = months })
}

func (e *Engine) SetLoyaltyRewardBps(ref string, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bps > fpmath.BpsDenominator {
		return fmt.Errorf("reward %d bps exceeds %d: %w", bps, fpmath.BpsDenominator, ErrInvalidParam)
	}
	old := e.params.LoyaltyRewardBps
	return e.updateParam(ref, "loyalty_reward_bps",
		strconv.FormatUint(uint64(old), 10), strconv.FormatUint(uint64(bps), 10),
		func() { e.params.LoyaltyRewardBps = bps })
}

// SetTreasury designates the wallet that receives protocol fees on
// settlement.
func (e *Engine) SetTreasury(ref string, account uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if account == uuid.Nil {
		return fmt.Errorf("treasury account must be non-zero: %w", ErrInvalidParam)
	}
	old := e.params.TreasuryAccount
	return e.updateParam(ref, "treasury_account",
		old.String(), account.String(),
		func() { e.params.TreasuryAccount = account })
}

// updateParam applies a parameter change and records it. Callers hold
// the engine lock and have validated the new value.
func (e *Engine) updateParam(ref, name, oldValue, newValue string, apply func()) error {
	if err := e.checkDuplicate(event.EventTypeParamUpdated, ref); err != nil {
		return err
	}
	ts := e.clock()

	apply()
	e.commit(&event.ParamUpdated{
		Ref:       ref,
		Param:     name,
		OldValue:  oldValue,
		NewValue:  newValue,
		UpdatedAt: ts.Unix(),
	}, nil, ts)

	e.log.Info().Str("param", name).Str("old", oldValue).Str("new", newValue).Msg("parameter updated")
	return nil
}

// ============================================================================
// Commit pipeline
// ============================================================================

// commit finalizes one state transition: it applies the journal batch,
// extends the hash chain, wraps the event in an envelope, and emits it.
// Persist sends block when full (nothing lost ahead of the log);
// projection sends drop when full. Callers hold the engine lock.
func (e *Engine) commit(evt event.Event, batch *ledger.Batch, ts time.Time) *event.EventEnvelope {
	if batch != nil {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("unbalanced journal batch for %s: %v", evt.EventType(), err))
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("apply journal batch for %s: %v", evt.EventType(), err))
		}
		if e.metrics != nil {
			for _, j := range batch.Journals {
				e.metrics.EngineJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("marshal %s payload: %v", evt.EventType(), err))
	}

	hashStart := time.Now()
	digest := e.computeStateDigest(batch)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, digest)
	if e.metrics != nil {
		e.metrics.EngineStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		PolicyID:       evt.PolicyID(),
		Timestamp:      ts,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	out := Output{Envelope: envelope, Batch: batch, Event: evt}

	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
		}
	}

	e.idempotency.MarkProcessed(envelope.EventType.String(), envelope.IdempotencyKey)
	e.postCheckInvariants(batch)
	e.sequence++

	if e.metrics != nil {
		e.metrics.EngineEventsApplied.WithLabelValues(envelope.EventType.String()).Inc()
		e.metrics.EngineSequence.Set(float64(envelope.Sequence))
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))
		if evictions := e.idempotency.lru.Evictions(); evictions > e.lastLRUEvictions {
			e.metrics.DedupLRUEvictions.Add(float64(evictions - e.lastLRUEvictions))
			e.lastLRUEvictions = evictions
		}
		e.updateStateGauges()
	}

	e.log.Debug().
		Int64("sequence", envelope.Sequence).
		Str("event_type", envelope.EventType.String()).
		Str("ref", envelope.IdempotencyKey).
		Msg("event applied")

	return envelope
}

// computeStateDigest hashes the accounts a batch touched, sorted by path
// for determinism. A nil batch contributes an empty digest: the chain
// then binds only the sequence and the payload's effect on prev state.
func (e *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	if batch == nil {
		return nil
	}

	affected := make(map[ledger.AccountKey]bool, len(batch.Journals)*2)
	for _, j := range batch.Journals {
		affected[j.DebitAccount] = true
		affected[j.CreditAccount] = true
	}

	paths := make([]string, 0, len(affected))
	keys := make(map[string]ledger.AccountKey, len(affected))
	for key := range affected {
		path := key.AccountPath()
		paths = append(paths, path)
		keys[path] = key
	}
	sort.Strings(paths)

	digest := make([]byte, 0, len(paths)*48)
	var buf [8]byte
	for _, path := range paths {
		digest = append(digest, path...)
		binary.LittleEndian.PutUint64(buf[:], uint64(e.tracker.GetBalance(keys[path])))
		digest = append(digest, buf[:]...)
	}
	return digest
}

// postCheckInvariants panics on any violated ledger invariant. A
// violation here means corrupted state: crashing and recovering from the
// event log beats running forward wrong. The global zero-sum check runs
// every 1000 sequences to bound its cost.
func (e *Engine) postCheckInvariants(batch *ledger.Batch) {
	assetID := ledger.QuoteAssetID()

	if err := e.validator.ValidatePoolNonNegative(assetID); err != nil {
		panic(fmt.Sprintf("invariant violation: %v", err))
	}
	if err := e.validator.ValidateTreasuryNonNegative(assetID); err != nil {
		panic(fmt.Sprintf("invariant violation: %v", err))
	}

	if batch != nil {
		checked := make(map[ledger.AccountKey]bool, 2)
		for _, j := range batch.Journals {
			for _, key := range [2]ledger.AccountKey{j.DebitAccount, j.CreditAccount} {
				if key.Scope != ledger.AccountScopeMember || checked[key] {
					continue
				}
				checked[key] = true
				if err := e.validator.ValidateClearingSettled(uuid.UUID(key.EntityID), key.AssetID); err != nil {
					panic(fmt.Sprintf("invariant violation: %v", err))
				}
			}
		}
	}

	if e.sequence%1000 == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			panic(fmt.Sprintf("invariant violation: %v", err))
		}
	}
}

// payFromPool debits the pool and bumps the lifetime claims counter.
// Callers have already verified CanCover.
func (e *Engine) payFromPool(amount uint64) {
	if err := e.pool.Debit(amount); err != nil {
		panic(fmt.Sprintf("pool debit of %d: %v", amount, err))
	}
	if err := e.pool.RecordClaimPaid(amount); err != nil {
		panic(fmt.Sprintf("record claim paid of %d: %v", amount, err))
	}
}

func (e *Engine) checkDuplicate(et event.EventType, ref string) error {
	if ref == "" {
		return ErrMissingRef
	}
	if e.idempotency.IsDuplicate(et.String(), ref) {
		e.rejected(et, "duplicate")
		return fmt.Errorf("ref %s: %w", ref, ErrDuplicateCommand)
	}
	return nil
}

func (e *Engine) refund(member uuid.UUID, amount uint64) {
	if err := e.transfer.TransferTo(member, amount); err != nil {
		e.log.Error().Err(err).Str("member", member.String()).Uint64("amount", amount).
			Msg("refund failed after aborted operation")
	}
}

func (e *Engine) rejected(et event.EventType, reason string) {
	if e.metrics != nil {
		e.metrics.EngineEventsRejected.WithLabelValues(et.String(), reason).Inc()
	}
}

func (e *Engine) observe(et event.EventType, start time.Time) {
	if e.metrics != nil {
		e.metrics.EngineEventDuration.WithLabelValues(et.String()).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) updateStateGauges() {
	e.metrics.PoolBalance.Set(float64(e.pool.Balance()))
	e.metrics.PoolShares.Set(float64(e.pool.TotalShares()))
	e.metrics.PoolCoverage.Set(float64(e.pool.TotalCoverage()))
	e.metrics.PoolClaimsPaid.Set(float64(e.pool.ClaimsPaid()))
	e.metrics.PoliciesActive.Set(float64(e.activePolicies))
}

// ============================================================================
// Read surface
// ============================================================================

// PoolStats is a consistent read of the pool's headline numbers.
type PoolStats struct {
	Balance         uint64
	TotalShares     uint64
	TotalCoverage   uint64
	ClaimsPaid      uint64
	TreasuryBalance int64
}

func (e *Engine) GetPoolStats() PoolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PoolStats{
		Balance:         e.pool.Balance(),
		TotalShares:     e.pool.TotalShares(),
		TotalCoverage:   e.pool.TotalCoverage(),
		ClaimsPaid:      e.pool.ClaimsPaid(),
		TreasuryBalance: e.tracker.GetTreasuryBalance(ledger.QuoteAssetID()),
	}
}

// GetPolicy returns a copy of a policy.
func (e *Engine) GetPolicy(policyID uuid.UUID) (policy.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.policies.Get(policyID)
	if err != nil {
		return policy.Policy{}, err
	}
	return *p, nil
}

// GetPoliciesByOwner returns copies of a member's policies.
func (e *Engine) GetPoliciesByOwner(owner uuid.UUID) []policy.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.policies.GetByOwner(owner)
	out := make([]policy.Policy, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	return out
}

// GetPayments returns the premium history for a policy.
func (e *Engine) GetPayments(policyID uuid.UUID) []policy.PaymentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policies.Payments(policyID)
}

// GetProposal returns a copy of a claim proposal.
func (e *Engine) GetProposal(proposalID uuid.UUID) (claims.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prop, err := e.claimsEng.Get(proposalID)
	if err != nil {
		return claims.Proposal{}, err
	}
	return *prop, nil
}

// GetProposals returns copies of all claim proposals.
func (e *Engine) GetProposals() []claims.Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.claimsEng.GetAll()
	out := make([]claims.Proposal, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	return out
}

// SharesOf returns a provider's LP share balance.
func (e *Engine) SharesOf(provider uuid.UUID) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.SharesOf(provider)
}

// Params returns the current protocol parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Sequence returns the next sequence to be assigned.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}

// TreasuryBalance returns accumulated protocol fees.
func (e *Engine) TreasuryBalance() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.GetTreasuryBalance(ledger.QuoteAssetID())
}
