package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CoverPool/internal/claims"
	"CoverPool/internal/engine"
	"CoverPool/internal/oracle"
	"CoverPool/internal/policy"
	"CoverPool/internal/pool"
	"CoverPool/internal/token"
)

const t0 = int64(1_700_000_000)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(c.now, 0)
}

func (c *fakeClock) advance(seconds int64) {
	c.now += seconds
}

type testEnv struct {
	eng     *engine.Engine
	clock   *fakeClock
	wallet  *token.MemoryTransferer
	prices  *oracle.StaticClient
	outputs chan engine.Output
}

func newTestEnv(params engine.Params) *testEnv {
	clock := &fakeClock{now: t0}
	wallet := token.NewMemoryTransferer()
	prices := oracle.NewStaticClient(map[string]uint64{
		"BTC": 60_000,
		"ETH": 3_000,
	})
	outputs := make(chan engine.Output, 4096)

	eng := engine.NewEngine(engine.Config{
		Oracle:      prices,
		Transfer:    wallet,
		Params:      params,
		VoteScope:   claims.VoteScopeGlobal,
		PersistChan: outputs,
		Clock:       clock.Now,
		Logger:      zerolog.Nop(),
	})

	return &testEnv{eng: eng, clock: clock, wallet: wallet, prices: prices, outputs: outputs}
}

func (env *testEnv) drain() []engine.Output {
	var out []engine.Output
	for {
		select {
		case o := <-env.outputs:
			out = append(out, o)
		default:
			return out
		}
	}
}

func (env *testEnv) createPolicy(t *testing.T, ref string, owner uuid.UUID, premium, coverage uint64) *policy.Policy {
	t.Helper()
	env.wallet.Mint(owner, 10*premium)
	p, err := env.eng.CreatePolicy(ref, owner, "BTC", 50_000, coverage, premium)
	if err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}
	return p
}

func (env *testEnv) fundPool(t *testing.T, provider uuid.UUID, amount uint64) {
	t.Helper()
	env.wallet.Mint(provider, amount)
	if _, err := env.eng.DepositLiquidity("fund:"+uuid.NewString(), provider, amount); err != nil {
		t.Fatalf("DepositLiquidity failed: %v", err)
	}
}

// ============================================================================
// Test: policy lifecycle
// ============================================================================

func TestCreatePolicy_SplitsPremium(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()

	env.createPolicy(t, "create-1", owner, 1_000, 5_000)

	// 100 bps fee on 1000: fee 10, net 990
	stats := env.eng.GetPoolStats()
	if stats.Balance != 990 {
		t.Errorf("pool balance: got %d, want 990", stats.Balance)
	}
	if stats.TreasuryBalance != 10 {
		t.Errorf("treasury: got %d, want 10", stats.TreasuryBalance)
	}
	if stats.TotalCoverage != 5_000 {
		t.Errorf("coverage exposure: got %d, want 5000", stats.TotalCoverage)
	}
	if got := env.wallet.BalanceOf(owner); got != 9_000 {
		t.Errorf("wallet: got %d, want 9000", got)
	}

	outs := env.drain()
	if len(outs) != 1 {
		t.Fatalf("got %d events, want 1", len(outs))
	}
	if outs[0].Envelope.Sequence != 1 {
		t.Errorf("sequence: got %d, want 1", outs[0].Envelope.Sequence)
	}
	if outs[0].Batch == nil || len(outs[0].Batch.Journals) != 3 {
		t.Error("premium batch should have 3 journal legs")
	}
}

func TestCreatePolicy_UnsupportedAsset(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	env.wallet.Mint(owner, 1_000)

	_, err := env.eng.CreatePolicy("create-1", owner, "DOGE", 1, 1_000, 10)
	if !errors.Is(err, oracle.ErrUnsupportedAsset) {
		t.Errorf("got %v, want ErrUnsupportedAsset", err)
	}
}

func TestRenewalsThenPayout(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)
	env.fundPool(t, uuid.New(), 10_000)

	for i := 0; i < 3; i++ {
		env.clock.advance(policy.PremiumPeriodSeconds)
		if _, err := env.eng.PayPremium("renew-"+uuid.NewString(), p.ID, owner); err != nil {
			t.Fatalf("renewal %d: %v", i+1, err)
		}
	}

	got, err := env.eng.GetPolicy(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MonthsActive != 4 || got.TotalPremiumsPaid != 40 {
		t.Errorf("after renewals: months=%d total=%d, want 4/40", got.MonthsActive, got.TotalPremiumsPaid)
	}

	walletBefore := env.wallet.BalanceOf(owner)
	env.prices.Set("BTC", 40_000) // below the 50k strike

	paid, err := env.eng.CheckAndPayout("claim-1", p.ID)
	if err != nil {
		t.Fatalf("CheckAndPayout failed: %v", err)
	}
	if paid != 1_000 {
		t.Errorf("payout: got %d, want 1000", paid)
	}
	if got := env.wallet.BalanceOf(owner); got != walletBefore+1_000 {
		t.Errorf("wallet: got %d, want %d", got, walletBefore+1_000)
	}

	got, _ = env.eng.GetPolicy(p.ID)
	if got.Active {
		t.Error("policy must be terminal after a full payout")
	}
	stats := env.eng.GetPoolStats()
	if stats.ClaimsPaid != 1_000 {
		t.Errorf("claims paid: got %d, want 1000", stats.ClaimsPaid)
	}
	if stats.TotalCoverage != 0 {
		t.Errorf("exposure after payout: got %d, want 0", stats.TotalCoverage)
	}
}

func TestCheckAndPayout_NoBreach(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)
	env.fundPool(t, uuid.New(), 10_000)

	env.prices.Set("BTC", 50_000) // exactly at strike is NOT a breach
	_, err := env.eng.CheckAndPayout("claim-1", p.ID)
	if !errors.Is(err, engine.ErrNoBreach) {
		t.Errorf("got %v, want ErrNoBreach", err)
	}
}

func TestPayPremium_PastGrace_LapsesFirst(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)

	env.clock.advance(policy.PremiumPeriodSeconds + 16*24*3600)

	_, err := env.eng.PayPremium("renew-1", p.ID, owner)
	if !errors.Is(err, policy.ErrPolicyLapsed) {
		t.Fatalf("got %v, want ErrPolicyLapsed", err)
	}

	got, _ := env.eng.GetPolicy(p.ID)
	if got.Active {
		t.Error("policy should have lapsed")
	}
	if stats := env.eng.GetPoolStats(); stats.TotalCoverage != 0 {
		t.Errorf("exposure after lapse: got %d, want 0", stats.TotalCoverage)
	}
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	lapsing := env.createPolicy(t, "create-1", owner, 10, 1_000)
	renewed := env.createPolicy(t, "create-2", owner, 10, 2_000)

	env.clock.advance(policy.PremiumPeriodSeconds)
	if _, err := env.eng.PayPremium("renew-1", renewed.ID, owner); err != nil {
		t.Fatalf("renewal: %v", err)
	}

	env.clock.advance(16 * 24 * 3600)
	if count := env.eng.SweepExpired(); count != 1 {
		t.Fatalf("sweep: got %d expired, want 1", count)
	}

	got, _ := env.eng.GetPolicy(lapsing.ID)
	if got.Active {
		t.Error("lapsing policy should be inactive")
	}
	got, _ = env.eng.GetPolicy(renewed.ID)
	if !got.Active {
		t.Error("renewed policy should survive")
	}
}

// ============================================================================
// Test: flash claims & loyalty
// ============================================================================

func TestFlashClaim_PartialPayout(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)
	env.fundPool(t, uuid.New(), 10_000)

	env.clock.advance(policy.PremiumPeriodSeconds)
	if _, err := env.eng.PayPremium("renew-1", p.ID, owner); err != nil {
		t.Fatal(err)
	}

	env.prices.Set("BTC", 45_000)
	walletBefore := env.wallet.BalanceOf(owner)

	paid, err := env.eng.FlashClaim("flash-1", p.ID, owner, 100)
	if err != nil {
		t.Fatalf("FlashClaim failed: %v", err)
	}
	if paid != 100 {
		t.Errorf("paid: got %d, want 100", paid)
	}
	if got := env.wallet.BalanceOf(owner); got != walletBefore+100 {
		t.Errorf("wallet: got %d, want %d", got, walletBefore+100)
	}

	got, _ := env.eng.GetPolicy(p.ID)
	if !got.Active {
		t.Error("policy must stay active after a flash claim")
	}
	if got.MonthsSinceClaim != 0 {
		t.Errorf("streak should reset, got %d", got.MonthsSinceClaim)
	}
}

func TestFlashClaim_AboveThreshold(t *testing.T) {
	params := engine.DefaultParams()
	params.FlashClaimThreshold = 50
	env := newTestEnv(params)
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)
	env.fundPool(t, uuid.New(), 10_000)
	env.prices.Set("BTC", 45_000)

	_, err := env.eng.FlashClaim("flash-1", p.ID, owner, 100)
	if !errors.Is(err, engine.ErrFlashAmountTooLarge) {
		t.Errorf("got %v, want ErrFlashAmountTooLarge", err)
	}
}

func TestFlashClaim_NoBreach(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)
	env.fundPool(t, uuid.New(), 10_000)

	_, err := env.eng.FlashClaim("flash-1", p.ID, owner, 100)
	if !errors.Is(err, engine.ErrNoBreach) {
		t.Errorf("got %v, want ErrNoBreach", err)
	}
}

func TestLoyaltyReward(t *testing.T) {
	params := engine.DefaultParams()
	params.LoyaltyMonthsThreshold = 3
	env := newTestEnv(params)
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 1_000, 5_000)

	for i := 0; i < 3; i++ {
		env.clock.advance(policy.PremiumPeriodSeconds)
		if _, err := env.eng.PayPremium("renew-"+uuid.NewString(), p.ID, owner); err != nil {
			t.Fatal(err)
		}
	}

	walletBefore := env.wallet.BalanceOf(owner)

	// 500 bps of 4000 total premiums
	reward, err := env.eng.ClaimLoyaltyReward("loyal-1", p.ID, owner)
	if err != nil {
		t.Fatalf("ClaimLoyaltyReward failed: %v", err)
	}
	if reward != 200 {
		t.Errorf("reward: got %d, want 200", reward)
	}
	if got := env.wallet.BalanceOf(owner); got != walletBefore+200 {
		t.Errorf("wallet: got %d, want %d", got, walletBefore+200)
	}

	got, _ := env.eng.GetPolicy(p.ID)
	if got.MonthsSinceClaim != 0 {
		t.Errorf("streak should reset, got %d", got.MonthsSinceClaim)
	}

	// Streak is back to zero, so a second claim is not eligible
	_, err = env.eng.ClaimLoyaltyReward("loyal-2", p.ID, owner)
	if !errors.Is(err, engine.ErrNoReward) {
		t.Errorf("got %v, want ErrNoReward", err)
	}
}

// ============================================================================
// Test: claim voting
// ============================================================================

func TestVoting_ApprovedAndPaid(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 1_000, 1_000)
	env.fundPool(t, uuid.New(), 10_000)

	prop, err := env.eng.SubmitClaim("submit-1", p.ID, owner, 500, "hurricane damage")
	if err != nil {
		t.Fatalf("SubmitClaim failed: %v", err)
	}

	for i, approve := range []bool{true, true, false} {
		if _, err := env.eng.VoteClaim("vote-"+uuid.NewString(), prop.ID, uuid.New(), approve); err != nil {
			t.Fatalf("vote %d: %v", i+1, err)
		}
	}

	walletBefore := env.wallet.BalanceOf(owner)
	approved, paid, err := env.eng.FinalizeClaim("final-1", prop.ID)
	if err != nil {
		t.Fatalf("FinalizeClaim failed: %v", err)
	}
	if !approved || paid != 500 {
		t.Errorf("got approved=%v paid=%d, want true/500", approved, paid)
	}
	if got := env.wallet.BalanceOf(owner); got != walletBefore+500 {
		t.Errorf("wallet: got %d, want %d", got, walletBefore+500)
	}

	got, _ := env.eng.GetPolicy(p.ID)
	if got.Active {
		t.Error("policy must be terminal after a voted payout")
	}
	gotProp, _ := env.eng.GetProposal(prop.ID)
	if !gotProp.Executed {
		t.Error("proposal should be executed")
	}
}

func TestVoting_Tie_NoPayout(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 1_000, 1_000)
	env.fundPool(t, uuid.New(), 10_000)

	prop, err := env.eng.SubmitClaim("submit-1", p.ID, owner, 500, "disputed")
	if err != nil {
		t.Fatal(err)
	}
	for _, approve := range []bool{true, true, false, false} {
		if _, err := env.eng.VoteClaim("vote-"+uuid.NewString(), prop.ID, uuid.New(), approve); err != nil {
			t.Fatal(err)
		}
	}

	balanceBefore := env.eng.GetPoolStats().Balance
	approved, paid, err := env.eng.FinalizeClaim("final-1", prop.ID)
	if err != nil {
		t.Fatalf("FinalizeClaim failed: %v", err)
	}
	if approved || paid != 0 {
		t.Errorf("got approved=%v paid=%d, want false/0", approved, paid)
	}
	if got := env.eng.GetPoolStats().Balance; got != balanceBefore {
		t.Errorf("pool balance changed on a tie: %d -> %d", balanceBefore, got)
	}
	gotProp, _ := env.eng.GetProposal(prop.ID)
	if !gotProp.Executed {
		t.Error("tie with quorum should still execute")
	}
}

func TestVoting_ApprovedButUnfunded(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	// Pool holds only the 990 net premium; claim asks for 995
	p := env.createPolicy(t, "create-1", owner, 1_000, 1_000)

	prop, err := env.eng.SubmitClaim("submit-1", p.ID, owner, 995, "total loss")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := env.eng.VoteClaim("vote-"+uuid.NewString(), prop.ID, uuid.New(), true); err != nil {
			t.Fatal(err)
		}
	}

	approved, paid, err := env.eng.FinalizeClaim("final-1", prop.ID)
	if !approved {
		t.Error("proposal should be approved")
	}
	if paid != 0 {
		t.Errorf("paid: got %d, want 0", paid)
	}
	if !errors.Is(err, pool.ErrInsufficientPoolBalance) {
		t.Errorf("got %v, want ErrInsufficientPoolBalance", err)
	}

	// Executed is terminal even without a payout
	gotProp, _ := env.eng.GetProposal(prop.ID)
	if !gotProp.Executed {
		t.Error("unfunded approval must still execute")
	}
	if _, _, err := env.eng.FinalizeClaim("final-2", prop.ID); !errors.Is(err, claims.ErrAlreadyExecuted) {
		t.Errorf("got %v, want ErrAlreadyExecuted", err)
	}
}

// ============================================================================
// Test: liquidity
// ============================================================================

func TestDepositWithdraw(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	provider := uuid.New()
	env.wallet.Mint(provider, 1_000)

	minted, err := env.eng.DepositLiquidity("dep-1", provider, 1_000)
	if err != nil {
		t.Fatalf("DepositLiquidity failed: %v", err)
	}
	if minted != 1_000 {
		t.Errorf("bootstrap mint: got %d, want 1000", minted)
	}

	out, err := env.eng.WithdrawLiquidity("wd-1", provider, 400)
	if err != nil {
		t.Fatalf("WithdrawLiquidity failed: %v", err)
	}
	if out != 400 {
		t.Errorf("withdrawal: got %d, want 400", out)
	}
	if got := env.wallet.BalanceOf(provider); got != 400 {
		t.Errorf("wallet: got %d, want 400", got)
	}

	stats := env.eng.GetPoolStats()
	if stats.Balance != 600 || stats.TotalShares != 600 {
		t.Errorf("pool: balance=%d shares=%d, want 600/600", stats.Balance, stats.TotalShares)
	}
}

func TestWithdrawLiquidity_DrainedPool_Rejected(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	provider := uuid.New()
	env.wallet.Mint(provider, 1_000)
	if _, err := env.eng.DepositLiquidity("dep-1", provider, 1_000); err != nil {
		t.Fatalf("DepositLiquidity failed: %v", err)
	}

	owner := uuid.New()
	env.wallet.Mint(owner, 100)
	// 100 bps fee on the 100 premium nets 99 into the pool: balance 1099
	p, err := env.eng.CreatePolicy("create-1", owner, "BTC", 70_000, 1_099, 100)
	if err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}
	// BTC trades at 60k, below the 70k strike: the full-coverage payout
	// drains the pool to exactly zero with shares still outstanding
	paid, err := env.eng.CheckAndPayout("payout-1", p.ID)
	if err != nil {
		t.Fatalf("CheckAndPayout failed: %v", err)
	}
	if paid != 1_099 {
		t.Fatalf("payout: got %d, want 1099", paid)
	}

	_, err = env.eng.WithdrawLiquidity("wd-1", provider, 1_000)
	if !errors.Is(err, pool.ErrEmptyPool) {
		t.Errorf("got %v, want ErrEmptyPool", err)
	}
	if got := env.eng.SharesOf(provider); got != 1_000 {
		t.Errorf("shares burned by rejected withdrawal: got %d, want 1000", got)
	}
	if env.eng.Sequence() != 4 {
		t.Errorf("rejected withdrawal advanced the sequence: %d", env.eng.Sequence())
	}

	// The shares keep their claim: new premium income restores redeemability
	env.wallet.Mint(provider, 500)
	if _, err := env.eng.DepositLiquidity("dep-2", provider, 500); err != nil {
		t.Fatalf("recapitalizing deposit failed: %v", err)
	}
	if _, err := env.eng.WithdrawLiquidity("wd-2", provider, 500); err != nil {
		t.Fatalf("withdrawal after recapitalization failed: %v", err)
	}
}

// ============================================================================
// Test: failure atomicity & idempotency
// ============================================================================

func TestTransferFailure_AbortsCleanly(t *testing.T) {
	clock := &fakeClock{now: t0}
	eng := engine.NewEngine(engine.Config{
		Oracle:   oracle.NewStaticClient(map[string]uint64{"BTC": 60_000}),
		Transfer: token.FailingTransferer{},
		Params:   engine.DefaultParams(),
		Clock:    clock.Now,
		Logger:   zerolog.Nop(),
	})

	owner := uuid.New()
	_, err := eng.CreatePolicy("create-1", owner, "BTC", 50_000, 1_000, 100)
	if !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	if eng.Sequence() != 1 {
		t.Errorf("sequence advanced on a failed operation: %d", eng.Sequence())
	}
	if stats := eng.GetPoolStats(); stats.Balance != 0 || stats.TotalCoverage != 0 {
		t.Errorf("pool mutated on a failed operation: %+v", stats)
	}
	if got := eng.GetPoliciesByOwner(owner); len(got) != 0 {
		t.Errorf("policy created despite transfer failure")
	}
}

func TestDuplicateRef_Rejected(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	env.createPolicy(t, "create-1", owner, 1_000, 5_000)

	_, err := env.eng.CreatePolicy("create-1", owner, "BTC", 50_000, 5_000, 1_000)
	if !errors.Is(err, engine.ErrDuplicateCommand) {
		t.Errorf("got %v, want ErrDuplicateCommand", err)
	}
	if env.eng.Sequence() != 2 {
		t.Errorf("duplicate advanced the sequence: %d", env.eng.Sequence())
	}
}

func TestMissingRef_Rejected(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())

	_, err := env.eng.CreatePolicy("", uuid.New(), "BTC", 50_000, 1_000, 10)
	if !errors.Is(err, engine.ErrMissingRef) {
		t.Errorf("got %v, want ErrMissingRef", err)
	}
}

// ============================================================================
// Test: admin parameters
// ============================================================================

func TestSetFeeBps_BoundsChecked(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())

	if err := env.eng.SetFeeBps("fee-1", 250); err != nil {
		t.Fatalf("SetFeeBps failed: %v", err)
	}
	if got := env.eng.Params().FeeBps; got != 250 {
		t.Errorf("fee bps: got %d, want 250", got)
	}

	if err := env.eng.SetFeeBps("fee-2", 10_001); !errors.Is(err, engine.ErrInvalidParam) {
		t.Errorf("got %v, want ErrInvalidParam", err)
	}
}

func TestAdjustPremium_AffectsNextRenewal(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	owner := uuid.New()
	p := env.createPolicy(t, "create-1", owner, 10, 1_000)

	if _, err := env.eng.AdjustPremium("adj-1", p.ID, 25); err != nil {
		t.Fatalf("AdjustPremium failed: %v", err)
	}

	env.clock.advance(policy.PremiumPeriodSeconds)
	got, err := env.eng.PayPremium("renew-1", p.ID, owner)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalPremiumsPaid != 35 {
		t.Errorf("total premiums: got %d, want 35", got.TotalPremiumsPaid)
	}
}

// ============================================================================
// Test: replay & snapshot determinism
// ============================================================================

// runScenario drives a representative mix of operations and returns the
// emitted outputs in order.
func runScenario(t *testing.T, env *testEnv) []engine.Output {
	t.Helper()
	owner := uuid.New()
	provider := uuid.New()

	p := env.createPolicy(t, "create-1", owner, 1_000, 2_000)
	env.wallet.Mint(provider, 50_000)
	if _, err := env.eng.DepositLiquidity("dep-1", provider, 50_000); err != nil {
		t.Fatal(err)
	}

	env.clock.advance(policy.PremiumPeriodSeconds)
	if _, err := env.eng.PayPremium("renew-1", p.ID, owner); err != nil {
		t.Fatal(err)
	}
	if err := env.eng.SetFeeBps("fee-1", 200); err != nil {
		t.Fatal(err)
	}
	if _, err := env.eng.WithdrawLiquidity("wd-1", provider, 10_000); err != nil {
		t.Fatal(err)
	}

	prop, err := env.eng.SubmitClaim("submit-1", p.ID, owner, 800, "partial loss")
	if err != nil {
		t.Fatal(err)
	}
	for _, approve := range []bool{true, true, false} {
		if _, err := env.eng.VoteClaim("vote-"+uuid.NewString(), prop.ID, uuid.New(), approve); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := env.eng.FinalizeClaim("final-1", prop.ID); err != nil {
		t.Fatal(err)
	}

	return env.drain()
}

func TestReplay_RebuildsIdenticalState(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	outputs := runScenario(t, env)
	if len(outputs) == 0 {
		t.Fatal("scenario emitted no events")
	}

	replayed := engine.NewEngine(engine.Config{
		Oracle:   oracle.NewStaticClient(map[string]uint64{"BTC": 60_000}),
		Transfer: token.FailingTransferer{}, // replay must never touch the boundary
		Params:   engine.DefaultParams(),
		Clock:    time.Now,
		Logger:   zerolog.Nop(),
	})

	for _, out := range outputs {
		if err := replayed.ApplyEnvelope(out.Envelope); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}

	if replayed.Sequence() != env.eng.Sequence() {
		t.Errorf("sequence: got %d, want %d", replayed.Sequence(), env.eng.Sequence())
	}
	if replayed.StateHash() != env.eng.StateHash() {
		t.Error("state hash diverged after replay")
	}
	if got, want := replayed.GetPoolStats(), env.eng.GetPoolStats(); got != want {
		t.Errorf("pool stats: got %+v, want %+v", got, want)
	}
	if got, want := replayed.Params(), env.eng.Params(); got != want {
		t.Errorf("params: got %+v, want %+v", got, want)
	}
}

func TestReplay_DetectsChainBreak(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	outputs := runScenario(t, env)

	replayed := engine.NewEngine(engine.Config{
		Oracle:   oracle.NewStaticClient(map[string]uint64{"BTC": 60_000}),
		Transfer: token.FailingTransferer{},
		Params:   engine.DefaultParams(),
		Clock:    time.Now,
		Logger:   zerolog.Nop(),
	})

	// Skipping the first event must be detected as a gap
	if err := replayed.ApplyEnvelope(outputs[1].Envelope); err == nil {
		t.Error("replay accepted a sequence gap")
	}
}

func TestSnapshotRestore_PreservesChain(t *testing.T) {
	env := newTestEnv(engine.DefaultParams())
	runScenario(t, env)

	snap := env.eng.CreateSnapshotState()

	restored := engine.NewEngine(engine.Config{
		Oracle:   oracle.NewStaticClient(map[string]uint64{"BTC": 60_000}),
		Transfer: token.NewMemoryTransferer(),
		Params:   engine.DefaultParams(),
		Clock:    env.clock.Now,
		Logger:   zerolog.Nop(),
	})
	restored.RestoreFromSnapshot(snap)

	if restored.Sequence() != env.eng.Sequence() {
		t.Errorf("sequence: got %d, want %d", restored.Sequence(), env.eng.Sequence())
	}
	if restored.StateHash() != env.eng.StateHash() {
		t.Error("state hash diverged after restore")
	}
	if got, want := restored.GetPoolStats(), env.eng.GetPoolStats(); got != want {
		t.Errorf("pool stats: got %+v, want %+v", got, want)
	}

	// A duplicate of a pre-snapshot command is still rejected
	provider := uuid.New()
	if _, err := restored.DepositLiquidity("dep-1", provider, 1_000); !errors.Is(err, engine.ErrDuplicateCommand) {
		t.Errorf("got %v, want ErrDuplicateCommand", err)
	}
}
