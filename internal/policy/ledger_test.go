package policy_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/policy"
)

const (
	day   = int64(24 * 3600)
	grace = 15 * day
	t0    = int64(1_700_000_000)
)

func createPolicy(t *testing.T, l *policy.Ledger, owner uuid.UUID) *policy.Policy {
	t.Helper()
	p, err := l.Create(owner, "BTC", 50_000, 1_000, 10, grace, t0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return p
}

// ============================================================================
// Test: Create
// ============================================================================

func TestCreate_RecordsFirstMonth(t *testing.T) {
	l := policy.NewLedger()
	owner := uuid.New()

	p := createPolicy(t, l, owner)

	if p.MonthsActive != 1 {
		t.Errorf("MonthsActive: got %d, want 1", p.MonthsActive)
	}
	if p.TotalPremiumsPaid != 10 {
		t.Errorf("TotalPremiumsPaid: got %d, want 10", p.TotalPremiumsPaid)
	}
	if p.NextPaymentDue != t0+policy.PremiumPeriodSeconds {
		t.Errorf("NextPaymentDue: got %d", p.NextPaymentDue)
	}
	if p.GracePeriodEnd != p.NextPaymentDue+grace {
		t.Errorf("GracePeriodEnd: got %d", p.GracePeriodEnd)
	}

	records := l.Payments(p.ID)
	if len(records) != 1 || records[0].MonthIndex != 1 {
		t.Fatalf("payments: got %+v, want one month-1 record", records)
	}
}

func TestCreate_ZeroInputs_Fail(t *testing.T) {
	l := policy.NewLedger()

	tests := []struct {
		name                       string
		strike, coverage, premium uint64
	}{
		{"zero strike", 0, 1_000, 10},
		{"zero coverage", 50_000, 0, 10},
		{"zero premium", 50_000, 1_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Create(uuid.New(), "BTC", tt.strike, tt.coverage, tt.premium, grace, t0)
			if !errors.Is(err, policy.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

// ============================================================================
// Test: PayPremium
// ============================================================================

func TestPayPremium_ThreeRenewals(t *testing.T) {
	l := policy.NewLedger()
	owner := uuid.New()
	p := createPolicy(t, l, owner)

	now := t0
	for i := 0; i < 3; i++ {
		now += policy.PremiumPeriodSeconds
		if _, _, err := l.PayPremium(p.ID, owner, grace, now); err != nil {
			t.Fatalf("renewal %d: %v", i+1, err)
		}
	}

	if p.MonthsActive != 4 {
		t.Errorf("MonthsActive: got %d, want 4", p.MonthsActive)
	}
	if p.TotalPremiumsPaid != 40 {
		t.Errorf("TotalPremiumsPaid: got %d, want 40", p.TotalPremiumsPaid)
	}
	if p.MonthsSinceClaim != 3 {
		t.Errorf("MonthsSinceClaim: got %d, want 3", p.MonthsSinceClaim)
	}

	records := l.Payments(p.ID)
	if len(records) != 4 {
		t.Fatalf("payments: got %d records, want 4", len(records))
	}
	for i, rec := range records {
		if rec.MonthIndex != uint32(i+1) {
			t.Errorf("record %d: month index %d, want %d", i, rec.MonthIndex, i+1)
		}
	}
}

func TestPayPremium_NotYetDue_Fails(t *testing.T) {
	l := policy.NewLedger()
	owner := uuid.New()
	p := createPolicy(t, l, owner)

	_, _, err := l.PayPremium(p.ID, owner, grace, t0+policy.PremiumPeriodSeconds-1)
	if !errors.Is(err, policy.ErrPaymentNotYetDue) {
		t.Errorf("got %v, want ErrPaymentNotYetDue", err)
	}
}

func TestPayPremium_PastGrace_Fails(t *testing.T) {
	l := policy.NewLedger()
	owner := uuid.New()
	p := createPolicy(t, l, owner)

	_, _, err := l.PayPremium(p.ID, owner, grace, p.GracePeriodEnd+1)
	if !errors.Is(err, policy.ErrPolicyLapsed) {
		t.Errorf("got %v, want ErrPolicyLapsed", err)
	}
}

func TestPayPremium_NotOwner_Fails(t *testing.T) {
	l := policy.NewLedger()
	p := createPolicy(t, l, uuid.New())

	_, _, err := l.PayPremium(p.ID, uuid.New(), grace, p.NextPaymentDue)
	if !errors.Is(err, policy.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: Cancel / state flags
// ============================================================================

func TestCancel_NeverActiveAndCanceled(t *testing.T) {
	l := policy.NewLedger()
	owner := uuid.New()
	p := createPolicy(t, l, owner)

	if _, err := l.Cancel(p.ID, owner); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if p.Active || !p.Canceled {
		t.Errorf("flags after cancel: active=%v canceled=%v", p.Active, p.Canceled)
	}

	// Second cancel fails on the inactive policy
	if _, err := l.Cancel(p.ID, owner); !errors.Is(err, policy.ErrInactive) {
		t.Errorf("got %v, want ErrInactive", err)
	}
}

func TestCancel_NotOwner_Fails(t *testing.T) {
	l := policy.NewLedger()
	p := createPolicy(t, l, uuid.New())

	_, err := l.Cancel(p.ID, uuid.New())
	if !errors.Is(err, policy.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: Expiry
// ============================================================================

func TestCheckExpiry_Idempotent(t *testing.T) {
	l := policy.NewLedger()
	p := createPolicy(t, l, uuid.New())
	lapsedAt := p.GracePeriodEnd + 1

	expired, _, err := l.CheckExpiry(p.ID, lapsedAt)
	if err != nil {
		t.Fatalf("CheckExpiry failed: %v", err)
	}
	if !expired {
		t.Fatal("policy past grace should expire")
	}
	if p.Active || p.Canceled {
		t.Errorf("flags after expiry: active=%v canceled=%v", p.Active, p.Canceled)
	}

	// Second call is a no-op, guarded by the Active flag
	expired, _, err = l.CheckExpiry(p.ID, lapsedAt)
	if err != nil {
		t.Fatalf("second CheckExpiry failed: %v", err)
	}
	if expired {
		t.Error("second CheckExpiry must be a no-op")
	}
}

func TestCheckExpiry_WithinGrace_NoOp(t *testing.T) {
	l := policy.NewLedger()
	p := createPolicy(t, l, uuid.New())

	expired, _, err := l.CheckExpiry(p.ID, p.GracePeriodEnd)
	if err != nil {
		t.Fatalf("CheckExpiry failed: %v", err)
	}
	if expired {
		t.Error("policy within grace must not expire")
	}
	if !p.Active {
		t.Error("policy should stay active")
	}
}

func TestSweepExpired(t *testing.T) {
	l := policy.NewLedger()
	owner := uuid.New()
	lapsing := createPolicy(t, l, owner)
	renewed := createPolicy(t, l, owner)

	// Renew one policy so its grace window extends past the sweep time
	if _, _, err := l.PayPremium(renewed.ID, owner, grace, renewed.NextPaymentDue); err != nil {
		t.Fatalf("renewal: %v", err)
	}

	expired := l.SweepExpired(lapsing.GracePeriodEnd + 1)
	if len(expired) != 1 {
		t.Fatalf("sweep: got %d expired, want 1", len(expired))
	}
	if expired[0].ID != lapsing.ID {
		t.Errorf("wrong policy expired: %s", expired[0].ID)
	}
	if !renewed.Active {
		t.Error("renewed policy should survive the sweep")
	}
}

// ============================================================================
// Test: AdjustPremium
// ============================================================================

func TestAdjustPremium(t *testing.T) {
	l := policy.NewLedger()
	p := createPolicy(t, l, uuid.New())

	old, _, err := l.AdjustPremium(p.ID, 25)
	if err != nil {
		t.Fatalf("AdjustPremium failed: %v", err)
	}
	if old != 10 || p.PremiumAmount != 25 {
		t.Errorf("got old=%d new=%d, want 10/25", old, p.PremiumAmount)
	}

	if _, _, err := l.AdjustPremium(p.ID, 0); !errors.Is(err, policy.ErrInvalidInput) {
		t.Errorf("zero premium: got %v, want ErrInvalidInput", err)
	}
}
