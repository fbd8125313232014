package config

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"CoverPool/internal/claims"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("http addr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.PersistBatchSize != 50 {
		t.Errorf("batch size = %d, want 50", cfg.PersistBatchSize)
	}
	if cfg.PersistFlushTimeout != 10*time.Millisecond {
		t.Errorf("flush timeout = %v, want 10ms", cfg.PersistFlushTimeout)
	}
	if cfg.VoteScope != claims.VoteScopeGlobal {
		t.Errorf("vote scope = %v, want global", cfg.VoteScope)
	}
	if len(cfg.OracleAssets) != 3 {
		t.Errorf("oracle assets = %v, want 3 defaults", cfg.OracleAssets)
	}
	if cfg.Params.GraceDays != 15 || cfg.Params.FeeBps != 100 {
		t.Errorf("params = %+v, want defaults", cfg.Params)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("COVER_PERSIST_BATCH_SIZE", "200")
	t.Setenv("COVER_VOTE_SCOPE", "per_claim")
	t.Setenv("COVER_ORACLE_ASSETS", "BTC, ETH ,")
	t.Setenv("COVER_FEE_BPS", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.PersistBatchSize != 200 {
		t.Errorf("batch size = %d, want 200", cfg.PersistBatchSize)
	}
	if cfg.VoteScope != claims.VoteScopePerClaim {
		t.Errorf("vote scope = %v, want per_claim", cfg.VoteScope)
	}
	if len(cfg.OracleAssets) != 2 || cfg.OracleAssets[1] != "ETH" {
		t.Errorf("oracle assets = %v, want [BTC ETH]", cfg.OracleAssets)
	}
	if cfg.Params.FeeBps != 250 {
		t.Errorf("fee bps = %d, want 250", cfg.Params.FeeBps)
	}
}

func TestLoad_DevWallets(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	t.Setenv("COVER_DEV_WALLETS", a.String()+":1000, "+b.String()+":50 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.DevWallets) != 2 {
		t.Fatalf("dev wallets = %v, want 2 entries", cfg.DevWallets)
	}
	if cfg.DevWallets[a] != 1000 || cfg.DevWallets[b] != 50 {
		t.Errorf("dev wallets = %v", cfg.DevWallets)
	}
}

func TestLoad_RejectsBadDevWallets(t *testing.T) {
	t.Setenv("COVER_DEV_WALLETS", "not-a-uuid:1000")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed wallet entry")
	}

	t.Setenv("COVER_DEV_WALLETS", uuid.NewString())
	if _, err := Load(); err == nil {
		t.Fatal("expected error for entry without an amount")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("COVER_PERSIST_BATCH_SIZE", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed int")
	}
}

func TestLoad_RejectsBadVoteScope(t *testing.T) {
	t.Setenv("COVER_VOTE_SCOPE", "everyone")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown vote scope")
	}
}
