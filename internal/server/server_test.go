package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CoverPool/internal/claims"
	"CoverPool/internal/engine"
	"CoverPool/internal/observability"
	"CoverPool/internal/oracle"
	"CoverPool/internal/server"
	"CoverPool/internal/token"
)

const testAdminToken = "test-admin-token"

type testServer struct {
	router *gin.Engine
	eng    *engine.Engine
	wallet *token.MemoryTransferer
	prices *oracle.CacheClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	prices := oracle.NewCacheClient([]string{"BTC", "ETH"}, 3600)
	if err := prices.SetQuote("BTC", 60_000, time.Now().Unix()); err != nil {
		t.Fatalf("seed quote: %v", err)
	}
	wallet := token.NewMemoryTransferer()

	eng := engine.NewEngine(engine.Config{
		Oracle:      prices,
		Transfer:    wallet,
		Params:      engine.DefaultParams(),
		VoteScope:   claims.VoteScopeGlobal,
		PersistChan: make(chan engine.Output, 4096),
		Logger:      zerolog.Nop(),
	})

	srv := server.New(server.Config{
		Engine:     eng,
		Oracle:     prices,
		Health:     observability.NewHealthChecker(),
		Faucet:     wallet,
		AdminToken: testAdminToken,
		Logger:     zerolog.Nop(),
	})

	return &testServer{router: srv.Router(), eng: eng, wallet: wallet, prices: prices}
}

func (ts *testServer) do(t *testing.T, method, path, ref string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ref != "" {
		req.Header.Set("Idempotency-Key", ref)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) doAdmin(t *testing.T, method, path, ref string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	if ref != "" {
		req.Header.Set("Idempotency-Key", ref)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp.Data
}

func TestCreatePolicy(t *testing.T) {
	ts := newTestServer(t)
	owner := uuid.New()
	ts.wallet.Mint(owner, 100_000)

	body := map[string]any{
		"owner":           owner.String(),
		"asset":           "BTC",
		"strike_price":    50_000,
		"coverage_amount": 500_000,
		"premium_amount":  1_000,
	}

	w := ts.do(t, http.MethodPost, "/v1/policies", "create-1", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	data := decodeData(t, w)
	if data["asset"] != "BTC" {
		t.Errorf("asset = %v", data["asset"])
	}
	if _, err := uuid.Parse(data["policy_id"].(string)); err != nil {
		t.Errorf("policy_id not a uuid: %v", data["policy_id"])
	}

	// Same idempotency key is a conflict.
	w = ts.do(t, http.MethodPost, "/v1/policies", "create-1", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
}

func TestCreatePolicy_MissingIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	owner := uuid.New()
	ts.wallet.Mint(owner, 100_000)

	w := ts.do(t, http.MethodPost, "/v1/policies", "", map[string]any{
		"owner":           owner.String(),
		"asset":           "BTC",
		"strike_price":    50_000,
		"coverage_amount": 500_000,
		"premium_amount":  1_000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreatePolicy_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"malformed owner", map[string]any{"owner": "not-a-uuid", "asset": "BTC", "strike_price": 1, "coverage_amount": 1, "premium_amount": 1}},
		{"unsupported asset", map[string]any{"owner": uuid.NewString(), "asset": "DOGE", "strike_price": 1, "coverage_amount": 1, "premium_amount": 1}},
		{"zero premium", map[string]any{"owner": uuid.NewString(), "asset": "BTC", "strike_price": 1, "coverage_amount": 1, "premium_amount": 0}},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/policies", fmt.Sprintf("bad-%d", i), tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetPolicy_NotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/policies/"+uuid.NewString(), "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/v1/policies/not-a-uuid", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDepositAndShares(t *testing.T) {
	ts := newTestServer(t)
	provider := uuid.New()
	ts.wallet.Mint(provider, 1_000_000)

	w := ts.do(t, http.MethodPost, "/v1/pool/deposits", "dep-1", map[string]any{
		"provider": provider.String(),
		"amount":   500_000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body = %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["shares_minted"].(float64) != 500_000 {
		t.Errorf("shares_minted = %v, want 500000", data["shares_minted"])
	}

	w = ts.do(t, http.MethodGet, "/v1/members/"+provider.String()+"/shares", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("shares status = %d", w.Code)
	}
	data = decodeData(t, w)
	if data["shares"].(float64) != 500_000 {
		t.Errorf("shares = %v, want 500000", data["shares"])
	}

	w = ts.do(t, http.MethodGet, "/v1/pool", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pool status = %d", w.Code)
	}
	data = decodeData(t, w)
	if data["balance"].(float64) != 500_000 {
		t.Errorf("pool balance = %v, want 500000", data["balance"])
	}
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/admin/params", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/params", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	w = ts.doAdmin(t, http.MethodGet, "/v1/admin/params", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d", w.Code)
	}
	data := decodeData(t, w)
	if data["grace_days"].(float64) != 15 {
		t.Errorf("grace_days = %v, want 15", data["grace_days"])
	}
}

func TestUpdateParam(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPut, "/v1/admin/params", "param-1", map[string]any{
		"name":  "fee_bps",
		"value": 250,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if got := ts.eng.Params().FeeBps; got != 250 {
		t.Errorf("fee bps = %d, want 250", got)
	}

	w = ts.doAdmin(t, http.MethodPut, "/v1/admin/params", "param-2", map[string]any{
		"name":  "no_such_param",
		"value": 1,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown param: status = %d, want 400", w.Code)
	}
}

func TestSetTreasury(t *testing.T) {
	ts := newTestServer(t)
	account := uuid.New()

	w := ts.doAdmin(t, http.MethodPut, "/v1/admin/treasury", "treasury-1", map[string]any{
		"account": account.String(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if got := ts.eng.Params().TreasuryAccount; got != account {
		t.Errorf("treasury = %s, want %s", got, account)
	}

	w = ts.doAdmin(t, http.MethodGet, "/v1/admin/params", "", nil)
	data := decodeData(t, w)
	if data["treasury_account"] != account.String() {
		t.Errorf("params treasury = %v", data["treasury_account"])
	}

	w = ts.doAdmin(t, http.MethodPut, "/v1/admin/treasury", "treasury-2", map[string]any{
		"account": uuid.Nil.String(),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("nil account: status = %d, want 400", w.Code)
	}
}

func TestFaucet(t *testing.T) {
	ts := newTestServer(t)
	member := uuid.New()

	w := ts.doAdmin(t, http.MethodPost, "/v1/admin/faucet", "", map[string]any{
		"account": member.String(),
		"amount":  50_000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["balance"] != float64(50_000) {
		t.Errorf("balance = %v, want 50000", data["balance"])
	}
	if got := ts.wallet.BalanceOf(member); got != 50_000 {
		t.Errorf("wallet = %d, want 50000", got)
	}

	// The minted funds make the first real inflow possible
	w = ts.do(t, http.MethodPost, "/v1/pool/deposits", "dep-1", map[string]any{
		"provider": member.String(),
		"amount":   50_000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit after faucet: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = ts.doAdmin(t, http.MethodPost, "/v1/admin/faucet", "", map[string]any{
		"account": member.String(),
		"amount":  0,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero mint: status = %d, want 400", w.Code)
	}
}

func TestFaucet_UnmountedWithoutMinter(t *testing.T) {
	prices := oracle.NewCacheClient([]string{"BTC"}, 3600)
	eng := engine.NewEngine(engine.Config{
		Oracle:      prices,
		Transfer:    token.FailingTransferer{},
		Params:      engine.DefaultParams(),
		VoteScope:   claims.VoteScopeGlobal,
		PersistChan: make(chan engine.Output, 16),
		Logger:      zerolog.Nop(),
	})
	srv := server.New(server.Config{
		Engine:     eng,
		Oracle:     prices,
		Health:     observability.NewHealthChecker(),
		AdminToken: testAdminToken,
		Logger:     zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/faucet", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no faucet is wired", w.Code)
	}
}

func TestOracleQuotes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/oracle/quotes", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0]["asset"] != "BTC" {
		t.Errorf("quotes = %v", resp.Data)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}

	// Readiness starts false until the process marks itself ready.
	w = ts.do(t, http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", w.Code)
	}
}
