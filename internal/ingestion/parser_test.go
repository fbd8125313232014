package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"CoverPool/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawQuote {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawQuote{
		Subject:    "cover.prices.BTC",
		Data:       data,
		ReceivedAt: time.Now(),
		AckFunc:    func() {},
		NakFunc:    func() {},
	}
}

func TestParsePriceQuote(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"asset":        "BTC",
		"price":        uint64(62_150_00),
		"timestamp_us": int64(1_700_000_000_000_000),
	})

	quote, err := ingestion.ParsePriceQuote(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if quote.Asset != "BTC" {
		t.Errorf("asset: got %s, want BTC", quote.Asset)
	}
	if quote.Price != 62_150_00 {
		t.Errorf("price: got %d, want 6215000", quote.Price)
	}
	if quote.UpdatedAt != 1_700_000_000 {
		t.Errorf("updated_at: got %d, want 1700000000", quote.UpdatedAt)
	}
}

func TestParsePriceQuote_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing asset", map[string]interface{}{
			"price": uint64(100), "timestamp_us": int64(1_700_000_000_000_000),
		}},
		{"zero price", map[string]interface{}{
			"asset": "BTC", "price": uint64(0), "timestamp_us": int64(1_700_000_000_000_000),
		}},
		{"missing timestamp", map[string]interface{}{
			"asset": "BTC", "price": uint64(100),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := rawFromJSON(t, tc.payload)
			if _, err := ingestion.ParsePriceQuote(raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParsePriceQuote_MalformedJSON(t *testing.T) {
	raw := ingestion.RawQuote{
		Subject:    "cover.prices.BTC",
		Data:       []byte("{not json"),
		ReceivedAt: time.Now(),
		AckFunc:    func() {},
		NakFunc:    func() {},
	}
	if _, err := ingestion.ParsePriceQuote(raw); err == nil {
		t.Fatal("expected error")
	}
}
