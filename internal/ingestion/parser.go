package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"CoverPool/internal/oracle"
)

// priceQuoteJSON is the wire format on cover.prices.{asset}.
// Field names use snake_case to match upstream producers.
type priceQuoteJSON struct {
	Asset       string `json:"asset"`
	Price       uint64 `json:"price"` // Fixed-point quote units
	TimestampUs int64  `json:"timestamp_us"`
}

// ParsePriceQuote converts a raw NATS message into an oracle quote.
func ParsePriceQuote(raw RawQuote) (oracle.Quote, error) {
	var j priceQuoteJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return oracle.Quote{}, fmt.Errorf("parse price quote: %w", err)
	}

	if j.Asset == "" {
		return oracle.Quote{}, fmt.Errorf("price quote on %s: missing asset", raw.Subject)
	}
	if j.Price == 0 {
		return oracle.Quote{}, fmt.Errorf("price quote for %s: zero price", j.Asset)
	}
	if j.TimestampUs <= 0 {
		return oracle.Quote{}, fmt.Errorf("price quote for %s: missing timestamp", j.Asset)
	}

	return oracle.Quote{
		Asset:     j.Asset,
		Price:     j.Price,
		UpdatedAt: time.UnixMicro(j.TimestampUs).Unix(),
	}, nil
}
