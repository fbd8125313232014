package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"CoverPool/internal/observability"
	"CoverPool/internal/oracle"
)

// PriceFeed drains raw quotes, parses them, and installs them into the
// oracle cache. Bad messages are ACKed after max delivery would churn
// anyway; quotes for unsupported assets are ACKed immediately since
// redelivery cannot fix them.
type PriceFeed struct {
	cache     *oracle.CacheClient
	quoteChan <-chan RawQuote
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewPriceFeed(
	cache *oracle.CacheClient,
	quoteChan <-chan RawQuote,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PriceFeed {
	return &PriceFeed{
		cache:     cache,
		quoteChan: quoteChan,
		log:       logger.With().Str("component", "price_feed").Logger(),
		metrics:   metrics,
	}
}

// Run processes quotes until ctx is canceled or the channel closes.
func (pf *PriceFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-pf.quoteChan:
			if !ok {
				return nil
			}
			pf.handle(raw)
		}
	}
}

func (pf *PriceFeed) handle(raw RawQuote) {
	quote, err := ParsePriceQuote(raw)
	if err != nil {
		pf.reject("", "parse_error")
		pf.log.Warn().Err(err).Str("subject", raw.Subject).Msg("malformed price quote")
		raw.NakFunc()
		return
	}

	if err := pf.cache.SetQuote(quote.Asset, quote.Price, quote.UpdatedAt); err != nil {
		if errors.Is(err, oracle.ErrUnsupportedAsset) {
			pf.reject(quote.Asset, "unsupported_asset")
			raw.AckFunc()
			return
		}
		pf.reject(quote.Asset, "cache_error")
		pf.log.Warn().Err(err).Str("asset", quote.Asset).Msg("quote install failed")
		raw.NakFunc()
		return
	}

	if pf.metrics != nil {
		pf.metrics.OracleQuotes.WithLabelValues(quote.Asset).Inc()
		pf.metrics.OracleQuoteAge.WithLabelValues(quote.Asset).Set(float64(time.Now().Unix() - quote.UpdatedAt))
		pf.metrics.FeedPullLatency.WithLabelValues(raw.Subject).Observe(time.Since(raw.ReceivedAt).Seconds())
	}
	raw.AckFunc()
}

func (pf *PriceFeed) reject(asset, reason string) {
	if pf.metrics != nil {
		if asset == "" {
			asset = "unknown"
		}
		pf.metrics.OracleRejectedQuotes.WithLabelValues(asset, reason).Inc()
	}
}
