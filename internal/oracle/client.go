package oracle

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnsupportedAsset = errors.New("asset not supported by oracle")
	ErrNoQuote          = errors.New("no quote available")
	ErrStalePrice       = errors.New("oracle price is stale")
)

// Quote is one observed price for an insured asset.
type Quote struct {
	Asset     string
	Price     uint64 // Fixed-point quote units
	UpdatedAt int64  // Unix seconds
}

// Client supplies current prices for insured assets. Price takes the
// caller's clock read so staleness is judged against the operation time,
// not a second wall-clock read.
type Client interface {
	Supported(asset string) bool
	Price(asset string, now int64) (uint64, error)
}

// CacheClient serves prices from an in-memory cache fed by the price
// stream. A quote older than maxAge fails with ErrStalePrice. Safe for
// concurrent use: the feed goroutine writes while the engine reads.
type CacheClient struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	assets map[string]bool
	maxAge int64
}

func NewCacheClient(assets []string, maxAgeSeconds int64) *CacheClient {
	supported := make(map[string]bool, len(assets))
	for _, a := range assets {
		supported[a] = true
	}
	return &CacheClient{
		quotes: make(map[string]Quote),
		assets: supported,
		maxAge: maxAgeSeconds,
	}
}

func (c *CacheClient) Supported(asset string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assets[asset]
}

// SetQuote installs a fresh quote. Updates for unsupported assets are
// rejected so a misconfigured feed cannot widen the insurable set.
func (c *CacheClient) SetQuote(asset string, price uint64, updatedAt int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.assets[asset] {
		return fmt.Errorf("asset %s: %w", asset, ErrUnsupportedAsset)
	}

	current, ok := c.quotes[asset]
	if ok && updatedAt < current.UpdatedAt {
		// Out-of-order update - keep the newer quote
		return nil
	}

	c.quotes[asset] = Quote{Asset: asset, Price: price, UpdatedAt: updatedAt}
	return nil
}

func (c *CacheClient) Price(asset string, now int64) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.assets[asset] {
		return 0, fmt.Errorf("asset %s: %w", asset, ErrUnsupportedAsset)
	}
	q, ok := c.quotes[asset]
	if !ok {
		return 0, fmt.Errorf("asset %s: %w", asset, ErrNoQuote)
	}
	if now-q.UpdatedAt > c.maxAge {
		return 0, fmt.Errorf("asset %s quoted at %d, now %d: %w", asset, q.UpdatedAt, now, ErrStalePrice)
	}

	return q.Price, nil
}

// Quotes returns a copy of the cache (health and query surfaces).
func (c *CacheClient) Quotes() []Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Quote, 0, len(c.quotes))
	for _, q := range c.quotes {
		out = append(out, q)
	}
	return out
}

// StaticClient serves fixed prices. Used in tests and dev mode.
type StaticClient struct {
	prices map[string]uint64
}

func NewStaticClient(prices map[string]uint64) *StaticClient {
	cp := make(map[string]uint64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &StaticClient{prices: cp}
}

func (s *StaticClient) Supported(asset string) bool {
	_, ok := s.prices[asset]
	return ok
}

func (s *StaticClient) Price(asset string, now int64) (uint64, error) {
	price, ok := s.prices[asset]
	if !ok {
		return 0, fmt.Errorf("asset %s: %w", asset, ErrUnsupportedAsset)
	}
	return price, nil
}

// Set installs or updates a fixed price.
func (s *StaticClient) Set(asset string, price uint64) {
	s.prices[asset] = price
}
