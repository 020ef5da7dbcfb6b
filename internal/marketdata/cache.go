package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bolsa-labs/bolsa-api/internal/broker"
)

// Cache is a read-through TTL cache of last-trade quotes. It is an
// explicit object owned by whoever constructs it, not process-wide
// state; two components wanting different TTLs build two caches.
type Cache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quote     broker.Quote
	expiresAt time.Time
}

// NewCache creates a quote cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Quote returns the cached quote for (market, symbol) or fetches it
// through the given session.
func (c *Cache) Quote(ctx context.Context, session broker.Session, market, symbol string) (*broker.Quote, error) {
	key := market + ":" + strings.ToUpper(symbol)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		quote := entry.quote
		return &quote, nil
	}

	quote, err := session.Quote(ctx, market, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: *quote, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return quote, nil
}

// Sweep drops expired entries on the given interval until ctx is done.
func (c *Cache) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Source resolves advisory prices through the subject's broker session,
// backed by a shared quote cache.
type Source struct {
	cache       *Cache
	sessions    SessionRunner
	provider    string
	quoteMarket string
}

// SessionRunner is the slice of the credential manager the source
// needs: run a function inside the subject's broker session.
type SessionRunner interface {
	WithSession(ctx context.Context, subjectID, provider string, fn func(broker.Session) error) error
}

// NewSource creates a price source quoting against the given market.
func NewSource(cache *Cache, sessions SessionRunner, provider, quoteMarket string) *Source {
	return &Source{
		cache:       cache,
		sessions:    sessions,
		provider:    provider,
		quoteMarket: quoteMarket,
	}
}

// LastPrice returns the last-trade price of symbol for the subject.
func (s *Source) LastPrice(ctx context.Context, subjectID, symbol string) (float64, error) {
	var price float64

	err := s.sessions.WithSession(ctx, subjectID, s.provider, func(session broker.Session) error {
		quote, err := s.cache.Quote(ctx, session, s.quoteMarket, symbol)
		if err != nil {
			return err
		}
		price = quote.LastPrice
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("quote lookup failed")
		return 0, err
	}

	return price, nil
}
