package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"tradesim/internal/events"
	"tradesim/internal/metrics"

	"go.uber.org/zap"
)

// Poller refreshes quotes for every tradable symbol, stores them in the
// cache and pushes them on the bus for websocket clients.
type Poller struct {
	provider Provider
	cache    Cache
	bus      *events.Bus
	metrics  *metrics.Metrics
	log      *zap.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	symbols []string
}

func NewPoller(provider Provider, cache Cache, bus *events.Bus, m *metrics.Metrics, log *zap.Logger, symbols []string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		provider: provider,
		cache:    cache,
		bus:      bus,
		metrics:  m,
		log:      log,
		interval: interval,
		maxAge:   MaxQuoteAge(interval),
		now:      time.Now,
		symbols:  append([]string(nil), symbols...),
	}
}

// MaxQuoteAge is how long a quote may be used for pricing after it was
// taken. Redis entries expire after the same period.
func MaxQuoteAge(interval time.Duration) time.Duration {
	age := 10 * interval
	if age < 5*time.Second {
		age = 5 * time.Second
	}
	return age
}

func (p *Poller) fresh(q Quote) bool {
	return q.Valid() && p.now().Sub(q.Time) <= p.maxAge
}

func (p *Poller) SetSymbols(symbols []string) {
	p.mu.Lock()
	p.symbols = append([]string(nil), symbols...)
	p.mu.Unlock()
}

func (p *Poller) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.symbols...)
}

// Run blocks until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	p.Refresh(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

func (p *Poller) Refresh(ctx context.Context) {
	for _, symbol := range p.Symbols() {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.fetch(ctx, symbol); err != nil {
			p.log.Warn("quote refresh failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (p *Poller) fetch(ctx context.Context, symbol string) (Quote, error) {
	q, err := p.provider.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	if err := p.cache.Set(ctx, q); err != nil {
		p.log.Warn("quote cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	p.metrics.QuoteUpdate(q.Symbol, q.Source)
	if p.bus != nil {
		p.bus.Publish(events.Event{Type: events.TypeQuote, Data: q})
	}
	return q, nil
}

// Current returns the cached quote, fetching it when the cache misses or the
// cached quote is older than the max age. A stale quote is never returned.
func (p *Poller) Current(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if q, ok, err := p.cache.Get(ctx, symbol); err == nil && ok && p.fresh(q) {
		return q, nil
	} else if err != nil {
		p.log.Warn("quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
	}
	q, err := p.fetch(ctx, symbol)
	if err != nil {
		p.log.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
		return Quote{}, ErrNoQuote
	}
	if !p.fresh(q) {
		p.log.Warn("provider returned stale quote", zap.String("symbol", symbol), zap.Time("quote_time", q.Time))
		return Quote{}, ErrNoQuote
	}
	return q, nil
}

func (p *Poller) All(ctx context.Context) []Quote {
	symbols := p.Symbols()
	out := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		if q, ok, err := p.cache.Get(ctx, symbol); err == nil && ok && p.fresh(q) {
			out = append(out, q)
		}
	}
	return out
}
