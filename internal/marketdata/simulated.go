package marketdata

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type pairProfile struct {
	Base   float64
	Vol    float64
	Spread float64
	Prec   int32
}

var pairProfiles = map[string]pairProfile{
	"EURUSD":  {Base: 1.08, Vol: 0.0002, Spread: 0.0001, Prec: 5},
	"GBPUSD":  {Base: 1.27, Vol: 0.0002, Spread: 0.00015, Prec: 5},
	"USDJPY":  {Base: 150.0, Vol: 0.0002, Spread: 0.01, Prec: 3},
	"XAUUSD":  {Base: 2300.0, Vol: 0.0004, Spread: 0.3, Prec: 2},
	"BTCUSDT": {Base: 65000.0, Vol: 0.001, Spread: 5, Prec: 2},
	"ETHUSDT": {Base: 3200.0, Vol: 0.001, Spread: 0.5, Prec: 2},
}

var fallbackProfile = pairProfile{Base: 100, Vol: 0.0005, Spread: 0.02, Prec: 4}

func profileFor(symbol string) pairProfile {
	if p, ok := pairProfiles[symbol]; ok {
		return p
	}
	return fallbackProfile
}

// SimulatedProvider walks each symbol's mid price randomly, clamped to
// +-20% of its base so long-running demos stay plausible.
type SimulatedProvider struct {
	mu   sync.Mutex
	rng  *rand.Rand
	mids map[string]float64
	now  func() time.Time
}

func NewSimulatedProvider(seed int64) *SimulatedProvider {
	return &SimulatedProvider{
		rng:  rand.New(rand.NewSource(seed)),
		mids: map[string]float64{},
		now:  time.Now,
	}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(symbol)
	if symbol == "" {
		return Quote{}, ErrUnknownSymbol
	}
	prof := profileFor(symbol)

	p.mu.Lock()
	mid, ok := p.mids[symbol]
	if !ok {
		mid = prof.Base
	}
	mid *= 1 + prof.Vol*p.rng.NormFloat64()
	mid = math.Min(math.Max(mid, prof.Base*0.8), prof.Base*1.2)
	p.mids[symbol] = mid
	p.mu.Unlock()

	half := prof.Spread / 2
	bid := decimal.NewFromFloat(mid - half).Round(prof.Prec)
	ask := decimal.NewFromFloat(mid + half).Round(prof.Prec)
	if !ask.GreaterThan(bid) {
		ask = bid.Add(decimal.New(1, -prof.Prec))
	}
	return Quote{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Spread: ask.Sub(bid),
		Source: p.Name(),
		Time:   p.now().UTC(),
	}, nil
}
