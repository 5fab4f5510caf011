package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesim/internal/events"
	"tradesim/internal/metrics"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, types.InstrumentKindCrypto, KindOf("btcusdt"))
	assert.Equal(t, types.InstrumentKindCrypto, KindOf("ETHUSDC"))
	assert.Equal(t, types.InstrumentKindForex, KindOf("EURUSD"))
	assert.Equal(t, types.InstrumentKindForex, KindOf("USDT"))
}

func TestQuoteSides(t *testing.T) {
	q := Quote{Bid: decimal.NewFromInt(99), Ask: decimal.NewFromInt(101)}
	assert.True(t, q.EntryPrice(types.OrderSideBuy).Equal(q.Ask))
	assert.True(t, q.EntryPrice(types.OrderSideSell).Equal(q.Bid))
	assert.True(t, q.ExitPrice(types.OrderSideBuy).Equal(q.Bid))
	assert.True(t, q.ExitPrice(types.OrderSideSell).Equal(q.Ask))
	assert.True(t, q.Valid())
	assert.False(t, Quote{Bid: decimal.NewFromInt(2), Ask: decimal.NewFromInt(1)}.Valid())
}

func TestSimulatedProviderStaysInBand(t *testing.T) {
	p := NewSimulatedProvider(42)
	base := decimal.NewFromFloat(pairProfiles["EURUSD"].Base)
	low := base.Mul(decimal.NewFromFloat(0.79))
	high := base.Mul(decimal.NewFromFloat(1.21))
	for i := 0; i < 2000; i++ {
		q, err := p.Quote(context.Background(), "eurusd")
		require.NoError(t, err)
		require.True(t, q.Valid())
		assert.Equal(t, "EURUSD", q.Symbol)
		assert.True(t, q.Bid.GreaterThan(low) && q.Ask.LessThan(high), "quote %s/%s out of band", q.Bid, q.Ask)
	}
	q, err := p.Quote(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.True(t, q.Valid())
	_, err = p.Quote(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestBinanceProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"64999.50","bidQty":"1.2","askPrice":"65000.10","askQty":"0.4"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, NewSimulatedProvider(1))
	q, err := p.Quote(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "64999.5", q.Bid.String())
	assert.Equal(t, "65000.1", q.Ask.String())
	assert.Equal(t, "binance", q.Source)

	_, err = p.Quote(context.Background(), "NOPEUSDT")
	assert.ErrorContains(t, err, "Invalid symbol.")

	fx, err := p.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "simulated", fx.Source)

	_, err = NewBinanceProvider(srv.URL, nil).Quote(context.Background(), "EURUSD")
	assert.Error(t, err)
}

func TestParseBookTickerRejectsGarbage(t *testing.T) {
	_, err := parseBookTicker("BTCUSDT", []byte(`not json`))
	assert.Error(t, err)
	_, err = parseBookTicker("BTCUSDT", []byte(`{"bidPrice":"x","askPrice":"1"}`))
	assert.Error(t, err)
	_, err = parseBookTicker("BTCUSDT", []byte(`{"bidPrice":"2","askPrice":"1"}`))
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_, ok, err := c.Get(ctx, "EURUSD")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, Quote{Symbol: "EURUSD", Bid: decimal.NewFromInt(1), Ask: decimal.NewFromInt(2)}))
	require.NoError(t, c.Set(ctx, Quote{Symbol: "GBPUSD"}))
	q, ok, err := c.Get(ctx, "eurusd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", q.Ask.String())
	_, ok, _ = c.Get(ctx, "GBPUSD")
	assert.False(t, ok)
}

func TestQuoteKey(t *testing.T) {
	assert.Equal(t, "quote:BTCUSDT", quoteKey("btcusdt"))
}

func TestPollerPublishesAndServesCurrent(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	cache := NewMemoryCache()
	p := NewPoller(NewSimulatedProvider(7), cache, bus, metrics.New(), zap.NewNop(), []string{"EURUSD", "BTCUSDT"}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	evt := <-sub
	assert.Equal(t, events.TypeQuote, evt.Type)
	cancel()
	<-done

	assert.Len(t, p.All(context.Background()), 2)

	q, err := p.Current(context.Background(), "xauusd")
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", q.Symbol)
	_, ok, _ := cache.Get(context.Background(), "XAUUSD")
	assert.True(t, ok)
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	return Quote{}, errUnsupportedQuote
}

func TestPollerCurrentWithoutQuote(t *testing.T) {
	p := NewPoller(failingProvider{}, NewMemoryCache(), nil, nil, zap.NewNop(), nil, time.Second)
	_, err := p.Current(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrNoQuote)
}

type flakyProvider struct {
	quote Quote
	calls int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	p.calls++
	if p.calls > 1 {
		return Quote{}, errUnsupportedQuote
	}
	return p.quote, nil
}

func TestPollerRefusesStaleQuoteWhenFeedFails(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &flakyProvider{quote: Quote{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101), Time: start}}
	p := NewPoller(provider, NewMemoryCache(), nil, nil, zap.NewNop(), []string{"BTCUSDT"}, time.Second)
	p.now = func() time.Time { return start.Add(time.Second) }

	p.Refresh(context.Background())
	q, err := p.Current(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "100", q.Bid.String())

	p.now = func() time.Time { return start.Add(6 * time.Hour) }
	p.Refresh(context.Background())
	_, err = p.Current(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoQuote)
	assert.Empty(t, p.All(context.Background()))
}

func TestPollerRejectsStaleProviderQuote(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &flakyProvider{quote: Quote{Symbol: "EURUSD", Bid: decimal.NewFromInt(1), Ask: decimal.NewFromInt(2), Time: now.Add(-6 * time.Hour)}}
	p := NewPoller(provider, NewMemoryCache(), nil, nil, zap.NewNop(), nil, time.Second)
	p.now = func() time.Time { return now }

	_, err := p.Current(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestMaxQuoteAge(t *testing.T) {
	assert.Equal(t, 20*time.Second, MaxQuoteAge(2*time.Second))
	assert.Equal(t, 5*time.Second, MaxQuoteAge(10*time.Millisecond))
}

func TestDefaultInstrument(t *testing.T) {
	btc := DefaultInstrument("btcusdt")
	assert.Equal(t, types.InstrumentKindCrypto, btc.Kind)
	assert.Equal(t, "0.0001", btc.MinQty.String())
	assert.Equal(t, 2, btc.Precision)
	fx := DefaultInstrument("USDJPY")
	assert.Equal(t, types.InstrumentKindForex, fx.Kind)
	assert.Equal(t, 3, fx.Precision)
	assert.NoError(t, validateLimits(fx))
	fx.MaxQty = decimal.Zero
	assert.Error(t, validateLimits(fx))
}
