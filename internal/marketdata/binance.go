package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradesim/internal/types"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceProvider reads best bid/ask from the public book ticker. Binance
// lists no forex, so non-crypto symbols are served by the fallback.
type BinanceProvider struct {
	client   *http.Client
	baseURL  string
	fallback Provider
}

func NewBinanceProvider(baseURL string, fallback Provider) *BinanceProvider {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	return &BinanceProvider{
		client:   &http.Client{Timeout: 5 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		fallback: fallback,
	}
}

func (b *BinanceProvider) Name() string { return "binance" }

func (b *BinanceProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(symbol)
	if KindOf(symbol) != types.InstrumentKindCrypto {
		if b.fallback == nil {
			return Quote{}, errUnsupportedQuote
		}
		return b.fallback.Quote(ctx, symbol)
	}
	endpoint := fmt.Sprintf("%s/api/v3/ticker/bookTicker?symbol=%s", b.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch book ticker: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("binance api error: %s - %s", resp.Status, gjson.GetBytes(body, "msg").String())
	}
	return parseBookTicker(symbol, body)
}

func parseBookTicker(symbol string, body []byte) (Quote, error) {
	if !gjson.ValidBytes(body) {
		return Quote{}, fmt.Errorf("invalid book ticker payload")
	}
	fields := gjson.GetManyBytes(body, "bidPrice", "askPrice")
	bid, err := decimal.NewFromString(fields[0].String())
	if err != nil {
		return Quote{}, fmt.Errorf("invalid bid price %q", fields[0].String())
	}
	ask, err := decimal.NewFromString(fields[1].String())
	if err != nil {
		return Quote{}, fmt.Errorf("invalid ask price %q", fields[1].String())
	}
	q := Quote{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Spread: ask.Sub(bid),
		Source: "binance",
		Time:   time.Now().UTC(),
	}
	if !q.Valid() {
		return Quote{}, fmt.Errorf("crossed or empty book for %s", symbol)
	}
	return q, nil
}
