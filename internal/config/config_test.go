package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "postgres://localhost/tradesim")
	t.Setenv("JWT_ISSUER", "tradesim")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "24h")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, c.JWTTTL)
	assert.Equal(t, "development", c.AppMode)
	assert.False(t, c.Production())
	assert.Equal(t, []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "BTCUSDT", "ETHUSDT"}, c.Symbols)
	assert.Equal(t, "simulated", c.PriceFeed)
	assert.Equal(t, 2*time.Second, c.PricePollInterval)
	assert.Equal(t, "tradesim.events", c.KafkaTopic)
	assert.Equal(t, "0.0005", c.LoanDailyRate.String())
	assert.Equal(t, "100000", c.LoanMaxAmount.String())
	assert.Equal(t, "@hourly", c.InterestSchedule)
	assert.Equal(t, 10, c.RateLimitRPS)
	assert.Equal(t, 30, c.RateLimitBurst)
	assert.Empty(t, c.KafkaBrokers)
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_ISSUER", "x")
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("JWT_TTL", "1h")
	_, err := Load()
	assert.EqualError(t, err, "missing required env: HTTP_ADDR,DB_DSN")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_MODE", "Production")
	t.Setenv("SYMBOLS", " btcusdt, eurusd ,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PRICE_FEED", "binance")
	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.Production())
	assert.Equal(t, []string{"BTCUSDT", "EURUSD"}, c.Symbols)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, "binance", c.PriceFeed)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"APP_MODE":            "staging",
		"PRICE_FEED":          "bloomberg",
		"PRICE_POLL_INTERVAL": "-1s",
		"LOAN_DAILY_RATE":     "-0.1",
		"LOAN_MAX_AMOUNT":     "lots",
		"JWT_TTL":             "forever",
		"OWNER_USERNAME":      "root",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
