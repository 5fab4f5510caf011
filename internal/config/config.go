package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr          string
	DBDSN             string
	JWTIssuer         string
	JWTSecret         string
	JWTTTL            time.Duration
	AppMode           string
	WebSocketOrigin   string
	UIDist            string
	LogLevel          string
	Symbols           []string
	PriceFeed         string
	BinanceURL        string
	PricePollInterval time.Duration
	RedisAddr         string
	KafkaBrokers      []string
	KafkaTopic        string
	LoanDailyRate     decimal.Decimal
	LoanMaxAmount     decimal.Decimal
	DepositMaxAmount  decimal.Decimal
	InterestSchedule  string
	RateLimitRPS      int
	RateLimitBurst    int
	OwnerUsername     string
	OwnerPassword     string
}

const defaultSymbols = "EURUSD,GBPUSD,USDJPY,XAUUSD,BTCUSDT,ETHUSDT"

func (c Config) Production() bool {
	return c.AppMode == "production"
}

// Load reads the process environment. A .env file in the working directory
// is applied first; variables already set in the environment are kept.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, errors.New("invalid JWT_TTL")
		}
		c.JWTTTL = d
	}
	c.AppMode = strings.ToLower(strings.TrimSpace(os.Getenv("APP_MODE")))
	if c.AppMode == "" {
		c.AppMode = "development"
	}
	if c.AppMode != "development" && c.AppMode != "production" {
		return c, errors.New("invalid APP_MODE: use development or production")
	}
	c.WebSocketOrigin = envOr("WS_ORIGIN", "*")
	c.UIDist = os.Getenv("UI_DIST")
	c.LogLevel = envOr("LOG_LEVEL", "info")
	c.Symbols = splitList(envOr("SYMBOLS", defaultSymbols), true)
	if len(c.Symbols) == 0 {
		return c, errors.New("SYMBOLS is empty")
	}
	c.PriceFeed = strings.ToLower(envOr("PRICE_FEED", "simulated"))
	if c.PriceFeed != "simulated" && c.PriceFeed != "binance" {
		return c, errors.New("invalid PRICE_FEED: use simulated or binance")
	}
	c.BinanceURL = strings.TrimRight(envOr("BINANCE_URL", "https://api.binance.com"), "/")
	poll, err := time.ParseDuration(envOr("PRICE_POLL_INTERVAL", "2s"))
	if err != nil || poll <= 0 {
		return c, errors.New("invalid PRICE_POLL_INTERVAL")
	}
	c.PricePollInterval = poll
	c.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"), false)
	c.KafkaTopic = envOr("KAFKA_TOPIC", "tradesim.events")
	if c.LoanDailyRate, err = positiveDecimal("LOAN_DAILY_RATE", "0.0005"); err != nil {
		return c, err
	}
	if c.LoanMaxAmount, err = positiveDecimal("LOAN_MAX_AMOUNT", "100000"); err != nil {
		return c, err
	}
	if c.DepositMaxAmount, err = positiveDecimal("DEPOSIT_MAX_AMOUNT", "1000000"); err != nil {
		return c, err
	}
	c.InterestSchedule = envOr("INTEREST_SCHEDULE", "@hourly")
	if c.RateLimitRPS, err = positiveInt("RATE_LIMIT_RPS", 10); err != nil {
		return c, err
	}
	if c.RateLimitBurst, err = positiveInt("RATE_LIMIT_BURST", 30); err != nil {
		return c, err
	}
	c.OwnerUsername = strings.TrimSpace(os.Getenv("OWNER_USERNAME"))
	c.OwnerPassword = os.Getenv("OWNER_PASSWORD")
	if (c.OwnerUsername == "") != (c.OwnerPassword == "") {
		return c, errors.New("OWNER_USERNAME and OWNER_PASSWORD must be set together")
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(raw string, upper bool) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if upper {
			item = strings.ToUpper(item)
		}
		out = append(out, item)
	}
	return out
}

func positiveDecimal(key, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(envOr(key, def))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, errors.New("invalid " + key)
	}
	return d, nil
}

func positiveInt(key string, def int) (int, error) {
	v, err := strconv.Atoi(envOr(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
