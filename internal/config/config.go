// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"encore-ledger/pkg/db" // Import db package for its Config struct
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	LogLevel   string
	DB         db.Config

	WalletIDSecret   string
	InternalAPIToken string

	ReserveAccount  string
	RevenueAccount  string
	ClearingAccount string

	MaxAmountCents       int64
	SupportedCurrencies  []string
	DefaultCurrency      string
	PlatformFloorPercent decimal.Decimal

	WriteTimeout       time.Duration
	SettleWindow       time.Duration
	RepairInterval     time.Duration
	RepairGrace        time.Duration
	RateLimitPerMinute int

	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadConfig loads configuration from environment variables, after seeding
// them from a .env file in the working directory when one exists. Variables
// already set in the environment win over the file.
// It returns an AppConfig instance or an error if any required variable is missing or invalid.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds an AppConfig from the process environment only.
func FromEnv() (*AppConfig, error) {
	var errs []error

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid DB_PORT: %w", err))
	}
	maxAmount, err := strconv.ParseInt(getEnv("MAX_AMOUNT_CENTS", "99999900"), 10, 64)
	if err != nil || maxAmount <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_AMOUNT_CENTS %q", os.Getenv("MAX_AMOUNT_CENTS")))
	}
	floor, err := decimal.NewFromString(getEnv("PLATFORM_FLOOR_PERCENT", "8"))
	if err != nil || floor.IsNegative() || floor.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("invalid PLATFORM_FLOOR_PERCENT %q", os.Getenv("PLATFORM_FLOOR_PERCENT")))
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "60"))
	if err != nil || rateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %q", os.Getenv("RATE_LIMIT_PER_MINUTE")))
	}

	cfg := &AppConfig{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DB: db.Config{
			Driver:   getEnv("DB_DRIVER", db.DriverPostgres),
			Host:     getEnv("DB_HOST", "localhost"), // Default to localhost for local development
			Port:     dbPort,
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "ledgerdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			DSN:      os.Getenv("DB_DSN"),
		},

		WalletIDSecret:   os.Getenv("WALLET_ID_SECRET"),
		InternalAPIToken: os.Getenv("INTERNAL_API_TOKEN"),

		ReserveAccount:  getEnv("PLATFORM_RESERVE_ACCOUNT", "platform-reserve"),
		RevenueAccount:  getEnv("PLATFORM_REVENUE_ACCOUNT", "platform-revenue"),
		ClearingAccount: getEnv("PAYOUT_CLEARING_ACCOUNT", "payout-clearing"),

		MaxAmountCents:       maxAmount,
		SupportedCurrencies:  splitList(strings.ToUpper(getEnv("SUPPORTED_CURRENCIES", "USD,EUR,GBP,CAD"))),
		DefaultCurrency:      strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		PlatformFloorPercent: floor,

		WriteTimeout:       durationEnv("WRITE_TIMEOUT", 5*time.Second, &errs),
		SettleWindow:       durationEnv("SETTLE_WINDOW", 5*time.Minute, &errs),
		RepairInterval:     durationEnv("REPAIR_INTERVAL", time.Minute, &errs),
		RepairGrace:        durationEnv("REPAIR_GRACE", 2*time.Minute, &errs),
		RateLimitPerMinute: rateLimit,

		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "ledger.journal"),
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	var errs []error
	if c.WalletIDSecret == "" {
		errs = append(errs, errors.New("WALLET_ID_SECRET is required"))
	}
	if c.DB.Driver == db.DriverSQLite && c.DB.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required for the sqlite3 driver"))
	}
	if len(c.SupportedCurrencies) == 0 {
		errs = append(errs, errors.New("SUPPORTED_CURRENCIES must not be empty"))
	}
	supported := false
	for _, cur := range c.SupportedCurrencies {
		if cur == c.DefaultCurrency {
			supported = true
		}
	}
	if !supported {
		errs = append(errs, fmt.Errorf("DEFAULT_CURRENCY %s is not in SUPPORTED_CURRENCIES", c.DefaultCurrency))
	}
	accounts := map[string]string{}
	for name, account := range map[string]string{
		"PLATFORM_RESERVE_ACCOUNT": c.ReserveAccount,
		"PLATFORM_REVENUE_ACCOUNT": c.RevenueAccount,
		"PAYOUT_CLEARING_ACCOUNT":  c.ClearingAccount,
	} {
		if other, dup := accounts[account]; dup {
			errs = append(errs, fmt.Errorf("%s and %s must name different accounts", other, name))
		}
		accounts[account] = name
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q", key, raw))
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
