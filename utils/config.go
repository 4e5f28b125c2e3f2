// utils/config.go
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config is the process configuration, read from the environment (and .env via godotenv in main).
type Config struct {
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	Port           int      `env:"PORT" envDefault:"5200"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	AdminAPIKey    string   `env:"ADMIN_API_KEY,required,notEmpty"`
	JWTSecret      string   `env:"JWT_SECRET"`

	PaymentGatewayURL   string `env:"PAYMENT_GATEWAY_URL"`
	PaymentGatewayToken string `env:"PAYMENT_GATEWAY_TOKEN"`
	PaymentVerify       bool   `env:"PAYMENT_VERIFY" envDefault:"true"`

	EntryFee              decimal.Decimal `env:"ENTRY_FEE" envDefault:"50000"`
	PrizePoolSharePercent decimal.Decimal `env:"PRIZE_POOL_SHARE_PERCENT" envDefault:"70"`
	PayoutSplitsRaw       []string        `env:"PAYOUT_SPLITS" envDefault:"60,25,15" envSeparator:","`
	payoutSplits          []decimal.Decimal

	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	JudgeModel      string        `env:"JUDGE_MODEL"`
	JudgeURL        string        `env:"JUDGE_URL"`
	JudgeTimeout    time.Duration `env:"JUDGE_TIMEOUT" envDefault:"60s"`

	ScoringWorkers     int           `env:"SCORING_WORKERS" envDefault:"4"`
	ScoringQueueSize   int           `env:"SCORING_QUEUE_SIZE" envDefault:"256"`
	ScoringMaxAttempts uint          `env:"SCORING_MAX_ATTEMPTS" envDefault:"5"`
	PayoutPollInterval time.Duration `env:"PAYOUT_POLL_INTERVAL" envDefault:"30s"`

	R2 R2Config
}

type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

// Enabled reports whether enough R2 settings are present to upload.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// PayoutSplits are the validated PAYOUT_SPLITS percentages.
func (c *Config) PayoutSplits() []decimal.Decimal {
	return c.payoutSplits
}

// LoadConfig parses the environment and validates the money settings.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	splits, err := ParsePayoutSplits(cfg.PayoutSplitsRaw)
	if err != nil {
		return nil, err
	}
	cfg.payoutSplits = splits

	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if !cfg.EntryFee.IsPositive() {
		return nil, fmt.Errorf("ENTRY_FEE must be positive, got %s", cfg.EntryFee)
	}
	hundred := decimal.NewFromInt(100)
	if cfg.PrizePoolSharePercent.IsNegative() || cfg.PrizePoolSharePercent.GreaterThan(hundred) {
		return nil, fmt.Errorf("PRIZE_POOL_SHARE_PERCENT must be within 0..100, got %s", cfg.PrizePoolSharePercent)
	}
	if cfg.PaymentVerify && cfg.PaymentGatewayURL == "" {
		return nil, fmt.Errorf("PAYMENT_GATEWAY_URL is required when PAYMENT_VERIFY is enabled")
	}
	return &cfg, nil
}

// ParsePayoutSplits turns "60,25,15" into percentages that must be positive and sum to at most 100.
func ParsePayoutSplits(raw []string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	total := decimal.Zero
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pct, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("PAYOUT_SPLITS: %q is not a number", part)
		}
		if !pct.IsPositive() {
			return nil, fmt.Errorf("PAYOUT_SPLITS: %s must be positive", pct)
		}
		total = total.Add(pct)
		out = append(out, pct)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("PAYOUT_SPLITS: at least one place is required")
	}
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("PAYOUT_SPLITS: total %s exceeds 100", total)
	}
	return out, nil
}
