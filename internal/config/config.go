package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"mining-bot/internal/models"
)

type Config struct {
	DBUser        string `env:"DB_USER" envDefault:"postgres"`
	DBPassword    string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName        string `env:"DB_NAME" envDefault:"mining_bot"`
	DBHost        string `env:"DB_HOST" envDefault:"localhost"`
	DBPort        string `env:"DB_PORT" envDefault:"5432"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisLockKey  string `env:"REDIS_LOCK_PREFIX" envDefault:"mining:lock:"`

	BotToken     string `env:"TELEGRAM_BOT_TOKEN,required"`
	BotUsername  string `env:"TELEGRAM_BOT_USERNAME"`
	CommunityURL string `env:"COMMUNITY_URL"`
	WebAppURL    string `env:"WEBAPP_URL"`
	LogoPath     string `env:"LOGO_PATH" envDefault:"assets/logo.png"`

	HTTPAddr            string   `env:"HTTP_ADDR" envDefault:":3000"`
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.1/32,::1/128"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	BaselineRate       models.Rate   `env:"BASELINE_RATE" envDefault:"0.0000001157"`
	Level1RateBonus    models.Rate   `env:"LEVEL1_RATE_BONUS" envDefault:"0.00000000058"`
	Level2RateBonus    models.Rate   `env:"LEVEL2_RATE_BONUS" envDefault:"0.000000000232"`
	Level3RateBonus    models.Rate   `env:"LEVEL3_RATE_BONUS" envDefault:"0.000000000174"`
	Level1BalanceBonus models.Coins  `env:"LEVEL1_BALANCE_BONUS" envDefault:"100"`
	Level2BalanceBonus models.Coins  `env:"LEVEL2_BALANCE_BONUS" envDefault:"50"`
	Level3BalanceBonus models.Coins  `env:"LEVEL3_BALANCE_BONUS" envDefault:"25"`
	AccrualWindow      time.Duration `env:"ACCRUAL_WINDOW" envDefault:"720h"`

	// Schedules use cron syntax with a leading seconds field.
	AccrualSchedule    string        `env:"ACCRUAL_SCHEDULE" envDefault:"@every 1s"`
	ExpirySchedule     string        `env:"EXPIRY_SCHEDULE" envDefault:"0 0 0 * * *"`
	AccrualLockTTL     time.Duration `env:"ACCRUAL_LOCK_TTL" envDefault:"30s"`
	ExpiryLockTTL      time.Duration `env:"EXPIRY_LOCK_TTL" envDefault:"10m"`
	AccrualConcurrency int           `env:"ACCRUAL_CONCURRENCY" envDefault:"16"`
	ScanBatchSize      int           `env:"SCAN_BATCH_SIZE" envDefault:"500"`
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	// a missing .env file is fine, the environment may carry everything
	_ = godotenv.Load()
	return Parse(env.Options{})
}

// Parse builds a Config from the environment described by opts.
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BaselineRate <= 0 {
		return fmt.Errorf("BASELINE_RATE must be positive")
	}
	if c.AccrualWindow <= 0 {
		return fmt.Errorf("ACCRUAL_WINDOW must be positive")
	}
	if c.AccrualConcurrency <= 0 {
		return fmt.Errorf("ACCRUAL_CONCURRENCY must be positive")
	}
	return nil
}

// Rewards returns the game constants configured for this deployment.
func (c *Config) Rewards() models.Rewards {
	return models.Rewards{
		BaselineRate: c.BaselineRate,
		Window:       c.AccrualWindow,
		Level1:       models.LevelReward{Balance: c.Level1BalanceBonus, Rate: c.Level1RateBonus, ExtendsWindow: true},
		Level2:       models.LevelReward{Balance: c.Level2BalanceBonus, Rate: c.Level2RateBonus},
		Level3:       models.LevelReward{Balance: c.Level3BalanceBonus, Rate: c.Level3RateBonus},
	}
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
