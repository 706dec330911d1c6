package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	Port        int           `env:"PORT" envDefault:"8080"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`
	AppBaseURL  string        `env:"APP_BASE_URL" envDefault:"http://valorpoint.web.app/"`

	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"false"`

	OperationTimeout     time.Duration `env:"OPERATION_TIMEOUT" envDefault:"5s"`
	ReferralCodeAttempts int           `env:"REFERRAL_CODE_ATTEMPTS" envDefault:"5"`

	AMQPURL            string        `env:"AMQP_URL"`
	EventsExchange     string        `env:"EVENTS_EXCHANGE" envDefault:"valorpoint.accounts"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	PublishTimeout     time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`

	IdempotencyCleanupSchedule string `env:"IDEMPOTENCY_CLEANUP_SCHEDULE" envDefault:"@every 1h"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.ReferralCodeAttempts < 1 {
		return nil, fmt.Errorf("config.Load: REFERRAL_CODE_ATTEMPTS must be at least 1")
	}
	return &cfg, nil
}
