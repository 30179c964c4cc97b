package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config is the process configuration shared by the server, worker and
// seeder binaries.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPAddr    string `env:"HTTP_ADDR"    envDefault:":8080"`
	BaseURL     string `env:"BASE_URL"     envDefault:"http://localhost:8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY"   envDefault:"false"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	RedisAddr string `env:"REDIS_ADDR"`
	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"notifications"`

	JWTSecret string        `env:"JWT_SECRET" envDefault:"dev-secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL"  envDefault:"24h"`

	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	TemplatesPath string        `env:"TEMPLATES_PATH"`

	LockTTL time.Duration `env:"REDEEM_LOCK_TTL" envDefault:"10s"`

	Seed Seed
}

// Seed holds the system account bootstrap settings. The attribute fields are
// ciphertext unless AppKey is empty.
type Seed struct {
	AppKey   string `env:"APP_KEY"`
	Deposit  int64  `env:"SYSTEM_DEPOSIT"        envDefault:"1000000"`
	Name     string `env:"SEED_SYSTEM_NAME"`
	Email    string `env:"SEED_SYSTEM_EMAIL"`
	Mobile   string `env:"SEED_SYSTEM_MOBILE"`
	Password string `env:"SEED_SYSTEM_PASSWORD"`
}

// RedeemURL is the public link printed in the org-campaign notification.
func (c Config) RedeemURL(code string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/recruit/" + code
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing .env is normal outside development
		_ = godotenv.Load(f)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	if cfg.Seed.Deposit < 0 {
		return Config{}, errors.Errorf("SYSTEM_DEPOSIT must not be negative, got %d", cfg.Seed.Deposit)
	}
	if cfg.NotifyTimeout <= 0 {
		return Config{}, errors.New("NOTIFY_TIMEOUT must be positive")
	}
	return cfg, nil
}
