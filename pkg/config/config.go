package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// App holds runtime configuration derived from env vars or a local .env file.
type App struct {
	DBHost           string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort           string        `envconfig:"DB_PORT" default:"3306"`
	DBName           string        `envconfig:"DB_NAME"`
	DBUser           string        `envconfig:"DB_USER" default:"root"`
	DBPassword       string        `envconfig:"DB_PASSWORD"`
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`

	APIPort     string `envconfig:"API_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	KafkaTopic  string `envconfig:"KAFKA_TOPIC" default:"mysql-connector.audit"`
	RefreshCron string `envconfig:"REFRESH_CRON"`

	// Comma separated lists are split by hand so whitespace and empty
	// entries are dropped.
	RawCORSOrigins  string `envconfig:"CORS_ORIGINS"`
	RawKafkaBrokers string `envconfig:"KAFKA_BROKERS"`

	CORSOrigins  []string `ignored:"true"`
	KafkaBrokers []string `ignored:"true"`
}

// FromEnv loads the application configuration from environment variables.
// A .env file in the working directory is read first when present; values
// already set in the environment win over the file.
func FromEnv() (App, error) {
	_ = godotenv.Load()

	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return App{}, fmt.Errorf("load config: %w", err)
	}

	cfg.CORSOrigins = getCORSOrigins(cfg.RawCORSOrigins)
	cfg.KafkaBrokers = splitList(cfg.RawKafkaBrokers)
	return cfg, nil
}

// AuditEnabled reports whether audit events should be published to Kafka.
func (a App) AuditEnabled() bool {
	return len(a.KafkaBrokers) > 0
}

// getCORSOrigins returns the configured origins, or a wildcard when unset.
func getCORSOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	return splitList(raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
