package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v10"
)

// Version da aplicação, exposta no health check.
const Version = "0.1.0"

type Config struct {
	App         AppConfig
	DB          DatabaseConfig
	Redis       RedisConfig
	Rabbit      RabbitConfig
	JWT         JWTConfig
	Log         LogConfig
	Storage     StorageConfig
	Pipeline    PipelineConfig
	Bot         BotConfig
	Integration IntegrationConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Port string `env:"PORT" envDefault:"8080"`
}

type StorageConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"postgres"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"zapdesk"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN retorna a string de conexão em formato aceito pelo pgxpool.
func (cfg DatabaseConfig) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
}

type RabbitConfig struct {
	URL     string `env:"RABBITMQ_URL"`
	Queue   string `env:"RABBITMQ_QUEUE" envDefault:"zapdesk_jobs"`
	Enabled bool   `env:"RABBITMQ_ENABLED" envDefault:"false"`
}

type JWTConfig struct {
	Secret string `env:"JWT_SECRET,required"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"debug"`
}

type PipelineConfig struct {
	Workers            int `env:"PIPELINE_WORKERS" envDefault:"4"`
	DedupWindowSeconds int `env:"DEDUP_WINDOW_SECONDS" envDefault:"300"`
	DebounceMs         int `env:"SEND_DEBOUNCE_MS" envDefault:"1200"`
}

type BotConfig struct {
	MaxNPSAttempts   int `env:"BOT_MAX_NPS_ATTEMPTS" envDefault:"3"`
	MaxUseBotQueues  int `env:"BOT_MAX_USE_BOT_QUEUES" envDefault:"3"`
	TimeUseBotQueues int `env:"BOT_TIME_USE_BOT_QUEUES_MIN" envDefault:"15"`
}

type IntegrationConfig struct {
	TimeoutSeconds int `env:"INTEGRATION_TIMEOUT_SECONDS" envDefault:"30"`
	WebhookDelayMs int `env:"INTEGRATION_WEBHOOK_DELAY_MS" envDefault:"850"`
}

// Load carrega as configurações da aplicação.
func Load() Config {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: não foi possível carregar variáveis: %v", err)
	}
	return cfg
}
