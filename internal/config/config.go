package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Outbox   Outbox   `yaml:"outbox"`
	Approval Approval `yaml:"approval"`
	Gateway  Gateway  `yaml:"gateway"`
	Breaker  Breaker  `yaml:"breaker"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"gbc-eventbooking"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port        string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	MetricsPort string `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9090"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"booking_db"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Kafka struct {
	Brokers        []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic          string        `yaml:"topic" env:"KAFKA_TOPIC" env-default:"booking-events"`
	DLQTopic       string        `yaml:"dlq_topic" env:"KAFKA_DLQ_TOPIC" env-default:"booking-events.dlq"`
	GroupID        string        `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"approval-service"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"KAFKA_PUBLISH_TIMEOUT" env-default:"5s"`
}

type Outbox struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"OUTBOX_POLL_INTERVAL" env-default:"2s"`
	BatchSize    int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	MaxAttempts  int           `yaml:"max_attempts" env:"OUTBOX_MAX_ATTEMPTS" env-default:"5"`
}

type Approval struct {
	// MaxDuration rejects bookings longer than this span.
	MaxDuration time.Duration `yaml:"max_duration" env:"APPROVAL_MAX_DURATION" env-default:"8h"`
	// PendingTTL auto-cancels decisions left PENDING longer than this.
	// Zero disables the sweeper: PENDING persists until a decision or
	// cancellation event arrives.
	PendingTTL    time.Duration `yaml:"pending_ttl" env:"APPROVAL_PENDING_TTL" env-default:"0"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"APPROVAL_SWEEP_INTERVAL" env-default:"1m"`
}

type Gateway struct {
	BookingURL  string `yaml:"booking_url" env:"GATEWAY_BOOKING_URL" env-default:"http://localhost:8081"`
	ApprovalURL string `yaml:"approval_url" env:"GATEWAY_APPROVAL_URL" env-default:"http://localhost:8082"`
}

type Breaker struct {
	Window           int           `yaml:"window" env:"BREAKER_WINDOW" env-default:"10"`
	FailureThreshold float64       `yaml:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD" env-default:"0.5"`
	Cooldown         time.Duration `yaml:"cooldown" env:"BREAKER_COOLDOWN" env-default:"10s"`
	ProbeSuccesses   int           `yaml:"probe_successes" env:"BREAKER_PROBE_SUCCESSES" env-default:"3"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	return cfg, nil
}
