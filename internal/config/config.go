package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lendstack/underwriting/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	OtelEnabled  bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Engine    EngineConfig
	Scoring   ScoringConfig
	Publisher PublisherConfig
}

// EngineConfig carries the decision-fusion tunables. The 750/0.8 pair gates
// the REFER -> AUTO_APPROVE upgrade.
type EngineConfig struct {
	ScoreUpgradeThreshold int
	ConfidenceFloor       float64
	ScoringTimeoutMs      int
}

type ScoringConfig struct {
	Provider      string
	ProviderURL   string
	APIKey        string
	APISecret     string
	TimeoutMs     int
	RetryAttempts int
}

type PublisherConfig struct {
	BatchSize      int
	PollIntervalMs int
	MaxAttempts    int // 0 = retry forever
	Sink           string
	PubSubProject  string
	PubSubTopic    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "underwriting"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OtelEnabled:  getenvBool("OTEL_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "underwriting"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		Engine: EngineConfig{
			ScoreUpgradeThreshold: getenvInt("ENGINE_SCORE_UPGRADE_THRESHOLD", 750),
			ConfidenceFloor:       getenvFloat("ENGINE_CONFIDENCE_FLOOR", 0.8),
			ScoringTimeoutMs:      getenvInt("ENGINE_SCORING_TIMEOUT_MS", 3000),
		},
		Scoring: ScoringConfig{
			Provider:      getenv("SCORING_PROVIDER", "INTERNAL"),
			ProviderURL:   strings.TrimSpace(getenv("SCORING_PROVIDER_URL", "")),
			APIKey:        strings.TrimSpace(getenv("SCORING_API_KEY", "")),
			APISecret:     strings.TrimSpace(getenv("SCORING_API_SECRET", "")),
			TimeoutMs:     getenvInt("SCORING_TIMEOUT_MS", 30000),
			RetryAttempts: getenvInt("SCORING_RETRY_ATTEMPTS", 2),
		},
		Publisher: PublisherConfig{
			BatchSize:      getenvInt("OUTBOX_BATCH_SIZE", 50),
			PollIntervalMs: getenvInt("OUTBOX_POLL_INTERVAL_MS", 1000),
			MaxAttempts:    getenvInt("OUTBOX_MAX_ATTEMPTS", 0),
			Sink:           getenv("OUTBOX_SINK", "log"),
			PubSubProject:  strings.TrimSpace(getenv("PUBSUB_PROJECT_ID", "")),
			PubSubTopic:    strings.TrimSpace(getenv("PUBSUB_TOPIC", "underwriting-events")),
		},
	}

	return cfg
}

func (c Config) DBConfig() db.Config {
	return db.Config{
		Type:            c.DBType,
		Host:            c.DBHost,
		Port:            c.DBPort,
		Name:            c.DBName,
		User:            c.DBUser,
		Password:        c.DBPassword,
		SSLMode:         c.DBSSLMode,
		MaxIdleConn:     c.DBMaxIdleConn,
		MaxOpenConn:     c.DBMaxOpenConn,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnMaxIdleTime: c.DBConnMaxIdleTime,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
