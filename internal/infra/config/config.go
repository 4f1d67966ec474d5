package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration loaded from environment
// variables.
type Config struct {
	Env      string
	HTTPAddr string

	StorageMode string
	MongoURI    string
	MongoDB     string

	KafkaBrokers     []string
	KafkaTopicPrefix string

	PushURL       string
	PushServerKey string
	PushTimeout   time.Duration

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
}

// Load parses configuration from the current environment. Mongo, Kafka,
// push and S3 are all optional: absent settings select the in-memory
// store and no-op collaborators so a bare process still serves traffic.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageMode:      strings.ToLower(getEnv("STORAGE_MODE", "")),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "shopme"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		PushURL:          getEnv("PUSH_URL", ""),
		PushServerKey:    os.Getenv("PUSH_SERVER_KEY"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3PublicEndpoint: getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "shopme-media"),
	}

	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	pushTimeout, err := parseDurationEnv("PUSH_TIMEOUT", 3*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PushTimeout = pushTimeout

	useSSL, err := parseBoolEnv("S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.S3UseSSL = useSSL
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	switch cfg.StorageMode {
	case "":
		if cfg.MongoURI != "" {
			cfg.StorageMode = "mongo"
		} else {
			cfg.StorageMode = "memory"
		}
	case "memory", "mongo":
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_MODE: %q", cfg.StorageMode)
	}
	if cfg.StorageMode == "mongo" && cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE_MODE=mongo")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
