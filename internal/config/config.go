package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process-wide settings. It is loaded once at startup and
// read-only afterwards.
type Config struct {
	ServiceName    string
	ServiceVersion string

	Port        string
	PostgresURL string

	KafkaBrokers  []string
	ConsumerGroup string

	// Publisher behaviour. With confirms enabled each attempt waits up to
	// ConfirmTimeout for broker acknowledgement before counting as failed.
	PublisherConfirms bool
	RetryAttempts     int
	RetryBackoff      time.Duration
	ConfirmTimeout    time.Duration

	LogLevel string
}

func Load(serviceName string) Config {
	return Config{
		ServiceName:       serviceName,
		ServiceVersion:    getEnv("SERVICE_VERSION", "0.1.0"),
		Port:              getEnv("PORT", "8081"),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		KafkaBrokers:      splitBrokers(os.Getenv("KAFKA_BROKERS")),
		ConsumerGroup:     getEnv("CONSUMER_GROUP", "orderdesk-worker"),
		PublisherConfirms: getEnvBool("PUBLISHER_CONFIRMS", true),
		RetryAttempts:     getEnvInt("PUBLISH_RETRY_ATTEMPTS", 3),
		RetryBackoff:      getEnvDuration("PUBLISH_RETRY_BACKOFF", 100*time.Millisecond),
		ConfirmTimeout:    getEnvDuration("PUBLISH_CONFIRM_TIMEOUT", 5*time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// WithSearchPath pins the schema into the DSN so every connection the pool
// opens uses it. Running SET search_path on the handle only configures the
// single connection that executed it; database/sql opens further connections
// lazily, without the setting.
func WithSearchPath(dsn, schema string) string {
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		q := u.Query()
		q.Set("options", "-c search_path="+schema)
		u.RawQuery = q.Encode()
		return u.String()
	}
	// Keyword/value DSN form.
	return fmt.Sprintf("%s options='-c search_path=%s'", dsn, schema)
}

func splitBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
