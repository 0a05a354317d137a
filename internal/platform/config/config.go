package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string

	PostgresDSN       string
	LegacyPostgresDSN string

	KafkaBrokers        []string
	KafkaConsumerGroup  string
	KafkaOldToNewTopics []string
	KafkaNewToOldTopics []string

	RedisAddr string

	ConnectURL        string
	ConnectConnectors []string

	SortingDelay             time.Duration
	SortingAdditionalConsume time.Duration
	SortingMaxWait           time.Duration
	MemoryCacheExpiration    time.Duration

	BatchSize            int
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	StrictMissingDependency bool
}

// Load reads the environment, layered over the YAML file named by
// CONFIG_FILE when set. File keys use the environment variable names.
func Load() (Config, error) {
	values, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(func(name string) string {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return values[name]
	})
}

func load(lookup func(string) string) (Config, error) {
	var errs []error
	intValue := func(name string, fallback int) int {
		raw := strings.TrimSpace(lookup(name))
		if raw == "" {
			return fallback
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw))
			return fallback
		}
		return value
	}

	cfg := Config{
		ServiceName: stringValue(lookup, "SERVICE_NAME", "schemabridge"),
		HTTPPort:    stringValue(lookup, "HTTP_PORT", "8080"),

		PostgresDSN:       strings.TrimSpace(lookup("POSTGRES_DSN")),
		LegacyPostgresDSN: strings.TrimSpace(lookup("LEGACY_POSTGRES_DSN")),

		KafkaBrokers:       listValue(lookup("KAFKA_BROKERS")),
		KafkaConsumerGroup: stringValue(lookup, "KAFKA_CONSUMER_GROUP", "schemabridge"),
		KafkaOldToNewTopics: listOrDefault(lookup("KAFKA_OLD_TO_NEW_TOPICS"), []string{
			"legacy.public.customer_outbox",
			"legacy.public.invoice_outbox",
			"legacy.public.invoice_line_outbox",
		}),
		KafkaNewToOldTopics: listOrDefault(lookup("KAFKA_NEW_TO_OLD_TOPICS"), []string{
			"modern.public.address_outbox",
			"modern.public.customer_outbox",
			"modern.public.invoice_outbox",
			"modern.public.invoice_line_outbox",
		}),

		RedisAddr: strings.TrimSpace(lookup("REDIS_ADDR")),

		ConnectURL:        strings.TrimRight(strings.TrimSpace(lookup("CONNECT_URL")), "/"),
		ConnectConnectors: listValue(lookup("CONNECT_CONNECTORS")),

		SortingDelay:             time.Duration(intValue("EVENT_SORTING_SERVICE_DELAY_IN_MILLISECONDS", 500)) * time.Millisecond,
		SortingAdditionalConsume: time.Duration(intValue("EVENT_SORTING_SERVICE_ADDITIONAL_RESULT_CONSUME_TIME_IN_MILLISECONDS", 1000)) * time.Millisecond,
		SortingMaxWait:           time.Duration(intValue("EVENT_SORTING_SERVICE_MAX_WAIT_TIME_IN_SECONDS", 10)) * time.Second,
		MemoryCacheExpiration:    time.Duration(intValue("MEMORY_CACHE_EXPIRATION_IN_SECONDS", 60)) * time.Second,

		BatchSize:            intValue("BATCH_SIZE", 100),
		RetryMaxAttempts:     intValue("RETRY_MAX_ATTEMPTS", 5),
		RetryInitialInterval: time.Duration(intValue("RETRY_INITIAL_INTERVAL_MS", 200)) * time.Millisecond,
		RetryMaxInterval:     time.Duration(intValue("RETRY_MAX_INTERVAL_MS", 5000)) * time.Millisecond,

		StrictMissingDependency: envBool(lookup("STRICT_MISSING_DEPENDENCY"), false),
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// ValidateWorker reports the settings the replication worker cannot start
// without.
func (c Config) ValidateWorker() error {
	var errs []error
	if c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if c.LegacyPostgresDSN == "" {
		errs = append(errs, errors.New("LEGACY_POSTGRES_DSN is required"))
	}
	if c.BatchSize == 0 {
		errs = append(errs, errors.New("BATCH_SIZE must be positive"))
	}
	if c.ConnectURL != "" && len(c.ConnectConnectors) == 0 {
		errs = append(errs, errors.New("CONNECT_CONNECTORS is required when CONNECT_URL is set"))
	}
	return errors.Join(errs...)
}

// ValidateAPI reports the settings the operator API cannot start without.
func (c Config) ValidateAPI() error {
	if c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	return nil
}

func readFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(doc))
	for key, value := range doc {
		switch typed := value.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[strings.ToUpper(key)] = strings.Join(parts, ",")
		default:
			values[strings.ToUpper(key)] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

func stringValue(lookup func(string) string, name, fallback string) string {
	if value := strings.TrimSpace(lookup(name)); value != "" {
		return value
	}
	return fallback
}

func listValue(raw string) []string {
	var out []string
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func listOrDefault(raw string, fallback []string) []string {
	if values := listValue(raw); len(values) > 0 {
		return values
	}
	return fallback
}

func envBool(raw string, fallback bool) bool {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
