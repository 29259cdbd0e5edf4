package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the explicit configuration handed to every component at construction.
type Config struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	OrdersTable       string `yaml:"orders_table" validate:"required"`
	FailedOrdersTable string `yaml:"failed_orders_table" validate:"required"`
	IdempotencyTable  string `yaml:"idempotency_table"`

	QueueURL        string `yaml:"queue_url"`
	DeadLetterARN   string `yaml:"dlq_arn"`
	StateMachineARN string `yaml:"state_machine_arn"`

	MaxReceiveCount        int           `yaml:"max_receive_count" validate:"min=1,max=1000"`
	FulfillmentSuccessRate float64       `yaml:"fulfillment_success_rate" validate:"min=0,max=1"`
	StageTimeout           time.Duration `yaml:"stage_timeout" validate:"gt=0"`
	WorkerConcurrency      int           `yaml:"worker_concurrency" validate:"min=1"`
	IdempotencyTTL         time.Duration `yaml:"idempotency_ttl"`

	MetricsNamespace string `yaml:"metrics_namespace"`
	LogLevel         string `yaml:"log_level"`
	RunLocal         bool   `yaml:"run_local"`
	LocalAddr        string `yaml:"local_addr"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Region:                 "us-east-1",
		MaxReceiveCount:        3,
		FulfillmentSuccessRate: 0.7,
		StageTimeout:           10 * time.Second,
		WorkerConcurrency:      4,
		IdempotencyTTL:         48 * time.Hour,
		MetricsNamespace:       "OrderLifecycle",
		LogLevel:               "info",
		LocalAddr:              ":8080",
	}
}

// Load builds a Config from the optional YAML file named by ORDERFLOW_CONFIG and the
// process environment, in that order of precedence (environment wins).
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path, ok := lookup("ORDERFLOW_CONFIG"); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c Config) Validate() error {
	if err := validatorv10.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AWS_REGION":               &cfg.Region,
		"AWS_ENDPOINT_OVERRIDE":    &cfg.Endpoint,
		"ORDERS_TABLE_NAME":        &cfg.OrdersTable,
		"FAILED_ORDERS_TABLE_NAME": &cfg.FailedOrdersTable,
		"IDEMPOTENCY_TABLE":        &cfg.IdempotencyTable,
		"ORDER_QUEUE_URL":          &cfg.QueueURL,
		"DLQ_ARN":                  &cfg.DeadLetterARN,
		"STEP_FUNCTION_ARN":        &cfg.StateMachineARN,
		"METRICS_NAMESPACE":        &cfg.MetricsNamespace,
		"LOG_LEVEL":                &cfg.LogLevel,
		"LOCAL_ADDR":               &cfg.LocalAddr,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DLQ_MAX_RECEIVE_COUNT": &cfg.MaxReceiveCount,
		"WORKER_CONCURRENCY":    &cfg.WorkerConcurrency,
	}
	for name, dst := range ints {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"STAGE_TIMEOUT":   &cfg.StageTimeout,
		"IDEMPOTENCY_TTL": &cfg.IdempotencyTTL,
	}
	for name, dst := range durations {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("FULFILLMENT_SUCCESS_RATE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FULFILLMENT_SUCCESS_RATE: %w", err)
		}
		cfg.FulfillmentSuccessRate = f
	}
	if v, ok := lookup("RUN_LOCAL"); ok {
		cfg.RunLocal = strings.EqualFold(v, "true")
	}
	return nil
}
