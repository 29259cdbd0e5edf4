package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoad_DefaultsAndRequired(t *testing.T) {
	cfg, err := load(mapLookup(map[string]string{
		"ORDERS_TABLE_NAME":        "orders",
		"FAILED_ORDERS_TABLE_NAME": "failed_orders",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxReceiveCount != 3 {
		t.Fatalf("expected default max receive count 3, got %d", cfg.MaxReceiveCount)
	}
	if cfg.FulfillmentSuccessRate != 0.7 {
		t.Fatalf("expected default success rate 0.7, got %v", cfg.FulfillmentSuccessRate)
	}
	if cfg.Region != "us-east-1" {
		t.Fatalf("expected default region, got %s", cfg.Region)
	}
}

func TestLoad_MissingTables(t *testing.T) {
	if _, err := load(mapLookup(map[string]string{})); err == nil {
		t.Fatal("expected error for missing table names, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(mapLookup(map[string]string{
		"ORDERS_TABLE_NAME":        "orders",
		"FAILED_ORDERS_TABLE_NAME": "failed_orders",
		"DLQ_MAX_RECEIVE_COUNT":    "5",
		"FULFILLMENT_SUCCESS_RATE": "1",
		"STAGE_TIMEOUT":            "3s",
		"RUN_LOCAL":                "TRUE",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxReceiveCount != 5 || cfg.FulfillmentSuccessRate != 1 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.StageTimeout != 3*time.Second {
		t.Fatalf("expected 3s stage timeout, got %s", cfg.StageTimeout)
	}
	if !cfg.RunLocal {
		t.Fatal("expected RunLocal=true")
	}
}

func TestLoad_OutOfRange(t *testing.T) {
	_, err := load(mapLookup(map[string]string{
		"ORDERS_TABLE_NAME":        "orders",
		"FAILED_ORDERS_TABLE_NAME": "failed_orders",
		"FULFILLMENT_SUCCESS_RATE": "1.5",
	}))
	if err == nil {
		t.Fatal("expected range error for success rate")
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orderflow.yaml")
	body := "orders_table: yaml-orders\nfailed_orders_table: yaml-failed\nmax_receive_count: 7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(mapLookup(map[string]string{
		"ORDERFLOW_CONFIG":  path,
		"ORDERS_TABLE_NAME": "env-orders",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OrdersTable != "env-orders" {
		t.Fatalf("env should win over file, got %s", cfg.OrdersTable)
	}
	if cfg.FailedOrdersTable != "yaml-failed" || cfg.MaxReceiveCount != 7 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}
