package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"web3":{"chain_config":"chains.yaml"},"registry":{"seed_file":"seed.json"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" || cfg.Queue.Driver != "memory" || cfg.Accumulator.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v %+v %+v", cfg.Storage, cfg.Queue, cfg.Accumulator)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chain config not resolved: %s", cfg.Web3.ChainConfig)
	}
	if cfg.Registry.SeedFile != filepath.Join(dir, "seed.json") {
		t.Fatalf("seed file not resolved: %s", cfg.Registry.SeedFile)
	}
	if cfg.Web3.BroadcastTimeout() != time.Minute {
		t.Fatalf("unexpected broadcast timeout %s", cfg.Web3.BroadcastTimeout())
	}
	if cfg.Governance.SweepInterval() != time.Minute || cfg.Governance.ArbitrationVotingPeriod() != 72*time.Hour {
		t.Fatalf("unexpected governance defaults: %+v", cfg.Governance)
	}
	if cfg.Governance.MinProposerReputation != 7000 || cfg.Governance.MinArbitratorReputation != 8000 {
		t.Fatalf("unexpected reputation defaults: %+v", cfg.Governance)
	}
	if cfg.Accumulator.KeyPrefix == "" {
		t.Fatal("expected default accumulator key prefix")
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": "127.0.0.1:9000"},
		"storage": {"driver": "MySQL", "dsn": "user:pw@tcp(db:3306)/registry"},
		"queue": {"driver": "redis", "workers": 8, "redis": {"address": "redis:6379"}},
		"governance": {"sweep_interval_seconds": 5, "arbitration_voting_hours": 24},
		"web3": {"chain_config": "/etc/chains.yaml", "broadcast_timeout_seconds": 10}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:9000" || cfg.Storage.Driver != "mysql" {
		t.Fatalf("unexpected values: %+v %+v", cfg.Server, cfg.Storage)
	}
	if cfg.Queue.Workers != 8 || cfg.Queue.Redis.Address != "redis:6379" {
		t.Fatalf("unexpected queue: %+v", cfg.Queue)
	}
	if cfg.Governance.SweepInterval() != 5*time.Second || cfg.Governance.ArbitrationVotingPeriod() != 24*time.Hour {
		t.Fatalf("unexpected governance: %+v", cfg.Governance)
	}
	if cfg.Web3.ChainConfig != "/etc/chains.yaml" || cfg.Web3.BroadcastTimeout() != 10*time.Second {
		t.Fatalf("unexpected web3: %+v", cfg.Web3)
	}
}

func TestLoadRejectsInvalidDrivers(t *testing.T) {
	cases := map[string]string{
		"unknown storage": `{"storage":{"driver":"postgres"}}`,
		"mysql no dsn":    `{"storage":{"driver":"mysql"}}`,
		"unknown queue":   `{"queue":{"driver":"kafka"}}`,
		"redis no addr":   `{"queue":{"driver":"redis"}}`,
		"rabbit no url":   `{"queue":{"driver":"rabbitmq"}}`,
		"malformed json":  `{"server":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := PathFromEnv(); got != DefaultConfigPath {
		t.Fatalf("expected default path, got %s", got)
	}
	t.Setenv(EnvConfigPath, "/tmp/custom.json")
	if got := PathFromEnv(); got != "/tmp/custom.json" {
		t.Fatalf("expected env path, got %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
