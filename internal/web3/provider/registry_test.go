package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"X402-Registry/internal/config"
	"X402-Registry/internal/web3"
)

func TestNewRegistryWithMemoryChains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	content := "chains:\n  beta:\n    type: memory\n  alpha:\n    type: memory\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	reg, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: path})
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	defer reg.Close()

	if got := reg.Chains(); len(got) != 2 || got[0] != "alpha" {
		t.Fatalf("unexpected chains %v", got)
	}
	client, err := reg.DefaultClient()
	if err != nil {
		t.Fatalf("DefaultClient returned error: %v", err)
	}
	if _, ok := client.(*web3.MemoryLedger); !ok {
		t.Fatalf("expected memory ledger, got %T", client)
	}
}

func TestNewRegistryFallsBackToLocalLedger(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.Web3Config{})
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	if _, ok := reg.Client("local"); !ok {
		t.Fatalf("expected local ledger to be registered")
	}
}

func TestNewRegistryRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	if err := os.WriteFile(path, []byte("chains:\n  x:\n    type: solana\n"), 0o600); err != nil {
		t.Fatalf("write chain config: %v", err)
	}
	if _, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: path}); err == nil {
		t.Fatalf("expected unsupported chain type error")
	}
}

func TestNewRegistryRejectsMissingDefault(t *testing.T) {
	if _, err := NewRegistry(context.Background(), config.Web3Config{DefaultChain: "mainnet"}); err == nil {
		t.Fatalf("expected missing default chain error")
	}
}
