package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	if err := Init(Config{Level: "debug", OutputPaths: []string{path}}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() { _ = Init(Config{}) })

	Named("governance").Info("proposal decided", "proposal_id", "p-1")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatal("expected one log line")
	}
	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry["component"] != "governance" || entry["proposal_id"] != "p-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestAuditRequiresPath(t *testing.T) {
	err := Init(Config{Audit: AuditConfig{Enabled: true}})
	if err == nil {
		t.Fatal("expected error for empty audit path")
	}
}

func TestAuditFallsBackToDefault(t *testing.T) {
	if err := Init(Config{}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Audit() != L() {
		t.Fatal("expected audit logger to reuse the default logger when disabled")
	}
}
