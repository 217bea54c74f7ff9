package mysql

import (
	"testing"
	"testing/fstest"
)

func TestSplitSQLStatementsDropsCommentsAndBlanks(t *testing.T) {
	content := `-- header comment
CREATE TABLE a (id INT);

-- second
CREATE TABLE b (id INT);
   ;`
	got := splitSQLStatements(content)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (id INT)" || got[1] != "CREATE TABLE b (id INT)" {
		t.Fatalf("unexpected statements: %q", got)
	}
}

func TestLoadMigrationFilesOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_multisig.sql":   {Data: []byte("CREATE TABLE w (id INT);")},
		"0001_registry.sql":   {Data: []byte("CREATE TABLE agents (id INT);")},
		"README.md":           {Data: []byte("ignored")},
		"0003_credential.sql": {Data: []byte("   ")},
	}
	files, err := loadMigrationFiles(fsys)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(files))
	}
	if files[0].version != "0001" || files[1].version != "0002" {
		t.Fatalf("unexpected order: %s, %s", files[0].version, files[1].version)
	}
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	files, err := loadMigrationFiles(embeddedMigrations)
	if err != nil {
		t.Fatalf("load embedded: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := map[string]string{
		"0001_registry.sql": "0001",
		"0002.sql":          "0002",
		"plain":             "plain",
	}
	for name, want := range cases {
		if got := parseMigrationVersion(name); got != want {
			t.Fatalf("parseMigrationVersion(%q) = %q, want %q", name, got, want)
		}
	}
}
