package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- leading comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") {
		t.Errorf("unexpected first statement %q", stmts[0])
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings(`SELECT 'it''s fine'`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateNoSemicolonInStrings(`SELECT 'a;b'`); err == nil {
		t.Error("expected error for semicolon inside string literal")
	}
}

func TestEmbeddedClickhouseMigrationsSplit(t *testing.T) {
	files, err := migrationFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no clickhouse migrations embedded")
	}

	tables := map[string]bool{}
	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			t.Errorf("%s: %v", file, err)
		}
		for _, stmt := range splitStatements(string(data)) {
			for _, name := range []string{"price_bars", "ticks", "tick_results", "signal_snapshots"} {
				if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+name+" ") {
					tables[name] = true
				}
			}
		}
	}
	for _, name := range []string{"price_bars", "ticks", "tick_results", "signal_snapshots"} {
		if !tables[name] {
			t.Errorf("missing table %s", name)
		}
	}
}

func TestEmbeddedPostgresMigrationsOrdered(t *testing.T) {
	files, err := migrationFiles(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	want := []string{"001_bots.sql", "002_runs.sql", "003_results.sql"}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], files[i])
		}
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/stocks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db != "stocks" {
		t.Errorf("expected stocks, got %s", db)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}
