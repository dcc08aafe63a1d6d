package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/config"
	"github.com/tabuladb/tabula/pkg/rowsource/csvsource"
)

const peopleCSV = "name,age,city\nada,36,london\nalan,41,wilmslow\ngrace,36,arlington\nedsger,72,nuenen\n"

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Stream.BatchSize = 2
	cfg.Stream.HighWaterMark = 2
	var out bytes.Buffer
	return newShell(cfg, &out, log.NewDiscardLogger(), nil), &out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func run(t *testing.T, sh *shell, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if _, err := sh.execute(context.Background(), line); err != nil {
		t.Fatalf("%s failed: %v", line, err)
	}
	return out.String()
}

func TestShellOpenAndQuery(t *testing.T) {
	sh, out := newTestShell(t)
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV)

	if got := run(t, sh, out, ".open "+path); !strings.Contains(got, "Loaded 4 rows with columns name, age, city") {
		t.Errorf("Unexpected load output %q", got)
	}
	if got := run(t, sh, out, ".columns"); got != "name\nage\ncity\n" {
		t.Errorf("Unexpected columns %q", got)
	}
	if got := strings.TrimSpace(run(t, sh, out, ".count")); got != "4" {
		t.Errorf("Expected count 4, got %q", got)
	}

	run(t, sh, out, ".sort age DESC")
	head := run(t, sh, out, ".head 1")
	if !strings.Contains(head, "edsger") || strings.Contains(head, "ada") {
		t.Errorf("Expected only edsger at the head, got %q", head)
	}
	tail := run(t, sh, out, ".tail 2")
	if !strings.Contains(tail, "ada") || !strings.Contains(tail, "grace") {
		t.Errorf("Expected ada and grace at the tail, got %q", tail)
	}

	run(t, sh, out, ".reset")
	if got := run(t, sh, out, ".where city london"); got != "1 rows\n" {
		t.Errorf("Unexpected where output %q", got)
	}

	run(t, sh, out, ".reset")
	if got := run(t, sh, out, ".distinct age"); got != "3 distinct rows\n" {
		t.Errorf("Unexpected distinct output %q", got)
	}

	run(t, sh, out, ".reset")
	windows := run(t, sh, out, ".window 3")
	if !strings.Contains(windows, "window 0: 3 rows, index 0..2") || !strings.Contains(windows, "window 1: 1 rows, index 3..3") {
		t.Errorf("Unexpected windows %q", windows)
	}

	stats := run(t, sh, out, ".stats")
	for _, key := range []string{"sort_ops", "distinct_ops", "window_ops", "load_ops", "rows_in"} {
		if !strings.Contains(stats, key) {
			t.Errorf("Expected %s in stats output %q", key, stats)
		}
	}
}

func TestShellCompressedCSV(t *testing.T) {
	sh, out := newTestShell(t)
	dir := t.TempDir()

	var buf bytes.Buffer
	w, err := csvsource.NewCompressWriter(&buf, csvsource.CodecGzip)
	if err != nil {
		t.Fatalf("NewCompressWriter failed: %v", err)
	}
	w.Write([]byte(peopleCSV))
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	path := writeFile(t, dir, "people.csv.gz", buf.String())

	if got := run(t, sh, out, ".open "+path); !strings.Contains(got, "Loaded 4 rows") {
		t.Errorf("Unexpected load output %q", got)
	}
}

func TestShellJSONLines(t *testing.T) {
	sh, out := newTestShell(t)
	path := writeFile(t, t.TempDir(), "events.jsonl", `{"id": 1, "kind": "open"}
{"id": 2, "kind": "close", "user": "ada"}
`)

	run(t, sh, out, ".open "+path)
	if got := run(t, sh, out, ".columns"); got != "id\nkind\n" {
		t.Errorf("Expected columns from the first row, got %q", got)
	}

	sh, out = newTestShell(t)
	sh.cfg.Frame.ConsiderAllRows = true
	run(t, sh, out, ".open "+path)
	if got := run(t, sh, out, ".columns"); got != "id\nkind\nuser\n" {
		t.Errorf("Expected columns from every row, got %q", got)
	}
}

func TestShellStoreAndBolt(t *testing.T) {
	sh, out := newTestShell(t)
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "people.csv", peopleCSV)
	dbPath := filepath.Join(dir, "rows.db")

	run(t, sh, out, ".open "+csvPath)
	run(t, sh, out, ".where age 36")
	if got := run(t, sh, out, ".store "+dbPath+" thirtysix"); !strings.Contains(got, "Stored 2 rows") {
		t.Errorf("Unexpected store output %q", got)
	}

	other, out2 := newTestShell(t)
	got := run(t, other, out2, ".bolt "+dbPath+" thirtysix")
	if !strings.Contains(got, "Loaded 2 rows with columns name, age, city") {
		t.Errorf("Unexpected bolt load output %q", got)
	}
	head := run(t, other, out2, ".head")
	if !strings.Contains(head, "ada") || !strings.Contains(head, "grace") {
		t.Errorf("Expected the stored rows, got %q", head)
	}
}

func TestShellErrors(t *testing.T) {
	sh, _ := newTestShell(t)
	ctx := context.Background()

	if _, err := sh.execute(ctx, ".count"); !errors.Is(err, errNoData) {
		t.Errorf("Expected errNoData, got %v", err)
	}
	if _, err := sh.execute(ctx, ".open"); err == nil {
		t.Error("Expected an error for a missing file argument")
	}
	if _, err := sh.execute(ctx, ".open "+filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}

	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV)
	if _, err := sh.execute(ctx, ".open "+path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := sh.execute(ctx, ".sort nope"); err == nil || !strings.Contains(err.Error(), "unknown column") {
		t.Errorf("Expected unknown column error, got %v", err)
	}
	if _, err := sh.execute(ctx, ".window 0"); err == nil {
		t.Error("Expected an error for a zero window")
	}
	if _, err := sh.execute(ctx, ".head x"); err == nil {
		t.Error("Expected an error for a bad number")
	}
	if _, err := sh.execute(ctx, ".frobnicate"); err == nil {
		t.Error("Expected an error for an unknown command")
	}

	exit, err := sh.execute(ctx, ".exit")
	if err != nil || !exit {
		t.Errorf("Expected .exit to end the session, got %v, %v", exit, err)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	t.Setenv("TABULA_STREAM_BATCH_SIZE", "7")
	cfg, err := loadConfig(Flags{ListenAddr: "127.0.0.1:6000", DataDir: "/srv/data"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Stream.BatchSize != 7 {
		t.Errorf("Expected the environment batch size, got %d", cfg.Stream.BatchSize)
	}
	if cfg.Server.Address != "127.0.0.1:6000" || cfg.Server.DataDir != "/srv/data" {
		t.Errorf("Expected flags to override the server section, got %+v", cfg.Server)
	}

	if _, err := loadConfig(Flags{ConfigPath: filepath.Join(t.TempDir(), "nope.json")}); !errors.Is(err, config.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}
