package config

import (
	"flag"
	"os"
	"runtime"
	"strings"
	"testing"
)

func TestLoadIngestDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here

	cfg, err := LoadIngest()
	if err != nil {
		t.Fatalf("LoadIngest: %v", err)
	}
	if cfg.DSN != "./data/gamestats.db" {
		t.Errorf("DSN = %q", cfg.DSN)
	}
	if cfg.FlushEvery != 1000 {
		t.Errorf("FlushEvery = %d, want 1000", cfg.FlushEvery)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("Workers = %d, want NumCPU", cfg.Workers)
	}
	if cfg.ScratchDir != "./data/scratch" || cfg.LogLevel != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadIngestEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GAMESTATS_FLUSH_EVERY", "50")
	t.Setenv("GAMESTATS_DSN", "memory:")
	t.Setenv("GAMESTATS_WORKERS", "3")

	cfg, err := LoadIngest()
	if err != nil {
		t.Fatalf("LoadIngest: %v", err)
	}
	if cfg.FlushEvery != 50 || cfg.DSN != "memory:" || cfg.Workers != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadIngestBadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GAMESTATS_FLUSH_EVERY", "lots")

	_, err := LoadIngest()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("err = %v, want parse env error", err)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GAMESTATS_FLUSH_EVERY", "50")

	cfg, err := LoadIngest()
	if err != nil {
		t.Fatal(err)
	}
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse([]string{"-flush-every", "7", "-pgn", "games.pgn"}); err != nil {
		t.Fatal(err)
	}
	if cfg.FlushEvery != 7 || cfg.Input != "games.pgn" {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestIngestValidate(t *testing.T) {
	base := Ingest{DSN: "memory:", Input: "a.pgn", FlushEvery: 1, Workers: 1}
	tests := []struct {
		name   string
		mutate func(*Ingest)
		want   string
	}{
		{"ok", func(*Ingest) {}, ""},
		{"no input", func(c *Ingest) { c.Input = "" }, "required"},
		{"both inputs", func(c *Ingest) { c.WatchDir = "in" }, "mutually exclusive"},
		{"zero flush", func(c *Ingest) { c.FlushEvery = 0 }, "flush-every"},
		{"zero workers", func(c *Ingest) { c.Workers = 0 }, "workers"},
		{"negative max", func(c *Ingest) { c.MaxGames = -1 }, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadAPI(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GAMESTATS_ADDR", "127.0.0.1:9000")

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadExport(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile(".env", []byte("GAMESTATS_DSN=memory:\nGAMESTATS_EXPORT_MIN_GAMES=5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("GAMESTATS_DSN")
		os.Unsetenv("GAMESTATS_EXPORT_MIN_GAMES")
	})

	cfg, err := LoadExport()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DSN != "memory:" || cfg.MinGames != 5 || cfg.Output != "positions.csv" {
		t.Errorf("cfg = %+v", cfg)
	}

	fs := flag.NewFlagSet("export-stats", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse([]string{"-output", "out.csv.zst"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Output != "out.csv.zst" || cfg.MinGames != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (Export{}).Validate(); err == nil || !strings.Contains(err.Error(), "dsn is required") {
		t.Errorf("empty Validate = %v", err)
	}
}
