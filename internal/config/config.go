// Package config loads command configuration. Values come from the
// environment (optionally seeded from a .env file) and may be overridden by
// command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ingest configures cmd/ingest.
type Ingest struct {
	DSN         string `env:"GAMESTATS_DSN" envDefault:"./data/gamestats.db"`
	Input       string `env:"GAMESTATS_INPUT"`
	WatchDir    string `env:"GAMESTATS_WATCH_DIR"`
	FlushEvery  int    `env:"GAMESTATS_FLUSH_EVERY" envDefault:"1000"`
	Workers     int    `env:"GAMESTATS_WORKERS"`
	RatingMin   int    `env:"GAMESTATS_RATING_MIN" envDefault:"0"`
	MaxGames    int    `env:"GAMESTATS_MAX_GAMES" envDefault:"0"`
	ScratchDir  string `env:"GAMESTATS_SCRATCH_DIR" envDefault:"./data/scratch"`
	LogLevel    string `env:"GAMESTATS_LOG_LEVEL" envDefault:"info"`
	MetricsAddr string `env:"GAMESTATS_METRICS_ADDR"`
}

// API configures cmd/api.
type API struct {
	DSN      string `env:"GAMESTATS_DSN" envDefault:"./data/gamestats.db"`
	Addr     string `env:"GAMESTATS_ADDR" envDefault:":8007"`
	LogLevel string `env:"GAMESTATS_LOG_LEVEL" envDefault:"info"`
}

// Export configures cmd/export-stats.
type Export struct {
	DSN      string `env:"GAMESTATS_DSN" envDefault:"./data/gamestats.db"`
	Output   string `env:"GAMESTATS_EXPORT_OUTPUT" envDefault:"positions.csv"`
	MinGames uint64 `env:"GAMESTATS_EXPORT_MIN_GAMES" envDefault:"1"`
}

// ParseEnv fills target from the environment.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadIngest reads the ingest configuration from the environment.
func LoadIngest() (Ingest, error) {
	_ = godotenv.Load()
	var cfg Ingest
	if err := ParseEnv(&cfg); err != nil {
		return Ingest{}, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}

// LoadAPI reads the API configuration from the environment.
func LoadAPI() (API, error) {
	_ = godotenv.Load()
	var cfg API
	if err := ParseEnv(&cfg); err != nil {
		return API{}, err
	}
	return cfg, nil
}

// LoadExport reads the export configuration from the environment.
func LoadExport() (Export, error) {
	_ = godotenv.Load()
	var cfg Export
	if err := ParseEnv(&cfg); err != nil {
		return Export{}, err
	}
	return cfg, nil
}

// RegisterFlags binds flags to c, using the loaded values as defaults.
func (c *Ingest) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DSN, "dsn", c.DSN, "Store DSN (postgres:// URL, memory:, or SQLite path)")
	fs.StringVar(&c.Input, "pgn", c.Input, "Path to PGN file (supports .zst)")
	fs.StringVar(&c.WatchDir, "watch-dir", c.WatchDir, "Directory to watch for PGN files instead of -pgn")
	fs.IntVar(&c.FlushEvery, "flush-every", c.FlushEvery, "Flush to the store every N games")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Replay workers")
	fs.IntVar(&c.RatingMin, "rating-min", c.RatingMin, "Rating floor for games (0 = disabled)")
	fs.IntVar(&c.MaxGames, "max-games", c.MaxGames, "Maximum games to process (0 = unlimited)")
	fs.StringVar(&c.ScratchDir, "scratch-dir", c.ScratchDir, "Checkpoint and lock directory (empty disables checkpoints)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve Prometheus metrics on this address")
}

// Validate checks the ingest configuration.
func (c Ingest) Validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if c.Input == "" && c.WatchDir == "" {
		errs = append(errs, errors.New("one of -pgn or -watch-dir is required"))
	}
	if c.Input != "" && c.WatchDir != "" {
		errs = append(errs, errors.New("-pgn and -watch-dir are mutually exclusive"))
	}
	if c.FlushEvery <= 0 {
		errs = append(errs, fmt.Errorf("flush-every must be > 0, got %d", c.FlushEvery))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be > 0, got %d", c.Workers))
	}
	if c.RatingMin < 0 || c.MaxGames < 0 {
		errs = append(errs, errors.New("rating-min and max-games must not be negative"))
	}
	return errors.Join(errs...)
}

// RegisterFlags binds flags to c, using the loaded values as defaults.
func (c *API) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DSN, "dsn", c.DSN, "Store DSN (postgres:// URL, memory:, or SQLite path)")
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
}

// Validate checks the API configuration.
func (c API) Validate() error {
	if c.DSN == "" {
		return errors.New("dsn is required")
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

// RegisterFlags binds flags to c, using the loaded values as defaults.
func (c *Export) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DSN, "dsn", c.DSN, "Store DSN (postgres:// URL, memory:, or SQLite path)")
	fs.StringVar(&c.Output, "output", c.Output, "Output CSV file (.zst to compress)")
	fs.Uint64Var(&c.MinGames, "min-games", c.MinGames, "Skip positions seen in fewer games")
}

// Validate checks the export configuration.
func (c Export) Validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	return errors.Join(errs...)
}
