// Package config loads blockbench settings from JSONC files and command
// line flags
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
	"github.com/ehrlich-b/go-blockbench/strategy"
)

// FileName is the per-directory config file
const FileName = ".blockbench.json"

// Config holds every tunable of a benchmark run
type Config struct {
	File        string   `json:"file"`
	Size        string   `json:"size"` // bytes with optional K/M/G/T suffix
	BlockSize   uint64   `json:"block_size"`
	PageSize    uint64   `json:"page_size"`
	Workers     int      `json:"workers"`
	Window      int      `json:"window"`
	BatchWait   int      `json:"batch_wait"`
	RingEntries int      `json:"ring_entries"`
	Pattern     string   `json:"pattern"`
	Stride      uint64   `json:"stride"`
	Strategies  []string `json:"strategies,omitempty"` // empty means all
	Engine      string   `json:"engine"`
	Direct      bool     `json:"direct"`
	DropCache   bool     `json:"drop_cache"` // evict the fixture from the page cache before each round
	Rounds      int      `json:"rounds"` // 0 runs the interactive loop
	MetricsAddr string   `json:"metrics_addr,omitempty"`
	LogFormat   string   `json:"log_format"`
	Verbose     bool     `json:"verbose"`
}

// Sources records which config files were applied
type Sources struct {
	Global   string
	Project  string
	Explicit string
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		File:        constants.DefaultFixturePath,
		Size:        "10G",
		BlockSize:   constants.DefaultBlockSize,
		PageSize:    constants.DefaultPageReadSize,
		Workers:     constants.DefaultWorkers,
		Window:      constants.DefaultWindowCapacity,
		BatchWait:   constants.DefaultBatchWait,
		RingEntries: constants.DefaultRingEntries,
		Pattern:     "strided",
		Stride:      constants.DefaultStrideMultiplier,
		Engine:      string(uring.EngineKernel),
		LogFormat:   "text",
	}
}

// BindFlags registers one flag per field on flags, writing into cfg
func BindFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.StringVarP(&cfg.File, "file", "f", cfg.File, "fixture path")
	flags.StringVar(&cfg.Size, "size", cfg.Size, "bytes scanned, e.g. 64M or 10G")
	flags.Uint64Var(&cfg.BlockSize, "block-size", cfg.BlockSize, "distance between sampled pages")
	flags.Uint64Var(&cfg.PageSize, "page-size", cfg.PageSize, "bytes read per block")
	flags.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "shards for ring-sharded and pread-sharded")
	flags.IntVar(&cfg.Window, "window", cfg.Window, "reads in flight per worker")
	flags.IntVar(&cfg.BatchWait, "batch-wait", cfg.BatchWait, "completions awaited per wait round")
	flags.IntVar(&cfg.RingEntries, "ring-entries", cfg.RingEntries, "submission queue depth")
	flags.StringVar(&cfg.Pattern, "pattern", cfg.Pattern, "access pattern: sequential or strided")
	flags.Uint64Var(&cfg.Stride, "stride", cfg.Stride, "multiplier for the strided pattern")
	flags.StringSliceVar(&cfg.Strategies, "strategies", cfg.Strategies, "strategies to run, in order (default all)")
	flags.StringVar(&cfg.Engine, "engine", cfg.Engine, "ring engine: kernel or emulated")
	flags.BoolVar(&cfg.Direct, "direct", cfg.Direct, "open the fixture with O_DIRECT")
	flags.BoolVar(&cfg.DropCache, "drop-cache", cfg.DropCache, "evict the fixture from the page cache before each round")
	flags.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "run every strategy this many times and exit (0 = interactive)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging")
}

// flagFields copies one flag's field from the command line config
var flagFields = map[string]func(dst, src *Config){
	"file":         func(d, s *Config) { d.File = s.File },
	"size":         func(d, s *Config) { d.Size = s.Size },
	"block-size":   func(d, s *Config) { d.BlockSize = s.BlockSize },
	"page-size":    func(d, s *Config) { d.PageSize = s.PageSize },
	"workers":      func(d, s *Config) { d.Workers = s.Workers },
	"window":       func(d, s *Config) { d.Window = s.Window },
	"batch-wait":   func(d, s *Config) { d.BatchWait = s.BatchWait },
	"ring-entries": func(d, s *Config) { d.RingEntries = s.RingEntries },
	"pattern":      func(d, s *Config) { d.Pattern = s.Pattern },
	"stride":       func(d, s *Config) { d.Stride = s.Stride },
	"strategies":   func(d, s *Config) { d.Strategies = s.Strategies },
	"engine":       func(d, s *Config) { d.Engine = s.Engine },
	"direct":       func(d, s *Config) { d.Direct = s.Direct },
	"drop-cache":   func(d, s *Config) { d.DropCache = s.DropCache },
	"rounds":       func(d, s *Config) { d.Rounds = s.Rounds },
	"metrics-addr": func(d, s *Config) { d.MetricsAddr = s.MetricsAddr },
	"log-format":   func(d, s *Config) { d.LogFormat = s.LogFormat },
	"verbose":      func(d, s *Config) { d.Verbose = s.Verbose },
}

// Load merges configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/blockbench/config.json)
// 3. Project config (.blockbench.json in workDir, if it exists)
// 4. Explicit config file (configPath, must exist)
// 5. Flags explicitly set on flags, taken from cli
func Load(workDir, configPath string, env []string, flags *pflag.FlagSet, cli Config) (Config, Sources, error) {
	cfg := Default()
	var sources Sources

	if path := globalPath(env); path != "" {
		loaded, err := loadFile(path, false, &cfg)
		if err != nil {
			return Config{}, Sources{}, err
		}
		if loaded {
			sources.Global = path
		}
	}

	project := filepath.Join(workDir, FileName)
	loaded, err := loadFile(project, false, &cfg)
	if err != nil {
		return Config{}, Sources{}, err
	}
	if loaded {
		sources.Project = project
	}

	if configPath != "" {
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}
		if _, err := loadFile(configPath, true, &cfg); err != nil {
			return Config{}, Sources{}, err
		}
		sources.Explicit = configPath
	}

	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			if apply, ok := flagFields[f.Name]; ok {
				apply(&cfg, &cli)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, Sources{}, err
	}
	return cfg, sources, nil
}

// globalPath returns $XDG_CONFIG_HOME/blockbench/config.json, falling back
// to ~/.config. env entries take priority over the process environment.
func globalPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok && after != "" {
			return filepath.Join(after, "blockbench", "config.json")
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "blockbench", "config.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "blockbench", "config.json")
	}
	return ""
}

// loadFile overlays the JSONC file at path onto cfg. Keys absent from the
// file keep their current value.
func loadFile(path string, mustExist bool, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return false, nil
		}
		return false, errs.Newf("config", errs.CodeConfiguration, "read %s: %v", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return false, errs.Newf("config", errs.CodeConfiguration, "%s: %v", path, err)
	}
	return true, nil
}

// Parse overlays JSONC data onto cfg
func Parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(standardized)))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Validate rejects unknown names, zero sizes and a window the ring cannot hold
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errs.Newf("config", errs.CodeConfiguration, format, args...)
	}
	if c.File == "" {
		return bad("file must not be empty")
	}
	geo, err := c.Geometry()
	if err != nil {
		return err
	}
	if c.Workers <= 0 || c.Window <= 0 || c.BatchWait <= 0 || c.RingEntries <= 0 {
		return bad("workers, window, batch_wait and ring_entries must be positive")
	}
	if c.Window > c.RingEntries {
		return bad("window %d exceeds ring_entries %d", c.Window, c.RingEntries)
	}
	if c.Rounds < 0 {
		return bad("rounds must not be negative")
	}
	pattern, err := c.AccessPattern()
	if err != nil {
		return err
	}
	if err := pattern.Validate(geo.BlockCount()); err != nil {
		return err
	}
	if _, err := uring.ParseEngine(c.Engine); err != nil {
		return err
	}
	known := strategy.Names()
	for _, name := range c.Strategies {
		if !slices.Contains(known, name) {
			return bad("unknown strategy %q (have %s)", name, strings.Join(known, ", "))
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return bad("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Geometry returns the scanned address space
func (c Config) Geometry() (blocks.Geometry, error) {
	total, err := ParseSize(c.Size)
	if err != nil {
		return blocks.Geometry{}, err
	}
	return blocks.NewGeometry(total, c.BlockSize, c.PageSize)
}

// AccessPattern returns the configured pattern
func (c Config) AccessPattern() (blocks.AccessPattern, error) {
	return blocks.ParsePattern(c.Pattern, c.Stride)
}

// StrategyNames returns the selected strategies, or all of them
func (c Config) StrategyNames() []string {
	if len(c.Strategies) == 0 {
		return strategy.Names()
	}
	return c.Strategies
}

// StrategyOptions converts a validated config into strategy options
func (c Config) StrategyOptions() (strategy.Options, error) {
	geo, err := c.Geometry()
	if err != nil {
		return strategy.Options{}, err
	}
	pattern, err := c.AccessPattern()
	if err != nil {
		return strategy.Options{}, err
	}
	engine, err := uring.ParseEngine(c.Engine)
	if err != nil {
		return strategy.Options{}, err
	}
	return strategy.Options{
		Path:        c.File,
		Geometry:    geo,
		Pattern:     pattern,
		Workers:     c.Workers,
		Window:      c.Window,
		BatchWait:   c.BatchWait,
		RingEntries: c.RingEntries,
		Engine:      engine,
		Direct:      c.Direct,
	}, nil
}

// ParseSize parses a size string like "64M", "10G", "512K" or "4096"
func ParseSize(size string) (uint64, error) {
	s := strings.ToUpper(strings.TrimSpace(size))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "I")

	var multiplier uint64 = 1
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'K':
			multiplier = 1 << 10
		case 'M':
			multiplier = 1 << 20
		case 'G':
			multiplier = 1 << 30
		case 'T':
			multiplier = 1 << 40
		}
		if multiplier > 1 {
			s = s[:n-1]
		}
	}

	num, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.Newf("parse_size", errs.CodeConfiguration, "invalid size %q", size)
	}
	return num * multiplier, nil
}
