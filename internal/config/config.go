// Package config holds all engram configuration: server binding, database
// path, scoring weights, and the memory lifecycle thresholds. One immutable
// Config value is passed into every component at construction.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrConfigInvalid is wrapped by every validation failure detected at load.
var ErrConfigInvalid = errors.New("invalid configuration")

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Memory   MemoryConfig   `toml:"memory"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ScoringConfig holds the seven feature weights of the strength formula.
// The interference weight is conventionally negative.
type ScoringConfig struct {
	WeightRecency      float64 `toml:"weight_recency"`
	WeightFrequency    float64 `toml:"weight_frequency"`
	WeightImportance   float64 `toml:"weight_importance"`
	WeightUtility      float64 `toml:"weight_utility"`
	WeightNovelty      float64 `toml:"weight_novelty"`
	WeightConfidence   float64 `toml:"weight_confidence"`
	WeightInterference float64 `toml:"weight_interference"`
}

// MemoryConfig controls consolidation, decay, and retrieval defaults.
type MemoryConfig struct {
	AutoPromote           []string `toml:"auto_promote"`
	StmStrengthThreshold  float64  `toml:"stm_strength_threshold"`
	StmFrequencyThreshold int      `toml:"stm_frequency_threshold"`
	DecayHalfLifeHours    float64  `toml:"decay_half_life_hours"`
	DefaultRetrievalLimit int      `toml:"default_retrieval_limit"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37707,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Scoring: ScoringConfig{
			WeightRecency:      0.15,
			WeightFrequency:    0.15,
			WeightImportance:   0.25,
			WeightUtility:      0.15,
			WeightNovelty:      0.10,
			WeightConfidence:   0.10,
			WeightInterference: -0.10,
		},
		Memory: MemoryConfig{
			AutoPromote:           []string{"constraint", "preference", "learning", "procedural"},
			StmStrengthThreshold:  0.6,
			StmFrequencyThreshold: 3,
			DecayHalfLifeHours:    2160, // 90 days
			DefaultRetrievalLimit: 10,
		},
	}
}

// DefaultPath returns the default config file path: ~/.engram/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".engram", "config.toml"), nil
}

// Load reads the config file at path (a missing file is not an error —
// defaults apply), loads a .env if present, applies ENGRAM_* env overrides,
// then validates. An empty path resolves to DefaultPath().
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional; a missing file is fine.
	_ = godotenv.Load()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGRAM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ENGRAM_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("ENGRAM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks weights, thresholds, and limits. All failures wrap
// ErrConfigInvalid.
func (c Config) Validate() error {
	positive := []struct {
		name string
		w    float64
	}{
		{"weight_recency", c.Scoring.WeightRecency},
		{"weight_frequency", c.Scoring.WeightFrequency},
		{"weight_importance", c.Scoring.WeightImportance},
		{"weight_utility", c.Scoring.WeightUtility},
		{"weight_novelty", c.Scoring.WeightNovelty},
		{"weight_confidence", c.Scoring.WeightConfidence},
	}
	for _, p := range positive {
		if p.w < 0 || p.w > 1 {
			return fmt.Errorf("%w: %s = %v, want [0,1]", ErrConfigInvalid, p.name, p.w)
		}
	}
	if w := c.Scoring.WeightInterference; w < -1 || w > 0 {
		return fmt.Errorf("%w: weight_interference = %v, want [-1,0]", ErrConfigInvalid, w)
	}
	if t := c.Memory.StmStrengthThreshold; t < 0 || t > 1 {
		return fmt.Errorf("%w: stm_strength_threshold = %v, want [0,1]", ErrConfigInvalid, t)
	}
	if c.Memory.StmFrequencyThreshold < 1 {
		return fmt.Errorf("%w: stm_frequency_threshold = %d, want >= 1", ErrConfigInvalid, c.Memory.StmFrequencyThreshold)
	}
	if c.Memory.DecayHalfLifeHours <= 0 {
		return fmt.Errorf("%w: decay_half_life_hours = %v, want > 0", ErrConfigInvalid, c.Memory.DecayHalfLifeHours)
	}
	if c.Memory.DefaultRetrievalLimit < 1 {
		return fmt.Errorf("%w: default_retrieval_limit = %d, want >= 1", ErrConfigInvalid, c.Memory.DefaultRetrievalLimit)
	}
	for _, cls := range c.Memory.AutoPromote {
		if !classifications[cls] {
			return fmt.Errorf("%w: auto_promote contains unknown classification %q", ErrConfigInvalid, cls)
		}
	}
	return nil
}

// classifications mirrors the closed set enforced by the store schema.
var classifications = map[string]bool{
	"bugfix": true, "learning": true, "decision": true, "preference": true,
	"constraint": true, "procedural": true, "semantic": true, "episodic": true,
}

// Lambda derives the per-hour exponential decay constant from the configured
// half-life: strength halves every DecayHalfLifeHours without reinforcement.
func (m MemoryConfig) Lambda() float64 {
	return math.Ln2 / m.DecayHalfLifeHours
}

// AutoPromoteSet returns the auto-promote classifications as a lookup set.
func (m MemoryConfig) AutoPromoteSet() map[string]bool {
	set := make(map[string]bool, len(m.AutoPromote))
	for _, c := range m.AutoPromote {
		set[c] = true
	}
	return set
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
