package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.ListenAddr() != "127.0.0.1:37707" {
		t.Errorf("listen addr = %q", cfg.ListenAddr())
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Scoring.WeightImportance = 1.5
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("weight 1.5: err = %v, want ErrConfigInvalid", err)
	}

	cfg = Default()
	cfg.Scoring.WeightInterference = 0.1
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("positive interference weight: err = %v, want ErrConfigInvalid", err)
	}

	cfg = Default()
	cfg.Memory.DecayHalfLifeHours = 0
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("zero half-life: err = %v, want ErrConfigInvalid", err)
	}

	cfg = Default()
	cfg.Memory.AutoPromote = []string{"gossip"}
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("unknown auto-promote classification: err = %v, want ErrConfigInvalid", err)
	}
}

func TestLambda(t *testing.T) {
	m := MemoryConfig{DecayHalfLifeHours: 2160}
	lambda := m.Lambda()

	// Strength must halve after exactly one half-life.
	decayed := math.Exp(-lambda * 2160)
	if math.Abs(decayed-0.5) > 1e-12 {
		t.Errorf("decay after one half-life = %v, want 0.5", decayed)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
bind = "0.0.0.0"
port = 9000

[scoring]
weight_importance = 0.3

[memory]
stm_strength_threshold = 0.4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Scoring.WeightImportance != 0.3 {
		t.Errorf("weight_importance = %v, want 0.3", cfg.Scoring.WeightImportance)
	}
	if cfg.Memory.StmStrengthThreshold != 0.4 {
		t.Errorf("stm_strength_threshold = %v, want 0.4", cfg.Memory.StmStrengthThreshold)
	}
	// Untouched keys keep their defaults.
	if cfg.Memory.DecayHalfLifeHours != 2160 {
		t.Errorf("decay_half_life_hours = %v, want default", cfg.Memory.DecayHalfLifeHours)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[scoring]\nweight_recency = 5.0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENGRAM_DB_PATH", "/tmp/engram-test.db")
	t.Setenv("ENGRAM_PORT", "4242")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/engram-test.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("port = %d, want 4242", cfg.Server.Port)
	}
}

func TestAutoPromoteSet(t *testing.T) {
	set := Default().Memory.AutoPromoteSet()
	for _, c := range []string{"constraint", "preference", "learning", "procedural"} {
		if !set[c] {
			t.Errorf("%s missing from auto-promote set", c)
		}
	}
	if set["bugfix"] {
		t.Error("bugfix must not auto-promote")
	}
}
