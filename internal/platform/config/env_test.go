package config

import (
	"os"
	"strings"
	"testing"
)

type envTestConfig struct {
	DBPath string `env:"TEST_DB_PATH" envDefault:"wfrp3e.db"`
	Seed   int64  `env:"TEST_SEED" envDefault:"7"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "wfrp3e.db" || cfg.Seed != 7 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestParseEnvUsesPrefix(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TEST_DB_PATH", "unprefixed.db")
	t.Setenv("WFRP3E_TEST_DB_PATH", "prefixed.db")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "prefixed.db" {
		t.Fatalf("db path = %q, want prefixed.db", cfg.DBPath)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("WFRP3E_TEST_SEED", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("WFRP3E_TEST_VALUE", "x")
	if got := Getenv(os.Getenv, "TEST_VALUE"); got != "x" {
		t.Fatalf("Getenv = %q, want x", got)
	}
	if got := Getenv(nil, "TEST_VALUE"); got != "" {
		t.Fatalf("Getenv(nil) = %q, want empty", got)
	}
}
