// Package wfrp3e parses engine command flags and serves the ruleset tools.
package wfrp3e

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/louisbranch/wfrp3e/internal/mcp/service"
	entrypoint "github.com/louisbranch/wfrp3e/internal/platform/cmd"
	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/ruleset/check"
	"github.com/louisbranch/wfrp3e/internal/ruleset/config"
	"github.com/louisbranch/wfrp3e/internal/ruleset/effect"
	"github.com/louisbranch/wfrp3e/internal/ruleset/initiative"
	"github.com/louisbranch/wfrp3e/internal/ruleset/script"
	"github.com/louisbranch/wfrp3e/internal/storage/sqlite"
	"golang.org/x/text/language"
)

// Config holds engine command configuration. Variables carry the WFRP3E_ prefix.
type Config struct {
	DBPath      string `env:"DB_PATH"            envDefault:"data/wfrp3e.db"`
	RulesetPath string `env:"RULESET_PATH"`
	Transport   string `env:"MCP_TRANSPORT"      envDefault:"stdio"`
	HTTPAddr    string `env:"MCP_HTTP_ADDR"      envDefault:"localhost:8081"`
	MaxConns    int    `env:"MCP_HTTP_MAX_CONNS" envDefault:"64"`
	Locale      string `env:"LOCALE"             envDefault:"en-US"`
	// ScriptBudget caps the instructions one effect script may run.
	ScriptBudget int `env:"SCRIPT_BUDGET" envDefault:"1000000"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.RulesetPath, "ruleset", cfg.RulesetPath, "Ruleset JSON path (embedded default when empty)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent HTTP connections")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale for chat lines and warnings")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.ScriptBudget <= 0 {
		return Config{}, fmt.Errorf("script budget must be positive, got %d", cfg.ScriptBudget)
	}
	return cfg, nil
}

// Run opens the store and serves the MCP tools until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(ctx context.Context) error {
		engine, closeStore, err := NewEngine(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()
		return service.Run(ctx, service.Config{
			Transport:      service.TransportKind(cfg.Transport),
			HTTPAddr:       cfg.HTTPAddr,
			MaxConnections: cfg.MaxConns,
		}, engine)
	})
}

// NewEngine wires the ruleset services over a SQLite store.
func NewEngine(cfg Config) (service.Engine, func() error, error) {
	rs, err := config.Load(cfg.RulesetPath)
	if err != nil {
		return service.Engine{}, nil, err
	}
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return service.Engine{}, nil, fmt.Errorf("parse locale %q: %w", cfg.Locale, err)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return service.Engine{}, nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return service.Engine{}, nil, err
	}
	log.Printf("opened store %s", cfg.DBPath)

	host := script.NewHost(script.WithInstructionBudget(cfg.ScriptBudget))
	resolver := effect.NewResolver(store, host)
	return service.Engine{
		Docs:       store,
		Messages:   store,
		Checks:     check.NewService(rs, store, store, resolver, check.WithLanguage(tag)),
		Initiative: initiative.NewRoller(rs, store, store),
		Catalog:    i18n.GetCatalog(cfg.Locale),
	}, store.Close, nil
}
