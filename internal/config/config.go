// Package config provides configuration loading for guidanced.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables, with hardcoded defaults underneath. Component
// sections reuse the component packages' own Config types so defaults
// and validation live next to the code they govern.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/guidanced/internal/compiler"
	"github.com/fyrsmithlabs/guidanced/internal/gates"
	"github.com/fyrsmithlabs/guidanced/internal/ledger"
	"github.com/fyrsmithlabs/guidanced/internal/optimizer"
	"github.com/fyrsmithlabs/guidanced/internal/retriever"
)

// Config holds the complete guidanced configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   LoggingConfig    `koanf:"logging"`
	Compiler  compiler.Config  `koanf:"compiler"`
	Retriever retriever.Config `koanf:"retriever"`
	Gates     gates.Config     `koanf:"gates"`
	Ledger    ledger.Config    `koanf:"ledger"`
	Optimizer optimizer.Config `koanf:"optimizer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `koanf:"level"`
	// Format is "json" or "console" (default: json).
	Format string `koanf:"format"`
}

// Validate checks the whole configuration tree. Construction-time
// validation is fatal: a daemon must not start on an invalid config.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: http_port must be in [1, 65535], got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging: format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	if err := c.Compiler.Validate(); err != nil {
		return err
	}
	if err := c.Retriever.Validate(); err != nil {
		return err
	}
	if err := c.Gates.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	return c.Optimizer.Validate()
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Compiler.MaxConstitutionLines == 0 {
		cfg.Compiler.MaxConstitutionLines = compiler.DefaultConfig().MaxConstitutionLines
	}
	if cfg.Retriever.MaxShards == 0 {
		cfg.Retriever.MaxShards = retriever.DefaultConfig().MaxShards
	}
	if cfg.Retriever.EmbeddingDimension == 0 {
		cfg.Retriever.EmbeddingDimension = retriever.DefaultConfig().EmbeddingDimension
	}
	if cfg.Gates.SecretsSeverity == "" {
		cfg.Gates.SecretsSeverity = gates.DefaultConfig().SecretsSeverity
	}
	if cfg.Ledger.MaxViolations == 0 {
		cfg.Ledger.MaxViolations = ledger.DefaultConfig().MaxViolations
	}
	if cfg.Ledger.MaxReworkRatio == 0 {
		cfg.Ledger.MaxReworkRatio = ledger.DefaultConfig().MaxReworkRatio
	}
	if len(cfg.Ledger.ForbiddenCommands) == 0 {
		cfg.Ledger.ForbiddenCommands = ledger.DefaultConfig().ForbiddenCommands
	}
	if cfg.Optimizer.PromotionWins == 0 {
		cfg.Optimizer.PromotionWins = optimizer.DefaultConfig().PromotionWins
	}
	if cfg.Optimizer.ImprovementThreshold == 0 {
		cfg.Optimizer.ImprovementThreshold = optimizer.DefaultConfig().ImprovementThreshold
	}
	if cfg.Optimizer.MaxRiskIncrease == 0 {
		cfg.Optimizer.MaxRiskIncrease = optimizer.DefaultConfig().MaxRiskIncrease
	}
	if cfg.Optimizer.TopViolationsPerCycle == 0 {
		cfg.Optimizer.TopViolationsPerCycle = optimizer.DefaultConfig().TopViolationsPerCycle
	}
	if cfg.Optimizer.ConstitutionLineBudget == 0 {
		cfg.Optimizer.ConstitutionLineBudget = optimizer.DefaultConfig().ConstitutionLineBudget
	}
}
