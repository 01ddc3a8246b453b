// Package gates implements the enforcement decision points that sit
// between an automated agent and its tools: a destructive-command gate,
// a credential-detection gate, and a tool allowlist. Gates are pure
// evaluators; they fail open on malformed input and fail closed on an
// explicit destructive match.
package gates

import (
	"fmt"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when engine construction fails validation.
var ErrInvalidConfig = fmt.Errorf("gates: invalid config")

// Config configures the gate engine.
type Config struct {
	// SecretsSeverity selects the decision for a credential match:
	// "warn" or "block" (default: "block").
	SecretsSeverity string `koanf:"secrets_severity"`

	// ToolAllowlist restricts which tools the agent may call. Empty
	// means all tools are allowed.
	ToolAllowlist []string `koanf:"tool_allowlist"`

	// AllowlistPath points to an optional TOML allowlist file excluding
	// known-benign patterns from secret detection.
	AllowlistPath string `koanf:"allowlist_path"`
}

// DefaultConfig returns the standard gate configuration.
func DefaultConfig() *Config {
	return &Config{SecretsSeverity: "block"}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	switch c.SecretsSeverity {
	case "warn", "block":
		return nil
	default:
		return fmt.Errorf("%w: secrets_severity must be \"warn\" or \"block\", got %q", ErrInvalidConfig, c.SecretsSeverity)
	}
}

// Engine evaluates agent actions against the configured gates.
type Engine struct {
	config   *Config
	detector *detect.Detector
	allowed  map[string]bool
	logger   *zap.Logger
	metrics  *Metrics
}

// New creates a gate engine. The gitleaks detector is built once here;
// detection itself is pure. A nil config uses defaults.
func New(cfg *Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gates")

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building secret detector: %w", err)
	}

	if cfg.AllowlistPath != "" {
		allowlist, err := LoadAllowlist(cfg.AllowlistPath)
		if err != nil {
			return nil, fmt.Errorf("loading allowlist: %w", err)
		}
		applyAllowlist(&detector.Config, allowlist)
	}

	allowed := make(map[string]bool, len(cfg.ToolAllowlist))
	for _, tool := range cfg.ToolAllowlist {
		allowed[tool] = true
	}

	return &Engine{
		config:   cfg,
		detector: detector,
		allowed:  allowed,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// EvaluateToolAllowlist checks a tool name against the configured
// allowlist. Returns nil (allow) when the allowlist is empty or the
// tool is present; otherwise a block result.
func (e *Engine) EvaluateToolAllowlist(tool string) *Result {
	if len(e.allowed) == 0 || tool == "" || e.allowed[tool] {
		return nil
	}

	result := &Result{
		Decision:    Block,
		GateName:    "tool-allowlist",
		Reason:      fmt.Sprintf("tool %q is not in the configured allowlist", tool),
		Remediation: "use an allowlisted tool or ask an operator to extend the allowlist",
	}
	e.recordResults([]Result{*result})
	return result
}

// recordResults feeds gate outcomes into metrics and the debug log.
func (e *Engine) recordResults(results []Result) {
	for _, r := range results {
		e.metrics.RecordDecision(r.GateName, r.Decision)
		e.logger.Debug("gate fired",
			zap.String("gate", r.GateName),
			zap.String("decision", string(r.Decision)),
			zap.String("reason", r.Reason),
		)
	}
}
