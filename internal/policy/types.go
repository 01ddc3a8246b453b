// Package policy defines the compiled guidance data model: rules,
// shards, the constitution, the manifest, and the bundle that ties them
// together. Everything here is JSON-serializable; the compiler produces
// these structures and the retriever, gates, and optimizer consume them.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RiskClass grades how dangerous violating a rule is.
type RiskClass string

const (
	RiskCritical RiskClass = "critical"
	RiskHigh     RiskClass = "high"
	RiskMedium   RiskClass = "medium"
	RiskLow      RiskClass = "low"
	RiskInfo     RiskClass = "info"
)

// Severity returns a comparable weight: critical is highest.
func (r RiskClass) Severity() int {
	switch r {
	case RiskCritical:
		return 5
	case RiskHigh:
		return 4
	case RiskMedium:
		return 3
	case RiskLow:
		return 2
	case RiskInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is a known risk class.
func (r RiskClass) Valid() bool {
	return r.Severity() > 0
}

// RuleSource records where a rule came from.
type RuleSource string

const (
	SourceRoot      RuleSource = "root"
	SourceLocal     RuleSource = "local"
	SourceOptimizer RuleSource = "optimizer"
)

// GuidanceRule is one enforceable statement of guidance.
type GuidanceRule struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	RiskClass      RiskClass  `json:"risk_class"`
	ToolClasses    []string   `json:"tool_classes"`
	Intents        []string   `json:"intents"`
	RepoScopes     []string   `json:"repo_scopes"`
	Domains        []string   `json:"domains"`
	Priority       int        `json:"priority"`
	Source         RuleSource `json:"source"`
	IsConstitution bool       `json:"is_constitution"`
	Verifier       string     `json:"verifier,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RuleShard wraps one non-constitution rule in an injectable form.
type RuleShard struct {
	Rule        GuidanceRule `json:"rule"`
	CompactText string       `json:"compact_text"`
	// Embedding is populated lazily by the retriever; it is not part of
	// the compiled artifact.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Constitution is the always-loaded subset of rules, rendered as a
// line-budgeted text block with a content hash for change detection.
type Constitution struct {
	Rules []GuidanceRule `json:"rules"`
	Text  string         `json:"text"`
	Hash  string         `json:"hash"`
}

// ManifestEntry is the machine-readable index row for one rule.
type ManifestEntry struct {
	ID        string     `json:"id"`
	Triggers  []string   `json:"triggers"`
	Verifier  string     `json:"verifier,omitempty"`
	RiskClass RiskClass  `json:"risk_class"`
	Priority  int        `json:"priority"`
	Source    RuleSource `json:"source"`
}

// RuleManifest indexes every compiled rule.
type RuleManifest struct {
	Rules             []ManifestEntry `json:"rules"`
	CompiledAt        time.Time       `json:"compiled_at"`
	SourceHashes      []string        `json:"source_hashes"`
	TotalRules        int             `json:"total_rules"`
	ConstitutionRules int             `json:"constitution_rules"`
	ShardRules        int             `json:"shard_rules"`
}

// PolicyBundle is the complete compiled artifact.
type PolicyBundle struct {
	Constitution Constitution `json:"constitution"`
	Shards       []RuleShard  `json:"shards"`
	Manifest     RuleManifest `json:"manifest"`
}

// Validate checks the bundle's structural invariants: rule IDs
// partition cleanly between constitution and shards, and the manifest
// counts agree.
func (b *PolicyBundle) Validate() error {
	seen := make(map[string]bool, len(b.Constitution.Rules)+len(b.Shards))
	for _, r := range b.Constitution.Rules {
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q in bundle", r.ID)
		}
		seen[r.ID] = true
	}
	for _, s := range b.Shards {
		if seen[s.Rule.ID] {
			return fmt.Errorf("duplicate rule id %q in bundle", s.Rule.ID)
		}
		seen[s.Rule.ID] = true
	}

	total := len(b.Constitution.Rules) + len(b.Shards)
	if b.Manifest.TotalRules != total {
		return fmt.Errorf("manifest total_rules %d != %d compiled rules", b.Manifest.TotalRules, total)
	}
	if b.Manifest.ConstitutionRules+b.Manifest.ShardRules != b.Manifest.TotalRules {
		return fmt.Errorf("manifest counts do not sum: %d + %d != %d",
			b.Manifest.ConstitutionRules, b.Manifest.ShardRules, b.Manifest.TotalRules)
	}
	return nil
}

// Rule looks up a rule by id across constitution and shards.
func (b *PolicyBundle) Rule(id string) (*GuidanceRule, bool) {
	for i := range b.Constitution.Rules {
		if b.Constitution.Rules[i].ID == id {
			return &b.Constitution.Rules[i], true
		}
	}
	for i := range b.Shards {
		if b.Shards[i].Rule.ID == id {
			return &b.Shards[i].Rule, true
		}
	}
	return nil, false
}

// HashText digests text for change detection: SHA-256 truncated to 16
// hex characters. Stable across processes, changes iff the text
// changes.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
