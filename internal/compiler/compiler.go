// Package compiler turns human-authored guidance documents into a
// machine-enforceable PolicyBundle. Compilation is deterministic: the
// same input texts always produce the same constitution hash and
// manifest counts. Malformed or empty input never fails; it compiles to
// an empty but valid bundle.
package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidanced/internal/policy"
	"github.com/fyrsmithlabs/guidanced/internal/vocabulary"
)

// ErrInvalidConfig is returned when compiler construction fails validation.
var ErrInvalidConfig = fmt.Errorf("compiler: invalid config")

// Config configures compilation limits.
type Config struct {
	// MaxConstitutionLines bounds the rendered constitution text
	// (default: 50).
	MaxConstitutionLines int `koanf:"max_constitution_lines"`
}

// DefaultConfig returns the standard compiler configuration.
func DefaultConfig() *Config {
	return &Config{MaxConstitutionLines: 50}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.MaxConstitutionLines <= 0 {
		return fmt.Errorf("%w: max_constitution_lines must be positive, got %d", ErrInvalidConfig, c.MaxConstitutionLines)
	}
	return nil
}

// Compiler compiles guidance markdown into policy bundles.
type Compiler struct {
	config *Config
	logger *zap.Logger
}

// New creates a Compiler. A nil config uses defaults; a nil logger is
// replaced with a no-op logger.
func New(cfg *Config, logger *zap.Logger) (*Compiler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{config: cfg, logger: logger.Named("compiler")}, nil
}

// ruleIDLine matches an explicit rule-ID token at the start of a line:
// "R001: text", "[RULE-002] text", "SEC-3: text".
var ruleIDLine = regexp.MustCompile(`^\s*(?:\[([A-Z][A-Z0-9]*-?\d+)\]:?|([A-Z][A-Z0-9]*-?\d+):)\s*(.*)$`)

// Compile builds a PolicyBundle from a root document and an optional
// local overlay. Local rules override root rules with the same id; the
// merged priority is the max of the two. The AUTO-NNN counter for
// implicit rules resets at every call but deliberately runs across both
// documents within one call, so a local AUTO id never collides with a
// root AUTO id.
func (c *Compiler) Compile(rootText, localText string) *policy.PolicyBundle {
	now := time.Now().UTC()
	autoCounter := 0

	rootRules := c.parseDocument(rootText, policy.SourceRoot, &autoCounter, now)
	localRules := c.parseDocument(localText, policy.SourceLocal, &autoCounter, now)
	merged := mergeRules(rootRules, localRules)

	var constitutionRules []policy.GuidanceRule
	var shards []policy.RuleShard
	for _, rule := range merged {
		if rule.IsConstitution {
			constitutionRules = append(constitutionRules, rule)
		} else {
			shards = append(shards, policy.RuleShard{
				Rule:        rule,
				CompactText: compactText(rule),
			})
		}
	}

	constitution := c.buildConstitution(constitutionRules)
	manifest := buildManifest(merged, rootText, localText, len(constitutionRules), len(shards), now)

	c.logger.Debug("compiled bundle",
		zap.Int("total_rules", manifest.TotalRules),
		zap.Int("constitution_rules", manifest.ConstitutionRules),
		zap.Int("shard_rules", manifest.ShardRules),
		zap.String("constitution_hash", constitution.Hash),
	)

	return &policy.PolicyBundle{
		Constitution: constitution,
		Shards:       shards,
		Manifest:     manifest,
	}
}

// parseDocument splits a document into blocks and extracts rules from
// each. Explicit rule-ID lines win; a block with no explicit rules
// falls back to implicit extraction over its actionable bullets.
func (c *Compiler) parseDocument(doc string, source policy.RuleSource, autoCounter *int, now time.Time) []policy.GuidanceRule {
	var rules []policy.GuidanceRule
	for _, blk := range splitBlocks(doc) {
		isConstitution := vocabulary.IsConstitutionHeading(blk.heading)

		extracted := extractExplicit(blk.lines)
		if len(extracted) == 0 {
			extracted = extractImplicit(blk.bullets, autoCounter)
		}

		for id, raw := range extracted {
			rule := policy.GuidanceRule{
				ID:             id,
				Source:         source,
				IsConstitution: isConstitution,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			annotate(&rule, raw)
			if rule.Text == "" {
				continue
			}
			rules = append(rules, rule)
		}
	}

	// Map iteration order is random; restore a stable order.
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// extractExplicit scans block lines for rule-ID tokens. A matching line
// starts a new rule; following non-ID lines append to it.
func extractExplicit(lines []string) map[string]string {
	rules := make(map[string]string)
	currentID := ""
	for _, line := range lines {
		if m := ruleIDLine.FindStringSubmatch(line); m != nil {
			id := m[1]
			if id == "" {
				id = m[2]
			}
			currentID = id
			rules[id] = m[3]
			continue
		}
		if currentID != "" {
			continuation := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
			if continuation != "" {
				rules[currentID] = rules[currentID] + " " + continuation
			}
		}
	}
	return rules
}

// extractImplicit synthesizes AUTO-NNN rules from actionable bullets.
func extractImplicit(bullets []string, autoCounter *int) map[string]string {
	rules := make(map[string]string)
	for _, bullet := range bullets {
		if !vocabulary.IsActionable(bullet) {
			continue
		}
		*autoCounter++
		rules[fmt.Sprintf("AUTO-%03d", *autoCounter)] = bullet
	}
	return rules
}

// mergeRules overlays local rules onto root rules by id. A local rule
// replaces the root rule's text and annotations but keeps the max of
// the two priorities and the root's creation time. Constitution
// membership is sticky: either side marking it keeps it. Constitution
// rules then receive a +100 priority bonus over shard rules.
func mergeRules(rootRules, localRules []policy.GuidanceRule) []policy.GuidanceRule {
	byID := make(map[string]int, len(rootRules))
	merged := make([]policy.GuidanceRule, len(rootRules))
	copy(merged, rootRules)
	for i, r := range merged {
		byID[r.ID] = i
	}

	for _, local := range localRules {
		if i, ok := byID[local.ID]; ok {
			root := merged[i]
			local.Priority = max(root.Priority, local.Priority)
			local.IsConstitution = root.IsConstitution || local.IsConstitution
			local.CreatedAt = root.CreatedAt
			merged[i] = local
			continue
		}
		byID[local.ID] = len(merged)
		merged = append(merged, local)
	}

	for i := range merged {
		if merged[i].IsConstitution {
			merged[i].Priority += 100
		}
	}
	return merged
}

// buildConstitution renders constitution rules grouped by first domain,
// truncated to the configured line budget, and hashes the result.
func (c *Compiler) buildConstitution(rules []policy.GuidanceRule) policy.Constitution {
	text := policy.RenderConstitution(rules, c.config.MaxConstitutionLines)
	return policy.Constitution{
		Rules: rules,
		Text:  text,
		Hash:  policy.HashText(text),
	}
}

// compactText renders the injectable shard form: "[id] text @domain...".
func compactText(rule policy.GuidanceRule) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", rule.ID, rule.Text)
	for _, domain := range rule.Domains {
		fmt.Fprintf(&sb, " @%s", domain)
	}
	return sb.String()
}

// buildManifest indexes the full merged rule set plus source digests.
func buildManifest(rules []policy.GuidanceRule, rootText, localText string, constitutionCount, shardCount int, now time.Time) policy.RuleManifest {
	entries := make([]policy.ManifestEntry, 0, len(rules))
	for _, rule := range rules {
		entries = append(entries, policy.ManifestEntry{
			ID:        rule.ID,
			Triggers:  triggers(rule),
			Verifier:  rule.Verifier,
			RiskClass: rule.RiskClass,
			Priority:  rule.Priority,
			Source:    rule.Source,
		})
	}

	hashes := []string{policy.HashText(rootText)}
	if localText != "" {
		hashes = append(hashes, policy.HashText(localText))
	}

	return policy.RuleManifest{
		Rules:             entries,
		CompiledAt:        now,
		SourceHashes:      hashes,
		TotalRules:        len(rules),
		ConstitutionRules: constitutionCount,
		ShardRules:        shardCount,
	}
}

// triggers is the deduplicated union of a rule's intents and domains.
func triggers(rule policy.GuidanceRule) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append(append([]string{}, rule.Intents...), rule.Domains...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
