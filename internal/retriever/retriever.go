// Package retriever selects the task-relevant subset of a compiled
// policy bundle: the constitution unconditionally, plus a ranked,
// budgeted set of shards scored against the task description.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidanced/internal/embeddings"
	"github.com/fyrsmithlabs/guidanced/internal/policy"
	"github.com/fyrsmithlabs/guidanced/internal/vocabulary"
)

var (
	// ErrInvalidConfig is returned when retriever construction fails.
	ErrInvalidConfig = fmt.Errorf("retriever: invalid config")
	// ErrNotLoaded is returned when Retrieve is called before LoadBundle.
	// This is a programmer error, not a degraded-result situation.
	ErrNotLoaded = fmt.Errorf("retriever: no bundle loaded")
)

// Config configures retrieval.
type Config struct {
	// MaxShards is the default shard budget per retrieval (default: 8).
	MaxShards int `koanf:"max_shards"`
	// EmbeddingDimension is the hashed embedding width (default: 64).
	EmbeddingDimension int `koanf:"embedding_dimension"`
}

// DefaultConfig returns the standard retriever configuration.
func DefaultConfig() *Config {
	return &Config{MaxShards: 8, EmbeddingDimension: 64}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.MaxShards <= 0 {
		return fmt.Errorf("%w: max_shards must be positive, got %d", ErrInvalidConfig, c.MaxShards)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: embedding_dimension must be positive, got %d", ErrInvalidConfig, c.EmbeddingDimension)
	}
	return nil
}

// Retriever ranks and returns bundle shards for a task.
type Retriever struct {
	config   *Config
	provider embeddings.Provider
	logger   *zap.Logger
	metrics  *Metrics

	mu     sync.RWMutex
	bundle *policy.PolicyBundle
	shards []policy.RuleShard // shards with embeddings populated
}

// New creates a Retriever. A nil config uses defaults, a nil provider
// uses the deterministic hashed embedding, and a nil logger is replaced
// with a no-op logger.
func New(cfg *Config, provider embeddings.Provider, logger *zap.Logger) (*Retriever, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		provider = embeddings.NewHashedProvider(cfg.EmbeddingDimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("retriever")
	return &Retriever{
		config:   cfg,
		provider: provider,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// LoadBundle installs a compiled bundle and embeds every shard's
// compact text. Replaces any previously loaded bundle.
func (r *Retriever) LoadBundle(ctx context.Context, bundle *policy.PolicyBundle) error {
	if bundle == nil {
		return fmt.Errorf("%w: nil bundle", ErrInvalidConfig)
	}

	shards := make([]policy.RuleShard, len(bundle.Shards))
	copy(shards, bundle.Shards)
	for i := range shards {
		vec, err := r.provider.Embed(ctx, shards[i].CompactText)
		if err != nil {
			return fmt.Errorf("embedding shard %s: %w", shards[i].Rule.ID, err)
		}
		shards[i].Embedding = vec
	}

	r.mu.Lock()
	r.bundle = bundle
	r.shards = shards
	r.mu.Unlock()

	r.logger.Info("bundle loaded",
		zap.Int("shards", len(shards)),
		zap.String("constitution_hash", bundle.Constitution.Hash),
	)
	return nil
}

// Retrieve returns the constitution plus the top-ranked eligible shards
// for the request. Filters apply before ranking so the budget is spent
// only on eligible shards.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	r.mu.RLock()
	bundle := r.bundle
	shards := r.shards
	r.mu.RUnlock()
	if bundle == nil {
		return nil, ErrNotLoaded
	}

	intent := req.Intent
	if intent == "" {
		intent = vocabulary.DetectIntent(req.TaskDescription)
	}

	eligible := filterShards(shards, req)

	taskVec, err := r.provider.Embed(ctx, req.TaskDescription)
	if err != nil {
		return nil, fmt.Errorf("embedding task: %w", err)
	}

	scored := make([]ScoredShard, 0, len(eligible))
	for _, shard := range eligible {
		similarity := embeddings.Cosine(taskVec, shard.Embedding)
		scored = append(scored, ScoredShard{
			Shard:      shard,
			Similarity: similarity + float64(shard.Rule.Priority)/1000,
			Reason:     scoreReason(shard, intent, similarity),
		})
	}

	scored, contradictions := resolveContradictions(scored, intent)

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	budget := r.config.MaxShards
	if req.MaxShards > 0 {
		budget = req.MaxShards
	}
	if len(scored) > budget {
		scored = scored[:budget]
	}

	var policyText strings.Builder
	policyText.WriteString(bundle.Constitution.Text)
	for _, s := range scored {
		policyText.WriteString("\n")
		policyText.WriteString(s.Shard.CompactText)
	}

	latency := time.Since(start)
	r.metrics.RecordRetrieval(ctx, intent, latency, len(scored), contradictions)
	r.logger.Debug("retrieved shards",
		zap.String("intent", intent),
		zap.Int("eligible", len(eligible)),
		zap.Int("returned", len(scored)),
		zap.Int("contradictions_resolved", contradictions),
	)

	return &Result{
		Constitution:           bundle.Constitution,
		Shards:                 scored,
		DetectedIntent:         intent,
		ContradictionsResolved: contradictions,
		PolicyText:             policyText.String(),
		LatencyMs:              float64(latency.Microseconds()) / 1000,
	}, nil
}

// filterShards applies the risk and repo-scope filters ahead of ranking.
func filterShards(shards []policy.RuleShard, req Request) []policy.RuleShard {
	out := make([]policy.RuleShard, 0, len(shards))
	for _, shard := range shards {
		if req.RiskFilter != "" && shard.Rule.RiskClass.Severity() < req.RiskFilter.Severity() {
			continue
		}
		if req.RepoScope != "" && !scopeMatches(shard.Rule.RepoScopes, req.RepoScope) {
			continue
		}
		out = append(out, shard)
	}
	return out
}

// scopeMatches reports whether any of the rule's glob scopes matches
// the requested path. Invalid globs are treated as non-matching rather
// than failing retrieval.
func scopeMatches(scopes []string, path string) bool {
	for _, scope := range scopes {
		if scope == "**/*" {
			return true
		}
		if ok, err := doublestar.Match(scope, path); err == nil && ok {
			return true
		}
	}
	return false
}

// resolveContradictions drops the lower-priority shard when two shards
// share a domain with the request intent, address the same normalized
// subject, and carry opposing polarity.
func resolveContradictions(scored []ScoredShard, intent string) ([]ScoredShard, int) {
	type key struct {
		domain  string
		subject string
	}

	kept := make(map[key]int) // key -> index into result
	var result []ScoredShard
	dropped := 0

	for _, candidate := range scored {
		rule := candidate.Shard.Rule
		polarity := vocabulary.Polarity(rule.Text)
		if polarity == 0 || !hasIntent(rule, intent) {
			result = append(result, candidate)
			continue
		}

		domain := vocabulary.DefaultIntent
		if len(rule.Domains) > 0 {
			domain = rule.Domains[0]
		}
		k := key{domain: domain, subject: vocabulary.Subject(rule.Text)}

		prev, exists := kept[k]
		if !exists {
			kept[k] = len(result)
			result = append(result, candidate)
			continue
		}

		prevRule := result[prev].Shard.Rule
		if vocabulary.Polarity(prevRule.Text) == polarity {
			result = append(result, candidate)
			continue
		}

		// Opposing polarity on the same subject: keep higher priority.
		dropped++
		if rule.Priority > prevRule.Priority {
			result[prev] = candidate
		}
	}
	return result, dropped
}

func hasIntent(rule policy.GuidanceRule, intent string) bool {
	for _, i := range rule.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// scoreReason explains a shard's selection for display and audit.
func scoreReason(shard policy.RuleShard, intent string, similarity float64) string {
	if hasIntent(shard.Rule, intent) {
		return fmt.Sprintf("intent %q match, similarity %.3f", intent, similarity)
	}
	return fmt.Sprintf("similarity %.3f", similarity)
}
