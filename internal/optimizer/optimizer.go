// Package optimizer closes the guidance loop: it reads violation
// history from the ledger, proposes rule changes, scores them against
// ledger-derived baselines with a fixed-multiplier heuristic, and
// promotes rules into the constitution after repeated validated wins.
//
// The evaluation step is an explicit approximation. The multipliers per
// change type are constants of the design, not measurements; any change
// to them changes what the system considers an improvement.
package optimizer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidanced/internal/ledger"
	"github.com/fyrsmithlabs/guidanced/internal/policy"
)

var (
	// ErrInvalidConfig is returned when optimizer construction fails.
	ErrInvalidConfig = fmt.Errorf("optimizer: invalid config")
	// ErrNotFound is returned when a rule or change id cannot be
	// resolved. Surfaced to the caller, never swallowed.
	ErrNotFound = fmt.Errorf("optimizer: not found")
	// ErrInvalidState is returned for operations invalid in the current
	// promotion state, e.g. promoting an untracked rule.
	ErrInvalidState = fmt.Errorf("optimizer: invalid state")
)

// Heuristic multipliers per change type: the assumed fraction of
// affected-ratio violations eliminated and of triggering rework cost
// recovered. Remove carries negative factors: removing a rule is
// assumed to regress.
var changeFactors = map[ChangeType]struct {
	violation float64
	rework    float64
}{
	ChangeModify:  {violation: 0.4, rework: 0.3},
	ChangeAdd:     {violation: 0.6, rework: 0.5},
	ChangePromote: {violation: 0.8, rework: 0.6},
	ChangeRemove:  {violation: -0.2, rework: -0.1},
}

// Config configures the optimizer loop.
type Config struct {
	// PromotionWins is the number of consecutive successful evaluations
	// before a rule is promoted to the constitution (default: 3).
	PromotionWins int `koanf:"promotion_wins"`

	// ImprovementThreshold is the minimum relative rework decrease for
	// a change to count as a win (default: 0.1).
	ImprovementThreshold float64 `koanf:"improvement_threshold"`

	// MaxRiskIncrease is the largest tolerated relative violation-rate
	// increase (default: 0.05).
	MaxRiskIncrease float64 `koanf:"max_risk_increase"`

	// TopViolationsPerCycle bounds how many rankings each cycle
	// examines (default: 5).
	TopViolationsPerCycle int `koanf:"top_violations_per_cycle"`

	// ConstitutionLineBudget bounds the constitution text rebuilt after
	// promotions (default: 50, matching the compiler).
	ConstitutionLineBudget int `koanf:"constitution_line_budget"`
}

// DefaultConfig returns the standard optimizer configuration.
func DefaultConfig() *Config {
	return &Config{
		PromotionWins:          3,
		ImprovementThreshold:   0.1,
		MaxRiskIncrease:        0.05,
		TopViolationsPerCycle:  5,
		ConstitutionLineBudget: 50,
	}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.PromotionWins < 1 {
		return fmt.Errorf("%w: promotion_wins must be at least 1, got %d", ErrInvalidConfig, c.PromotionWins)
	}
	if c.ImprovementThreshold < 0 || c.ImprovementThreshold > 1 {
		return fmt.Errorf("%w: improvement_threshold must be in [0, 1], got %g", ErrInvalidConfig, c.ImprovementThreshold)
	}
	if c.MaxRiskIncrease < 0 {
		return fmt.Errorf("%w: max_risk_increase must be non-negative, got %g", ErrInvalidConfig, c.MaxRiskIncrease)
	}
	if c.TopViolationsPerCycle < 1 {
		return fmt.Errorf("%w: top_violations_per_cycle must be at least 1, got %d", ErrInvalidConfig, c.TopViolationsPerCycle)
	}
	if c.ConstitutionLineBudget < 1 {
		return fmt.Errorf("%w: constitution_line_budget must be at least 1, got %d", ErrInvalidConfig, c.ConstitutionLineBudget)
	}
	return nil
}

// Optimizer holds the mutable promotion state across cycles. Instances
// are not safe for concurrent use; callers sharing one must serialize
// RunCycle behind a single-writer lock.
type Optimizer struct {
	config  *Config
	logger  *zap.Logger
	metrics *Metrics

	tracker map[string]*trackState
	adrSeq  int
	adrs    []RuleADR
}

// trackState is the per-rule promotion state machine: a counter of
// consecutive wins plus whether the rule already got promoted.
type trackState struct {
	wins     int
	promoted bool
	demoted  bool
}

// New creates an Optimizer. A nil config uses defaults.
func New(cfg *Config, logger *zap.Logger) (*Optimizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("optimizer")
	return &Optimizer{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(logger),
		tracker: make(map[string]*trackState),
	}, nil
}

// ADRs returns a copy of the audit records accumulated so far.
func (o *Optimizer) ADRs() []RuleADR {
	return append([]RuleADR(nil), o.adrs...)
}

// Wins returns the current consecutive-win counter for a rule id.
// Untracked rules surface a state error rather than a silent zero.
func (o *Optimizer) Wins(ruleID string) (int, error) {
	state, ok := o.tracker[ruleID]
	if !ok {
		return 0, fmt.Errorf("%w: rule %s has no tracked evaluations", ErrInvalidState, ruleID)
	}
	return state.wins, nil
}

// RunCycle executes one optimization pass: rank violations, propose a
// change for each of the top rankings, evaluate each change against the
// ledger baseline, update the promotion state machine, and record an
// ADR per evaluated change. An empty ledger is a no-op.
func (o *Optimizer) RunCycle(led *ledger.Ledger, bundle *policy.PolicyBundle) (*CycleReport, error) {
	if led == nil || bundle == nil {
		return nil, fmt.Errorf("%w: ledger and bundle are required", ErrInvalidConfig)
	}

	report := &CycleReport{}
	rankings := led.RankViolations()
	if len(rankings) == 0 {
		return report, nil
	}
	report.Rankings = rankings

	if len(rankings) > o.config.TopViolationsPerCycle {
		rankings = rankings[:o.config.TopViolationsPerCycle]
	}

	events := led.Events()
	baselineMetrics := led.ComputeMetrics(events)
	baseline := OptimizationMetrics{
		ViolationRate: baselineMetrics.ViolationRate,
		ReworkLines:   baselineMetrics.MeanReworkLines,
		TaskCount:     baselineMetrics.TaskCount,
	}

	now := time.Now().UTC()
	for _, ranking := range rankings {
		change := o.propose(ranking, bundle, now)
		report.Changes = append(report.Changes, change)

		affected := affectedEventCount(events, ranking.RuleID)
		result := o.EvaluateChange(change, baseline, affected)
		report.Results = append(report.Results, result)

		promoted, demoted := o.track(change, result)
		if promoted {
			report.Promoted = append(report.Promoted, change.RuleID)
			o.metrics.RecordPromotion(change.RuleID)
		}
		if demoted {
			report.Demoted = append(report.Demoted, change.RuleID)
		}

		report.ADRs = append(report.ADRs, o.recordADR(change, result, now))
	}

	o.logger.Info("cycle complete",
		zap.Int("rankings", len(report.Rankings)),
		zap.Int("changes", len(report.Changes)),
		zap.Strings("promoted", report.Promoted),
		zap.Strings("demoted", report.Demoted),
	)
	return report, nil
}

// propose builds the change for one violation ranking: a modification
// when the rule exists (escalating wording or priority with the
// violation profile), a promotion attempt when the rule is one win away
// from the threshold, or a new rule when nothing matches.
func (o *Optimizer) propose(ranking ledger.ViolationRanking, bundle *policy.PolicyBundle, now time.Time) RuleChange {
	change := RuleChange{
		ID:         uuid.NewString(),
		RuleID:     ranking.RuleID,
		Triggering: ranking,
		CreatedAt:  now,
	}

	rule, exists := bundle.Rule(ranking.RuleID)
	if !exists {
		change.Type = ChangeAdd
		change.NewText = fmt.Sprintf("Avoid the behavior behind %s (violated %d times)", ranking.RuleID, ranking.Frequency)
		change.NewPriority = 50
		change.Rationale = fmt.Sprintf("no rule covers %s; violated %d times at mean cost %.1f rework lines",
			ranking.RuleID, ranking.Frequency, ranking.Cost)
		return change
	}

	if state, ok := o.tracker[ranking.RuleID]; ok && !rule.IsConstitution && state.wins >= o.config.PromotionWins-1 && !state.promoted {
		change.Type = ChangePromote
		change.OldText = rule.Text
		change.NewText = rule.Text
		change.OldPriority = rule.Priority
		change.NewPriority = rule.Priority + 100
		change.Rationale = fmt.Sprintf("rule %s has %d consecutive wins; attempting constitution promotion", ranking.RuleID, state.wins)
		return change
	}

	change.Type = ChangeModify
	change.OldText = rule.Text
	change.NewText = rule.Text
	change.OldPriority = rule.Priority
	change.NewPriority = rule.Priority

	var edits []string
	if ranking.Frequency > 5 {
		change.NewText = escalateWording(rule.Text)
		edits = append(edits, fmt.Sprintf("escalated wording after %d violations", ranking.Frequency))
	}
	if ranking.Cost > 50 {
		change.NewPriority = rule.Priority + 20
		edits = append(edits, fmt.Sprintf("elevated priority for mean cost %.1f rework lines", ranking.Cost))
	}
	if len(edits) == 0 {
		edits = append(edits, fmt.Sprintf("reinforced after %d violations", ranking.Frequency))
	}
	change.Rationale = strings.Join(edits, "; ")
	return change
}

// escalateWording hardens soft rule phrasing into mandatory phrasing.
func escalateWording(text string) string {
	replacer := strings.NewReplacer(
		"should not", "MUST NOT",
		"should", "MUST",
		"avoid", "NEVER",
		"prefer", "ALWAYS use",
	)
	escalated := replacer.Replace(text)
	if escalated == text {
		escalated = "MANDATORY: " + text
	}
	return escalated
}

// EvaluateChange scores a change with the fixed heuristic multipliers.
// The candidate metrics are a deterministic function of the change
// type, the affected-event ratio, and the triggering violation's cost.
func (o *Optimizer) EvaluateChange(change RuleChange, baseline OptimizationMetrics, affectedEvents int) ABTestResult {
	factors := changeFactors[change.Type]

	affectedRatio := 0.0
	if baseline.TaskCount > 0 {
		affectedRatio = float64(affectedEvents) / float64(baseline.TaskCount)
	}

	candidate := OptimizationMetrics{
		ViolationRate: baseline.ViolationRate * (1 - factors.violation*affectedRatio),
		ReworkLines:   baseline.ReworkLines - factors.rework*change.Triggering.Cost,
		TaskCount:     baseline.TaskCount,
	}

	reworkDecrease := baseline.ReworkLines - candidate.ReworkLines
	riskIncrease := 0.0
	if baseline.ViolationRate > 0 {
		riskIncrease = (candidate.ViolationRate - baseline.ViolationRate) / baseline.ViolationRate
	}

	shouldPromote := riskIncrease <= o.config.MaxRiskIncrease &&
		reworkDecrease > 0 &&
		baseline.ReworkLines > 0 &&
		reworkDecrease/baseline.ReworkLines >= o.config.ImprovementThreshold

	reason := fmt.Sprintf(
		"estimated rework decrease %.1f lines (%.0f%% of baseline), violation-rate delta %.1f%%",
		reworkDecrease, safeRatio(reworkDecrease, baseline.ReworkLines)*100, riskIncrease*100,
	)
	if !shouldPromote {
		reason = "below improvement threshold: " + reason
	}

	return ABTestResult{
		ChangeID:       change.ID,
		Baseline:       baseline,
		Candidate:      candidate,
		ReworkDecrease: reworkDecrease,
		RiskIncrease:   riskIncrease,
		ShouldPromote:  shouldPromote,
		Reason:         reason,
	}
}

// track advances the promotion state machine for one evaluated change.
// Returns whether the rule got promoted or demoted this step. Only a
// winning promote-type change crosses into promotion: add-type changes
// have no shard to move and constitution rules are already there, so
// their wins accumulate without ever flipping the promoted flag.
func (o *Optimizer) track(change RuleChange, result ABTestResult) (promoted, demoted bool) {
	state := o.tracker[change.RuleID]
	if state == nil {
		state = &trackState{}
		o.tracker[change.RuleID] = state
	}

	if result.ShouldPromote {
		state.wins++
		if change.Type == ChangePromote && state.wins >= o.config.PromotionWins && !state.promoted {
			state.promoted = true
			return true, false
		}
		return false, false
	}

	state.wins = 0
	if change.Type == ChangePromote {
		state.demoted = true
		return false, true
	}
	return false, false
}

// recordADR appends the permanent audit record for one evaluated change.
func (o *Optimizer) recordADR(change RuleChange, result ABTestResult, now time.Time) RuleADR {
	o.adrSeq++
	decision := "rejected"
	if result.ShouldPromote {
		decision = "accepted"
	}
	adr := RuleADR{
		Number:    o.adrSeq,
		Title:     fmt.Sprintf("ADR-%04d: %s rule %s", o.adrSeq, change.Type, change.RuleID),
		Decision:  decision,
		Rationale: result.Reason,
		Change:    change,
		Result:    result,
		CreatedAt: now,
	}
	o.adrs = append(o.adrs, adr)
	return adr
}

// ApplyPromotions moves promoted shards into the constitution with the
// change's text, a +100 priority bump, and optimizer sourcing, then
// rebuilds the constitution text and hash. The returned bundle's
// manifest is stale; the caller recompiles to refresh it. Unknown rule
// ids fail with ErrNotFound.
func (o *Optimizer) ApplyPromotions(bundle *policy.PolicyBundle, promotedIDs []string, changes []RuleChange) (*policy.PolicyBundle, error) {
	changeByRule := make(map[string]RuleChange, len(changes))
	for _, c := range changes {
		changeByRule[c.RuleID] = c
	}

	next := &policy.PolicyBundle{
		Constitution: policy.Constitution{
			Rules: append([]policy.GuidanceRule(nil), bundle.Constitution.Rules...),
		},
		Manifest: bundle.Manifest,
	}

	promote := make(map[string]bool, len(promotedIDs))
	for _, id := range promotedIDs {
		promote[id] = true
	}

	now := time.Now().UTC()
	moved := 0
	for _, shard := range bundle.Shards {
		if !promote[shard.Rule.ID] {
			next.Shards = append(next.Shards, shard)
			continue
		}

		rule := shard.Rule
		if change, ok := changeByRule[rule.ID]; ok && change.NewText != "" {
			rule.Text = change.NewText
		}
		rule.Priority += 100
		rule.Source = policy.SourceOptimizer
		rule.IsConstitution = true
		rule.UpdatedAt = now
		next.Constitution.Rules = append(next.Constitution.Rules, rule)
		moved++
	}

	if moved != len(promote) {
		missing := missingIDs(promote, bundle)
		return nil, fmt.Errorf("%w: rules %s are not shards in this bundle", ErrNotFound, strings.Join(missing, ", "))
	}

	sort.SliceStable(next.Constitution.Rules, func(i, j int) bool {
		return next.Constitution.Rules[i].ID < next.Constitution.Rules[j].ID
	})
	next.Constitution.Text = policy.RenderConstitution(next.Constitution.Rules, o.config.ConstitutionLineBudget)
	next.Constitution.Hash = policy.HashText(next.Constitution.Text)
	return next, nil
}

// affectedEventCount counts events carrying a violation of the rule.
func affectedEventCount(events []ledger.RunEvent, ruleID string) int {
	count := 0
	for _, ev := range events {
		for _, v := range ev.Violations {
			if v.RuleID == ruleID {
				count++
				break
			}
		}
	}
	return count
}

func missingIDs(promote map[string]bool, bundle *policy.PolicyBundle) []string {
	shardIDs := make(map[string]bool, len(bundle.Shards))
	for _, s := range bundle.Shards {
		shardIDs[s.Rule.ID] = true
	}
	var missing []string
	for id := range promote {
		if !shardIDs[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
