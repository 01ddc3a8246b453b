package optimizer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidanced/internal/ledger"
	"github.com/fyrsmithlabs/guidanced/internal/policy"
)

func newOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	o, err := New(nil, nil)
	require.NoError(t, err)
	return o
}

// testBundle holds one shard rule R1 and one constitution rule C1.
func testBundle() *policy.PolicyBundle {
	constitution := policy.GuidanceRule{
		ID:             "C1",
		Text:           "NEVER commit credentials",
		RiskClass:      policy.RiskCritical,
		Domains:        []string{"security"},
		Priority:       150,
		Source:         policy.SourceRoot,
		IsConstitution: true,
	}
	shard := policy.GuidanceRule{
		ID:        "R1",
		Text:      "avoid committing generated files",
		RiskClass: policy.RiskMedium,
		Domains:   []string{"git"},
		Intents:   []string{"git"},
		Priority:  30,
		Source:    policy.SourceRoot,
	}
	text := policy.RenderConstitution([]policy.GuidanceRule{constitution}, 50)
	return &policy.PolicyBundle{
		Constitution: policy.Constitution{
			Rules: []policy.GuidanceRule{constitution},
			Text:  text,
			Hash:  policy.HashText(text),
		},
		Shards: []policy.RuleShard{{
			Rule:        shard,
			CompactText: "[R1] avoid committing generated files @git",
		}},
		Manifest: policy.RuleManifest{TotalRules: 2, ConstitutionRules: 1, ShardRules: 1},
	}
}

// violationLedger records count events, each with one R1 violation at
// the given rework cost.
func violationLedger(t *testing.T, ruleID string, count, rework int) *ledger.Ledger {
	t.Helper()
	led, err := ledger.New(nil, nil)
	require.NoError(t, err)
	for i := 0; i < count; i++ {
		ev := led.CreateEvent(fmt.Sprintf("task-%d", i), "git", "h")
		ev.Violations = []ledger.Violation{{RuleID: ruleID}}
		ev.Diff = ledger.DiffStats{TotalLines: rework * 2, ReworkLines: rework}
		require.NoError(t, led.FinalizeEvent(ev))
	}
	return led
}

func TestRunCycle_EmptyLedger(t *testing.T) {
	o := newOptimizer(t)

	led, err := ledger.New(nil, nil)
	require.NoError(t, err)

	report, err := o.RunCycle(led, testBundle())
	require.NoError(t, err)
	assert.Empty(t, report.Changes)
	assert.Empty(t, report.ADRs)
}

func TestRunCycle_RequiresInputs(t *testing.T) {
	o := newOptimizer(t)
	_, err := o.RunCycle(nil, testBundle())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunCycle_ProposesAddForUnknownRule(t *testing.T) {
	o := newOptimizer(t)
	led := violationLedger(t, "GHOST", 2, 40)

	report, err := o.RunCycle(led, testBundle())
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)

	change := report.Changes[0]
	assert.Equal(t, ChangeAdd, change.Type)
	assert.Equal(t, "GHOST", change.RuleID)
	assert.Equal(t, 50, change.NewPriority)
	assert.NotEmpty(t, change.NewText)
}

func TestRunCycle_ModifyEscalation(t *testing.T) {
	o := newOptimizer(t)
	// Frequency over 5 escalates wording; cost over 50 bumps priority.
	led := violationLedger(t, "R1", 6, 80)

	report, err := o.RunCycle(led, testBundle())
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)

	change := report.Changes[0]
	assert.Equal(t, ChangeModify, change.Type)
	assert.Equal(t, "NEVER committing generated files", change.NewText)
	assert.Equal(t, 50, change.NewPriority, "priority bumped by 20 for expensive violations")
}

func TestPromotionAfterConsecutiveWins(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()
	led := violationLedger(t, "R1", 3, 100)

	for cycle := 1; cycle <= 2; cycle++ {
		report, err := o.RunCycle(led, bundle)
		require.NoError(t, err)
		require.Len(t, report.Changes, 1)
		assert.Equal(t, ChangeModify, report.Changes[0].Type)
		assert.True(t, report.Results[0].ShouldPromote)
		assert.Empty(t, report.Promoted)

		wins, err := o.Wins("R1")
		require.NoError(t, err)
		assert.Equal(t, cycle, wins)
	}

	// Third consecutive win crosses the threshold via a promote change.
	report, err := o.RunCycle(led, bundle)
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, ChangePromote, report.Changes[0].Type)
	assert.Equal(t, []string{"R1"}, report.Promoted)
	assert.Empty(t, report.Demoted)
}

func TestUnknownRuleNeverPromotes(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()
	led := violationLedger(t, "GHOST", 3, 100)

	// Every cycle wins, but an add-type change has no shard to move, so
	// the streak must never surface the id in Promoted.
	for cycle := 1; cycle <= 4; cycle++ {
		report, err := o.RunCycle(led, bundle)
		require.NoError(t, err)
		require.Len(t, report.Changes, 1)
		assert.Equal(t, ChangeAdd, report.Changes[0].Type)
		assert.True(t, report.Results[0].ShouldPromote)
		assert.Empty(t, report.Promoted, "cycle %d", cycle)

		wins, err := o.Wins("GHOST")
		require.NoError(t, err)
		assert.Equal(t, cycle, wins)
	}

	// Nothing for ApplyPromotions to reject later.
	next, err := o.ApplyPromotions(bundle, nil, nil)
	require.NoError(t, err)
	assert.Len(t, next.Shards, 1)
}

func TestConstitutionRuleNeverRepromotes(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()
	led := violationLedger(t, "C1", 3, 100)

	// C1 is already constitution; winning modify changes accumulate but
	// must not mark it promoted, since it is not a shard to move.
	for i := 0; i < 4; i++ {
		report, err := o.RunCycle(led, bundle)
		require.NoError(t, err)
		require.Len(t, report.Changes, 1)
		assert.Equal(t, ChangeModify, report.Changes[0].Type)
		assert.Empty(t, report.Promoted)
	}
}

func TestFailedEvaluationResetsWins(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()

	_, err := o.RunCycle(violationLedger(t, "R1", 3, 100), bundle)
	require.NoError(t, err)
	wins, err := o.Wins("R1")
	require.NoError(t, err)
	require.Equal(t, 1, wins)

	// Zero rework means no estimable improvement; the change fails.
	_, err = o.RunCycle(violationLedger(t, "R1", 3, 0), bundle)
	require.NoError(t, err)
	wins, err = o.Wins("R1")
	require.NoError(t, err)
	assert.Zero(t, wins, "a failed evaluation resets the streak")
}

func TestFailedPromotionDemotes(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()
	good := violationLedger(t, "R1", 3, 100)

	for i := 0; i < 2; i++ {
		_, err := o.RunCycle(good, bundle)
		require.NoError(t, err)
	}

	// The third cycle proposes promotion but evaluates against a window
	// with no recoverable rework, so the promotion attempt fails.
	report, err := o.RunCycle(violationLedger(t, "R1", 3, 0), bundle)
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, ChangePromote, report.Changes[0].Type)
	assert.Empty(t, report.Promoted)
	assert.Equal(t, []string{"R1"}, report.Demoted)
}

func TestWins_Untracked(t *testing.T) {
	o := newOptimizer(t)
	_, err := o.Wins("NEVER-SEEN")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEvaluateChange_Multipliers(t *testing.T) {
	o := newOptimizer(t)
	baseline := OptimizationMetrics{ViolationRate: 10, ReworkLines: 100, TaskCount: 10}

	tests := []struct {
		changeType    ChangeType
		wantRework    float64
		wantRisk      float64
		shouldPromote bool
	}{
		{ChangeModify, 0.3 * 40, -0.4 * 0.5, true},
		{ChangeAdd, 0.5 * 40, -0.6 * 0.5, true},
		{ChangePromote, 0.6 * 40, -0.8 * 0.5, true},
		{ChangeRemove, -0.1 * 40, 0.2 * 0.5, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.changeType), func(t *testing.T) {
			change := RuleChange{
				ID:         "change-1",
				Type:       tt.changeType,
				RuleID:     "R1",
				Triggering: ledger.ViolationRanking{RuleID: "R1", Frequency: 5, Cost: 40},
			}
			result := o.EvaluateChange(change, baseline, 5)
			assert.InDelta(t, tt.wantRework, result.ReworkDecrease, 1e-9)
			assert.InDelta(t, tt.wantRisk, result.RiskIncrease, 1e-9)
			assert.Equal(t, tt.shouldPromote, result.ShouldPromote)
		})
	}
}

func TestEvaluateChange_EmptyBaseline(t *testing.T) {
	o := newOptimizer(t)
	change := RuleChange{Type: ChangeModify, Triggering: ledger.ViolationRanking{Cost: 40}}

	result := o.EvaluateChange(change, OptimizationMetrics{}, 0)
	assert.False(t, result.ShouldPromote, "no baseline rework means nothing to improve")
}

func TestADRSequence(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()
	led := violationLedger(t, "R1", 2, 30)

	for i := 0; i < 3; i++ {
		_, err := o.RunCycle(led, bundle)
		require.NoError(t, err)
	}

	adrs := o.ADRs()
	require.Len(t, adrs, 3)
	for i, adr := range adrs {
		assert.Equal(t, i+1, adr.Number, "numbering is sequential and gapless")
		assert.Contains(t, adr.Title, fmt.Sprintf("ADR-%04d", i+1))
		assert.Contains(t, []string{"accepted", "rejected"}, adr.Decision)
	}
}

func TestApplyPromotions(t *testing.T) {
	o := newOptimizer(t)
	bundle := testBundle()

	change := RuleChange{
		ID:      "change-1",
		Type:    ChangePromote,
		RuleID:  "R1",
		NewText: "NEVER commit generated files",
	}

	next, err := o.ApplyPromotions(bundle, []string{"R1"}, []RuleChange{change})
	require.NoError(t, err)

	assert.Empty(t, next.Shards)
	require.Len(t, next.Constitution.Rules, 2)

	promoted, ok := next.Rule("R1")
	require.True(t, ok)
	assert.True(t, promoted.IsConstitution)
	assert.Equal(t, policy.SourceOptimizer, promoted.Source)
	assert.Equal(t, 130, promoted.Priority, "priority gains the constitution bonus")
	assert.Equal(t, "NEVER commit generated files", promoted.Text)

	assert.NotEqual(t, bundle.Constitution.Hash, next.Constitution.Hash)
	assert.Equal(t, policy.HashText(next.Constitution.Text), next.Constitution.Hash)
	assert.Contains(t, next.Constitution.Text, "[R1]")

	// The source bundle is untouched.
	require.Len(t, bundle.Shards, 1)
	assert.False(t, bundle.Shards[0].Rule.IsConstitution)
}

func TestApplyPromotions_UnknownRule(t *testing.T) {
	o := newOptimizer(t)

	_, err := o.ApplyPromotions(testBundle(), []string{"MISSING"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeTypeValid(t *testing.T) {
	assert.True(t, ChangeAdd.Valid())
	assert.True(t, ChangePromote.Valid())
	assert.False(t, ChangeType("rollback").Valid())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []Config{
		{PromotionWins: 0, ImprovementThreshold: 0.1, MaxRiskIncrease: 0.05, TopViolationsPerCycle: 5, ConstitutionLineBudget: 50},
		{PromotionWins: 3, ImprovementThreshold: 1.5, MaxRiskIncrease: 0.05, TopViolationsPerCycle: 5, ConstitutionLineBudget: 50},
		{PromotionWins: 3, ImprovementThreshold: 0.1, MaxRiskIncrease: -1, TopViolationsPerCycle: 5, ConstitutionLineBudget: 50},
		{PromotionWins: 3, ImprovementThreshold: 0.1, MaxRiskIncrease: 0.05, TopViolationsPerCycle: 0, ConstitutionLineBudget: 50},
		{PromotionWins: 3, ImprovementThreshold: 0.1, MaxRiskIncrease: 0.05, TopViolationsPerCycle: 5, ConstitutionLineBudget: 0},
	}
	for i, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)
	}
}
