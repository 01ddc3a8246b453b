package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidanced/internal/policy"
)

const rootDoc = `# Project Guidance

## Safety Invariants
R001: NEVER delete files outside the workspace (critical) [bash] @security
R002: ALWAYS run tests before committing (high) #testing @testing

## Code Style
- Prefer small functions over large ones
- Use table-driven tests for new code

## Git Workflow
GIT-1: Never force push to main (critical) #git @git scope:.git/**
`

const localDoc = `# Local Overrides

## Git Workflow
GIT-1: Never force push to main or release branches (critical) #git @git priority:80
`

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := New(nil, nil)
	require.NoError(t, err)
	return c
}

func TestCompile_Idempotent(t *testing.T) {
	c := newCompiler(t)

	first := c.Compile(rootDoc, "")
	second := c.Compile(rootDoc, "")

	assert.Equal(t, first.Constitution.Hash, second.Constitution.Hash)
	assert.Equal(t, first.Manifest.TotalRules, second.Manifest.TotalRules)
	assert.Equal(t, first.Manifest.SourceHashes, second.Manifest.SourceHashes)
}

func TestCompile_PartitionInvariant(t *testing.T) {
	c := newCompiler(t)

	bundle := c.Compile(rootDoc, localDoc)
	require.NoError(t, bundle.Validate())
	assert.Equal(t, bundle.Manifest.TotalRules, len(bundle.Constitution.Rules)+len(bundle.Shards))
}

func TestCompile_EmptyInput(t *testing.T) {
	c := newCompiler(t)

	bundle := c.Compile("", "")
	require.NoError(t, bundle.Validate())
	assert.Zero(t, bundle.Manifest.TotalRules)
	assert.Empty(t, bundle.Shards)
	assert.Empty(t, bundle.Constitution.Rules)
}

func TestCompile_GarbageInput(t *testing.T) {
	c := newCompiler(t)

	bundle := c.Compile("\x00\xff{{{[[[***", "%%%%")
	require.NoError(t, bundle.Validate())
}

func TestCompile_ConstitutionClassification(t *testing.T) {
	c := newCompiler(t)

	bundle := c.Compile(rootDoc, "")

	rule, ok := bundle.Rule("R001")
	require.True(t, ok)
	assert.True(t, rule.IsConstitution, "safety heading marks block as constitution")

	git, ok := bundle.Rule("GIT-1")
	require.True(t, ok)
	assert.False(t, git.IsConstitution, "workflow heading stays a shard")
}

func TestCompile_SecurityShardScenario(t *testing.T) {
	c := newCompiler(t)

	bundle := c.Compile("# P\n## Security\n- NEVER commit secrets (critical) @security #security scope:src/**\n", "")

	require.Len(t, bundle.Shards, 1)
	rule := bundle.Shards[0].Rule
	assert.Equal(t, policy.RiskCritical, rule.RiskClass)
	assert.Equal(t, []string{"security"}, rule.Domains)
	assert.Equal(t, []string{"security"}, rule.Intents)
	assert.Equal(t, []string{"src/**"}, rule.RepoScopes)
	assert.False(t, rule.IsConstitution, "heading Security does not match the constitution marker set")
}

func TestCompile_MergeLocalOverridesRoot(t *testing.T) {
	c := newCompiler(t)

	bundle := c.Compile(rootDoc, localDoc)

	rule, ok := bundle.Rule("GIT-1")
	require.True(t, ok)
	assert.Contains(t, rule.Text, "release branches", "local text wins")
	assert.Equal(t, policy.SourceLocal, rule.Source)
	assert.Equal(t, 80, rule.Priority, "merged priority is max(root, local)")
}

func TestCompile_MergePriorityMax(t *testing.T) {
	c := newCompiler(t)

	root := "# G\n## Rules\nR010: should do the thing priority:90\n"
	local := "# G\n## Rules\nR010: should do the thing differently priority:30\n"
	bundle := c.Compile(root, local)

	rule, ok := bundle.Rule("R010")
	require.True(t, ok)
	assert.Equal(t, 90, rule.Priority)
	assert.Contains(t, rule.Text, "differently")
}

func TestCompile_ConstitutionPriorityBonus(t *testing.T) {
	c := newCompiler(t)

	doc := "# G\n## Mandatory\nM1: must always be loaded priority:10\n## Misc\nS1: should sometimes load priority:10\n"
	bundle := c.Compile(doc, "")

	constitution, ok := bundle.Rule("M1")
	require.True(t, ok)
	shard, ok := bundle.Rule("S1")
	require.True(t, ok)
	assert.Equal(t, shard.Priority+100, constitution.Priority)
}

func TestCompile_ConstitutionLineBound(t *testing.T) {
	cfg := &Config{MaxConstitutionLines: 5}
	c, err := New(cfg, nil)
	require.NoError(t, err)

	var sb strings.Builder
	sb.WriteString("# G\n## Safety\n")
	for i := 1; i <= 30; i++ {
		sb.WriteString("RULE-")
		sb.WriteString(strings.Repeat("0", 1))
		sb.WriteString(string(rune('0'+i%10)))
		sb.WriteString(string(rune('0'+i/10)))
		sb.WriteString(": must never exceed the budget\n")
	}
	bundle := c.Compile(sb.String(), "")

	assert.LessOrEqual(t, len(strings.Split(bundle.Constitution.Text, "\n")), 5)
}

func TestCompile_ImplicitExtraction(t *testing.T) {
	c := newCompiler(t)

	doc := "# G\n## Style\n- Prefer composition over inheritance\n- The weather is nice today\n- Never ignore returned errors\n"
	bundle := c.Compile(doc, "")

	ids := make([]string, 0, len(bundle.Shards))
	for _, s := range bundle.Shards {
		ids = append(ids, s.Rule.ID)
	}
	assert.Equal(t, []string{"AUTO-001", "AUTO-002"}, ids, "only actionable bullets become rules")
}

func TestCompile_AutoCounterSpansDocuments(t *testing.T) {
	c := newCompiler(t)

	root := "# G\n## Style\n- Prefer short names\n"
	local := "# L\n## Style\n- Avoid global state\n"
	bundle := c.Compile(root, local)

	_, hasFirst := bundle.Rule("AUTO-001")
	_, hasSecond := bundle.Rule("AUTO-002")
	assert.True(t, hasFirst)
	assert.True(t, hasSecond, "counter continues across root and local in one call")
}

func TestCompile_AnnotationStripping(t *testing.T) {
	c := newCompiler(t)

	doc := "# G\n## Rules\nR001: must encrypt data at rest (high) [edit|write] #security @security scope:internal/** verify:lint priority:70\n"
	bundle := c.Compile(doc, "")

	rule, ok := bundle.Rule("R001")
	require.True(t, ok)
	assert.Equal(t, "must encrypt data at rest", rule.Text)
	assert.Equal(t, policy.RiskHigh, rule.RiskClass)
	assert.Equal(t, []string{"edit", "write"}, rule.ToolClasses)
	assert.Equal(t, []string{"internal/**"}, rule.RepoScopes)
	assert.Equal(t, "lint", rule.Verifier)
	assert.Equal(t, 70, rule.Priority)
}

func TestCompile_KeywordInference(t *testing.T) {
	c := newCompiler(t)

	doc := "# G\n## Rules\nR002: must rotate credentials quarterly\n"
	bundle := c.Compile(doc, "")

	rule, ok := bundle.Rule("R002")
	require.True(t, ok)
	assert.Contains(t, rule.Domains, "security", "credential keyword infers security domain")
	assert.Equal(t, policy.RiskCritical, rule.RiskClass, "credential keyword infers critical risk")
}

func TestCompile_ManifestSourceHashes(t *testing.T) {
	c := newCompiler(t)

	withLocal := c.Compile(rootDoc, localDoc)
	withoutLocal := c.Compile(rootDoc, "")

	assert.Len(t, withLocal.Manifest.SourceHashes, 2)
	assert.Len(t, withoutLocal.Manifest.SourceHashes, 1)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&Config{MaxConstitutionLines: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSplitBlocks_ThematicBreak(t *testing.T) {
	blocks := splitBlocks("# Heading\nsome text\n\n---\n\nmore text after break\n")
	require.GreaterOrEqual(t, len(blocks), 2)
	assert.Equal(t, "Heading", blocks[0].heading)
	assert.Empty(t, blocks[1].heading, "region after thematic break has no heading")
}
