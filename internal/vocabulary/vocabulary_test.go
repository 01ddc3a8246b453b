package vocabulary

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"rotate the leaked auth token and scrub credentials", "security"},
		{"add test coverage for the parser fixtures", "testing"},
		{"rebase the branch and open a pull request", "git"},
		{"bump the dependency and regenerate the lockfile", "deps"},
		{"update the readme and changelog", "docs"},
		{"profile the cache to cut latency", "performance"},
		{"rename and extract the helper to simplify it", "refactor"},
		{"add a new http endpoint handler", "api"},
		{"write the sql migration for the new schema", "database"},
		{"move the settings into an environment variable", "config"},
		{"make it nicer", DefaultIntent},
		{"", DefaultIntent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectIntent(tt.text), "text: %q", tt.text)
	}
}

func TestDetectDomains(t *testing.T) {
	domains := DetectDomains("commit the auth token fix and add a test")
	assert.Contains(t, domains, "git")
	assert.Contains(t, domains, "security")
	assert.Contains(t, domains, "testing")
	assert.True(t, sort.StringsAreSorted(domains), "deterministic order")

	assert.Empty(t, DetectDomains("hello world"))
}

func TestDetectRiskName(t *testing.T) {
	assert.Equal(t, "critical", DetectRiskName("NEVER expose the secret"))
	assert.Equal(t, "critical", DetectRiskName("must never happen"), "strongest signal wins")
	assert.Equal(t, "high", DetectRiskName("you must do this in production"))
	assert.Equal(t, "medium", DetectRiskName("you should prefer this approach"))
	assert.Equal(t, "low", DetectRiskName("you may consider this"))
	assert.Equal(t, "", DetectRiskName("the sky is blue"))
}

func TestIsActionable(t *testing.T) {
	assert.True(t, IsActionable("Always run gofmt before committing"))
	assert.True(t, IsActionable("Do not swallow errors"))
	assert.True(t, IsActionable("Prefer composition over inheritance"))
	assert.False(t, IsActionable("The project started in 2021"))
	assert.False(t, IsActionable(""))
}

func TestIsConstitutionHeading(t *testing.T) {
	assert.True(t, IsConstitutionHeading("Safety Invariants"))
	assert.True(t, IsConstitutionHeading("Core Rules"))
	assert.True(t, IsConstitutionHeading("Mandatory Practices"))
	assert.False(t, IsConstitutionHeading("Code Style"))
	assert.False(t, IsConstitutionHeading("Git Workflow"))
}

func TestPolarity(t *testing.T) {
	assert.Equal(t, -1, Polarity("never rebase shared branches"))
	assert.Equal(t, -1, Polarity("avoid global state"))
	assert.Equal(t, 1, Polarity("always run the linter"))
	assert.Equal(t, 1, Polarity("must document public APIs"))
	assert.Equal(t, -1, Polarity("always lint but never auto-fix"), "negative stems dominate")
	assert.Equal(t, 0, Polarity("the build takes two minutes"))
}

func TestSubject(t *testing.T) {
	positive := Subject("always rebase feature branches")
	negative := Subject("never rebase feature branches")
	assert.Equal(t, positive, negative, "polarity stems do not affect the subject")
	assert.NotEmpty(t, positive)

	assert.NotEqual(t, Subject("never rebase feature branches"), Subject("never squash merge commits"))
}

func TestIntents(t *testing.T) {
	intents := Intents()
	assert.True(t, sort.StringsAreSorted(intents))
	assert.Contains(t, intents, "security")
	assert.Contains(t, intents, "testing")
	assert.Len(t, intents, len(intentKeywords))
}
