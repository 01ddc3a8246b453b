package gates

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Allowlist excludes known-benign patterns from secret detection.
type Allowlist struct {
	// Paths are file path regex patterns to ignore.
	Paths []string `toml:"paths"`
	// Regexes are content regex patterns to ignore.
	Regexes []string `toml:"regexes"`
}

// allowlistFile is the TOML file layout.
type allowlistFile struct {
	Allowlist Allowlist `toml:"allowlist"`
}

// LoadAllowlist reads and validates a TOML allowlist file. A missing
// file is not an error; it yields an empty allowlist. Invalid TOML or
// invalid regex patterns fail, so a broken allowlist never silently
// disables itself.
func LoadAllowlist(path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("reading allowlist %s: %w", path, err)
	}

	var file allowlistFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing allowlist %s: %w", path, err)
	}

	for _, pattern := range append(append([]string{}, file.Allowlist.Paths...), file.Allowlist.Regexes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("allowlist %s: invalid pattern %q: %w", path, pattern, err)
		}
	}

	return &file.Allowlist, nil
}

// applyAllowlist merges allowlist patterns into the gitleaks config.
// Patterns were validated in LoadAllowlist, so compilation here cannot
// fail.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "guidanced operator allowlist",
	}

	for _, pattern := range allowlist.Paths {
		re := regexp.MustCompile(pattern)
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re := regexp.MustCompile(pattern)
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
}
