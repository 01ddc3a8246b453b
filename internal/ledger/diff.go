package ledger

import (
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ParseDiffStats derives DiffStats from a unified diff patch. Removed
// lines count as rework: they are code that existed and had to be
// rewritten. An unparseable patch yields zero stats rather than an
// error, matching the fail-open posture of the other text consumers.
func ParseDiffStats(patch string) DiffStats {
	if strings.TrimSpace(patch) == "" {
		return DiffStats{}
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return DiffStats{}
	}

	var stats DiffStats
	stats.FilesChanged = len(fileDiffs)
	for _, fd := range fileDiffs {
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				case strings.HasPrefix(line, "+"):
					stats.TotalLines++
				case strings.HasPrefix(line, "-"):
					stats.TotalLines++
					stats.ReworkLines++
				}
			}
		}
	}
	return stats
}
