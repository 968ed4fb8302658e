package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

var readmeNames = map[string]bool{
	"readme.md": true,
	"readme":    true,
}

// CheckReadmeQuality scores the top-level README with scorer.
func CheckReadmeQuality(ctx context.Context, repoDir string, scorer TextScorer) Outcome {
	path, ok := findTopLevel(repoDir, readmeNames)
	if !ok {
		return Outcome{Name: CheckReadme, Score: 0, Reason: "README.md not found"}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Outcome{Name: CheckReadme, Score: 0, Reason: "README.md not readable", Logs: err.Error()}
	}

	verdict, err := scorer.ScoreText(ctx, Sample{Kind: SampleReadme, Text: string(content)})
	outcome := Outcome{Name: CheckReadme, Score: verdict.Score, Reason: verdict.Reason}
	if err != nil {
		outcome.Logs = err.Error()
	}
	return outcome
}

func findTopLevel(dir string, names map[string]bool) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	// Exact-case README.md wins over other spellings.
	var match string
	for _, entry := range entries {
		if entry.IsDir() || !names[strings.ToLower(entry.Name())] {
			continue
		}
		if entry.Name() == "README.md" {
			return filepath.Join(dir, entry.Name()), true
		}
		if match == "" {
			match = entry.Name()
		}
	}
	if match == "" {
		return "", false
	}
	return filepath.Join(dir, match), true
}
