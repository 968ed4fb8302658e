package evaluation

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-enry/go-enry/v2"
)

const (
	maxCodeFiles    = 3
	maxCodeFileSize = 1000
)

var codeLanguages = map[string]bool{
	"HTML":       true,
	"CSS":        true,
	"JavaScript": true,
	"TypeScript": true,
	"Python":     true,
	"Java":       true,
	"C":          true,
	"C++":        true,
}

var errSampleComplete = errors.New("sample complete")

// CodeSample is the capped excerpt of source files sent to a scorer.
type CodeSample struct {
	Files []string
	Text  string
}

// CollectCodeSample walks repoDir in lexical order and takes the head of the first few
// source files.
func CollectCodeSample(repoDir string) (CodeSample, error) {
	var (
		sample  CodeSample
		builder strings.Builder
	)

	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(repoDir, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel != "." && (enry.IsDotFile(rel) || enry.IsVendor(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if enry.IsDotFile(rel) || enry.IsVendor(rel) {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if !isSourceFile(rel, content) {
			return nil
		}

		head := content
		if len(head) > maxCodeFileSize {
			head = head[:maxCodeFileSize]
		}
		builder.WriteString("\n\n")
		builder.WriteString(codeFileMarker)
		builder.WriteString(filepath.ToSlash(rel))
		builder.WriteString(" ===\n")
		builder.Write(head)
		sample.Files = append(sample.Files, filepath.ToSlash(rel))

		if len(sample.Files) >= maxCodeFiles {
			return errSampleComplete
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSampleComplete) {
		return CodeSample{}, err
	}

	sample.Text = truncate(builder.String(), codeOracleLimit)
	return sample, nil
}

func isSourceFile(path string, content []byte) bool {
	known := false
	for _, lang := range enry.GetLanguages(filepath.Base(path), content) {
		if codeLanguages[lang] {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	for mime := mimetype.Detect(content); mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}

// CheckCodeQuality scores a sample of the repository's source files.
func CheckCodeQuality(ctx context.Context, repoDir string, scorer TextScorer) Outcome {
	sample, err := CollectCodeSample(repoDir)
	if err != nil {
		return Outcome{Name: CheckCode, Score: 0, Reason: "repository not readable", Logs: err.Error()}
	}
	if len(sample.Files) == 0 {
		return Outcome{Name: CheckCode, Score: 0, Reason: "No code files found"}
	}

	verdict, err := scorer.ScoreText(ctx, Sample{Kind: SampleCode, Text: sample.Text})
	outcome := Outcome{
		Name:   CheckCode,
		Score:  verdict.Score,
		Reason: verdict.Reason,
		Logs:   "sampled: " + strings.Join(sample.Files, ", "),
	}
	if err != nil {
		outcome.Logs += "\n" + err.Error()
	}
	return outcome
}
