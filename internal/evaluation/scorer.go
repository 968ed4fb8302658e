package evaluation

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/gema-appgrader/pkg/ai"
)

// SampleKind tells a scorer which rubric applies.
type SampleKind string

const (
	SampleReadme SampleKind = "readme"
	SampleCode   SampleKind = "code"
)

const (
	readmeOracleLimit = 2000
	codeOracleLimit   = 3000
	codeFileMarker    = "=== "
)

// Sample is text handed to a scorer.
type Sample struct {
	Kind SampleKind
	Text string
}

// Verdict is a score with its rationale.
type Verdict struct {
	Score  float64
	Reason string
}

// TextScorer grades documentation and code samples.
type TextScorer interface {
	ScoreText(ctx context.Context, sample Sample) (Verdict, error)
}

// NewTextScorer picks the oracle-backed scorer when an oracle is configured and the
// rubric otherwise.
func NewTextScorer(oracle ai.Completer) TextScorer {
	if oracle == nil {
		return RubricScorer{}
	}
	return NewOracleScorer(oracle)
}

// RubricScorer applies fixed, equally weighted criteria.
type RubricScorer struct{}

type criterion struct {
	label string
	met   func(text string) bool
}

var readmeRubric = []criterion{
	{"adequate length", func(text string) bool { return len(text) > 500 }},
	{"has headings", func(text string) bool { return strings.Contains(text, "# ") }},
	{"has setup/usage sections", func(text string) bool {
		return containsAny(strings.ToLower(text), "setup", "installation", "usage")
	}},
	{"mentions license", func(text string) bool {
		return containsAny(strings.ToLower(text), "license", "mit")
	}},
	{"has code examples", func(text string) bool { return strings.Contains(text, "```") }},
}

var codeRubric = []criterion{
	{"has comments", func(text string) bool {
		return containsAny(text, "//", "/*", "<!--", "# ")
	}},
	{"split across files", func(text string) bool { return strings.Count(text, codeFileMarker) > 1 }},
	{"handles errors", func(text string) bool {
		return containsAny(strings.ToLower(text), "try", "catch", "except", "error")
	}},
	{"readable lines", func(text string) bool {
		for _, line := range strings.Split(text, "\n") {
			if len(line) > 300 {
				return false
			}
		}
		return true
	}},
}

// ScoreText implements TextScorer.
func (RubricScorer) ScoreText(_ context.Context, sample Sample) (Verdict, error) {
	if strings.TrimSpace(sample.Text) == "" {
		return Verdict{Score: 0, Reason: "nothing to score"}, nil
	}

	rubric := readmeRubric
	if sample.Kind == SampleCode {
		rubric = codeRubric
	}

	met := make([]string, 0, len(rubric))
	for _, c := range rubric {
		if c.met(sample.Text) {
			met = append(met, c.label)
		}
	}

	score := Clamp(float64(len(met)) / float64(len(rubric)))
	if len(met) == 0 {
		return Verdict{Score: score, Reason: "Basic criteria met: none"}, nil
	}
	return Verdict{Score: score, Reason: "Basic criteria met: " + strings.Join(met, ", ")}, nil
}

// OracleScorer asks a language model for a leading numeric score.
type OracleScorer struct {
	oracle   ai.Completer
	fallback RubricScorer
	policy   *bluemonday.Policy
}

// NewOracleScorer wraps oracle with rubric fallback for unparsable replies.
func NewOracleScorer(oracle ai.Completer) *OracleScorer {
	return &OracleScorer{
		oracle: oracle,
		policy: bluemonday.StrictPolicy(),
	}
}

// ScoreText implements TextScorer.
func (s *OracleScorer) ScoreText(ctx context.Context, sample Sample) (Verdict, error) {
	if strings.TrimSpace(sample.Text) == "" {
		return Verdict{Score: 0, Reason: "nothing to score"}, nil
	}

	reply, err := s.oracle.Complete(ctx, buildOraclePrompt(sample))
	if err != nil {
		return Verdict{Score: NeutralScore, Reason: "quality oracle unavailable"}, err
	}

	score, rationale, ok := parseLeadingScore(reply)
	if !ok {
		fallback, _ := s.fallback.ScoreText(ctx, sample)
		fallback.Reason = "oracle reply unparsable, rubric used. " + fallback.Reason
		return fallback, nil
	}

	rationale = strings.TrimSpace(s.policy.Sanitize(rationale))
	if rationale == "" {
		rationale = "oracle evaluation"
	}
	return Verdict{Score: Clamp(score), Reason: rationale}, nil
}

func buildOraclePrompt(sample Sample) string {
	builder := strings.Builder{}
	switch sample.Kind {
	case SampleCode:
		builder.WriteString("Evaluate the quality of this code on a scale of 0.0 to 1.0:\n\n")
		builder.WriteString(truncate(sample.Text, codeOracleLimit))
		builder.WriteString("\n\nConsider:\n- Code organization and structure\n- Comments and documentation\n")
		builder.WriteString("- Error handling\n- Best practices\n- Functionality implementation\n")
	default:
		builder.WriteString("Evaluate the quality of this README.md file on a scale of 0.0 to 1.0:\n\n")
		builder.WriteString(truncate(sample.Text, readmeOracleLimit))
		builder.WriteString("\n\nConsider:\n- Professional presentation\n- Clear structure and organization\n")
		builder.WriteString("- Comprehensive setup instructions\n- Usage examples\n- Code explanation\n- License information\n")
	}
	builder.WriteString("\nRespond with just a number between 0.0 and 1.0, followed by a brief explanation.")
	return builder.String()
}

// parseLeadingScore reads the first token of the first line as the score. Any further
// lines form the rationale.
func parseLeadingScore(reply string) (float64, string, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return 0, "", false
	}

	lines := strings.Split(reply, "\n")
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return 0, "", false
	}

	token := strings.TrimRight(fields[0], ",:;")
	score, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, "", false
	}

	rationale := strings.Join(fields[1:], " ")
	if len(lines) > 1 {
		rationale = strings.TrimSpace(rationale + " " + strings.Join(lines[1:], " "))
	}
	return score, rationale, true
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
