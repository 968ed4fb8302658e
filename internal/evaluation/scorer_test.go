package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	reply  string
	err    error
	prompt string
}

func (s *stubOracle) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func fullReadme() string {
	return "# Weather Dashboard\n\n## Setup\nOpen index.html.\n\n## Usage\n```\n?city=London\n```\n\n## License\nMIT\n" +
		strings.Repeat("Details about the project. ", 20)
}

func TestRubricScorerReadme(t *testing.T) {
	scorer := RubricScorer{}

	verdict, err := scorer.ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: fullReadme()})
	require.NoError(t, err)
	require.Equal(t, 1.0, verdict.Score)

	verdict, err = scorer.ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: ""})
	require.NoError(t, err)
	require.Equal(t, 0.0, verdict.Score)

	verdict, err = scorer.ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: "# Title\nshort"})
	require.NoError(t, err)
	require.Equal(t, 0.2, verdict.Score)
	require.Contains(t, verdict.Reason, "has headings")
}

func TestRubricScorerCode(t *testing.T) {
	sample := "\n\n=== index.html ===\n<!-- entry -->\n<script>try { run() } catch (e) {}</script>\n\n=== app.js ===\n// app\n"
	verdict, err := RubricScorer{}.ScoreText(context.Background(), Sample{Kind: SampleCode, Text: sample})
	require.NoError(t, err)
	require.Equal(t, 1.0, verdict.Score)

	minified := "\n\n=== app.js ===\n" + strings.Repeat("a=1;", 200)
	verdict, err = RubricScorer{}.ScoreText(context.Background(), Sample{Kind: SampleCode, Text: minified})
	require.NoError(t, err)
	require.Equal(t, 0.0, verdict.Score)
}

func TestOracleScorerParsesLeadingScore(t *testing.T) {
	oracle := &stubOracle{reply: "0.85 Clear structure\n<b>Good</b> setup section"}
	scorer := NewTextScorer(oracle)

	verdict, err := scorer.ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: "# Readme"})
	require.NoError(t, err)
	require.Equal(t, 0.85, verdict.Score)
	require.Equal(t, "Clear structure Good setup section", verdict.Reason)
	require.Contains(t, oracle.prompt, "README.md")
}

func TestOracleScorerClampsScore(t *testing.T) {
	verdict, err := NewOracleScorer(&stubOracle{reply: "7.5"}).ScoreText(context.Background(), Sample{Kind: SampleCode, Text: "x"})
	require.NoError(t, err)
	require.Equal(t, 1.0, verdict.Score)

	verdict, err = NewOracleScorer(&stubOracle{reply: "-2, awful"}).ScoreText(context.Background(), Sample{Kind: SampleCode, Text: "x"})
	require.NoError(t, err)
	require.Equal(t, 0.0, verdict.Score)
}

func TestOracleScorerFallsBackToRubricOnUnparsableReply(t *testing.T) {
	scorer := NewOracleScorer(&stubOracle{reply: "Great README, I would give it a high score."})

	verdict, err := scorer.ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: fullReadme()})
	require.NoError(t, err)
	require.Equal(t, 1.0, verdict.Score)
	require.Contains(t, verdict.Reason, "rubric")
}

func TestOracleScorerNeutralOnOracleFailure(t *testing.T) {
	scorer := NewOracleScorer(&stubOracle{err: errors.New("timeout")})

	verdict, err := scorer.ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: "# Readme"})
	require.Error(t, err)
	require.Equal(t, NeutralScore, verdict.Score)
}

func TestOracleScorerTruncatesReadme(t *testing.T) {
	oracle := &stubOracle{reply: "0.5"}
	_, err := NewOracleScorer(oracle).ScoreText(context.Background(), Sample{Kind: SampleReadme, Text: strings.Repeat("r", 5000)})
	require.NoError(t, err)
	require.Contains(t, oracle.prompt, strings.Repeat("r", readmeOracleLimit))
	require.NotContains(t, oracle.prompt, strings.Repeat("r", readmeOracleLimit+1))
}

func TestCheckReadmeQuality(t *testing.T) {
	dir := t.TempDir()
	outcome := CheckReadmeQuality(context.Background(), dir, RubricScorer{})
	require.Equal(t, 0.0, outcome.Score)
	require.Equal(t, "README.md not found", outcome.Reason)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(fullReadme()), 0o644))
	outcome = CheckReadmeQuality(context.Background(), dir, RubricScorer{})
	require.Equal(t, CheckReadme, outcome.Name)
	require.Equal(t, 1.0, outcome.Score)
}

func TestCheckReadmeQualityKeepsOracleErrorInLogs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "# hi")

	outcome := CheckReadmeQuality(context.Background(), dir, NewOracleScorer(&stubOracle{err: errors.New("down")}))
	require.Equal(t, NeutralScore, outcome.Score)
	require.Contains(t, outcome.Logs, "down")
}
