package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectCodeSampleCapsFilesAndLength(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# not code")
	writeFile(t, dir, "a.js", strings.Repeat("x", 1500))
	writeFile(t, dir, "b.css", "body { color: red; }")
	writeFile(t, dir, "c.html", "<html></html>")
	writeFile(t, dir, "d.py", "print('late')")
	writeFile(t, dir, ".git/config", "[core]")
	writeFile(t, dir, "node_modules/lib/index.js", "module.exports = {}")

	sample, err := CollectCodeSample(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a.js", "b.css", "c.html"}, sample.Files)
	require.Contains(t, sample.Text, "=== a.js ===")
	require.Contains(t, sample.Text, strings.Repeat("x", maxCodeFileSize))
	require.NotContains(t, sample.Text, strings.Repeat("x", maxCodeFileSize+1))
	require.NotContains(t, sample.Text, "late")
	require.LessOrEqual(t, len(sample.Text), codeOracleLimit)
}

func TestCheckCodeQualityWithoutSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# docs only")

	outcome := CheckCodeQuality(context.Background(), dir, RubricScorer{})
	require.Equal(t, CheckCode, outcome.Name)
	require.Equal(t, 0.0, outcome.Score)
	require.Equal(t, "No code files found", outcome.Reason)
}

func TestCheckCodeQualityUsesScorer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<!-- page -->\n<script src=\"app.js\"></script>")
	writeFile(t, dir, "app.js", "// app\ntry { start() } catch (err) { console.error(err) }")

	oracle := &stubOracle{reply: "0.7 tidy"}
	outcome := CheckCodeQuality(context.Background(), dir, NewOracleScorer(oracle))
	require.Equal(t, 0.7, outcome.Score)
	require.Equal(t, "tidy", outcome.Reason)
	require.Contains(t, oracle.prompt, "=== app.js ===")
	require.Contains(t, outcome.Logs, "index.html")
}
