package ruleset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	assert.Contains(t, rs.Selectors, `section[data-test="qsp-chart"]`)
	assert.Contains(t, rs.Selectors, `[data-testid="chart-container"]`)
	assert.Contains(t, rs.Keywords, "chart")
	assert.Contains(t, rs.Keywords, "sparkline")
	assert.ElementsMatch(t, []string{"script", "iframe", "embed", "object"}, rs.Strip)
	assert.NotEmpty(t, rs.Notice)
}

func TestNewRuleSetEmptyPathUsesDefault(t *testing.T) {
	rs, err := NewRuleSet("  ")
	require.NoError(t, err)

	def, err := Default()
	require.NoError(t, err)
	assert.Equal(t, def, rs)
}

func TestNewRuleSetMergesFilesAndFillsGaps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("selectors:\n  - '#quote-graph'\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("selectors:\n  - '.mini-graph'\nnotice: gone\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("selectors: [nope]"), 0o644))

	rs, err := NewRuleSet(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"#quote-graph", ".mini-graph"}, rs.Selectors)
	assert.Equal(t, "gone", rs.Notice)

	def, _ := Default()
	assert.Equal(t, def.Keywords, rs.Keywords)
	assert.Equal(t, def.Strip, rs.Strip)
}

func TestNewRuleSetSyntaxError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("selectors: [unclosed"), 0o644))

	_, err := NewRuleSet(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestNewRuleSetMissingPath(t *testing.T) {
	_, err := NewRuleSet(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	out, err := rs.YAML()
	require.NoError(t, err)

	var back RuleSet
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *rs, back)
}
