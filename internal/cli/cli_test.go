package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/twopass/internal/config"
	"github.com/ieee0824/twopass/language"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestApplyOverrides(t *testing.T) {
	cmd := NewRecognizeCmd(new(string))
	require.NoError(t, cmd.Flags().Parse([]string{"--beam", "120", "--lm-weight", "11", "--word-pair", "--timeout", "1.5s"}))
	t.Setenv("TWOPASS_NBEST", "9")
	t.Setenv("TWOPASS_METHOD", "heuristic")

	v, err := newViper(cmd.Flags())
	require.NoError(t, err)
	cfg := config.Default()
	applyOverrides(cfg, v)

	assert.Equal(t, 120.0, cfg.Pass1.BeamWidth)
	assert.Equal(t, 11.0, cfg.Pass1.LMWeight)
	assert.Equal(t, 11.0, cfg.Pass2.LMWeight)
	assert.True(t, cfg.Pass1.WordPair)
	assert.Equal(t, 1500, cfg.Pass2.TimeoutMS)
	assert.Equal(t, 9, cfg.Pass2.NBest)
	assert.Equal(t, "heuristic", cfg.Gaussian.Method)
	assert.Equal(t, config.Default().Pass1.MaxActiveTokens, cfg.Pass1.MaxActiveTokens, "unset flags keep the config value")
}

func TestGrammarSpecsPreferFlag(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Grammars = []string{"from/config"}

	cmd := NewRecognizeCmd(new(string))
	assert.Equal(t, []string{"from/config"}, grammarSpecs(cmd.Flags(), cfg))

	require.NoError(t, cmd.Flags().Parse([]string{"--grammar", "name=a dfa=a.dfa dict=a.dict", "--grammar", "b"}))
	assert.Equal(t, []string{"name=a dfa=a.dfa dict=a.dict", "b"}, grammarSpecs(cmd.Flags(), cfg))
}

func TestReadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("# inputs\na.htk\n\n\"with space.htk\"\n"), 0o644))
	files, err := readList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.htk", "with space.htk"}, files)
}

func TestLMBuild(t *testing.T) {
	dir := t.TempDir()
	fwd := filepath.Join(dir, "fwd.arpa")
	rev := filepath.Join(dir, "rev.arpa")
	_, err := run(t, "hello taro\nhi jiro\n\nhello jiro\n", "lmbuild", "-o", fwd, "--reverse", rev)
	require.NoError(t, err)

	m, err := language.LoadARPAFile(fwd)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.ID("taro"), 0)
	r, err := language.LoadARPAFile(rev)
	require.NoError(t, err)
	assert.Greater(t, r.Prob([]int{r.ID(language.BOS)}, r.ID("taro")), r.Prob([]int{r.ID(language.BOS)}, r.ID("hello")),
		"reverse models start from the last word")
}

func TestShowConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	out, err := run(t, "", "showcfg", "--config", path, "--nbest", "7")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "nbest = 7")
	_, err = os.Stat(path)
	assert.NoError(t, err, "a missing config is created")
}

func TestRecognizeNeedsInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_, err := run(t, "", "recognize", "--config", path)
	assert.Error(t, err)
}
