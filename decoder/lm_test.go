package decoder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

const ngramDict = `hello h e
hi h i
taro t a
jiro j i
<sil> {} sil
`

var corpus = [][]string{
	{"hello", "taro"},
	{"hello", "taro"},
	{"hi", "jiro"},
	{"hello", "jiro"},
	{"hi", "taro"},
}

func ngramModels(t testing.TB) *language.NGram {
	t.Helper()
	fwd := language.NewBuilder(2)
	rev := language.NewReverseBuilder(2)
	for _, s := range corpus {
		fwd.AddSentence(s)
		rev.AddSentence(s)
	}
	return &language.NGram{Forward: fwd.Model(), Backward: rev.Model()}
}

func ngramDictionary(t testing.TB) *lexicon.Dictionary {
	t.Helper()
	dict, err := lexicon.Load(strings.NewReader(ngramDict))
	require.NoError(t, err)
	return dict
}

func ids(dict *lexicon.Dictionary, names ...string) []int {
	out := make([]int, len(names))
	for i, n := range names {
		out[i] = dict.Lookup(n)[0]
	}
	return out
}

// byOutput finds a grammar word by its output string; grammar words are
// named after their category.
func byOutput(t testing.TB, dict *lexicon.Dictionary, out string) int {
	t.Helper()
	for _, w := range dict.Words {
		if w.Output == out {
			return w.ID
		}
	}
	require.Failf(t, "word not found", "%q", out)
	return -1
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func TestNGramRescoreForward(t *testing.T) {
	dict := ngramDictionary(t)
	models := ngramModels(t)
	l, err := NewNGramLM(dict, &language.NGram{Forward: models.Forward}, Factoring2Gram)
	require.NoError(t, err)

	words := ids(dict, "<sil>", "hello", "taro", "<sil>")
	out := make([]float64, len(words))
	got := l.Rescore(words, true, out)

	want := models.Forward.SentenceLogProb([]string{"hello", "taro"})
	assert.InDelta(t, want, got, 1e-9)
	assert.InDelta(t, got, sum(out), 1e-9)
	assert.Zero(t, out[0], "transparent words score nothing")
	assert.Zero(t, out[3])
}

func TestNGramRescoreReverse(t *testing.T) {
	dict := ngramDictionary(t)
	models := ngramModels(t)
	l, err := NewNGramLM(dict, models, Factoring2Gram)
	require.NoError(t, err)

	words := ids(dict, "hello", "taro", "<sil>")
	out := make([]float64, len(words))
	got := l.Rescore(words, true, out)

	want := models.Backward.SentenceLogProb([]string{"taro", "hello"})
	assert.InDelta(t, want, got, 1e-9)
	assert.InDelta(t, got, sum(out), 1e-9)

	partial := l.Rescore(words[1:], false, nil)
	assert.Greater(t, partial, got, "a partial hypothesis has not paid for the sentence start yet")
}

func TestNGramContexts(t *testing.T) {
	dict := ngramDictionary(t)
	l, err := NewNGramLM(dict, ngramModels(t), Factoring2Gram)
	require.NoError(t, err)

	hello := dict.Lookup("hello")[0]
	sil := dict.Lookup("<sil>")[0]
	assert.Equal(t, -1, l.Start())
	assert.Equal(t, hello, l.Next(l.Start(), hello))
	assert.Equal(t, hello, l.Next(hello, sil), "transparent words keep the context")
	assert.Equal(t, -1, l.LMID(sil))

	taro := dict.Lookup("taro")[0]
	jiro := dict.Lookup("jiro")[0]
	la := l.Lookahead(hello, []int{taro, jiro})
	assert.InDelta(t, l.WordScore(hello, taro), la, 1e-9, "taro is the likelier successor of hello")

	uni, err := NewNGramLM(dict, ngramModels(t), Factoring1Gram)
	require.NoError(t, err)
	assert.Equal(t, uni.Lookahead(hello, []int{taro}), uni.Lookahead(-1, []int{taro}))
}

func TestNewNGramLMRequiresForward(t *testing.T) {
	_, err := NewNGramLM(ngramDictionary(t), &language.NGram{}, Factoring2Gram)
	assert.Error(t, err)
}

func TestGrammarLMWalk(t *testing.T) {
	set := phoneSet(t)
	gen := buildGeneration(t, set, greetDFA, greetDict)
	l := NewGrammarLM(gen)
	dict := gen.Dict

	hello := byOutput(t, dict, "hello")
	taro := byOutput(t, dict, "taro")
	sil := byOutput(t, dict, "<sil>")

	assert.True(t, l.AllowRoot(l.Start(), 0))
	assert.False(t, l.AllowRoot(l.Start(), 1))
	assert.True(t, l.AllowRoot(l.Next(-1, hello), 1))
	assert.False(t, l.AllowRoot(l.Next(-1, taro), 0))

	_, ok := l.Final(l.Next(-1, taro))
	assert.False(t, ok)
	_, ok = l.Final(l.Next(-1, sil))
	assert.True(t, ok)

	assert.Empty(t, l.Tail(taro))
	tail := l.Tail(sil)
	require.Equal(t, []int{2}, tail)
	s := l.Prepend(tail[0], taro)
	require.Equal(t, []int{1}, s)
	s = l.Prepend(s[0], hello)
	require.Equal(t, []int{0}, s)
	assert.True(t, l.Head(s[0]))
	assert.Empty(t, l.Prepend(2, hello))
}

func TestNGramEndToEnd(t *testing.T) {
	set := phoneSet(t)
	dict := ngramDictionary(t)
	tree, err := lexicon.Build(dict, set, lexicon.DefaultBuildOptions())
	require.NoError(t, err)
	frames := say("sil", "h", "e", "t", "a", "sil")
	want := []string{"<sil>", "hello", "taro", "<sil>"}

	for _, tc := range []struct {
		name     string
		backward bool
		wordPair bool
	}{
		{"forward", false, false},
		{"reverse", true, false},
		{"word pair", true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			models := ngramModels(t)
			if !tc.backward {
				models.Backward = nil
			}
			l, err := NewNGramLM(dict, models, Factoring2Gram)
			require.NoError(t, err)
			cfg := testConfig()
			cfg.WordPair = tc.wordPair
			cfg.WordPairLimit = 2
			d, err := New(set, dict, tree, l, cfg)
			require.NoError(t, err)

			res, err := d.DecodeFrames(context.Background(), frames)
			require.NoError(t, err)
			require.Equal(t, StatusOK, res.Status)
			assert.Equal(t, want, outputs(res.Best()))
			assert.Equal(t, want, outputs(res.Pass1))
			assert.Negative(t, res.Best().LMScore)
			assert.Zero(t, res.Best().Words[0].LMScore)
		})
	}
}
