package language

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/twopass/internal/mathutil"
)

const testARPA = `\data\
ngram 1=4
ngram 2=3

\1-grams:
-1.0	</s>
-99	<s>	-0.5
-0.5	東京
-0.7	タワー	-0.3

\2-grams:
-0.3	<s>	東京
-0.4	東京	タワー
-0.2	タワー	</s>

\end\
`

const testARPA3 = `\data\
ngram 1=4
ngram 2=3
ngram 3=1

\1-grams:
-1.0	</s>
-99	<s>	-0.5
-0.5	a	-0.2
-0.7	b	-0.3

\2-grams:
-0.3	<s>	a	-0.1
-0.4	a	b	-0.6
-0.2	b	</s>

\3-grams:
-0.05	<s>	a	b

\end\
`

func loadTest(t *testing.T, src string) *NGramModel {
	t.Helper()
	model, err := LoadARPA(strings.NewReader(src))
	require.NoError(t, err)
	return model
}

func TestLoadARPA(t *testing.T) {
	model := loadTest(t, testARPA)

	assert.Equal(t, 2, model.Order)
	assert.Equal(t, 4, model.Count(1))
	assert.Equal(t, 3, model.Count(2))
	assert.Len(t, model.Vocab, 4)
	assert.Equal(t, -1, model.UnknownID)

	// log10 values are kept as written
	assert.InDelta(t, -0.5, model.Prob(nil, model.ID("東京")), 1e-12)
}

func TestLoadARPAErrors(t *testing.T) {
	for name, src := range map[string]string{
		"no data":        "\\1-grams:\n-1 a\n",
		"bad order":      "\\data\\\nngram 7=1\n\n\\7-grams:\n",
		"short line":     "\\data\\\nngram 1=1\n\n\\1-grams:\n-1.0\n\\end\\\n",
		"no unigrams":    "\\data\\\nngram 1=0\n\n\\1-grams:\n\\end\\\n",
		"bad backoff":    "\\data\\\nngram 1=1\nngram 2=1\n\n\\1-grams:\n-1.0 a x\n\\end\\\n",
		"count mismatch": "\\data\\\nngram 1=2\n\n\\1-grams:\n-1.0 a\n\\end\\\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadARPA(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestLogProbBigram(t *testing.T) {
	model := loadTest(t, testARPA)
	assert.InDelta(t, -0.3, model.LogProb([]string{BOS}, "東京"), 1e-12)
}

func TestLogProbBackoff(t *testing.T) {
	model := loadTest(t, testARPA)

	// P(東京 | タワー) = backoff(タワー) + P(東京)
	assert.InDelta(t, -0.3+-0.5, model.LogProb([]string{"タワー"}, "東京"), 1e-12)
	// only the last Order-1 words count
	assert.InDelta(t, -0.4, model.LogProb([]string{"タワー", BOS, "東京"}, "タワー"), 1e-12)
}

func TestLogProbTrigramBackoff(t *testing.T) {
	model := loadTest(t, testARPA3)
	require.Equal(t, 3, model.Order)

	assert.InDelta(t, -0.05, model.LogProb([]string{BOS, "a"}, "b"), 1e-12)
	// no trigram "<s> a </s>": bo(<s> a) + P(</s> | a) = bo(<s> a) + bo(a) + P(</s>)
	assert.InDelta(t, -0.1+-0.2+-1.0, model.LogProb([]string{BOS, "a"}, EOS), 1e-12)
	// history "b a" has no bigram entry so its back-off is 0
	assert.InDelta(t, -0.4, model.LogProb([]string{"b", "a"}, "b"), 1e-12)
}

func TestSentenceLogProb(t *testing.T) {
	model := loadTest(t, testARPA)
	// P(東京 | <s>) + P(タワー | 東京) + P(</s> | タワー)
	assert.InDelta(t, -0.3+-0.4+-0.2, model.SentenceLogProb([]string{"東京", "タワー"}), 1e-12)
}

func TestUnknownWord(t *testing.T) {
	model := loadTest(t, testARPA)
	assert.Equal(t, mathutil.LogZero, model.LogProb([]string{BOS}, "大阪"))

	model.Set([]string{Unknown}, -2.0, 0)
	model.UnknownPenalty = -1.0
	require.GreaterOrEqual(t, model.UnknownID, 0)
	// <s> backs off to the unigram of <unk>
	assert.InDelta(t, -0.5+-2.0+-1.0, model.LogProb([]string{BOS}, "大阪"), 1e-12)
	// an unknown history word drops the context
	assert.InDelta(t, -0.5, model.LogProb([]string{"大阪"}, "東京"), 1e-12)
}

func TestWriteARPARoundTrip(t *testing.T) {
	model := loadTest(t, testARPA3)

	var buf bytes.Buffer
	require.NoError(t, model.WriteARPA(&buf))
	again := loadTest(t, buf.String())

	assert.Equal(t, model.Order, again.Order)
	for n := 1; n <= model.Order; n++ {
		assert.Equal(t, model.Count(n), again.Count(n))
	}
	for _, h := range [][]string{{BOS}, {BOS, "a"}, {"a", "b"}, {"b"}} {
		for _, w := range []string{"a", "b", EOS} {
			assert.InDelta(t, model.LogProb(h, w), again.LogProb(h, w), 1e-6, "%v %s", h, w)
		}
	}
}
