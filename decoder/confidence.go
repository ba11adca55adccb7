package decoder

import (
	"math"

	"github.com/ieee0824/twopass/internal/mathutil"
)

// applyConfidence sets each word's posterior over the N-best list: the
// scaled probability mass of the sentences holding the same word over an
// overlapping span.
func applyConfidence(sents []Sentence, alpha float64) {
	if len(sents) == 0 {
		return
	}
	// normalize in the log domain; N-best scores can be far apart
	norm := mathutil.LogZero
	for _, s := range sents {
		norm = mathutil.Log10Add(norm, alpha*s.Score)
	}
	post := make([]float64, len(sents))
	for i, s := range sents {
		post[i] = math.Pow(10, alpha*s.Score-norm)
	}
	for i := range sents {
		for j := range sents[i].Words {
			w := &sents[i].Words[j]
			c := 0.0
			for k, other := range sents {
				if holds(other, w) {
					c += post[k]
				}
			}
			w.Confidence = c
		}
	}
}

func holds(s Sentence, w *WordResult) bool {
	for _, o := range s.Words {
		if o.ID == w.ID && o.Begin <= w.End && w.Begin <= o.End {
			return true
		}
	}
	return false
}
