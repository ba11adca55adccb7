package decoder

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

var benchPhones = []string{"a", "i", "u", "e", "o", "k", "s", "t", "n", "m"}

func buildBenchDecoder(b *testing.B, vocab int, method acoustic.PruneMethod) (*Decoder, [][]float64) {
	b.Helper()
	const dim = 13
	rng := rand.New(rand.NewSource(1))

	set := acoustic.NewSet(dim)
	for _, p := range benchPhones {
		states := make([]*acoustic.State, 3)
		for k := range states {
			states[k] = acoustic.NewRandomGMMState(fmt.Sprintf("%s_s%d", p, k), 4, dim, rng)
		}
		if err := set.AddHMM(acoustic.NewHMM(p, states)); err != nil {
			b.Fatal(err)
		}
	}
	if err := set.Finalize(); err != nil {
		b.Fatal(err)
	}

	dict := lexicon.NewDictionary()
	words := make([]string, vocab)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
		phones := []string{
			benchPhones[5+i%5],
			benchPhones[i%5],
			benchPhones[5+(i/5)%5],
			benchPhones[(i/25)%5],
		}
		dict.Add(lexicon.Word{Name: words[i], Phones: phones, Category: -1})
	}
	lb := language.NewBuilder(2)
	for i := range words {
		lb.AddSentence([]string{words[i], words[(i*7+3)%vocab]})
	}
	tree, err := lexicon.Build(dict, set, lexicon.DefaultBuildOptions())
	if err != nil {
		b.Fatal(err)
	}
	lm, err := NewNGramLM(dict, &language.NGram{Forward: lb.Model()}, Factoring2Gram)
	if err != nil {
		b.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.OutProb.Method = method
	d, err := New(set, dict, tree, lm, cfg)
	if err != nil {
		b.Fatal(err)
	}

	frames := make([][]float64, 200)
	for t := range frames {
		frames[t] = make([]float64, dim)
		for k := range frames[t] {
			frames[t][k] = rng.NormFloat64()
		}
	}
	return d, frames
}

func BenchmarkDecode(b *testing.B) {
	for _, method := range []acoustic.PruneMethod{acoustic.PruneNone, acoustic.PruneSafe, acoustic.PruneHeuristic, acoustic.PruneBeam} {
		for _, vocab := range []int{20, 100} {
			b.Run(fmt.Sprintf("%s/vocab=%d", method, vocab), func(b *testing.B) {
				d, frames := buildBenchDecoder(b, vocab, method)
				ctx := context.Background()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := d.DecodeFrames(ctx, frames); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
