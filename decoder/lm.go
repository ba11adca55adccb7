package decoder

import (
	"github.com/pkg/errors"

	"github.com/ieee0824/twopass/grammar"
	"github.com/ieee0824/twopass/internal/mathutil"
	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

// LM is the language-model contract shared by both passes. Words are
// dictionary IDs. A context is the LM state after a word: the last
// LM-visible word for N-grams, the word category for grammars, -1 at the
// sentence start. Scores are log10.
type LM interface {
	// Start returns the context at sentence start.
	Start() int
	// Next returns the context after w.
	Next(ctx, w int) int
	// AllowRoot reports whether words of root set c may follow ctx.
	AllowRoot(ctx, c int) bool
	// Factored reports whether the first pass applies Lookahead inside the tree.
	Factored() bool
	// Lookahead estimates the score of the best word among succ.
	Lookahead(ctx int, succ []int) float64
	// WordScore is the first-pass score of w after ctx.
	WordScore(ctx, w int) float64
	// Final returns the sentence-end score after ctx, false when the
	// sentence may not end there.
	Final(ctx int) (float64, bool)

	// Tail lists the second-pass states of a hypothesis that ends with w.
	Tail(w int) []int
	// Prepend lists the states reached by putting w before state s.
	Prepend(s, w int) []int
	// Head reports whether a hypothesis in state s may start the sentence.
	Head(s int) bool
	// Rescore returns the second-pass score of words (reading order) and,
	// when out is not nil, stores each word's share in it. complete adds
	// the sentence start.
	Rescore(words []int, complete bool, out []float64) float64
}

var single = []int{0}

// NGramLM binds an N-gram pair to a dictionary.
type NGramLM struct {
	dict      *lexicon.Dictionary
	fwd, rev  *language.NGramModel
	factoring Factoring

	wton    []int // dictionary word -> forward vocabulary id
	wtonRev []int

	bos, eos       int
	revBOS, revEOS int

	hist []int
}

// NewNGramLM computes the word-to-LM mapping once. Words missing from the
// vocabulary score as <unk>.
func NewNGramLM(dict *lexicon.Dictionary, lm *language.NGram, factoring Factoring) (*NGramLM, error) {
	if lm == nil || lm.Forward == nil {
		return nil, errors.New("decoder: forward n-gram required")
	}
	l := &NGramLM{
		dict:      dict,
		fwd:       lm.Forward,
		rev:       lm.Backward,
		factoring: factoring,
		wton:      make([]int, dict.Len()),
		bos:       lm.Forward.ID(language.BOS),
		eos:       lm.Forward.ID(language.EOS),
	}
	for i, w := range dict.Words {
		l.wton[i] = l.fwd.ID(w.Name)
	}
	if l.rev != nil {
		l.wtonRev = make([]int, dict.Len())
		for i, w := range dict.Words {
			l.wtonRev[i] = l.rev.ID(w.Name)
		}
		l.revBOS = l.rev.ID(language.BOS)
		l.revEOS = l.rev.ID(language.EOS)
	}
	return l, nil
}

// LMID returns the forward vocabulary id of a dictionary word.
func (l *NGramLM) LMID(w int) int { return l.wton[w] }

func (l *NGramLM) Start() int { return -1 }

func (l *NGramLM) Next(ctx, w int) int {
	if l.dict.Words[w].Transparent {
		return ctx
	}
	return w
}

func (l *NGramLM) AllowRoot(ctx, c int) bool { return true }

func (l *NGramLM) Factored() bool { return true }

func (l *NGramLM) history(ctx int) []int {
	l.hist = l.hist[:0]
	if ctx < 0 {
		return append(l.hist, l.bos)
	}
	return append(l.hist, l.wton[ctx])
}

func (l *NGramLM) Lookahead(ctx int, succ []int) float64 {
	var hist []int
	if l.factoring == Factoring2Gram {
		hist = l.history(ctx)
	}
	best := mathutil.LogZero
	for _, w := range succ {
		if p := l.fwd.Prob(hist, l.wton[w]); p > best {
			best = p
		}
	}
	return best
}

func (l *NGramLM) WordScore(ctx, w int) float64 {
	return l.fwd.Prob(l.history(ctx), l.wton[w])
}

func (l *NGramLM) Final(ctx int) (float64, bool) {
	return l.fwd.Prob(l.history(ctx), l.eos), true
}

func (l *NGramLM) Tail(w int) []int { return single }

func (l *NGramLM) Prepend(s, w int) []int { return single }

func (l *NGramLM) Head(s int) bool { return true }

// Rescore uses the reverse model when present, otherwise the forward model
// with truncated histories for words whose left context is still unknown.
func (l *NGramLM) Rescore(words []int, complete bool, out []float64) float64 {
	if l.rev != nil {
		return l.rescoreReverse(words, complete, out)
	}
	return l.rescoreForward(words, complete, out)
}

func (l *NGramLM) rescoreForward(words []int, complete bool, out []float64) float64 {
	hist := make([]int, 0, len(words)+1)
	if complete {
		hist = append(hist, l.bos)
	}
	total := 0.0
	last := -1
	for i, w := range words {
		if out != nil {
			out[i] = 0
		}
		if l.dict.Words[w].Transparent {
			continue
		}
		p := l.fwd.Prob(hist, l.wton[w])
		total += p
		if out != nil {
			out[i] = p
		}
		hist = append(hist, l.wton[w])
		last = i
	}
	p := l.fwd.Prob(hist, l.eos)
	total += p
	if out != nil && last >= 0 {
		out[last] += p
	}
	return total
}

// rescoreReverse scores right to left; the reverse model was trained on
// reversed sentences, so <s> marks the sentence end and </s> its start.
func (l *NGramLM) rescoreReverse(words []int, complete bool, out []float64) float64 {
	hist := make([]int, 0, len(words)+1)
	hist = append(hist, l.revBOS)
	total := 0.0
	first := -1
	for i := len(words) - 1; i >= 0; i-- {
		w := words[i]
		if out != nil {
			out[i] = 0
		}
		if l.dict.Words[w].Transparent {
			continue
		}
		p := l.rev.Prob(hist, l.wtonRev[w])
		total += p
		if out != nil {
			out[i] = p
		}
		hist = append(hist, l.wtonRev[w])
		first = i
	}
	if complete {
		p := l.rev.Prob(hist, l.revEOS)
		total += p
		if out != nil && first >= 0 {
			out[first] += p
		}
	}
	return total
}

// GrammarLM binds a grammar generation. The first pass applies the
// category-pair constraint; the second pass walks the automaton.
type GrammarLM struct {
	gen *grammar.Generation
	dfa *language.DFA
}

// NewGrammarLM wraps a generation; inactive grammars are skipped.
func NewGrammarLM(gen *grammar.Generation) *GrammarLM {
	return &GrammarLM{gen: gen, dfa: gen.DFA}
}

func (g *GrammarLM) category(w int) int { return g.gen.Dict.Words[w].Category }

func (g *GrammarLM) Start() int { return -1 }

func (g *GrammarLM) Next(ctx, w int) int { return g.category(w) }

func (g *GrammarLM) AllowRoot(ctx, c int) bool {
	if !g.gen.CategoryActive(c) {
		return false
	}
	if ctx < 0 {
		return g.dfa.BeginOK(c)
	}
	return g.dfa.CategoryPair(ctx, c)
}

func (g *GrammarLM) Factored() bool { return false }

func (g *GrammarLM) Lookahead(ctx int, succ []int) float64 { return 0 }

func (g *GrammarLM) WordScore(ctx, w int) float64 { return 0 }

func (g *GrammarLM) Final(ctx int) (float64, bool) {
	return 0, ctx >= 0 && g.dfa.EndOK(ctx)
}

func (g *GrammarLM) Tail(w int) []int {
	c := g.category(w)
	var out []int
	for s := range g.dfa.States {
		if !g.dfa.IsAccept(s) {
			continue
		}
		out = appendSources(out, g.dfa.States[s].In, c)
	}
	return out
}

func (g *GrammarLM) Prepend(s, w int) []int {
	return appendSources(nil, g.dfa.States[s].In, g.category(w))
}

func appendSources(out []int, in []language.DFAArc, c int) []int {
	for _, a := range in {
		if a.Category != c {
			continue
		}
		dup := false
		for _, s := range out {
			if s == a.To {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, a.To)
		}
	}
	return out
}

func (g *GrammarLM) Head(s int) bool { return g.dfa.IsInitial(s) }

func (g *GrammarLM) Rescore(words []int, complete bool, out []float64) float64 {
	for i := range out {
		out[i] = 0
	}
	return 0
}
