package language

import (
	"io"
	"math"
)

// Builder counts n-grams over tokenized sentences and estimates a back-off
// model with Witten-Bell discounting.
type Builder struct {
	order   int
	reverse bool

	vocab  []string
	ids    map[string]int
	counts [MaxOrder]map[gramKey]int
}

// NewBuilder creates a builder for models of the given order, clamped to
// 2..MaxOrder.
func NewBuilder(order int) *Builder {
	if order < 2 {
		order = 2
	}
	if order > MaxOrder {
		order = MaxOrder
	}
	b := &Builder{order: order, ids: make(map[string]int)}
	for i := range b.counts {
		b.counts[i] = make(map[gramKey]int)
	}
	return b
}

// NewReverseBuilder creates a builder for the right-to-left model used by
// the second pass. Sentences are reversed before counting, so <s> marks the
// right edge of the original sentence.
func NewReverseBuilder(order int) *Builder {
	b := NewBuilder(order)
	b.reverse = true
	return b
}

func (b *Builder) id(w string) int {
	if id, ok := b.ids[w]; ok {
		return id
	}
	id := len(b.vocab)
	b.ids[w] = id
	b.vocab = append(b.vocab, w)
	return id
}

// AddSentence counts one tokenized sentence. <s> and </s> are added.
func (b *Builder) AddSentence(words []string) {
	if len(words) == 0 {
		return
	}
	seq := make([]int, 0, len(words)+2)
	seq = append(seq, b.id(BOS))
	for i := range words {
		w := words[i]
		if b.reverse {
			w = words[len(words)-1-i]
		}
		seq = append(seq, b.id(w))
	}
	seq = append(seq, b.id(EOS))

	for i := range seq {
		for n := 1; n <= b.order && n <= i+1; n++ {
			b.counts[n-1][makeKey(seq[i+1-n:i+1])]++
		}
	}
}

// WriteARPA estimates the model and writes it in ARPA format to w.
func (b *Builder) WriteARPA(w io.Writer) error {
	return b.Model().WriteARPA(w)
}

// follow collects what was seen after one history.
type follow struct {
	total int
	next  map[int]int
}

// Model estimates the n-gram model. Orders are filled bottom-up: the
// back-off weight of a history is only known once every lower order,
// including its own weights, is in place.
func (b *Builder) Model() *NGramModel {
	m := NewNGramModel(1)
	for _, w := range b.vocab {
		m.intern(w)
	}

	total := 0
	for _, c := range b.counts[0] {
		total += c
	}
	for k, c := range b.counts[0] {
		m.grams[0][k] = ngramEntry{LogProb: math.Log10(float64(c) / float64(total))}
	}

	for n := 2; n <= b.order; n++ {
		if len(b.counts[n-1]) == 0 {
			break
		}
		ctxs := make(map[gramKey]*follow)
		for k, c := range b.counts[n-1] {
			h := k
			h[n-1] = -1
			ctx := ctxs[h]
			if ctx == nil {
				ctx = &follow{next: make(map[int]int)}
				ctxs[h] = ctx
			}
			ctx.total += c
			ctx.next[int(k[n-1])] = c
		}

		for h, ctx := range ctxs {
			denom := float64(ctx.total + len(ctx.next))
			for w, c := range ctx.next {
				k := h
				k[n-1] = int32(w)
				m.grams[n-1][k] = ngramEntry{LogProb: math.Log10(float64(c) / denom)}
			}
		}
		m.Order = n

		// weights of the (n-1)-gram histories, against the already complete
		// lower-order distribution
		for h, ctx := range ctxs {
			hist := make([]int, n-1)
			for i := range hist {
				hist[i] = int(h[i])
			}
			seen, lower := 0.0, 0.0
			for w, c := range ctx.next {
				seen += float64(c) / float64(ctx.total+len(ctx.next))
				lower += math.Pow(10, m.backoff(hist[1:], w))
			}
			if lower >= 1 {
				continue
			}
			e := m.grams[n-2][h]
			e.LogBackoff = math.Log10((1 - seen) / (1 - lower))
			m.grams[n-2][h] = e
		}
	}
	return m
}
