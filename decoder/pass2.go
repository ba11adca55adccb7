package decoder

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ieee0824/twopass/internal/mathutil"
)

// hypo is a partial sentence of the second pass, grown backwards from the
// end of the utterance. Hypotheses share their tails.
type hypo struct {
	atom    int    // front word
	next    *hypo  // words after the front
	state   int    // grammar state before the front word
	ac      float64
	lm      float64 // unweighted
	visible int     // LM-visible words, for the insertion penalty
	score   float64 // weighted total so far
	f       float64 // score plus look-ahead
	seq     int
	done    bool
}

type pass2 struct {
	d   *Decoder
	tr  *Trellis
	lm  LM
	cfg Config

	heur     []float64 // best forward estimate of atoms ending at each frame
	stack    []*hypo   // ascending priority, best last
	envelope []int     // expansions per front boundary frame
	seq      int
	words    []int

	results []*hypo
	seen    map[string]bool
}

func newPass2(d *Decoder) *pass2 {
	p := &pass2{
		d:    d,
		tr:   &d.trellis,
		lm:   d.lm,
		cfg:  d.cfg,
		seen: make(map[string]bool),
	}
	n := p.tr.Frames()
	p.heur = make([]float64, n)
	p.envelope = make([]int, n)
	for t := 0; t < n; t++ {
		best := mathutil.LogZero
		for _, id := range p.tr.EndingAt(t) {
			a := &p.tr.Atoms[id]
			v := a.Score
			if p.cfg.Heuristic == HeuristicAcoustic {
				v = a.AcScore
			}
			if v > best {
				best = v
			}
		}
		p.heur[t] = best
	}
	return p
}

// less orders by priority; among equals the earlier discovery wins.
func less(a, b *hypo) bool {
	if a.f != b.f {
		return a.f < b.f
	}
	return a.seq > b.seq
}

func (p *pass2) push(h *hypo) {
	i := sort.Search(len(p.stack), func(i int) bool { return less(h, p.stack[i]) })
	p.stack = append(p.stack, nil)
	copy(p.stack[i+1:], p.stack[i:])
	p.stack[i] = h
	if len(p.stack) > p.cfg.StackSize {
		p.stack = p.stack[1:]
	}
}

func (p *pass2) pop() *hypo {
	h := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return h
}

// collect returns the words of h in reading order.
func (p *pass2) collect(h *hypo) []int {
	p.words = p.words[:0]
	for x := h; x != nil; x = x.next {
		p.words = append(p.words, p.tr.Atoms[x.atom].Word)
	}
	return p.words
}

func (p *pass2) extend(next *hypo, atom, state int) *hypo {
	a := &p.tr.Atoms[atom]
	h := &hypo{atom: atom, next: next, state: state, ac: a.AcLocal}
	if next != nil {
		h.ac += next.ac
		h.visible = next.visible
	}
	if !p.d.dict.Words[a.Word].Transparent {
		h.visible++
	}
	h.lm = p.lm.Rescore(p.collect(h), false, nil)
	h.score = h.ac + p.cfg.LMWeight2*h.lm + p.cfg.Penalty2*float64(h.visible)
	if mathutil.Eliminated(h.score) {
		return nil
	}
	h.f = h.score
	if a.Begin > 0 {
		la := p.heur[a.Begin-1]
		if mathutil.Eliminated(la) {
			return nil
		}
		h.f += la
	}
	h.seq = p.seq
	p.seq++
	return h
}

func (p *pass2) finish(h *hypo) *hypo {
	done := *h
	done.lm = p.lm.Rescore(p.collect(h), true, nil)
	done.score = done.ac + p.cfg.LMWeight2*done.lm + p.cfg.Penalty2*float64(done.visible)
	done.f = done.score
	done.done = true
	done.seq = p.seq
	p.seq++
	if mathutil.Eliminated(done.score) {
		return nil
	}
	return &done
}

func (p *pass2) key(h *hypo) string {
	words := p.collect(h)
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strconv.Itoa(w)
	}
	return strings.Join(parts, " ")
}

// search runs the stack decoding. It reports whether a budget ended it
// before N sentences were found.
func (p *pass2) search(ctx context.Context, last int) (exhausted bool, err error) {
	for _, id := range p.tr.EndingAt(last) {
		for _, s := range p.lm.Tail(p.tr.Atoms[id].Word) {
			if h := p.extend(nil, id, s); h != nil {
				p.push(h)
			}
		}
	}

	var deadline time.Time
	if p.cfg.Timeout > 0 {
		deadline = time.Now().Add(p.cfg.Timeout)
	}
	st := &p.d.stats
	for len(p.stack) > 0 && len(p.results) < p.cfg.NBest {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if st.Expansions >= p.cfg.MaxExpansions || (!deadline.IsZero() && time.Now().After(deadline)) {
			return true, nil
		}
		h := p.pop()
		st.Pops++
		if h.done {
			if k := p.key(h); !p.seen[k] {
				p.seen[k] = true
				p.results = append(p.results, h)
			}
			continue
		}
		begin := p.tr.Atoms[h.atom].Begin
		if begin == 0 {
			if p.lm.Head(h.state) {
				if done := p.finish(h); done != nil {
					p.push(done)
				}
			}
			continue
		}
		if p.envelope[begin] >= p.cfg.EnvelopeWidth {
			continue
		}
		p.envelope[begin]++
		st.Expansions++
		for _, id := range p.tr.EndingAt(begin - 1) {
			for _, s := range p.lm.Prepend(h.state, p.tr.Atoms[id].Word) {
				if nh := p.extend(h, id, s); nh != nil {
					p.push(nh)
				}
			}
		}
	}
	return false, nil
}

// sentences renders the results best first; equal scores keep discovery
// order.
func (p *pass2) sentences() []Sentence {
	sort.SliceStable(p.results, func(i, j int) bool {
		a, b := p.results[i], p.results[j]
		if a.score != b.score {
			return a.score > b.score
		}
		return a.seq < b.seq
	})
	out := make([]Sentence, 0, len(p.results))
	for _, h := range p.results {
		words := append([]int(nil), p.collect(h)...)
		lms := make([]float64, len(words))
		p.lm.Rescore(words, true, lms)
		s := Sentence{Score: h.score, AcScore: h.ac, LMScore: h.lm}
		i := 0
		for x := h; x != nil; x = x.next {
			s.Words = append(s.Words, p.d.wordResult(&p.tr.Atoms[x.atom], lms[i]))
			i++
		}
		out = append(out, s)
	}
	return out
}
