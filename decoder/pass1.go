package decoder

import (
	"sort"

	"github.com/ieee0824/twopass/internal/mathutil"
	"github.com/ieee0824/twopass/lexicon"
)

// token is an active hypothesis at one tree node.
type token struct {
	score  float64
	ac     float64 // acoustic and transition part of score
	factor float64 // lookahead currently included in score, unweighted
	node   int
	back   int // atom of the previous word, -1 at sentence start
	ctx    int // LM context the current word was entered with
	lc     int // last phone of the previous word, -1 when unknown
	begin  int
	next   int // next token at the same node (word-pair mode), -1 ends
}

// tokenPool manages pre-allocated tokens to reduce allocations. Tokens are
// addressed by index so growth never invalidates them.
type tokenPool struct {
	buf []token
	pos int
}

func newTokenPool(cap int) *tokenPool {
	return &tokenPool{buf: make([]token, cap)}
}

func (p *tokenPool) get() int {
	if p.pos >= len(p.buf) {
		p.buf = append(p.buf, make([]token, len(p.buf)+16)...)
	}
	p.pos++
	return p.pos - 1
}

func (p *tokenPool) reset() {
	p.pos = 0
}

// pass1 is the frame-synchronous beam search over the tree lexicon.
type pass1 struct {
	d    *Decoder
	tree *lexicon.Tree
	lm   LM
	cfg  Config

	cur, nxt *tokenPool
	active   []int // surviving tokens of cur
	head     []int // node -> first token in nxt, -1 when empty
	touched  []int

	seeds   []int // atoms ending at the previous frame, best per LM context
	seedOf  map[int]int
	endOf   map[[2]int]int
	laCache map[[2]int]float64
}

func newPass1(d *Decoder) *pass1 {
	estimated := len(d.tree.Nodes)
	if estimated < 256 {
		estimated = 256
	}
	p := &pass1{
		d:       d,
		tree:    d.tree,
		lm:      d.lm,
		cfg:     d.cfg,
		cur:     newTokenPool(estimated),
		nxt:     newTokenPool(estimated),
		head:    make([]int, len(d.tree.Nodes)),
		seedOf:  make(map[int]int),
		endOf:   make(map[[2]int]int),
		laCache: make(map[[2]int]float64),
	}
	for i := range p.head {
		p.head[i] = -1
	}
	return p
}

func (p *pass1) reset() {
	p.cur.reset()
	p.nxt.reset()
	p.active = p.active[:0]
	p.seeds = p.seeds[:0]
	clear(p.laCache)
}

func (p *pass1) lookahead(ctx, succ int) float64 {
	key := [2]int{ctx, succ}
	if v, ok := p.laCache[key]; ok {
		return v
	}
	v := p.lm.Lookahead(ctx, p.tree.Succ[succ])
	p.laCache[key] = v
	return v
}

// step consumes frame t; the engine already holds its vector. It returns
// false when the beam is empty.
func (p *pass1) step(t int) bool {
	p.nxt.reset()
	for _, i := range p.active {
		tok := p.cur.buf[i]
		node := &p.tree.Nodes[tok.node]
		if !mathutil.Eliminated(node.Self) {
			p.relax(&tok, tok.node, node.Self)
		}
		for _, a := range node.Arcs {
			p.relax(&tok, a.To, a.Trans)
		}
	}
	if t == 0 {
		p.enterRoots(-1, t)
	} else {
		for _, a := range p.seeds {
			p.enterRoots(a, t)
		}
	}
	for _, n := range p.touched {
		p.head[n] = -1
	}
	p.touched = p.touched[:0]

	p.active = pruneTokens(p.nxt, p.active[:0], p.cfg.BeamWidth, p.cfg.MaxActiveTokens)
	st := &p.d.stats
	st.Frames++
	st.Tokens += int64(len(p.active))
	st.Pruned += int64(p.nxt.pos - len(p.active))
	if len(p.active) > st.MaxTokens {
		st.MaxTokens = len(p.active)
	}
	if len(p.active) == 0 {
		return false
	}
	p.emitWordEnds(t)
	p.cur, p.nxt = p.nxt, p.cur
	return true
}

// relax extends src along a transition into node to.
func (p *pass1) relax(src *token, to int, trans float64) {
	score := src.score + trans
	factor := src.factor
	if p.lm.Factored() {
		n := &p.tree.Nodes[to]
		if n.Succ >= 0 && n.Succ != p.tree.Nodes[src.node].Succ {
			la := p.lookahead(src.ctx, n.Succ)
			score += p.cfg.LMWeight * (la - factor)
			factor = la
		}
	}
	ac := p.tree.Output(to, src.lc).Score(p.d.op)
	score += ac
	if mathutil.Eliminated(score) {
		return
	}
	tok := *src
	tok.score = score
	tok.ac = src.ac + trans + ac
	tok.factor = factor
	tok.node = to
	p.place(tok)
}

// enterRoots starts new words at frame t after atom a (-1: sentence start).
func (p *pass1) enterRoots(a, t int) {
	base := token{ctx: p.lm.Start(), back: -1, lc: -1, begin: t}
	if a >= 0 {
		at := &p.d.trellis.Atoms[a]
		base.score = at.Score
		base.ac = at.AcScore
		base.ctx = p.lm.Next(at.Ctx, at.Word)
		base.lc = p.tree.WordPhone[at.Word]
		base.back = a
	}
	for c, roots := range p.tree.Roots {
		if !p.lm.AllowRoot(base.ctx, c) {
			continue
		}
		for _, r := range roots {
			score := base.score + r.Trans
			factor := 0.0
			if n := &p.tree.Nodes[r.To]; p.lm.Factored() && n.Succ >= 0 {
				factor = p.lookahead(base.ctx, n.Succ)
				score += p.cfg.LMWeight * factor
			}
			ac := p.tree.Output(r.To, base.lc).Score(p.d.op)
			score += ac
			if mathutil.Eliminated(score) {
				continue
			}
			tok := base
			tok.score = score
			tok.ac = base.ac + r.Trans + ac
			tok.factor = factor
			tok.node = r.To
			p.place(tok)
		}
	}
}

// place merges tok into the next frame: the best token per node, or in
// word-pair mode the best per node and context up to WordPairLimit.
func (p *pass1) place(tok token) {
	h := p.head[tok.node]
	if h < 0 {
		tok.next = -1
		i := p.nxt.get()
		p.nxt.buf[i] = tok
		p.head[tok.node] = i
		p.touched = append(p.touched, tok.node)
		return
	}
	buf := p.nxt.buf
	if !p.cfg.WordPair {
		if tok.score > buf[h].score {
			tok.next = -1
			buf[h] = tok
		}
		return
	}
	worst, n := -1, 0
	for i := h; i >= 0; i = buf[i].next {
		if buf[i].ctx == tok.ctx {
			if tok.score > buf[i].score {
				tok.next = buf[i].next
				buf[i] = tok
			}
			return
		}
		if worst < 0 || buf[i].score < buf[worst].score {
			worst = i
		}
		n++
	}
	if n < p.cfg.WordPairLimit {
		tok.next = h
		i := p.nxt.get()
		p.nxt.buf[i] = tok
		p.head[tok.node] = i
		return
	}
	if tok.score > buf[worst].score {
		tok.next = buf[worst].next
		buf[worst] = tok
	}
}

// emitWordEnds records the words completed at frame t and picks the seeds
// for frame t+1.
func (p *pass1) emitWordEnds(t int) {
	tr := &p.d.trellis
	clear(p.endOf)
	for _, i := range p.active {
		tok := &p.nxt.buf[i]
		for _, e := range p.tree.Nodes[tok.node].Ends {
			w := &p.d.dict.Words[e.Word]
			score := tok.score + e.Exit
			lm := 0.0
			if w.Transparent {
				score -= p.cfg.LMWeight * tok.factor
			} else {
				lm = p.lm.WordScore(tok.ctx, e.Word)
				score += p.cfg.LMWeight*(lm-tok.factor) + p.cfg.Penalty
			}
			if mathutil.Eliminated(score) {
				continue
			}
			ac := tok.ac + e.Exit
			local := ac
			if tok.back >= 0 {
				local -= tr.Atoms[tok.back].AcScore
			}
			atom := Atom{
				Word:    e.Word,
				Ctx:     tok.ctx,
				Begin:   tok.begin,
				End:     t,
				Score:   score,
				AcScore: ac,
				LMScore: lm,
				AcLocal: local,
				Back:    tok.back,
			}
			key := [2]int{e.Word, 0}
			if p.cfg.WordPair {
				key[1] = tok.ctx
			}
			if id, ok := p.endOf[key]; ok {
				if score > tr.Atoms[id].Score {
					tr.Atoms[id] = atom
				}
				continue
			}
			p.endOf[key] = tr.add(atom)
		}
	}

	p.seeds = p.seeds[:0]
	clear(p.seedOf)
	for _, id := range tr.EndingAt(t) {
		a := &tr.Atoms[id]
		ctx := p.lm.Next(a.Ctx, a.Word)
		if k, ok := p.seedOf[ctx]; ok {
			if a.Score > tr.Atoms[p.seeds[k]].Score {
				p.seeds[k] = id
			}
			continue
		}
		p.seedOf[ctx] = len(p.seeds)
		p.seeds = append(p.seeds, id)
	}
}

// best returns the best sentence-final atom at the last frame with its
// final score, or -1.
func (p *pass1) best(last int) (int, float64) {
	tr := &p.d.trellis
	best, bestScore := -1, mathutil.LogZero
	for _, id := range tr.EndingAt(last) {
		a := &tr.Atoms[id]
		fs, ok := p.lm.Final(p.lm.Next(a.Ctx, a.Word))
		if !ok {
			continue
		}
		s := a.Score + p.cfg.LMWeight*fs
		if mathutil.Eliminated(s) {
			continue
		}
		if best < 0 || s > bestScore {
			best, bestScore = id, s
		}
	}
	return best, bestScore
}

func pruneTokens(pool *tokenPool, dst []int, beamWidth float64, maxActive int) []int {
	src := pool.buf[:pool.pos]
	if len(src) == 0 {
		return dst
	}

	// Find best score
	bestScore := src[0].score
	for i := range src[1:] {
		if src[i+1].score > bestScore {
			bestScore = src[i+1].score
		}
	}

	// Beam pruning: reuse dst slice
	threshold := bestScore - beamWidth
	for i := range src {
		if src[i].score >= threshold {
			dst = append(dst, i)
		}
	}

	// Max active pruning
	if len(dst) > maxActive {
		sort.SliceStable(dst, func(a, b int) bool {
			return src[dst[a]].score > src[dst[b]].score
		})
		dst = dst[:maxActive]
	}

	return dst
}
