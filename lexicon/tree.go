package lexicon

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/internal/mathutil"
)

// OutputKind tags what a tree node emits.
type OutputKind uint8

const (
	OutputState OutputKind = iota // a physical HMM state
	OutputSet                     // one position of a context-dependent pseudo set
)

// Output is the emission of a tree node, resolved once at build time.
type Output struct {
	Kind  OutputKind
	State *acoustic.State
	Set   *acoustic.CDSet
	Pos   int
}

// Score returns the log10 output probability at the engine's current frame.
func (o Output) Score(op *acoustic.OutProb) float64 {
	if o.Kind == OutputSet {
		return op.CDSet(o.Set, o.Pos)
	}
	return op.State(o.State)
}

// Arc is a transition to node To with a log10 score.
type Arc struct {
	To    int
	Trans float64
}

// End marks that Word can be completed by leaving the node with Exit.
type End struct {
	Word int
	Exit float64
}

// Node is one HMM state of the lexicon.
type Node struct {
	Out  Output
	Self float64 // self-loop, LogZero when absent
	Arcs []Arc
	Ends []End
	Succ int // index into Tree.Succ, -1 when no LM-visible word passes here

	// LC holds the output resolved against each possible left context
	// (indexed like Tree.EndPhones). Only word-head nodes of triphone
	// models carry it.
	LC []Output
}

// Tree is the compiled lexicon searched by the first pass.
type Tree struct {
	Nodes []Node
	Roots [][]Arc // per category when built PerCategory, otherwise Roots[0]
	Succ  [][]int // successor word lists for LM factoring

	EndPhones []string // distinct word-final phones
	WordPhone []int    // word ID → index into EndPhones, -1 when not in the tree

	MinFrames int // fewest frames any word in the tree needs
	NumWords  int
}

// BuildOptions control lexicon compilation.
type BuildOptions struct {
	Share       bool   // merge common model prefixes; false gives one chain per word
	PerCategory bool   // separate root sets per word category (DFA mode)
	Words       []bool // active vocabulary mask; nil means every word
}

// DefaultBuildOptions returns a shared tree with a single root set.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Share: true}
}

// HasWord reports whether the word is reachable in the tree.
func (t *Tree) HasWord(id int) bool {
	return id >= 0 && id < len(t.WordPhone) && t.WordPhone[id] >= 0
}

// NumCategories returns the number of root sets.
func (t *Tree) NumCategories() int { return len(t.Roots) }

// Output returns the emission of node n for a token whose previous word
// ended in phone lc (-1 when unknown).
func (t *Tree) Output(n, lc int) Output {
	node := &t.Nodes[n]
	if lc >= 0 && node.LC != nil {
		return node.LC[lc]
	}
	return node.Out
}

// inst is one model instance in the prefix trie.
type inst struct {
	key      string
	logical  *acoustic.Logical
	lc       []*acoustic.Logical
	children []*inst
	index    map[string]*inst
	words    []int // words ending here
	through  []int // LM-visible words passing here
	nodes    []int
}

func newInst(key string, l *acoustic.Logical) *inst {
	return &inst{key: key, logical: l, index: make(map[string]*inst)}
}

func (p *inst) child(key string, l *acoustic.Logical) *inst {
	if c, ok := p.index[key]; ok {
		return c
	}
	c := newInst(key, l)
	p.index[key] = c
	p.children = append(p.children, c)
	return c
}

type model struct {
	key     string
	logical *acoustic.Logical
	lc      []*acoustic.Logical
}

type builder struct {
	dict *Dictionary
	set  *acoustic.Set
	opts BuildOptions
	tree *Tree
	succ map[string]int
}

// Build compiles the active words of dict into a tree lexicon over set.
func Build(dict *Dictionary, set *acoustic.Set, opts BuildOptions) (*Tree, error) {
	b := &builder{
		dict: dict,
		set:  set,
		opts: opts,
		tree: &Tree{WordPhone: make([]int, dict.Len())},
		succ: make(map[string]int),
	}
	active := func(id int) bool {
		return opts.Words == nil || (id < len(opts.Words) && opts.Words[id])
	}

	phoneIdx := make(map[string]int)
	for _, w := range dict.Words {
		if active(w.ID) && len(w.Phones) > 0 {
			phoneIdx[w.Phones[len(w.Phones)-1]] = 0
		}
	}
	for p := range phoneIdx {
		b.tree.EndPhones = append(b.tree.EndPhones, p)
	}
	sort.Strings(b.tree.EndPhones)
	for i, p := range b.tree.EndPhones {
		phoneIdx[p] = i
	}

	numRoots := 1
	if opts.PerCategory {
		numRoots = dict.NumCategories()
	}
	roots := make([]*inst, numRoots)
	for i := range roots {
		roots[i] = newInst("", nil)
	}
	b.tree.Roots = make([][]Arc, numRoots)

	minFrames := -1
	for _, w := range dict.Words {
		b.tree.WordPhone[w.ID] = -1
		if !active(w.ID) {
			continue
		}
		models, err := b.wordModels(&w)
		if err != nil {
			return nil, err
		}
		frames := 0
		for _, m := range models {
			frames += m.logical.MinFrames()
		}
		if minFrames < 0 || frames < minFrames {
			minFrames = frames
		}

		root := roots[0]
		if opts.PerCategory {
			if w.Category < 0 {
				return nil, errors.Errorf("word %q has no category", w.Name)
			}
			root = roots[w.Category]
		}
		cur := root
		for i, m := range models {
			key := m.key
			if i == 0 && !opts.Share {
				key = "#" + strconv.Itoa(w.ID) + "/" + key
			}
			cur = cur.child(key, m.logical)
			if i == 0 {
				cur.lc = m.lc
			}
			if !w.Transparent {
				cur.through = append(cur.through, w.ID)
			}
		}
		cur.words = append(cur.words, w.ID)
		b.tree.WordPhone[w.ID] = phoneIdx[w.Phones[len(w.Phones)-1]]
		b.tree.NumWords++
	}
	if minFrames < 1 {
		minFrames = 1
	}
	b.tree.MinFrames = minFrames

	for c, root := range roots {
		for _, head := range root.children {
			b.emit(head)
			trans := head.logical.Trans()
			for k, n := range head.nodes {
				if v := trans[0][k+1]; !mathutil.Eliminated(v) {
					b.tree.Roots[c] = append(b.tree.Roots[c], Arc{To: n, Trans: v})
				}
			}
		}
	}
	return b.tree, nil
}

// CheckPhones reports the first word of dict that set cannot pronounce,
// without building a tree.
func CheckPhones(dict *Dictionary, set *acoustic.Set) error {
	for i := range dict.Words {
		if _, err := resolveWord(&dict.Words[i], set); err != nil {
			return err
		}
	}
	return nil
}

// resolveWord looks up the in-word model of every phone of w.
func resolveWord(w *Word, set *acoustic.Set) ([]*acoustic.Logical, error) {
	n := len(w.Phones)
	if n == 0 {
		return nil, errors.Errorf("word %q has no phones", w.Name)
	}
	out := make([]*acoustic.Logical, n)
	for i, p := range w.Phones {
		var left, right string
		if i > 0 {
			left = w.Phones[i-1]
		}
		if i+1 < n {
			right = w.Phones[i+1]
		}
		if out[i] = set.Resolve(left, p, right); out[i] == nil {
			return nil, errors.Wrapf(ErrUnknownPhone, "word %q: phone %q", w.Name, p)
		}
	}
	return out, nil
}

// wordModels resolves the logical model of every phone of w.
func (b *builder) wordModels(w *Word) ([]model, error) {
	logicals, err := resolveWord(w, b.set)
	if err != nil {
		return nil, err
	}
	models := make([]model, len(logicals))
	for i, l := range logicals {
		p := w.Phones[i]
		var right string
		if i+1 < len(w.Phones) {
			right = w.Phones[i+1]
		}
		models[i] = model{key: l.Name, logical: l}
		if i == 0 && b.set.IsTriphone() {
			// heads are re-resolved per left context, so the phone context
			// must match as well as the model
			models[i].key = acoustic.MakeTriphone("", p, right) + "/" + l.Name
			models[i].lc = b.leftContexts(p, right, l)
		}
	}
	return models, nil
}

// leftContexts resolves the head model for every possible preceding phone.
func (b *builder) leftContexts(center, right string, head *acoustic.Logical) []*acoustic.Logical {
	out := make([]*acoustic.Logical, len(b.tree.EndPhones))
	for i, lc := range b.tree.EndPhones {
		l := b.set.Resolve(lc, center, right)
		if l == nil || l.NumStates() != head.NumStates() {
			l = head
		}
		out[i] = l
	}
	return out
}

func outputOf(l *acoustic.Logical, pos int) Output {
	if l.IsPseudo() {
		return Output{Kind: OutputSet, Set: l.Set, Pos: pos}
	}
	return Output{Kind: OutputState, State: l.HMM.States[pos]}
}

// emit allocates the nodes of p and its subtree, and links them.
func (b *builder) emit(p *inst) {
	l := p.logical
	n := l.NumStates()
	trans := l.Trans()
	exit := n + 1

	succ := b.succIndex(p.through)
	p.nodes = make([]int, n)
	for k := 0; k < n; k++ {
		node := Node{
			Out:  outputOf(l, k),
			Self: trans[k+1][k+1],
			Succ: succ,
		}
		if p.lc != nil {
			node.LC = make([]Output, len(p.lc))
			for i, lc := range p.lc {
				node.LC[i] = outputOf(lc, k)
			}
		}
		p.nodes[k] = len(b.tree.Nodes)
		b.tree.Nodes = append(b.tree.Nodes, node)
	}

	for i := 1; i <= n; i++ {
		from := &b.tree.Nodes[p.nodes[i-1]]
		for j := 1; j <= n; j++ {
			if j != i && !mathutil.Eliminated(trans[i][j]) {
				from.Arcs = append(from.Arcs, Arc{To: p.nodes[j-1], Trans: trans[i][j]})
			}
		}
		if out := trans[i][exit]; !mathutil.Eliminated(out) {
			for _, w := range p.words {
				from.Ends = append(from.Ends, End{Word: w, Exit: out})
			}
		}
	}

	for _, c := range p.children {
		b.emit(c)
		ct := c.logical.Trans()
		for i := 1; i <= n; i++ {
			out := trans[i][exit]
			if mathutil.Eliminated(out) {
				continue
			}
			from := &b.tree.Nodes[p.nodes[i-1]]
			for k, to := range c.nodes {
				if in := ct[0][k+1]; !mathutil.Eliminated(in) {
					from.Arcs = append(from.Arcs, Arc{To: to, Trans: out + in})
				}
			}
		}
	}
}

func (b *builder) succIndex(words []int) int {
	if len(words) == 0 {
		return -1
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strconv.Itoa(w)
	}
	key := strings.Join(parts, ",")
	if i, ok := b.succ[key]; ok {
		return i
	}
	i := len(b.tree.Succ)
	b.tree.Succ = append(b.tree.Succ, append([]int(nil), words...))
	b.succ[key] = i
	return i
}
