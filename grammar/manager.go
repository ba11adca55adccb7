// Package grammar keeps several DFA grammars loaded at once and merges the
// active ones into a single global grammar, dictionary and tree lexicon.
//
// Requests (add, delete, activate, deactivate) may come from any goroutine.
// They are queued and only take effect in ExecChanges, which produces a new
// immutable Generation. A recognition pass holds on to the generation it
// started with.
package grammar

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/internal/logging"
	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

// ErrUnknownGrammar is returned for an id that was never added or is
// already deleted.
var ErrUnknownGrammar = errors.New("unknown grammar")

type op int

const (
	opAdd op = iota
	opDelete
	opActivate
	opDeactivate
)

func (o op) String() string {
	switch o {
	case opAdd:
		return "add"
	case opDelete:
		return "delete"
	case opActivate:
		return "activate"
	default:
		return "deactivate"
	}
}

type hook struct {
	op op
	id int
}

type entry struct {
	id      int
	name    string
	dfa     *language.DFA
	dict    *lexicon.Dictionary
	active  bool
	newbie  bool // added, not yet merged
	deleted bool // delete requested, not yet applied
}

// Info describes one merged grammar inside a generation.
type Info struct {
	ID             int
	Name           string
	Active         bool
	StateOffset    int
	CategoryOffset int
	WordOffset     int
	NumStates      int
	NumCategories  int
	NumWords       int
}

// Generation is an immutable snapshot of the merged grammars.
type Generation struct {
	Seq      int
	DFA      *language.DFA
	Dict     *lexicon.Dictionary
	Tree     *lexicon.Tree // nil when no grammar holds a word
	Grammars []Info

	categoryActive []bool
}

// CategoryActive reports whether words of category c take part in search.
func (g *Generation) CategoryActive(c int) bool {
	return c >= 0 && c < len(g.categoryActive) && g.categoryActive[c]
}

// ActiveWords returns the number of words in active grammars.
func (g *Generation) ActiveWords() int {
	n := 0
	for _, gi := range g.Grammars {
		if gi.Active {
			n += gi.NumWords
		}
	}
	return n
}

// Grammar returns the merged info for a grammar id.
func (g *Generation) Grammar(id int) (Info, bool) {
	for _, gi := range g.Grammars {
		if gi.ID == id {
			return gi, true
		}
	}
	return Info{}, false
}

// Manager owns the grammar set and its request queue.
type Manager struct {
	set    *acoustic.Set
	opts   lexicon.BuildOptions
	logger logrus.FieldLogger

	mu       sync.Mutex
	entries  []*entry // in id order
	nextID   int
	pending  []hook
	current  *Generation
	rebuilds int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for change reports.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithBuildOptions overrides the tree lexicon options. PerCategory is
// always forced on.
func WithBuildOptions(opts lexicon.BuildOptions) Option {
	return func(m *Manager) {
		m.opts = opts
	}
}

// NewManager creates a manager that builds trees over set.
func NewManager(set *acoustic.Set, opts ...Option) *Manager {
	m := &Manager{
		set:  set,
		opts: lexicon.DefaultBuildOptions(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	m.opts.PerCategory = true
	m.opts.Words = nil
	m.current = &Generation{DFA: language.NewDFA(), Dict: lexicon.NewDictionary()}
	m.current.DFA.Finalize()
	return m
}

// Add queues a new grammar. It becomes active at the next ExecChanges.
func (m *Manager) Add(name string, dfa *language.DFA, dict *lexicon.Dictionary) (int, error) {
	if dfa == nil || dict == nil {
		return -1, errors.New("grammar: nil dfa or dictionary")
	}
	for _, w := range dict.Words {
		if w.Category < 0 || w.Category >= dfa.NumCategories {
			return -1, errors.Errorf("grammar %q: word %q has category %d, grammar has %d", name, w.Output, w.Category, dfa.NumCategories)
		}
	}
	// a word the model cannot pronounce would fail the next rebuild
	if err := lexicon.CheckPhones(dict, m.set); err != nil {
		return -1, errors.Wrapf(err, "grammar %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.entries = append(m.entries, &entry{id: id, name: name, dfa: dfa, dict: dict, active: true, newbie: true})
	m.pending = append(m.pending, hook{opAdd, id})
	return id, nil
}

func (m *Manager) find(id int) *entry {
	for _, e := range m.entries {
		if e.id == id && !e.deleted {
			return e
		}
	}
	return nil
}

func (m *Manager) request(o op, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(id) == nil {
		return errors.Wrapf(ErrUnknownGrammar, "%s %d", o, id)
	}
	if o == opDelete {
		m.find(id).deleted = true
	}
	m.pending = append(m.pending, hook{o, id})
	return nil
}

// Delete queues removal of a grammar.
func (m *Manager) Delete(id int) error { return m.request(opDelete, id) }

// Activate queues re-activation of a grammar.
func (m *Manager) Activate(id int) error { return m.request(opActivate, id) }

// Deactivate queues deactivation of a grammar. Its words stay in the tree
// but are skipped by the search.
func (m *Manager) Deactivate(id int) error { return m.request(opDeactivate, id) }

// Status is the manager-side view of one grammar.
type Status struct {
	ID       int
	Name     string
	Active   bool
	Newbie   bool // not merged yet
	Deleting bool // delete queued
}

// List returns every known grammar in id order.
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, Status{ID: e.id, Name: e.name, Active: e.active, Newbie: e.newbie, Deleting: e.deleted})
	}
	return out
}

// Pending returns the number of queued requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Current returns the generation in use.
func (m *Manager) Current() *Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Rebuilds returns how many structural rebuilds have run.
func (m *Manager) Rebuilds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuilds
}

// ExecChanges applies every queued request at once. The global grammar,
// dictionary and tree are rebuilt at most once, and only when grammars were
// added or deleted; activation changes reuse the current structure. When
// the rebuild fails nothing changes: the requests stay queued and the
// current generation stays in use.
func (m *Manager) ExecChanges() (*Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return m.current, nil
	}

	active := make(map[int]bool, len(m.entries))
	for _, e := range m.entries {
		active[e.id] = e.active
	}
	structural := false
	for _, h := range m.pending {
		switch h.op {
		case opAdd, opDelete:
			structural = true
		case opActivate:
			active[h.id] = true
		case opDeactivate:
			active[h.id] = false
		}
	}

	kept := m.entries
	var gen *Generation
	if structural {
		kept = make([]*entry, 0, len(m.entries))
		for _, e := range m.entries {
			if !e.deleted {
				kept = append(kept, e)
			}
		}
		var err error
		gen, err = m.merge(kept, active)
		if err != nil {
			return nil, err
		}
	} else {
		prev := m.current
		gen = &Generation{
			DFA:      prev.DFA,
			Dict:     prev.Dict,
			Tree:     prev.Tree,
			Grammars: append([]Info(nil), prev.Grammars...),
		}
		for i := range gen.Grammars {
			if a, ok := active[gen.Grammars[i].ID]; ok {
				gen.Grammars[i].Active = a
			}
		}
		gen.categoryActive = activity(gen.Grammars, gen.DFA.NumCategories)
	}

	for _, h := range m.pending {
		m.logger.WithFields(logrus.Fields{"op": h.op, "grammar": h.id}).Debug("grammar change")
	}
	for _, e := range kept {
		e.active = active[e.id]
		e.newbie = false
	}
	if structural {
		m.entries = kept
		m.rebuilds++
	}
	gen.Seq = m.current.Seq + 1
	m.pending = m.pending[:0]
	m.current = gen
	m.logger.WithFields(logrus.Fields{
		"generation": gen.Seq,
		"grammars":   len(gen.Grammars),
		"words":      gen.Dict.Len(),
		"rebuilt":    structural,
	}).Info("grammar changes applied")
	return gen, nil
}

// merge concatenates entries and builds the tree lexicon. It only reads
// manager state.
func (m *Manager) merge(entries []*entry, active map[int]bool) (*Generation, error) {
	gen := &Generation{DFA: language.NewDFA(), Dict: lexicon.NewDictionary()}
	for _, e := range entries {
		so, co := gen.DFA.Append(e.dfa)
		wo := gen.Dict.Append(e.dict, co)
		gen.Grammars = append(gen.Grammars, Info{
			ID:             e.id,
			Name:           e.name,
			Active:         active[e.id],
			StateOffset:    so,
			CategoryOffset: co,
			WordOffset:     wo,
			NumStates:      len(e.dfa.States),
			NumCategories:  e.dfa.NumCategories,
			NumWords:       e.dict.Len(),
		})
	}
	gen.DFA.Finalize()
	gen.categoryActive = activity(gen.Grammars, gen.DFA.NumCategories)

	if gen.Dict.Len() > 0 {
		tree, err := lexicon.Build(gen.Dict, m.set, m.opts)
		if err != nil {
			return nil, errors.Wrap(err, "build tree lexicon")
		}
		gen.Tree = tree
	}
	return gen, nil
}

func activity(gs []Info, numCategories int) []bool {
	act := make([]bool, numCategories)
	for _, g := range gs {
		if !g.Active {
			continue
		}
		for c := 0; c < g.NumCategories; c++ {
			act[g.CategoryOffset+c] = true
		}
	}
	return act
}
