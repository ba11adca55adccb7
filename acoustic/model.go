package acoustic

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Logical maps a logical model name to exactly one of a physical HMM or a
// context-dependent pseudo set.
type Logical struct {
	Name string
	HMM  *HMM
	Set  *CDSet
}

// IsPseudo reports whether the name resolves to a pseudo set.
func (l *Logical) IsPseudo() bool { return l.Set != nil }

// NumStates returns the emitting state count of the resolved model.
func (l *Logical) NumStates() int {
	if l.Set != nil {
		return len(l.Set.States)
	}
	return l.HMM.NumStates()
}

// Trans returns the transition matrix of the resolved model.
func (l *Logical) Trans() [][]float64 {
	if l.Set != nil {
		return l.Set.Trans
	}
	return l.HMM.Trans
}

// MinFrames returns the fewest frames needed to traverse the resolved model.
func (l *Logical) MinFrames() int { return minFrames(l.Trans()) }

// CDSet aggregates the states of every physical model sharing a partial
// context ("l-c", "c+r" or "c"). It stands in for a word-edge triphone whose
// other context is only known during search.
type CDSet struct {
	Name    string
	States  [][]*State // per emitting position, de-duplicated
	Trans   [][]float64
	Members []*HMM
}

func (cd *CDSet) add(h *HMM) {
	if len(cd.Members) == 0 {
		cd.Trans = h.Trans
		cd.States = make([][]*State, h.NumStates())
	} else if h.NumStates() != len(cd.States) {
		return
	}
	for _, m := range cd.Members {
		if m == h {
			return
		}
	}
	cd.Members = append(cd.Members, h)
	for i, s := range h.States {
		dup := false
		for _, e := range cd.States[i] {
			if e == s {
				dup = true
				break
			}
		}
		if !dup {
			cd.States[i] = append(cd.States[i], s)
		}
	}
}

// Set is the acoustic model: every physical HMM, its states and codebooks,
// logical-name mapping and the derived pseudo sets. Immutable after Finalize.
type Set struct {
	Dim       int
	HMMs      map[string]*HMM
	Logicals  map[string]*Logical
	CDSets    map[string]*CDSet
	States    []*State
	Codebooks []*Codebook

	order     []string // physical insertion order, for deterministic iteration
	triphone  bool
	finalized bool
}

// NewSet creates an empty model of the given feature dimension.
func NewSet(dim int) *Set {
	return &Set{
		Dim:      dim,
		HMMs:     make(map[string]*HMM),
		Logicals: make(map[string]*Logical),
		CDSets:   make(map[string]*CDSet),
	}
}

// AddHMM registers a physical model under its own logical name and assigns
// dense IDs to new states and codebooks.
func (s *Set) AddHMM(h *HMM) error {
	if s.finalized {
		return errors.New("acoustic: set already finalized")
	}
	if _, ok := s.HMMs[h.Name]; ok {
		return errors.Wrapf(ErrCorruptModel, "duplicate hmm %q", h.Name)
	}
	if err := h.validate(s.Dim); err != nil {
		return err
	}
	for _, st := range h.States {
		if st.Codebook.ID < 0 {
			st.Codebook.ID = len(s.Codebooks)
			s.Codebooks = append(s.Codebooks, st.Codebook)
		}
		if st.ID < 0 {
			st.ID = len(s.States)
			s.States = append(s.States, st)
		}
	}
	s.HMMs[h.Name] = h
	s.order = append(s.order, h.Name)
	s.Logicals[h.Name] = &Logical{Name: h.Name, HMM: h}
	return nil
}

// AddLogical maps a logical name onto an already registered physical model,
// as an HTK HMMList line "logical physical" does.
func (s *Set) AddLogical(name, physical string) error {
	h, ok := s.HMMs[physical]
	if !ok {
		return errors.Wrapf(ErrCorruptModel, "logical %q: unknown physical hmm %q", name, physical)
	}
	if l, ok := s.Logicals[name]; ok && l.HMM != h {
		return errors.Wrapf(ErrCorruptModel, "logical %q already maps to %q", name, l.HMM.Name)
	}
	s.Logicals[name] = &Logical{Name: name, HMM: h}
	return nil
}

// Finalize validates the model and derives the pseudo sets. After Finalize
// the set is read-only.
func (s *Set) Finalize() error {
	if s.finalized {
		return nil
	}
	if s.Dim <= 0 {
		return errors.Wrapf(ErrCorruptModel, "invalid dimension %d", s.Dim)
	}
	if len(s.HMMs) == 0 {
		return errors.Wrap(ErrCorruptModel, "no hmm defined")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	names := make([]string, 0, len(s.Logicals))
	for name := range s.Logicals {
		names = append(names, name)
		if strings.ContainsAny(name, "-+") {
			s.triphone = true
		}
	}
	sort.Strings(names)

	if s.triphone {
		for _, name := range names {
			l := s.Logicals[name]
			left, center, right := SplitName(name)
			if left != "" {
				s.cdset(left + "-" + center).add(l.HMM)
			}
			if right != "" {
				s.cdset(center + "+" + right).add(l.HMM)
			}
			s.cdset(center).add(l.HMM)
		}
		for name, cd := range s.CDSets {
			if _, ok := s.Logicals[name]; !ok {
				s.Logicals[name] = &Logical{Name: name, Set: cd}
			}
		}
	}
	s.finalized = true
	return nil
}

// Validate re-checks every physical model against the set dimension.
func (s *Set) Validate() error {
	for _, name := range s.order {
		if err := s.HMMs[name].validate(s.Dim); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) cdset(name string) *CDSet {
	cd, ok := s.CDSets[name]
	if !ok {
		cd = &CDSet{Name: name}
		s.CDSets[name] = cd
	}
	return cd
}

// IsTriphone reports whether any logical name carries phone context.
func (s *Set) IsTriphone() bool { return s.triphone }

// Lookup returns the logical model for name, or nil.
func (s *Set) Lookup(name string) *Logical { return s.Logicals[name] }

// Resolve finds the best available model for center in the given context,
// backing off "l-c+r" → "l-c" / "c+r" → "c". Empty contexts are unknown.
func (s *Set) Resolve(left, center, right string) *Logical {
	candidates := []string{MakeTriphone(left, center, right)}
	if left != "" && right != "" {
		candidates = append(candidates, MakeTriphone(left, center, ""), MakeTriphone("", center, right))
	}
	candidates = append(candidates, center)
	for _, c := range candidates {
		if l := s.Logicals[c]; l != nil {
			return l
		}
	}
	return nil
}

// PhysicalNames lists physical model names in insertion order.
func (s *Set) PhysicalNames() []string {
	return append([]string(nil), s.order...)
}

// NumStates returns the number of distinct emitting states.
func (s *Set) NumStates() int { return len(s.States) }
