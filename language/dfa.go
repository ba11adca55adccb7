package language

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DFA state status bits.
const (
	StatusInitial uint8 = 1 << iota
	StatusAccept
)

// DFAArc is a transition labelled with a word category. In the incoming
// list of a state, To holds the source state.
type DFAArc struct {
	Category int
	To       int
}

// DFAState is one grammar state.
type DFAState struct {
	Status uint8
	Arcs   []DFAArc
	In     []DFAArc
}

// DFA is a finite-state grammar over word categories. Call Finalize after
// the last change; the category-pair table and the begin/end sets are
// extracted there.
type DFA struct {
	States        []DFAState
	NumCategories int

	cp      [][]uint64
	beginOK []bool
	endOK   []bool
}

// NewDFA creates an empty grammar.
func NewDFA() *DFA { return &DFA{} }

func (d *DFA) ensure(state int) {
	for len(d.States) <= state {
		d.States = append(d.States, DFAState{})
	}
}

// AddArc adds a transition from → to on category cat.
func (d *DFA) AddArc(from, cat, to int) {
	d.ensure(from)
	d.ensure(to)
	d.States[from].Arcs = append(d.States[from].Arcs, DFAArc{Category: cat, To: to})
	d.States[to].In = append(d.States[to].In, DFAArc{Category: cat, To: from})
	if cat+1 > d.NumCategories {
		d.NumCategories = cat + 1
	}
}

// SetStatus ors status bits into a state.
func (d *DFA) SetStatus(state int, status uint8) {
	d.ensure(state)
	d.States[state].Status |= status
}

// IsInitial reports whether a sentence may start in state s.
func (d *DFA) IsInitial(s int) bool { return d.States[s].Status&StatusInitial != 0 }

// IsAccept reports whether a sentence may end in state s.
func (d *DFA) IsAccept(s int) bool { return d.States[s].Status&StatusAccept != 0 }

// Finalize extracts the category-pair bitmap and begin/end category sets.
func (d *DFA) Finalize() {
	n := d.NumCategories
	words := (n + 63) / 64
	d.cp = make([][]uint64, n)
	for i := range d.cp {
		d.cp[i] = make([]uint64, words)
	}
	d.beginOK = make([]bool, n)
	d.endOK = make([]bool, n)
	for _, st := range d.States {
		for _, in := range st.In {
			for _, out := range st.Arcs {
				d.cp[in.Category][out.Category/64] |= 1 << (uint(out.Category) % 64)
			}
		}
		if st.Status&StatusInitial != 0 {
			for _, out := range st.Arcs {
				d.beginOK[out.Category] = true
			}
		}
		if st.Status&StatusAccept != 0 {
			for _, in := range st.In {
				d.endOK[in.Category] = true
			}
		}
	}
}

// CategoryPair reports whether category j may directly follow category i.
func (d *DFA) CategoryPair(i, j int) bool {
	if i < 0 || j < 0 || i >= len(d.cp) || j >= d.NumCategories {
		return false
	}
	return d.cp[i][j/64]&(1<<(uint(j)%64)) != 0
}

// BeginOK reports whether a sentence may start with category c.
func (d *DFA) BeginOK(c int) bool { return c >= 0 && c < len(d.beginOK) && d.beginOK[c] }

// EndOK reports whether a sentence may end with category c.
func (d *DFA) EndOK(c int) bool { return c >= 0 && c < len(d.endOK) && d.endOK[c] }

// Append copies other into d with state and category indices shifted past
// d's own, and returns the offsets used. Finalize must be called again.
func (d *DFA) Append(other *DFA) (stateOffset, catOffset int) {
	stateOffset = len(d.States)
	catOffset = d.NumCategories
	for s, st := range other.States {
		d.SetStatus(stateOffset+s, st.Status)
		for _, a := range st.Arcs {
			d.AddArc(stateOffset+s, catOffset+a.Category, stateOffset+a.To)
		}
	}
	if n := catOffset + other.NumCategories; n > d.NumCategories {
		d.NumCategories = n
	}
	return stateOffset, catOffset
}

// Accepts reports whether the category sequence is a sentence of the grammar.
func (d *DFA) Accepts(cats []int) bool {
	cur := make(map[int]bool)
	for s := range d.States {
		if d.IsInitial(s) {
			cur[s] = true
		}
	}
	for _, c := range cats {
		next := make(map[int]bool)
		for s := range cur {
			for _, a := range d.States[s].Arcs {
				if a.Category == c {
					next[a.To] = true
				}
			}
		}
		cur = next
	}
	for s := range cur {
		if d.IsAccept(s) {
			return true
		}
	}
	return false
}

// LoadDFA reads a grammar automaton. Each line is
//
//	from category to [accept [initial]]
//
// where category -1 declares no arc and only sets the status flags of from.
// State 0 is initial when no line marks one.
func LoadDFA(r io.Reader) (*DFA, error) {
	d := NewDFA()
	scanner := bufio.NewScanner(r)
	lineNum := 0
	initial := false
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.Errorf("dfa line %d: expected at least 3 fields", lineNum)
		}
		v := make([]int, len(fields))
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, errors.Wrapf(err, "dfa line %d", lineNum)
			}
			v[i] = n
		}
		from, cat, to := v[0], v[1], v[2]
		if from < 0 {
			return nil, errors.Errorf("dfa line %d: negative state", lineNum)
		}
		if cat >= 0 {
			if to < 0 {
				return nil, errors.Errorf("dfa line %d: arc without target", lineNum)
			}
			d.AddArc(from, cat, to)
		} else {
			d.ensure(from)
		}
		if len(v) > 3 && v[3] != 0 {
			d.SetStatus(from, StatusAccept)
		}
		if len(v) > 4 && v[4] != 0 {
			d.SetStatus(from, StatusInitial)
			initial = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(d.States) == 0 {
		return nil, errors.New("dfa: no states")
	}
	if !initial {
		d.SetStatus(0, StatusInitial)
	}
	d.Finalize()
	return d, nil
}

// LoadDFAFile opens path and reads it as a grammar automaton.
func LoadDFAFile(path string) (*DFA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadDFA(f)
}
