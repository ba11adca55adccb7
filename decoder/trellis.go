package decoder

// Atom is a word-end hypothesis of the first pass.
type Atom struct {
	Word    int
	Ctx     int // LM context the word was entered with
	Begin   int
	End     int
	Score   float64 // accumulated total up to End
	AcScore float64 // accumulated acoustic up to End
	LMScore float64 // first-pass LM score of Word alone
	AcLocal float64 // acoustic of Word alone
	Back    int     // previous atom, -1 at sentence start
}

// Trellis is the append-only arena of atoms of one utterance, indexed by
// end frame.
type Trellis struct {
	Atoms []Atom
	byEnd [][]int
}

// Reset drops every atom.
func (tr *Trellis) Reset() {
	tr.Atoms = tr.Atoms[:0]
	for i := range tr.byEnd {
		tr.byEnd[i] = tr.byEnd[i][:0]
	}
	tr.byEnd = tr.byEnd[:0]
}

// Frames returns one past the last frame any atom ends at.
func (tr *Trellis) Frames() int { return len(tr.byEnd) }

func (tr *Trellis) add(a Atom) int {
	for len(tr.byEnd) <= a.End {
		tr.byEnd = append(tr.byEnd, nil)
	}
	id := len(tr.Atoms)
	tr.Atoms = append(tr.Atoms, a)
	tr.byEnd[a.End] = append(tr.byEnd[a.End], id)
	return id
}

// EndingAt returns the atoms that end at frame t.
func (tr *Trellis) EndingAt(t int) []int {
	if t < 0 || t >= len(tr.byEnd) {
		return nil
	}
	return tr.byEnd[t]
}

// Path follows back-pointers from atom id and returns the chain in
// reading order.
func (tr *Trellis) Path(id int) []int {
	var path []int
	for ; id >= 0; id = tr.Atoms[id].Back {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
