package acoustic

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// serializable types for gob encoding
type serializedSet struct {
	Dim       int
	Codebooks []serializedCodebook
	States    []serializedState
	HMMs      []serializedHMM
	Logicals  map[string]string // logical -> physical, excluding identity entries
}

type serializedCodebook struct {
	Name      string
	Means     [][]float64
	Variances [][]float64
}

type serializedState struct {
	Name       string
	Codebook   int
	LogWeights []float64
}

type serializedHMM struct {
	Name   string
	States []int
	Trans  [][]float64
}

// Save serializes the model to a writer using gob encoding.
func (s *Set) Save(w io.Writer) error {
	ss := serializedSet{
		Dim:      s.Dim,
		Logicals: make(map[string]string),
	}
	for _, cb := range s.Codebooks {
		sc := serializedCodebook{Name: cb.Name}
		for _, d := range cb.Densities {
			sc.Means = append(sc.Means, d.Mean)
			sc.Variances = append(sc.Variances, d.Variance)
		}
		ss.Codebooks = append(ss.Codebooks, sc)
	}
	for _, st := range s.States {
		ss.States = append(ss.States, serializedState{
			Name:       st.Name,
			Codebook:   st.Codebook.ID,
			LogWeights: st.LogWeights,
		})
	}
	for _, name := range s.order {
		h := s.HMMs[name]
		sh := serializedHMM{Name: name, Trans: h.Trans}
		for _, st := range h.States {
			sh.States = append(sh.States, st.ID)
		}
		ss.HMMs = append(ss.HMMs, sh)
	}
	for name, l := range s.Logicals {
		if l.HMM != nil && l.HMM.Name != name {
			ss.Logicals[name] = l.HMM.Name
		}
	}
	return gob.NewEncoder(w).Encode(ss)
}

// Load deserializes and finalizes a model written by Save.
func Load(r io.Reader) (*Set, error) {
	var ss serializedSet
	if err := gob.NewDecoder(r).Decode(&ss); err != nil {
		return nil, errors.Wrap(err, "decode acoustic model")
	}

	codebooks := make([]*Codebook, len(ss.Codebooks))
	for i, sc := range ss.Codebooks {
		if len(sc.Means) != len(sc.Variances) {
			return nil, errors.Wrapf(ErrCorruptModel, "codebook %q: %d means, %d variances", sc.Name, len(sc.Means), len(sc.Variances))
		}
		ds := make([]*Density, len(sc.Means))
		for k := range sc.Means {
			if len(sc.Means[k]) != ss.Dim || len(sc.Variances[k]) != ss.Dim {
				return nil, errors.Wrapf(ErrDimensionMismatch, "codebook %q density %d", sc.Name, k)
			}
			ds[k] = NewDensity(sc.Means[k], sc.Variances[k])
		}
		codebooks[i] = NewCodebook(sc.Name, ds)
	}
	states := make([]*State, len(ss.States))
	for i, st := range ss.States {
		if st.Codebook < 0 || st.Codebook >= len(codebooks) {
			return nil, errors.Wrapf(ErrCorruptModel, "state %q: codebook %d out of range", st.Name, st.Codebook)
		}
		states[i] = NewTiedState(st.Name, codebooks[st.Codebook], st.LogWeights)
	}

	set := NewSet(ss.Dim)
	for _, sh := range ss.HMMs {
		hs := make([]*State, len(sh.States))
		for i, id := range sh.States {
			if id < 0 || id >= len(states) {
				return nil, errors.Wrapf(ErrCorruptModel, "hmm %q: state %d out of range", sh.Name, id)
			}
			hs[i] = states[id]
		}
		if err := set.AddHMM(&HMM{Name: sh.Name, States: hs, Trans: sh.Trans}); err != nil {
			return nil, err
		}
	}
	for name, phys := range ss.Logicals {
		if err := set.AddLogical(name, phys); err != nil {
			return nil, err
		}
	}
	if err := set.Finalize(); err != nil {
		return nil, err
	}
	return set, nil
}
