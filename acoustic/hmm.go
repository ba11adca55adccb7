package acoustic

import (
	"math"

	"github.com/pkg/errors"

	"github.com/ieee0824/twopass/internal/mathutil"
)

// HMM is a physical left-to-right model.
// Trans indices: [0]=entry (non-emitting), [1..n]=emitting, [n+1]=exit (non-emitting).
// Transition scores are log10.
type HMM struct {
	Name   string
	States []*State
	Trans  [][]float64
}

// NewHMM creates a left-to-right HMM over states with 0.5 self-loop and
// 0.5 forward transitions.
func NewHMM(name string, states []*State) *HMM {
	n := len(states)
	h := &HMM{
		Name:   name,
		States: states,
		Trans:  mathutil.NewLogMat(n+2, n+2),
	}
	h.Trans[0][1] = 0.0
	half := math.Log10(0.5)
	for i := 1; i <= n; i++ {
		h.Trans[i][i] = half
		h.Trans[i][i+1] = half
	}
	return h
}

// NumStates returns the number of emitting states.
func (h *HMM) NumStates() int { return len(h.States) }

// Exit returns the index of the non-emitting exit state.
func (h *HMM) Exit() int { return len(h.States) + 1 }

// HasTee reports whether the model can be traversed without emitting (entry→exit).
func (h *HMM) HasTee() bool {
	return h.Trans[0][h.Exit()] > mathutil.LogZero/2
}

// MinFrames returns the fewest emitting states on any entry→exit path.
// A tee model returns 0.
func (h *HMM) MinFrames() int { return minFrames(h.Trans) }

// minFrames returns -1 when the exit state is unreachable.
func minFrames(trans [][]float64) int {
	n := len(trans)
	const inf = math.MaxInt32
	dist := make([]int, n)
	for i := range dist {
		dist[i] = inf
	}
	dist[0] = 0
	// Left-to-right with possible skips: relax in index order; backward arcs
	// never shorten an emitting count so one pass plus a repeat is enough.
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < n; i++ {
			if dist[i] == inf {
				continue
			}
			for j := 1; j < n; j++ {
				if j == i || trans[i][j] <= mathutil.LogZero/2 {
					continue
				}
				cost := dist[i]
				if j != n-1 {
					cost++
				}
				if cost < dist[j] {
					dist[j] = cost
				}
			}
		}
	}
	if dist[n-1] == inf {
		return -1
	}
	return dist[n-1]
}

func (h *HMM) validate(dim int) error {
	n := len(h.States)
	if n == 0 {
		return errors.Wrapf(ErrCorruptModel, "hmm %q has no emitting states", h.Name)
	}
	if len(h.Trans) != n+2 {
		return errors.Wrapf(ErrCorruptModel, "hmm %q: transition matrix has %d rows, want %d", h.Name, len(h.Trans), n+2)
	}
	for i, row := range h.Trans {
		if len(row) != n+2 {
			return errors.Wrapf(ErrCorruptModel, "hmm %q: transition row %d has %d cols, want %d", h.Name, i, len(row), n+2)
		}
	}
	for i, s := range h.States {
		if s == nil || s.Codebook == nil {
			return errors.Wrapf(ErrCorruptModel, "hmm %q: state %d is empty", h.Name, i+1)
		}
		if s.Codebook.Dim != dim {
			return errors.Wrapf(ErrDimensionMismatch, "hmm %q state %d: dim %d, model dim %d", h.Name, i+1, s.Codebook.Dim, dim)
		}
		if len(s.LogWeights) != s.Codebook.Len() {
			return errors.Wrapf(ErrCorruptModel, "hmm %q state %d: %d weights for %d densities", h.Name, i+1, len(s.LogWeights), s.Codebook.Len())
		}
	}
	if h.MinFrames() < 0 {
		return errors.Wrapf(ErrCorruptModel, "hmm %q: exit state unreachable", h.Name)
	}
	return nil
}
