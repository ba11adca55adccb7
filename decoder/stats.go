package decoder

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Stats counts the work done for one utterance. Diagnostic only.
type Stats struct {
	Frames    int
	Tokens    int64 // tokens surviving pruning, summed over frames
	MaxTokens int
	Pruned    int64 // tokens dropped by the beam or the rank cap
	Atoms     int

	States          int64 // state output evaluations
	Densities       int64
	DensitiesPruned int64

	Pops       int
	Expansions int

	Pass1Time time.Duration
	Pass2Time time.Duration
}

// Fields renders the statistics for structured logging.
func (s Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"frames":           s.Frames,
		"tokens":           s.Tokens,
		"max_tokens":       s.MaxTokens,
		"pruned":           s.Pruned,
		"atoms":            s.Atoms,
		"states":           s.States,
		"densities":        s.Densities,
		"densities_pruned": s.DensitiesPruned,
		"pops":             s.Pops,
		"expansions":       s.Expansions,
		"pass1":            s.Pass1Time,
		"pass2":            s.Pass2Time,
	}
}
