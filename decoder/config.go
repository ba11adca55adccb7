package decoder

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ieee0824/twopass/acoustic"
)

// Factoring selects the language-model estimate applied inside the tree.
type Factoring int

const (
	// Factoring2Gram uses the best bigram of the reachable words.
	Factoring2Gram Factoring = iota
	// Factoring1Gram uses the best unigram of the reachable words.
	Factoring1Gram
)

// ParseFactoring parses "1gram" or "2gram".
func ParseFactoring(s string) (Factoring, error) {
	switch strings.ToLower(s) {
	case "2gram", "2", "bigram":
		return Factoring2Gram, nil
	case "1gram", "1", "unigram":
		return Factoring1Gram, nil
	}
	return 0, errors.Errorf("unknown factoring %q", s)
}

// Heuristic selects the look-ahead estimate of the second pass.
type Heuristic int

const (
	// HeuristicTrellis uses the first-pass forward score at the boundary.
	HeuristicTrellis Heuristic = iota
	// HeuristicAcoustic uses the best acoustic-only forward score.
	HeuristicAcoustic
)

// ParseHeuristic parses "trellis" or "acoustic".
func ParseHeuristic(s string) (Heuristic, error) {
	switch strings.ToLower(s) {
	case "trellis":
		return HeuristicTrellis, nil
	case "acoustic":
		return HeuristicAcoustic, nil
	}
	return 0, errors.Errorf("unknown heuristic %q", s)
}

// Config holds search parameters. Scores and widths are log10.
type Config struct {
	OutProb acoustic.OutProbConfig

	BeamWidth       float64 // first-pass score beam
	MaxActiveTokens int     // rank cap after the score beam
	LMWeight        float64
	Penalty         float64 // word insertion penalty
	Factoring       Factoring
	WordPair        bool // keep several contexts per node
	WordPairLimit   int  // contexts kept per node in word-pair mode

	LMWeight2       float64
	Penalty2        float64
	NBest           int
	EnvelopeWidth   int // hypotheses expanded per boundary frame
	StackSize       int
	MaxExpansions   int
	Timeout         time.Duration // 0 disables
	Heuristic       Heuristic
	ConfidenceAlpha float64
}

// DefaultConfig returns reasonable default parameters.
func DefaultConfig() Config {
	return Config{
		OutProb:         acoustic.DefaultOutProbConfig(),
		BeamWidth:       80.0,
		MaxActiveTokens: 1500,
		LMWeight:        8.0,
		Penalty:         -2.0,
		Factoring:       Factoring2Gram,
		WordPairLimit:   3,
		LMWeight2:       8.0,
		Penalty2:        -2.0,
		NBest:           5,
		EnvelopeWidth:   30,
		StackSize:       500,
		MaxExpansions:   2000,
		Heuristic:       HeuristicTrellis,
		ConfidenceAlpha: 0.05,
	}
}

func (c Config) validate() error {
	switch {
	case c.BeamWidth <= 0:
		return errors.Errorf("beam width must be positive, got %g", c.BeamWidth)
	case c.MaxActiveTokens <= 0:
		return errors.Errorf("max active tokens must be positive, got %d", c.MaxActiveTokens)
	case c.WordPair && c.WordPairLimit <= 0:
		return errors.Errorf("word pair limit must be positive, got %d", c.WordPairLimit)
	case c.NBest <= 0:
		return errors.Errorf("nbest must be positive, got %d", c.NBest)
	case c.EnvelopeWidth <= 0 || c.StackSize <= 0 || c.MaxExpansions <= 0:
		return errors.New("second pass limits must be positive")
	}
	return nil
}
