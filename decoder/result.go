package decoder

import "strings"

// Status tells how an utterance ended. Only StatusOK carries a full
// second-pass result; the others are per-utterance conditions, not errors.
type Status int

const (
	StatusOK Status = iota
	StatusInputTooShort
	StatusNoHypothesis
	StatusBudgetExhausted // second pass stopped early; best so far or first-pass fallback
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInputTooShort:
		return "input too short"
	case StatusNoHypothesis:
		return "no hypothesis"
	case StatusBudgetExhausted:
		return "budget exhausted"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Result holds the recognition output.
type Result struct {
	Status    Status
	Sentences []Sentence // best first
	Pass1     *Sentence  // first-pass best, nil when the first pass found none
	Stats     Stats
}

// Best returns the top sentence, or nil.
func (r *Result) Best() *Sentence {
	if len(r.Sentences) == 0 {
		return nil
	}
	return &r.Sentences[0]
}

// Sentence is one hypothesis with its score breakdown.
type Sentence struct {
	Words   []WordResult
	Score   float64 // combined log10 score
	AcScore float64
	LMScore float64 // unweighted
}

// IDs returns the word IDs in reading order.
func (s *Sentence) IDs() []int {
	ids := make([]int, len(s.Words))
	for i, w := range s.Words {
		ids[i] = w.ID
	}
	return ids
}

// Text joins the outputs of the sentence, skipping empty ones.
func (s *Sentence) Text(sep string) string {
	parts := make([]string, 0, len(s.Words))
	for _, w := range s.Words {
		if w.Output != "" {
			parts = append(parts, w.Output)
		}
	}
	return strings.Join(parts, sep)
}

// WordResult holds per-word timing and score information.
type WordResult struct {
	ID         int
	Name       string
	Output     string
	Begin      int
	End        int
	AcScore    float64
	LMScore    float64
	Confidence float64
}
