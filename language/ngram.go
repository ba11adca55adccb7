package language

import (
	"github.com/ieee0824/twopass/internal/mathutil"
)

// MaxOrder is the highest N-gram order the model stores.
const MaxOrder = 4

// Sentence markers and the unknown-word entry.
const (
	BOS     = "<s>"
	EOS     = "</s>"
	Unknown = "<unk>"
)

type gramKey [MaxOrder]int32

type ngramEntry struct {
	LogProb    float64 // log10
	LogBackoff float64 // log10
}

// NGramModel is a back-off N-gram model in one direction. Scores are log10.
type NGramModel struct {
	Order int
	Vocab []string

	// UnknownID is the id of <unk>, -1 when the model has none.
	UnknownID int
	// UnknownPenalty is added to the <unk> probability when an
	// out-of-vocabulary word is scored.
	UnknownPenalty float64

	ids   map[string]int
	grams [MaxOrder]map[gramKey]ngramEntry
}

// NewNGramModel creates an empty n-gram model.
func NewNGramModel(order int) *NGramModel {
	if order < 1 {
		order = 1
	}
	if order > MaxOrder {
		order = MaxOrder
	}
	m := &NGramModel{
		Order:     order,
		UnknownID: -1,
		ids:       make(map[string]int),
	}
	for i := range m.grams {
		m.grams[i] = make(map[gramKey]ngramEntry)
	}
	return m
}

// ID returns the vocabulary id of word, or -1.
func (m *NGramModel) ID(word string) int {
	if id, ok := m.ids[word]; ok {
		return id
	}
	return -1
}

func (m *NGramModel) intern(word string) int {
	if id, ok := m.ids[word]; ok {
		return id
	}
	id := len(m.Vocab)
	m.ids[word] = id
	m.Vocab = append(m.Vocab, word)
	if word == Unknown {
		m.UnknownID = id
	}
	return id
}

func makeKey(ids []int) gramKey {
	var k gramKey
	for i := range k {
		k[i] = -1
	}
	for i, id := range ids {
		k[i] = int32(id)
	}
	return k
}

// Set stores an n-gram (len(words) = n) with its probability and back-off.
func (m *NGramModel) Set(words []string, logProb, logBackoff float64) {
	n := len(words)
	if n == 0 || n > MaxOrder {
		return
	}
	ids := make([]int, n)
	for i, w := range words {
		ids[i] = m.intern(w)
	}
	if n > m.Order {
		m.Order = n
	}
	m.grams[n-1][makeKey(ids)] = ngramEntry{LogProb: logProb, LogBackoff: logBackoff}
}

// Count returns the number of stored n-grams of the given order.
func (m *NGramModel) Count(order int) int {
	if order < 1 || order > MaxOrder {
		return 0
	}
	return len(m.grams[order-1])
}

func (m *NGramModel) lookup(ids []int) (ngramEntry, bool) {
	e, ok := m.grams[len(ids)-1][makeKey(ids)]
	return e, ok
}

// Prob returns log10 P(w | history) with Katz back-off. history is in
// reading order; only its last Order-1 ids are used. Ids outside the
// vocabulary (negative) are scored as <unk> plus UnknownPenalty, or
// eliminated when the model has no <unk>.
func (m *NGramModel) Prob(history []int, w int) float64 {
	penalty := 0.0
	if w < 0 || w >= len(m.Vocab) {
		if m.UnknownID < 0 {
			return mathutil.LogZero
		}
		w = m.UnknownID
		penalty = m.UnknownPenalty
	}
	if n := m.Order - 1; len(history) > n {
		history = history[len(history)-n:]
	}
	// an unknown history word cuts the usable context
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] < 0 {
			history = history[i+1:]
			break
		}
	}
	return m.backoff(history, w) + penalty
}

func (m *NGramModel) backoff(history []int, w int) float64 {
	var buf [MaxOrder]int
	ids := append(buf[:0], history...)
	ids = append(ids, w)
	if e, ok := m.lookup(ids); ok {
		return e.LogProb
	}
	if len(history) == 0 {
		return mathutil.LogZero
	}
	bo := 0.0
	if e, ok := m.lookup(history); ok {
		bo = e.LogBackoff
	}
	return bo + m.backoff(history[1:], w)
}

// LogProb returns the log10 probability of a word given its history.
// Uses backoff when the exact n-gram is not found.
func (m *NGramModel) LogProb(history []string, word string) float64 {
	ids := make([]int, len(history))
	for i, h := range history {
		ids[i] = m.ID(h)
	}
	return m.Prob(ids, m.ID(word))
}

// SentenceLogProb returns the total log probability of a sentence (word sequence).
// Automatically adds <s> at the beginning and </s> at the end.
func (m *NGramModel) SentenceLogProb(words []string) float64 {
	total := 0.0
	history := []string{BOS}
	for _, w := range words {
		total += m.LogProb(history, w)
		history = append(history, w)
	}
	total += m.LogProb(history, EOS)
	return total
}

// NGram pairs the forward model with an optional reverse model trained on
// reversed sentences. Without a reverse model the second pass rescoring
// falls back to the forward model.
type NGram struct {
	Forward  *NGramModel
	Backward *NGramModel
}
