package acoustic

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ieee0824/twopass/internal/blas"
	"github.com/ieee0824/twopass/internal/mathutil"
	"github.com/ieee0824/twopass/internal/simd"
)

// PruneMethod selects how densities of a codebook are evaluated per frame.
type PruneMethod int

const (
	// PruneNone evaluates every density and sums the whole mixture.
	PruneNone PruneMethod = iota
	// PruneSafe keeps the exact top-N densities, abandoning a density as soon
	// as its partial distance cannot enter the top-N.
	PruneSafe
	// PruneHeuristic evaluates the previous frame's top-N first and abandons
	// other densities on an extrapolated partial distance.
	PruneHeuristic
	// PruneBeam abandons densities whose partial score falls more than a
	// fixed beam below the best density found so far.
	PruneBeam
)

var pruneNames = map[PruneMethod]string{
	PruneNone:      "none",
	PruneSafe:      "safe",
	PruneHeuristic: "heuristic",
	PruneBeam:      "beam",
}

func (m PruneMethod) String() string {
	if s, ok := pruneNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParsePruneMethod parses "none", "safe", "heuristic" or "beam".
func ParsePruneMethod(s string) (PruneMethod, error) {
	for m, name := range pruneNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, errors.Errorf("unknown gaussian pruning method %q", s)
}

// CDMethod selects how a pseudo set's candidate states are combined.
type CDMethod int

const (
	CDMax  CDMethod = iota // best candidate
	CDAvg                  // mean of all candidates
	CDBest                 // mean of the best CDBestN candidates
)

// ParseCDMethod parses "max", "avg" or "best".
func ParseCDMethod(s string) (CDMethod, error) {
	switch strings.ToLower(s) {
	case "max":
		return CDMax, nil
	case "avg":
		return CDAvg, nil
	case "best":
		return CDBest, nil
	}
	return 0, errors.Errorf("unknown context-set method %q", s)
}

// OutProbConfig configures the output-probability engine.
type OutProbConfig struct {
	Method   PruneMethod
	TopN     int     // densities kept per codebook and frame; 0 keeps all
	Beam     float64 // log10 width for PruneBeam
	CDMethod CDMethod
	CDBestN  int
}

// DefaultOutProbConfig returns safe pruning with an 8-best codebook cache.
func DefaultOutProbConfig() OutProbConfig {
	return OutProbConfig{
		Method:   PruneSafe,
		TopN:     8,
		Beam:     4.0,
		CDMethod: CDBest,
		CDBestN:  3,
	}
}

// Scored is one evaluated density: codebook index and natural-log score.
type Scored struct {
	ID    int
	Score float64
}

// OutProbStats counts work done by the engine.
type OutProbStats struct {
	Frames    int64
	States    int64 // state evaluations (cache misses)
	Densities int64 // densities fully evaluated
	Pruned    int64 // densities abandoned early
}

type cbCache struct {
	stamp int
	top   []Scored
	prev  []int // top IDs of the previous evaluated frame
}

// OutProb computes per-frame log10 output probabilities of states against one
// feature vector. Results are cached per frame; SetFrame invalidates them.
// Not safe for concurrent use.
type OutProb struct {
	set *Set
	cfg OutProbConfig

	frame int
	gen   int
	x     []float64

	stateScore []float64
	stateStamp []int
	cb         []cbCache
	mark       []int
	markGen    int

	xx    []float64 // [x², x] of the current frame
	xxGen int
	maha  []float64

	Stats OutProbStats
}

// NewOutProb creates an engine over a finalized set.
func NewOutProb(set *Set, cfg OutProbConfig) *OutProb {
	o := &OutProb{
		set:        set,
		cfg:        cfg,
		frame:      -1,
		stateScore: make([]float64, set.NumStates()),
		stateStamp: make([]int, set.NumStates()),
		cb:         make([]cbCache, len(set.Codebooks)),
	}
	maxK := 0
	for _, c := range set.Codebooks {
		if c.Len() > maxK {
			maxK = c.Len()
		}
	}
	o.mark = make([]int, maxK)
	o.Reset()
	return o
}

// Config returns the engine configuration.
func (o *OutProb) Config() OutProbConfig { return o.cfg }

// Reset prepares for a new utterance: caches and previous-frame rankings are dropped.
func (o *OutProb) Reset() {
	o.gen++
	o.frame = -1
	o.x = nil
	for i := range o.stateStamp {
		o.stateStamp[i] = -1
	}
	for i := range o.cb {
		o.cb[i].stamp = -1
		o.cb[i].prev = o.cb[i].prev[:0]
	}
	o.Stats = OutProbStats{}
}

// SetFrame makes x the current observation for frame t. A vector whose length
// differs from the model dimension is a fatal configuration error.
func (o *OutProb) SetFrame(t int, x []float64) error {
	if len(x) != o.set.Dim {
		return errors.Wrapf(ErrDimensionMismatch, "frame %d: vector length %d, model dimension %d", t, len(x), o.set.Dim)
	}
	o.gen++
	o.frame = t
	o.x = x
	o.Stats.Frames++
	return nil
}

// Frame returns the current frame index, -1 before the first SetFrame.
func (o *OutProb) Frame() int { return o.frame }

// State returns the log10 output probability of s at the current frame.
func (o *OutProb) State(s *State) float64 {
	if o.stateStamp[s.ID] == o.gen {
		return o.stateScore[s.ID]
	}
	o.Stats.States++
	sum := mathutil.LogZero
	for _, g := range o.Codebook(s.Codebook) {
		w := s.LogWeights[g.ID]
		if w <= mathutil.LogZero {
			continue
		}
		sum = mathutil.LogAdd(sum, w+g.Score)
	}
	v := mathutil.ToLog10(sum)
	o.stateScore[s.ID] = v
	o.stateStamp[s.ID] = o.gen
	return v
}

// CDSet returns the log10 score of a pseudo set at emitting position pos,
// combining candidates by the configured CDMethod.
func (o *OutProb) CDSet(cd *CDSet, pos int) float64 {
	states := cd.States[pos]
	if len(states) == 0 {
		return mathutil.LogZero
	}
	switch o.cfg.CDMethod {
	case CDAvg:
		sum := 0.0
		for _, s := range states {
			sum += o.State(s)
		}
		return sum / float64(len(states))
	case CDBest:
		n := o.cfg.CDBestN
		if n <= 0 || n > len(states) {
			n = len(states)
		}
		var buf [16]float64
		scores := buf[:0]
		for _, s := range states {
			scores = append(scores, o.State(s))
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
		sum := 0.0
		for _, v := range scores[:n] {
			sum += v
		}
		return sum / float64(n)
	default:
		best := mathutil.LogZero
		for _, s := range states {
			if v := o.State(s); v > best {
				best = v
			}
		}
		return best
	}
}

// Codebook returns the evaluated densities of cb at the current frame, best
// first. Under PruneNone every density is present; otherwise at most TopN.
func (o *OutProb) Codebook(cb *Codebook) []Scored {
	c := &o.cb[cb.ID]
	if c.stamp == o.gen {
		return c.top
	}
	keep := o.cfg.TopN
	if keep <= 0 || keep > cb.Len() {
		keep = cb.Len()
	}
	c.top = c.top[:0]
	switch o.cfg.Method {
	case PruneNone:
		o.computeAll(cb, c)
	case PruneHeuristic:
		o.computeHeuristic(cb, c, keep)
	case PruneBeam:
		o.computeBeam(cb, c, keep)
	default:
		o.computeSafe(cb, c, keep)
	}
	c.prev = c.prev[:0]
	for _, g := range c.top {
		c.prev = append(c.prev, g.ID)
	}
	c.stamp = o.gen
	return c.top
}

// computeAll scores the whole codebook with one matrix-vector product.
func (o *OutProb) computeAll(cb *Codebook, c *cbCache) {
	n := cb.Len()
	if n == 0 {
		return
	}
	if o.xxGen != o.gen {
		o.xx = o.xx[:0]
		for _, v := range o.x {
			o.xx = append(o.xx, v*v)
		}
		o.xx = append(o.xx, o.x...)
		o.xxGen = o.gen
	}
	if cap(o.maha) < n {
		o.maha = make([]float64, n)
	}
	maha := o.maha[:n]
	blas.Dgemv(n, 2*cb.Dim, 1, cb.proj, 2*cb.Dim, o.xx, 0, maha)
	for k, m := range maha {
		c.top = insertTop(c.top, Scored{ID: k, Score: -cb.gconst[k] - 0.5*(m+cb.projConst[k])}, n)
	}
	o.Stats.Densities += int64(n)
}

// bounded evaluates density k unless its cost provably exceeds maxCost.
func (o *OutProb) bounded(cb *Codebook, k int, maxCost float64) (float64, bool) {
	mb := 2 * (maxCost - cb.gconst[k])
	if mb < 0 {
		o.Stats.Pruned++
		return 0, false
	}
	mean, invVar := cb.row(k)
	maha, _, done := simd.MahalanobisBounded(o.x, mean, invVar, mb)
	if !done {
		o.Stats.Pruned++
		return 0, false
	}
	o.Stats.Densities++
	return -cb.gconst[k] - 0.5*maha, true
}

func (o *OutProb) computeSafe(cb *Codebook, c *cbCache, keep int) {
	for k := 0; k < cb.Len(); k++ {
		if len(c.top) < keep {
			o.Stats.Densities++
			c.top = insertTop(c.top, Scored{ID: k, Score: cb.score(k, o.x)}, keep)
			continue
		}
		if s, ok := o.bounded(cb, k, -c.top[keep-1].Score); ok {
			c.top = insertTop(c.top, Scored{ID: k, Score: s}, keep)
		}
	}
}

func (o *OutProb) nextMark() int {
	o.markGen++
	return o.markGen
}

func (o *OutProb) computeHeuristic(cb *Codebook, c *cbCache, keep int) {
	if len(c.prev) == 0 {
		o.computeSafe(cb, c, keep)
		return
	}
	m := o.nextMark()
	for _, k := range c.prev {
		o.mark[k] = m
		o.Stats.Densities++
		c.top = insertTop(c.top, Scored{ID: k, Score: cb.score(k, o.x)}, keep)
	}
	minDims := cb.Dim / 2
	if minDims < 1 {
		minDims = 1
	}
	for k := 0; k < cb.Len(); k++ {
		if o.mark[k] == m {
			continue
		}
		if len(c.top) < keep {
			o.Stats.Densities++
			c.top = insertTop(c.top, Scored{ID: k, Score: cb.score(k, o.x)}, keep)
			continue
		}
		mb := 2 * (-c.top[keep-1].Score - cb.gconst[k])
		if mb < 0 {
			o.Stats.Pruned++
			continue
		}
		mean, invVar := cb.row(k)
		maha, ok := simd.MahalanobisExtrapolated(o.x, mean, invVar, mb, minDims)
		if !ok {
			o.Stats.Pruned++
			continue
		}
		o.Stats.Densities++
		c.top = insertTop(c.top, Scored{ID: k, Score: -cb.gconst[k] - 0.5*maha}, keep)
	}
}

func (o *OutProb) computeBeam(cb *Codebook, c *cbCache, keep int) {
	width := o.cfg.Beam * math.Ln10
	best := math.Inf(-1)
	m := o.nextMark()
	try := func(k int) {
		o.mark[k] = m
		var s float64
		if math.IsInf(best, -1) {
			o.Stats.Densities++
			s = cb.score(k, o.x)
		} else {
			maxCost := -(best - width)
			if len(c.top) == keep && -c.top[keep-1].Score < maxCost {
				maxCost = -c.top[keep-1].Score
			}
			var ok bool
			if s, ok = o.bounded(cb, k, maxCost); !ok {
				return
			}
		}
		if s > best {
			best = s
		}
		c.top = insertTop(c.top, Scored{ID: k, Score: s}, keep)
	}
	// The previous best gives a tight threshold from the start.
	if len(c.prev) > 0 {
		try(c.prev[0])
	}
	for k := 0; k < cb.Len(); k++ {
		if o.mark[k] != m {
			try(k)
		}
	}
	// Drop early entries that fell outside the final beam.
	n := len(c.top)
	for n > 1 && c.top[n-1].Score < best-width {
		n--
	}
	o.Stats.Pruned += int64(len(c.top) - n)
	c.top = c.top[:n]
}

// insertTop inserts s into top (sorted best first) and truncates to keep.
func insertTop(top []Scored, s Scored, keep int) []Scored {
	i := sort.Search(len(top), func(i int) bool { return top[i].Score < s.Score })
	if i >= keep {
		return top
	}
	if len(top) < keep {
		top = append(top, Scored{})
	}
	copy(top[i+1:], top[i:len(top)-1])
	top[i] = s
	return top
}
