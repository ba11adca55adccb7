// Package decoder implements the two-pass search: a frame-synchronous beam
// search over the tree lexicon that leaves a word trellis, and a stack
// decoder that rescores the trellis with the full language model.
package decoder

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/feature"
	"github.com/ieee0824/twopass/internal/blas"
	"github.com/ieee0824/twopass/internal/logging"
	"github.com/ieee0824/twopass/lexicon"
)

// Decoder searches utterances against one model binding. It owns the
// output-probability engine and the trellis, so it is not safe for
// concurrent use.
type Decoder struct {
	set    *acoustic.Set
	dict   *lexicon.Dictionary
	tree   *lexicon.Tree
	lm     LM
	cfg    Config
	logger logrus.FieldLogger

	op      *acoustic.OutProb
	trellis Trellis
	p1      *pass1
	stats   Stats
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger for per-utterance statistics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Decoder) {
		d.logger = l
	}
}

// New binds the models. The tree must have been built from dict.
func New(set *acoustic.Set, dict *lexicon.Dictionary, tree *lexicon.Tree, lm LM, cfg Config, opts ...Option) (*Decoder, error) {
	if set == nil || dict == nil || tree == nil || lm == nil {
		return nil, errors.New("decoder: missing model")
	}
	if len(tree.WordPhone) != dict.Len() {
		return nil, errors.Errorf("decoder: tree covers %d words, dictionary has %d", len(tree.WordPhone), dict.Len())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		set:  set,
		dict: dict,
		tree: tree,
		lm:   lm,
		cfg:  cfg,
		op:   acoustic.NewOutProb(set, cfg.OutProb),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.Discard()
	}
	d.p1 = newPass1(d)
	d.logger.WithFields(logrus.Fields{
		"words":  tree.NumWords,
		"nodes":  len(tree.Nodes),
		"method": cfg.OutProb.Method.String(),
		"blas":   blas.Backend(),
	}).Debug("decoder ready")
	return d, nil
}

// Config returns the search parameters.
func (d *Decoder) Config() Config { return d.cfg }

// Trellis returns the trellis of the last utterance. It is overwritten by
// the next Decode.
func (d *Decoder) Trellis() *Trellis { return &d.trellis }

// DecodeFrames runs Decode over frames already in memory.
func (d *Decoder) DecodeFrames(ctx context.Context, frames [][]float64) (*Result, error) {
	return d.Decode(ctx, feature.NewSliceSource(d.set.Dim, frames))
}

// Decode recognizes one utterance. Conditions of the utterance itself are
// reported through Result.Status; an error means the engine is unusable
// with this configuration (dimension mismatch) or the source failed.
func (d *Decoder) Decode(ctx context.Context, src feature.Source) (*Result, error) {
	if src.Dim() != d.set.Dim {
		return nil, errors.Wrapf(acoustic.ErrDimensionMismatch, "source dimension %d, model dimension %d", src.Dim(), d.set.Dim)
	}
	d.stats = Stats{}
	d.trellis.Reset()
	d.op.Reset()
	d.p1.reset()
	defer d.op.Reset()

	start := time.Now()
	frames := 0
	alive := true
	for alive {
		if ctx.Err() != nil {
			return d.abort(), nil
		}
		x, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return d.abort(), nil
			}
			return nil, errors.Wrapf(err, "frame %d", frames)
		}
		if err := d.op.SetFrame(frames, x); err != nil {
			return nil, err
		}
		alive = d.p1.step(frames)
		frames++
	}
	d.stats.Pass1Time = time.Since(start)
	d.stats.Atoms = len(d.trellis.Atoms)
	d.collectEngineStats()

	if !alive {
		return d.finish(&Result{Status: StatusNoHypothesis}), nil
	}
	if frames < d.tree.MinFrames {
		d.trellis.Reset()
		d.stats.Atoms = 0
		return d.finish(&Result{Status: StatusInputTooShort}), nil
	}

	last := frames - 1
	best, bestScore := d.p1.best(last)
	if best < 0 {
		return d.finish(&Result{Status: StatusNoHypothesis}), nil
	}
	res := &Result{Status: StatusOK, Pass1: d.pass1Sentence(best, bestScore)}

	start = time.Now()
	p2 := newPass2(d)
	exhausted, err := p2.search(ctx, last)
	d.stats.Pass2Time = time.Since(start)
	if err != nil {
		return d.abort(), nil
	}
	res.Sentences = p2.sentences()
	switch {
	case exhausted && len(res.Sentences) == 0:
		res.Status = StatusBudgetExhausted
		res.Sentences = []Sentence{*res.Pass1}
	case exhausted:
		res.Status = StatusBudgetExhausted
	case len(res.Sentences) == 0:
		res.Status = StatusNoHypothesis
	}
	applyConfidence(res.Sentences, d.cfg.ConfidenceAlpha)
	return d.finish(res), nil
}

func (d *Decoder) abort() *Result {
	d.trellis.Reset()
	d.p1.reset()
	return &Result{Status: StatusAborted, Stats: d.stats}
}

func (d *Decoder) finish(r *Result) *Result {
	r.Stats = d.stats
	d.logger.WithFields(d.stats.Fields()).WithField("status", r.Status.String()).Debug("utterance decoded")
	return r
}

func (d *Decoder) collectEngineStats() {
	d.stats.States = d.op.Stats.States
	d.stats.Densities = d.op.Stats.Densities
	d.stats.DensitiesPruned = d.op.Stats.Pruned
}

func (d *Decoder) wordResult(a *Atom, lm float64) WordResult {
	w := &d.dict.Words[a.Word]
	return WordResult{
		ID:      w.ID,
		Name:    w.Name,
		Output:  w.Output,
		Begin:   a.Begin,
		End:     a.End,
		AcScore: a.AcLocal,
		LMScore: lm,
	}
}

// pass1Sentence follows the back-pointers of the best final atom.
func (d *Decoder) pass1Sentence(best int, score float64) *Sentence {
	s := &Sentence{Score: score, AcScore: d.trellis.Atoms[best].AcScore}
	for _, id := range d.trellis.Path(best) {
		a := &d.trellis.Atoms[id]
		s.Words = append(s.Words, d.wordResult(a, a.LMScore))
		s.LMScore += a.LMScore
	}
	a := &d.trellis.Atoms[best]
	if fs, ok := d.lm.Final(d.lm.Next(a.Ctx, a.Word)); ok {
		s.LMScore += fs
	}
	return s
}
