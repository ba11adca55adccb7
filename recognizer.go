// Package twopass is a two-pass speech recognition search engine. A
// Recognizer binds an acoustic model to either an N-gram language model or
// a set of grammars, and decodes feature-vector streams into N-best
// sentences.
package twopass

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/decoder"
	"github.com/ieee0824/twopass/feature"
	"github.com/ieee0824/twopass/grammar"
	"github.com/ieee0824/twopass/internal/logging"
	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

// ErrNoGrammar is returned when a grammar recognizer holds no grammar at
// all. Deactivated grammars still count as loaded.
var ErrNoGrammar = errors.New("no grammar loaded")

// Recognizer is the top-level speech recognizer. Utterances are decoded
// one at a time; Abort and grammar requests may come from any goroutine.
type Recognizer struct {
	set    *acoustic.Set
	cfg    decoder.Config
	build  lexicon.BuildOptions
	logger logrus.FieldLogger

	grammars *grammar.Manager
	gen      *grammar.Generation

	mu    sync.Mutex
	dec   *decoder.Decoder
	fatal error

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLogger sets the logger for the recognizer and the engines it creates.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Recognizer) {
		r.logger = l
	}
}

// WithDecoderConfig sets custom search parameters.
func WithDecoderConfig(cfg decoder.Config) Option {
	return func(r *Recognizer) {
		r.cfg = cfg
	}
}

// WithBuildOptions sets the tree lexicon options.
func WithBuildOptions(opts lexicon.BuildOptions) Option {
	return func(r *Recognizer) {
		r.build = opts
	}
}

func newRecognizer(set *acoustic.Set, opts []Option) *Recognizer {
	r := &Recognizer{
		set:   set,
		cfg:   decoder.DefaultConfig(),
		build: lexicon.DefaultBuildOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	return r
}

// NewNGramRecognizer creates a recognizer driven by an N-gram pair.
func NewNGramRecognizer(set *acoustic.Set, dict *lexicon.Dictionary, lm *language.NGram, opts ...Option) (*Recognizer, error) {
	r := newRecognizer(set, opts)
	tree, err := lexicon.Build(dict, set, r.build)
	if err != nil {
		return nil, errors.Wrap(err, "build tree lexicon")
	}
	nlm, err := decoder.NewNGramLM(dict, lm, r.cfg.Factoring)
	if err != nil {
		return nil, err
	}
	r.dec, err = decoder.New(set, dict, tree, nlm, r.cfg, decoder.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{
		"words": dict.Len(),
		"nodes": len(tree.Nodes),
		"order": lm.Forward.Order,
		"rev":   lm.Backward != nil,
	}).Info("n-gram recognizer ready")
	return r, nil
}

// NewGrammarRecognizer creates a recognizer driven by grammars. Add them
// through Grammars; they take effect at the start of the next utterance.
func NewGrammarRecognizer(set *acoustic.Set, opts ...Option) *Recognizer {
	r := newRecognizer(set, opts)
	r.grammars = grammar.NewManager(set, grammar.WithLogger(r.logger), grammar.WithBuildOptions(r.build))
	return r
}

// Grammars returns the grammar manager, nil for an N-gram recognizer.
func (r *Recognizer) Grammars() *grammar.Manager { return r.grammars }

// Err returns the fatal error that made the recognizer unusable, if any.
func (r *Recognizer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// Dim returns the feature dimension the acoustic model expects.
func (r *Recognizer) Dim() int { return r.set.Dim }

// RecognizeFile decodes an HTK parameter file. Mean normalization and
// delta coefficients are added when the file lacks them and the model
// expects them.
func (r *Recognizer) RecognizeFile(ctx context.Context, path string) (*decoder.Result, error) {
	h, err := feature.LoadHTKFile(path)
	if err != nil {
		return nil, err
	}
	frames := feature.ForHTK(h, r.set.Dim).Apply(h.Frames)
	return r.Recognize(ctx, frames)
}

// Recognize decodes frames already in memory.
func (r *Recognizer) Recognize(ctx context.Context, frames [][]float64) (*decoder.Result, error) {
	return r.RecognizeStream(ctx, feature.NewSliceSource(r.set.Dim, frames))
}

// RecognizeStream decodes one utterance read from src.
func (r *Recognizer) RecognizeStream(ctx context.Context, src feature.Source) (*decoder.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal != nil {
		return nil, errors.Wrap(r.fatal, "recognizer unusable")
	}
	if err := r.prepare(); err != nil {
		r.check(err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.setCancel(cancel)
	defer func() {
		r.setCancel(nil)
		cancel()
	}()

	res, err := r.dec.Decode(ctx, src)
	if err != nil {
		r.check(err)
		return nil, err
	}
	entry := r.logger.WithField("status", res.Status.String())
	if best := res.Best(); best != nil {
		entry = entry.WithFields(logrus.Fields{"text": best.Text(" "), "score": best.Score})
	}
	entry.Info("utterance recognized")
	return res, nil
}

// Abort stops the utterance in progress. Its result carries
// decoder.StatusAborted. Without a running utterance Abort does nothing.
func (r *Recognizer) Abort() {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Recognizer) setCancel(c context.CancelFunc) {
	r.cancelMu.Lock()
	r.cancel = c
	r.cancelMu.Unlock()
}

// check records configuration errors that no later utterance can recover from.
func (r *Recognizer) check(err error) {
	switch {
	case errors.Is(err, acoustic.ErrDimensionMismatch),
		errors.Is(err, acoustic.ErrCorruptModel),
		errors.Is(err, lexicon.ErrUnknownPhone):
		r.fatal = err
		r.logger.WithError(err).Error("recognizer disabled")
	}
}

// prepare applies queued grammar requests and rebinds the engine when the
// generation changed.
func (r *Recognizer) prepare() error {
	if r.grammars == nil {
		return nil
	}
	gen, err := r.grammars.ExecChanges()
	if err != nil {
		return err
	}
	if gen == r.gen && r.dec != nil {
		return nil
	}
	// with every grammar deactivated the search still runs and reports
	// StatusNoHypothesis
	if gen.Tree == nil {
		return ErrNoGrammar
	}
	r.dec, err = decoder.New(r.set, gen.Dict, gen.Tree, decoder.NewGrammarLM(gen), r.cfg, decoder.WithLogger(r.logger))
	if err != nil {
		return err
	}
	r.gen = gen
	return nil
}
