package twopass

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/pkg/errors"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/decoder"
	"github.com/ieee0824/twopass/grammar"
	"github.com/ieee0824/twopass/internal/config"
	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

// GrammarSpec names the files of one grammar.
type GrammarSpec struct {
	Name     string
	DFA      string
	Dict     string
	Inactive bool
}

// ParseGrammarSpec parses a shell-quoted grammar description. It is either
// a bare path prefix, read as <prefix>.dfa and <prefix>.dict, or a list of
// key=value words:
//
//	name=greeting dfa="my grammars/greet.dfa" dict=greet.dict inactive
func ParseGrammarSpec(s string) (GrammarSpec, error) {
	words, err := shlex.Split(s)
	if err != nil {
		return GrammarSpec{}, errors.Wrapf(err, "grammar spec %q", s)
	}
	var g GrammarSpec
	for _, w := range words {
		key, value, ok := strings.Cut(w, "=")
		switch {
		case !ok && w == "inactive":
			g.Inactive = true
		case !ok:
			if g.DFA != "" || g.Dict != "" {
				return GrammarSpec{}, errors.Errorf("grammar spec %q: unexpected %q", s, w)
			}
			g.DFA = w + ".dfa"
			g.Dict = w + ".dict"
			if g.Name == "" {
				g.Name = filepath.Base(w)
			}
		case key == "name":
			g.Name = value
		case key == "dfa":
			g.DFA = value
		case key == "dict":
			g.Dict = value
		default:
			return GrammarSpec{}, errors.Errorf("grammar spec %q: unknown key %q", s, key)
		}
	}
	if g.DFA == "" || g.Dict == "" {
		return GrammarSpec{}, errors.Errorf("grammar spec %q: dfa and dict are required", s)
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(g.DFA), filepath.Ext(g.DFA))
	}
	return g, nil
}

// LoadGrammar reads a grammar's files and queues it on m.
func LoadGrammar(m *grammar.Manager, spec GrammarSpec) (int, error) {
	dfa, err := language.LoadDFAFile(spec.DFA)
	if err != nil {
		return -1, errors.Wrapf(err, "grammar %s", spec.Name)
	}
	dict, err := lexicon.LoadGrammarFile(spec.Dict)
	if err != nil {
		return -1, errors.Wrapf(err, "grammar %s", spec.Name)
	}
	id, err := m.Add(spec.Name, dfa, dict)
	if err != nil {
		return -1, err
	}
	if spec.Inactive {
		if err := m.Deactivate(id); err != nil {
			return -1, err
		}
	}
	return id, nil
}

// LoadAcousticFile opens path and reads it as an acoustic model.
func LoadAcousticFile(path string) (*acoustic.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	set, err := acoustic.Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "acoustic model %s", path)
	}
	return set, nil
}

// LoadNGram reads a forward ARPA model and an optional reverse one.
func LoadNGram(forward, reverse string) (*language.NGram, error) {
	fwd, err := language.LoadARPAFile(forward)
	if err != nil {
		return nil, errors.Wrapf(err, "n-gram %s", forward)
	}
	lm := &language.NGram{Forward: fwd}
	if reverse != "" {
		if lm.Backward, err = language.LoadARPAFile(reverse); err != nil {
			return nil, errors.Wrapf(err, "reverse n-gram %s", reverse)
		}
	}
	return lm, nil
}

// DecoderConfig translates the user configuration into search parameters.
func DecoderConfig(c *config.Config) (decoder.Config, error) {
	cfg := decoder.DefaultConfig()
	var err error
	if cfg.OutProb.Method, err = acoustic.ParsePruneMethod(c.Gaussian.Method); err != nil {
		return cfg, err
	}
	if cfg.OutProb.CDMethod, err = acoustic.ParseCDMethod(c.Gaussian.CDMethod); err != nil {
		return cfg, err
	}
	cfg.OutProb.TopN = c.Gaussian.TopN
	cfg.OutProb.Beam = c.Gaussian.Beam
	cfg.OutProb.CDBestN = c.Gaussian.CDBestN

	if cfg.Factoring, err = decoder.ParseFactoring(c.Pass1.Factoring); err != nil {
		return cfg, err
	}
	cfg.BeamWidth = c.Pass1.BeamWidth
	cfg.MaxActiveTokens = c.Pass1.MaxActiveTokens
	cfg.LMWeight = c.Pass1.LMWeight
	cfg.Penalty = c.Pass1.Penalty
	cfg.WordPair = c.Pass1.WordPair
	cfg.WordPairLimit = c.Pass1.WordPairLimit

	if cfg.Heuristic, err = decoder.ParseHeuristic(c.Pass2.Heuristic); err != nil {
		return cfg, err
	}
	cfg.LMWeight2 = c.Pass2.LMWeight
	cfg.Penalty2 = c.Pass2.Penalty
	cfg.NBest = c.Pass2.NBest
	cfg.EnvelopeWidth = c.Pass2.EnvelopeWidth
	cfg.StackSize = c.Pass2.StackSize
	cfg.MaxExpansions = c.Pass2.MaxExpansions
	cfg.Timeout = time.Duration(c.Pass2.TimeoutMS) * time.Millisecond
	cfg.ConfidenceAlpha = c.Pass2.ConfidenceAlpha
	return cfg, nil
}

// Open loads the models named in c and builds a recognizer. Grammars take
// precedence over the N-gram model when both are configured. Options are
// applied after the configuration.
func Open(c *config.Config, opts ...Option) (*Recognizer, error) {
	dcfg, err := DecoderConfig(c)
	if err != nil {
		return nil, err
	}
	build := lexicon.DefaultBuildOptions()
	build.Share = c.Pass1.Share
	opts = append([]Option{WithDecoderConfig(dcfg), WithBuildOptions(build)}, opts...)

	if c.Models.Acoustic == "" {
		return nil, errors.New("no acoustic model configured")
	}
	set, err := LoadAcousticFile(c.Models.Acoustic)
	if err != nil {
		return nil, err
	}

	if len(c.Models.Grammars) > 0 {
		r := NewGrammarRecognizer(set, opts...)
		for _, s := range c.Models.Grammars {
			spec, err := ParseGrammarSpec(s)
			if err != nil {
				return nil, err
			}
			if _, err := LoadGrammar(r.Grammars(), spec); err != nil {
				return nil, err
			}
		}
		return r, nil
	}

	if c.Models.Dictionary == "" || c.Models.NGram == "" {
		return nil, errors.New("n-gram mode needs a dictionary and a forward n-gram")
	}
	dict, err := lexicon.LoadFile(c.Models.Dictionary)
	if err != nil {
		return nil, errors.Wrapf(err, "dictionary %s", c.Models.Dictionary)
	}
	lm, err := LoadNGram(c.Models.NGram, c.Models.ReverseNGram)
	if err != nil {
		return nil, err
	}
	return NewNGramRecognizer(set, dict, lm, opts...)
}
