package cli

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ieee0824/twopass/internal/config"
)

func addModelFlags(fs *pflag.FlagSet) {
	fs.String("acoustic", "", "acoustic model (gob)")
	fs.String("dict", "", "word dictionary for n-gram mode")
	fs.String("ngram", "", "forward ARPA model")
	fs.String("reverse-ngram", "", "reverse ARPA model for the second pass")
	fs.StringArray("grammar", nil, "grammar spec, repeatable: a path prefix or 'name=.. dfa=.. dict=.. [inactive]'")
}

func addSearchFlags(fs *pflag.FlagSet) {
	fs.String("method", "", "gaussian pruning: none, safe, heuristic, beam")
	fs.Float64("beam", 0, "first-pass score beam (log10)")
	fs.Int("max-tokens", 0, "first-pass active token cap")
	fs.Float64("lm-weight", 0, "language model weight, both passes")
	fs.Float64("penalty", 0, "word insertion penalty, both passes")
	fs.Bool("word-pair", false, "keep several LM contexts per tree node")
	fs.Int("nbest", 0, "sentences to return")
	fs.Int("envelope", 0, "second-pass expansions per boundary frame")
	fs.Duration("timeout", 0, "second-pass time limit")
	fs.String("log-level", "", "debug, info, warn, error")
}

// applyOverrides copies flags the user set, and matching TWOPASS_* variables,
// into cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str("acoustic", &cfg.Models.Acoustic)
	str("dict", &cfg.Models.Dictionary)
	str("ngram", &cfg.Models.NGram)
	str("reverse-ngram", &cfg.Models.ReverseNGram)
	str("method", &cfg.Gaussian.Method)
	str("log-level", &cfg.Logging.Level)

	if v.IsSet("beam") {
		cfg.Pass1.BeamWidth = v.GetFloat64("beam")
	}
	if v.IsSet("max-tokens") {
		cfg.Pass1.MaxActiveTokens = v.GetInt("max-tokens")
	}
	if v.IsSet("lm-weight") {
		cfg.Pass1.LMWeight = v.GetFloat64("lm-weight")
		cfg.Pass2.LMWeight = cfg.Pass1.LMWeight
	}
	if v.IsSet("penalty") {
		cfg.Pass1.Penalty = v.GetFloat64("penalty")
		cfg.Pass2.Penalty = cfg.Pass1.Penalty
	}
	if v.IsSet("word-pair") {
		cfg.Pass1.WordPair = v.GetBool("word-pair")
	}
	if v.IsSet("nbest") {
		cfg.Pass2.NBest = v.GetInt("nbest")
	}
	if v.IsSet("envelope") {
		cfg.Pass2.EnvelopeWidth = v.GetInt("envelope")
	}
	if v.IsSet("timeout") {
		cfg.Pass2.TimeoutMS = int(v.GetDuration("timeout").Milliseconds())
	}
}

// grammarSpecs returns the --grammar values, or the configured ones when
// the flag was not given.
func grammarSpecs(fs *pflag.FlagSet, cfg *config.Config) []string {
	if fs.Changed("grammar") {
		specs, _ := fs.GetStringArray("grammar")
		return specs
	}
	return cfg.Models.Grammars
}
