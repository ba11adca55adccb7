// Package cli holds the cobra commands of the twopass binary.
package cli

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ieee0824/twopass/internal/config"
	"github.com/ieee0824/twopass/internal/logging"
)

// NewRootCmd assembles the command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "twopass",
		Short: "Two-pass speech recognition search",
		Long: `twopass decodes feature files with a tree-lexicon beam search followed by
a stack N-best search, driven by an N-gram model or by DFA grammars.

Key commands:
  recognize <file.htk>...   Decode HTK parameter files
  lmbuild [text]...         Build an ARPA model from tokenized text
  grammar check <spec>...   Load grammars against the acoustic model
  showcfg                   Print the effective configuration

Env overrides: TWOPASS_LOG_LEVEL/FORMAT/PATH, TWOPASS_GAUSSIAN_METHOD,
               TWOPASS_BEAM_WIDTH, TWOPASS_NBEST, TWOPASS_WORD_PAIR,
               and TWOPASS_<FLAG> for every recognize flag`,
		Example: `  twopass recognize --ngram lm.arpa --dict words.dict utt1.htk
  twopass recognize --grammar 'name=greet dfa=greet.dfa dict=greet.dict' utt1.htk
  twopass lmbuild --order 3 -o lm.arpa corpus.txt
  twopass grammar check models/greet`,
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("twopass v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/twopass/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(NewRecognizeCmd(cfgPath))
	root.AddCommand(NewLMBuildCmd())
	root.AddCommand(NewGrammarCmd(cfgPath))
	root.AddCommand(NewShowConfigCmd(cfgPath))
	return root
}

// newViper binds the command's flags and TWOPASS_* environment variables.
// Dashes in flag names become underscores in the variable name.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("twopass")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}
	return v, nil
}

// setup loads the config file, applies flag and env overrides, and
// configures logging.
func setup(cmd *cobra.Command, cfgPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	v, err := newViper(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	applyOverrides(cfg, v)
	logger, err := logging.Configure(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
