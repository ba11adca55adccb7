package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ieee0824/twopass"
	"github.com/ieee0824/twopass/grammar"
	"github.com/ieee0824/twopass/lexicon"
)

// NewGrammarCmd groups grammar tooling.
func NewGrammarCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Grammar tools",
	}
	cmd.AddCommand(newGrammarCheckCmd(cfgPath))
	return cmd
}

func newGrammarCheckCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [spec]...",
		Short: "Merge grammars against the acoustic model and report their layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, *cfgPath)
			if err != nil {
				return err
			}
			specs := args
			if len(specs) == 0 {
				specs = cfg.Models.Grammars
			}
			if len(specs) == 0 {
				return errors.New("no grammars given")
			}
			if cfg.Models.Acoustic == "" {
				return errors.New("no acoustic model configured")
			}
			set, err := twopass.LoadAcousticFile(cfg.Models.Acoustic)
			if err != nil {
				return err
			}

			build := lexicon.DefaultBuildOptions()
			build.Share = cfg.Pass1.Share
			m := grammar.NewManager(set, grammar.WithLogger(logger), grammar.WithBuildOptions(build))
			for _, s := range specs {
				spec, err := twopass.ParseGrammarSpec(s)
				if err != nil {
					return err
				}
				if _, err := twopass.LoadGrammar(m, spec); err != nil {
					return err
				}
			}
			gen, err := m.ExecChanges()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-4s %-16s %-6s %7s %7s %7s\n", "id", "name", "active", "states", "cats", "words")
			for _, g := range gen.Grammars {
				fmt.Fprintf(out, "%-4d %-16s %-6v %7d %7d %7d\n", g.ID, g.Name, g.Active, g.NumStates, g.NumCategories, g.NumWords)
			}
			if gen.Tree != nil {
				fmt.Fprintf(out, "tree: %d nodes, %d words, min %d frames\n", len(gen.Tree.Nodes), gen.Tree.NumWords, gen.Tree.MinFrames)
			}
			return nil
		},
	}
	cmd.Flags().String("acoustic", "", "acoustic model (gob)")
	return cmd
}
