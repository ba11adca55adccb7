package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ieee0824/twopass/language"
)

// NewLMBuildCmd builds ARPA models from tokenized text, one sentence per
// line. Without input files it reads stdin.
func NewLMBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lmbuild [text]...",
		Short: "Build an ARPA n-gram model from tokenized text",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, _ := cmd.Flags().GetInt("order")
			output, _ := cmd.Flags().GetString("output")
			reverse, _ := cmd.Flags().GetString("reverse")

			fwd := language.NewBuilder(order)
			var rev *language.Builder
			if reverse != "" {
				rev = language.NewReverseBuilder(order)
			}
			add := func(words []string) {
				fwd.AddSentence(words)
				if rev != nil {
					rev.AddSentence(words)
				}
			}

			count := 0
			if len(args) == 0 {
				n, err := readSentences(cmd.InOrStdin(), add)
				if err != nil {
					return err
				}
				count = n
			}
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				n, err := readSentences(f, add)
				f.Close()
				if err != nil {
					return errors.Wrap(err, path)
				}
				count += n
			}

			if err := writeModel(cmd.OutOrStdout(), output, fwd); err != nil {
				return err
			}
			if rev != nil {
				if err := writeModel(nil, reverse, rev); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Built %d-gram model from %d sentences\n", order, count)
			return nil
		},
	}
	cmd.Flags().Int("order", 2, "n-gram order, 2 to 4")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("reverse", "", "also write a reverse model, trained on reversed sentences, to this file")
	return cmd
}

func readSentences(r io.Reader, add func([]string)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		words := strings.Fields(scanner.Text())
		if len(words) > 0 {
			add(words)
			count++
		}
	}
	return count, scanner.Err()
}

func writeModel(stdout io.Writer, path string, b *language.Builder) error {
	if path == "" {
		return b.WriteARPA(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := b.WriteARPA(f); err != nil {
		f.Close()
		return errors.Wrap(err, "write ARPA")
	}
	return f.Close()
}
