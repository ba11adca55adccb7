package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ieee0824/twopass"
	"github.com/ieee0824/twopass/decoder"
)

// NewRecognizeCmd decodes HTK parameter files.
func NewRecognizeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recognize <file.htk>...",
		Short: "Decode HTK parameter files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, *cfgPath)
			if err != nil {
				return err
			}
			cfg.Models.Grammars = grammarSpecs(cmd.Flags(), cfg)

			files := args
			if list, _ := cmd.Flags().GetString("list"); list != "" {
				more, err := readList(list)
				if err != nil {
					return err
				}
				files = append(files, more...)
			}
			if len(files) == 0 {
				return errors.New("no input files")
			}

			r, err := twopass.Open(cfg, twopass.WithLogger(logger))
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			verbose, _ := cmd.Flags().GetBool("verbose")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			out := cmd.OutOrStdout()
			for _, f := range files {
				res, err := r.RecognizeFile(ctx, f)
				if err != nil {
					if r.Err() != nil {
						return err
					}
					logger.WithError(err).WithField("file", f).Warn("skipped")
					continue
				}
				if asJSON {
					if err := writeJSON(out, f, res); err != nil {
						return err
					}
				} else {
					writeText(out, f, res, verbose)
				}
				if res.Status == decoder.StatusAborted {
					return errors.New("interrupted")
				}
			}
			return nil
		},
	}
	fs := cmd.Flags()
	addModelFlags(fs)
	addSearchFlags(fs)
	fs.String("list", "", "file with one input path per line (shell quoting allowed)")
	fs.Bool("json", false, "print results as JSON lines")
	fs.BoolP("verbose", "v", false, "print per-word detail and all N-best sentences")
	return cmd
}

// readList reads input paths, one per line; quoted paths may hold spaces.
func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var files []string
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := shlex.Split(line)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, n)
		}
		files = append(files, words...)
	}
	return files, sc.Err()
}

type jsonResult struct {
	File      string             `json:"file"`
	Status    string             `json:"status"`
	Sentences []decoder.Sentence `json:"sentences"`
	Pass1     *decoder.Sentence  `json:"pass1,omitempty"`
}

func writeJSON(w io.Writer, file string, res *decoder.Result) error {
	return json.NewEncoder(w).Encode(jsonResult{
		File:      file,
		Status:    res.Status.String(),
		Sentences: res.Sentences,
		Pass1:     res.Pass1,
	})
}

func writeText(w io.Writer, file string, res *decoder.Result, verbose bool) {
	best := res.Best()
	switch {
	case best == nil:
		fmt.Fprintf(w, "%s\t<%s>\n", file, res.Status)
		return
	case res.Status != decoder.StatusOK:
		fmt.Fprintf(w, "%s\t%s\t<%s>\n", file, best.Text(" "), res.Status)
	default:
		fmt.Fprintf(w, "%s\t%s\n", file, best.Text(" "))
	}
	if !verbose {
		return
	}
	for i, s := range res.Sentences {
		fmt.Fprintf(w, "  #%d score=%.3f ac=%.3f lm=%.3f\n", i+1, s.Score, s.AcScore, s.LMScore)
		for _, wr := range s.Words {
			fmt.Fprintf(w, "    [%4d-%4d] %-16s ac=%9.3f lm=%7.3f conf=%.3f\n",
				wr.Begin, wr.End, wr.Output, wr.AcScore, wr.LMScore, wr.Confidence)
		}
	}
	st := res.Stats
	fmt.Fprintf(w, "  frames=%d atoms=%d pops=%d expansions=%d pass1=%s pass2=%s\n",
		st.Frames, st.Atoms, st.Pops, st.Expansions, st.Pass1Time, st.Pass2Time)
}
