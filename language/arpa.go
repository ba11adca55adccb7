package language

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LoadARPA reads a back-off model in ARPA format. Probabilities stay log10.
// Sections may appear in any order; the header counts are checked against
// what was read.
func LoadARPA(r io.Reader) (*NGramModel, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	model := NewNGramModel(1)

	const (
		preamble = iota
		header
		body
		done
	)
	state := preamble
	declared := make(map[int]int)
	order := 0
	lineNum := 0
	for state != done && scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "\\data\\":
			state = header
		case line == "\\end\\":
			state = done
		case state == preamble:
		case strings.HasPrefix(line, "\\") && strings.HasSuffix(line, "-grams:"):
			n, err := strconv.Atoi(line[1 : len(line)-len("-grams:")])
			if err != nil || n < 1 || n > MaxOrder {
				return nil, errors.Errorf("arpa line %d: bad section %q", lineNum, line)
			}
			order, state = n, body
		case state == header:
			n, count, ok := parseCount(line)
			if !ok {
				return nil, errors.Errorf("arpa line %d: bad header %q", lineNum, line)
			}
			if n > MaxOrder {
				return nil, errors.Errorf("arpa: unsupported order %d", n)
			}
			declared[n] = count
		default:
			if err := parseNGramLine(model, order, line); err != nil {
				return nil, errors.Wrapf(err, "arpa line %d", lineNum)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if state == preamble {
		return nil, errors.New("arpa: missing \\data\\ section")
	}
	if model.Count(1) == 0 {
		return nil, errors.New("arpa: no unigrams")
	}
	for n, want := range declared {
		if got := model.Count(n); got != want {
			return nil, errors.Errorf("arpa: header declares %d %d-grams, read %d", want, n, got)
		}
	}
	return model, nil
}

func parseCount(line string) (order, count int, ok bool) {
	rest, found := strings.CutPrefix(line, "ngram ")
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(rest, "=")
	if !found {
		return 0, 0, false
	}
	order, err1 := strconv.Atoi(strings.TrimSpace(a))
	count, err2 := strconv.Atoi(strings.TrimSpace(b))
	return order, count, err1 == nil && err2 == nil && order >= 1
}

// LoadARPAFile opens path and reads it as an ARPA model.
func LoadARPAFile(path string) (*NGramModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadARPA(f)
}

func parseNGramLine(model *NGramModel, order int, line string) error {
	fields := strings.Fields(line)
	if len(fields) < order+1 {
		return errors.Errorf("too few fields for %d-gram: %q", order, line)
	}

	logProb, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return errors.Wrap(err, "parse log prob")
	}

	var logBackoff float64
	if len(fields) > order+1 {
		logBackoff, err = strconv.ParseFloat(fields[order+1], 64)
		if err != nil {
			return errors.Wrap(err, "parse backoff")
		}
	}

	model.Set(fields[1:order+1], logProb, logBackoff)
	return nil
}

// WriteARPA writes the model in ARPA format.
func (m *NGramModel) WriteARPA(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "\\data\\")
	for n := 1; n <= m.Order; n++ {
		fmt.Fprintf(bw, "ngram %d=%d\n", n, m.Count(n))
	}
	fmt.Fprintln(bw)

	for n := 1; n <= m.Order; n++ {
		type line struct {
			words []string
			e     ngramEntry
		}
		lines := make([]line, 0, m.Count(n))
		for k, e := range m.grams[n-1] {
			words := make([]string, n)
			for i := 0; i < n; i++ {
				words[i] = m.Vocab[k[i]]
			}
			lines = append(lines, line{words, e})
		}
		sort.Slice(lines, func(i, j int) bool {
			return strings.Join(lines[i].words, " ") < strings.Join(lines[j].words, " ")
		})

		fmt.Fprintf(bw, "\\%d-grams:\n", n)
		for _, l := range lines {
			if n < m.Order && l.e.LogBackoff != 0 {
				fmt.Fprintf(bw, "%.6f\t%s\t%.6f\n", l.e.LogProb, strings.Join(l.words, " "), l.e.LogBackoff)
			} else {
				fmt.Fprintf(bw, "%.6f\t%s\n", l.e.LogProb, strings.Join(l.words, " "))
			}
		}
		fmt.Fprintln(bw)
	}
	fmt.Fprintln(bw, "\\end\\")
	return bw.Flush()
}
