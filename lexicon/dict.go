package lexicon

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownPhone is returned when a pronunciation names a phone the
// acoustic model cannot resolve.
var ErrUnknownPhone = errors.New("unknown phone")

// Word is one dictionary entry. IDs are dense and assigned by the dictionary.
type Word struct {
	ID          int
	Name        string   // LM entry name (N-gram mode)
	Output      string   // text emitted in results
	Phones      []string // base phone names
	Category    int      // grammar category (DFA mode), -1 otherwise
	Transparent bool     // skipped by the language model
}

// Dictionary holds words in ID order.
type Dictionary struct {
	Words  []Word
	byName map[string][]int
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		byName: make(map[string][]int),
	}
}

// Add appends w, assigns its ID and returns it.
func (d *Dictionary) Add(w Word) int {
	w.ID = len(d.Words)
	w.Phones = append([]string(nil), w.Phones...)
	if w.Output == "" {
		w.Output = w.Name
	}
	d.Words = append(d.Words, w)
	d.byName[w.Name] = append(d.byName[w.Name], w.ID)
	return w.ID
}

// Len returns the number of words.
func (d *Dictionary) Len() int { return len(d.Words) }

// Word returns the word with the given ID.
func (d *Dictionary) Word(id int) *Word { return &d.Words[id] }

// Lookup returns the IDs of every pronunciation variant of name.
func (d *Dictionary) Lookup(name string) []int {
	return d.byName[name]
}

// Append copies every word of other into d, shifting categories by catOffset.
// It returns the ID of the first appended word.
func (d *Dictionary) Append(other *Dictionary, catOffset int) int {
	first := d.Len()
	for _, w := range other.Words {
		if w.Category >= 0 {
			w.Category += catOffset
		}
		d.Add(w)
	}
	return first
}

// NumCategories returns one more than the largest category in use.
func (d *Dictionary) NumCategories() int {
	n := 0
	for _, w := range d.Words {
		if w.Category+1 > n {
			n = w.Category + 1
		}
	}
	return n
}

// Load reads an N-gram dictionary.
// Format: name [output] phone1 phone2 ...
// The output may be written as {output} to mark the word transparent.
func Load(r io.Reader) (*Dictionary, error) {
	return load(r, false)
}

// LoadGrammar reads a grammar dictionary whose first field is the integer
// category of the word.
func LoadGrammar(r io.Reader) (*Dictionary, error) {
	return load(r, true)
}

func load(r io.Reader, grammar bool) (*Dictionary, error) {
	d := NewDictionary()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w, err := parseLine(line, grammar)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		d.Add(w)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

func parseLine(line string, grammar bool) (Word, error) {
	w := Word{Category: -1}
	head, rest := cut(line)
	w.Name = head
	if grammar {
		c, err := strconv.Atoi(head)
		if err != nil || c < 0 {
			return w, errors.Errorf("invalid category %q", head)
		}
		w.Category = c
	}

	rest = strings.TrimSpace(rest)
	if rest != "" && (rest[0] == '[' || rest[0] == '{') {
		closer := byte(']')
		if rest[0] == '{' {
			closer = '}'
			w.Transparent = true
		}
		end := strings.IndexByte(rest, closer)
		if end < 0 {
			return w, errors.Errorf("unterminated output in %q", line)
		}
		w.Output = rest[1:end]
		rest = rest[end+1:]
	}
	w.Phones = strings.Fields(rest)
	if len(w.Phones) == 0 {
		return w, errors.Errorf("word %q has no phones", w.Name)
	}
	return w, nil
}

func cut(s string) (string, string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// LoadFile is a convenience wrapper that opens a file path.
func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// LoadGrammarFile opens path and reads it as a grammar dictionary.
func LoadGrammarFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadGrammar(f)
}
