package lexicon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDict = `# pronunciation dictionary
hello [Hello] h e l o
hello h a l o
world w o r l d
<sp> {} sp
tokyo t o k y o
`

func TestLoadDict(t *testing.T) {
	d, err := Load(strings.NewReader(testDict))
	require.NoError(t, err)
	require.Equal(t, 5, d.Len())

	w := d.Word(0)
	assert.Equal(t, 0, w.ID)
	assert.Equal(t, "hello", w.Name)
	assert.Equal(t, "Hello", w.Output)
	assert.Equal(t, []string{"h", "e", "l", "o"}, w.Phones)
	assert.Equal(t, -1, w.Category)
	assert.False(t, w.Transparent)

	// output defaults to the entry name
	assert.Equal(t, "hello", d.Word(1).Output)
	assert.Equal(t, []int{0, 1}, d.Lookup("hello"))

	sp := d.Word(3)
	assert.True(t, sp.Transparent)
	assert.Equal(t, "<sp>", sp.Output)
	assert.Equal(t, []string{"sp"}, sp.Phones)
}

func TestLoadGrammarDict(t *testing.T) {
	src := `0 [good-morning] g u d m o r n i n
1 [alice] a l i s
1 [bob] b o b
2 [] sil
`
	d, err := LoadGrammar(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 4, d.Len())
	assert.Equal(t, 0, d.Word(0).Category)
	assert.Equal(t, 1, d.Word(2).Category)
	assert.Equal(t, "bob", d.Word(2).Output)
	assert.Equal(t, 3, d.NumCategories())
}

func TestLoadDictErrors(t *testing.T) {
	cases := map[string]string{
		"no phones":    "word [out]\n",
		"unterminated": "word [out a b\n",
		"bad category": "x [out] a\n",
		"neg category": "-1 [out] a\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			if strings.Contains(name, "category") {
				_, err = LoadGrammar(strings.NewReader(src))
			} else {
				_, err = Load(strings.NewReader(src))
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestDictionaryAppend(t *testing.T) {
	a := NewDictionary()
	a.Add(Word{Name: "0", Output: "x", Phones: []string{"a"}, Category: 0})
	a.Add(Word{Name: "1", Output: "y", Phones: []string{"i"}, Category: 1})
	b := NewDictionary()
	b.Add(Word{Name: "0", Output: "z", Phones: []string{"k"}, Category: 0})

	first := a.Append(b, 2)
	assert.Equal(t, 2, first)
	require.Equal(t, 3, a.Len())
	assert.Equal(t, 2, a.Word(2).ID)
	assert.Equal(t, 2, a.Word(2).Category)
	assert.Equal(t, 3, a.NumCategories())
	// the source dictionary is untouched
	assert.Equal(t, 0, b.Word(0).Category)
}
