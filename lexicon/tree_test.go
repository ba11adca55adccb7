package lexicon

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/twopass/acoustic"
)

// buildSet creates a 1-dim model with a 3-state HMM per name.
func buildSet(t *testing.T, names ...string) *acoustic.Set {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	set := acoustic.NewSet(1)
	for _, name := range names {
		states := make([]*acoustic.State, 3)
		for k := range states {
			states[k] = acoustic.NewRandomGMMState(fmt.Sprintf("%s_s%d", name, k+2), 1, 1, rng)
		}
		require.NoError(t, set.AddHMM(acoustic.NewHMM(name, states)))
	}
	require.NoError(t, set.Finalize())
	return set
}

func dictOf(words ...[]string) *Dictionary {
	d := NewDictionary()
	for i, phones := range words {
		d.Add(Word{Name: fmt.Sprintf("w%d", i), Phones: phones, Category: -1})
	}
	return d
}

func countEnds(tr *Tree) map[int]int {
	ends := make(map[int]int)
	for _, n := range tr.Nodes {
		for _, e := range n.Ends {
			ends[e.Word]++
		}
	}
	return ends
}

func TestBuildSharesPrefixes(t *testing.T) {
	set := buildSet(t, "a", "k", "i")
	d := dictOf([]string{"a", "k", "i"}, []string{"a", "k", "a"})

	shared, err := Build(d, set, DefaultBuildOptions())
	require.NoError(t, err)
	assert.Len(t, shared.Nodes, 12)
	assert.Len(t, shared.Roots, 1)
	assert.Len(t, shared.Roots[0], 1)
	assert.Equal(t, 9, shared.MinFrames)
	assert.Equal(t, 2, shared.NumWords)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, countEnds(shared))

	root := shared.Nodes[shared.Roots[0][0].To]
	assert.Equal(t, []int{0, 1}, shared.Succ[root.Succ])
	assert.Equal(t, 0.0, shared.Roots[0][0].Trans)
	assert.InDelta(t, math.Log10(0.5), root.Self, 1e-12)

	chains, err := Build(d, set, BuildOptions{Share: false})
	require.NoError(t, err)
	assert.Len(t, chains.Nodes, 18)
	assert.Len(t, chains.Roots[0], 2)
}

func TestBuildWordEndInsideTree(t *testing.T) {
	set := buildSet(t, "a", "k", "i")
	d := dictOf([]string{"a", "k"}, []string{"a", "k", "i"})

	tr, err := Build(d, set, DefaultBuildOptions())
	require.NoError(t, err)
	require.Len(t, tr.Nodes, 9)
	assert.Equal(t, 6, tr.MinFrames)

	// last state of "k" ends w0 and continues into "i"
	k3 := tr.Nodes[5]
	require.Len(t, k3.Ends, 1)
	assert.Equal(t, 0, k3.Ends[0].Word)
	assert.InDelta(t, math.Log10(0.5), k3.Ends[0].Exit, 1e-12)
	var into []int
	for _, a := range k3.Arcs {
		into = append(into, a.To)
	}
	assert.Contains(t, into, 6)
	assert.Equal(t, []int{0, 1}, tr.Succ[k3.Succ])
	assert.Equal(t, []int{1}, tr.Succ[tr.Nodes[6].Succ])
}

func TestBuildMaskAndCategories(t *testing.T) {
	set := buildSet(t, "a", "k")
	d := NewDictionary()
	d.Add(Word{Name: "0", Phones: []string{"a"}, Category: 0})
	d.Add(Word{Name: "1", Phones: []string{"a", "k"}, Category: 1})
	d.Add(Word{Name: "1", Phones: []string{"a"}, Category: 1})

	tr, err := Build(d, set, BuildOptions{Share: true, PerCategory: true})
	require.NoError(t, err)
	require.Len(t, tr.Roots, 2)
	// same head phone in two categories is not merged
	assert.NotEqual(t, tr.Roots[0][0].To, tr.Roots[1][0].To)
	assert.Len(t, tr.Nodes, 9)

	tr, err = Build(d, set, BuildOptions{Share: true, PerCategory: true, Words: []bool{true, false, true}})
	require.NoError(t, err)
	assert.True(t, tr.HasWord(0))
	assert.False(t, tr.HasWord(1))
	assert.True(t, tr.HasWord(2))
	assert.Equal(t, -1, tr.WordPhone[1])
	assert.Equal(t, 3, tr.MinFrames)
	_, found := countEnds(tr)[1]
	assert.False(t, found)
}

func TestBuildTransparentWordsAreNotFactored(t *testing.T) {
	set := buildSet(t, "a", "sil")
	d := NewDictionary()
	d.Add(Word{Name: "a", Phones: []string{"a"}, Category: -1})
	d.Add(Word{Name: "<sp>", Phones: []string{"sil"}, Category: -1, Transparent: true})

	tr, err := Build(d, set, DefaultBuildOptions())
	require.NoError(t, err)
	require.Len(t, tr.Roots[0], 2)
	assert.Equal(t, []int{0}, tr.Succ[tr.Nodes[tr.Roots[0][0].To].Succ])
	assert.Equal(t, -1, tr.Nodes[tr.Roots[0][1].To].Succ)
}

func TestBuildUnknownPhone(t *testing.T) {
	set := buildSet(t, "a")
	_, err := Build(dictOf([]string{"a", "zz"}), set, DefaultBuildOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPhone))
}

func TestCheckPhones(t *testing.T) {
	set := buildSet(t, "a", "k")
	assert.NoError(t, CheckPhones(dictOf([]string{"a", "k"}, []string{"k"}), set))

	err := CheckPhones(dictOf([]string{"a"}, []string{"k", "zz", "a"}), set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPhone))
	assert.Contains(t, err.Error(), `"zz"`)
}

func TestBuildTriphoneContexts(t *testing.T) {
	set := buildSet(t, "a+k", "a-k+a", "k-a+k", "k+a")
	require.True(t, set.IsTriphone())
	d := dictOf([]string{"a", "k", "a"}, []string{"k", "a"})

	tr, err := Build(d, set, DefaultBuildOptions())
	require.NoError(t, err)
	require.Len(t, tr.Nodes, 15)
	assert.Equal(t, []string{"a"}, tr.EndPhones)
	assert.Equal(t, []int{0, 0}, tr.WordPhone)

	// word tails use the "l-c" pseudo set
	tail := tr.Nodes[8]
	assert.Equal(t, OutputSet, tail.Out.Kind)
	assert.Equal(t, "k-a", tail.Out.Set.Name)
	assert.Equal(t, 2, tail.Out.Pos)
	assert.Nil(t, tail.LC)

	// the head of "k a" is re-resolved to a-k+a after a word ending in "a"
	require.Len(t, tr.Roots[0], 2)
	head := tr.Roots[0][1].To
	assert.Equal(t, 9, head)
	node := tr.Nodes[head]
	assert.Equal(t, OutputState, node.Out.Kind)
	assert.Equal(t, set.HMMs["k+a"].States[0], node.Out.State)
	require.Len(t, node.LC, 1)
	assert.Equal(t, set.HMMs["a-k+a"].States[0], node.LC[0].State)
	assert.Equal(t, set.HMMs["a-k+a"].States[0], tr.Output(head, 0).State)
	assert.Equal(t, set.HMMs["k+a"].States[0], tr.Output(head, -1).State)

	// the word-internal phone gets the full triphone
	assert.Equal(t, set.HMMs["a-k+a"].States[0], tr.Nodes[3].Out.State)
}
