package grammar

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/twopass/acoustic"
	"github.com/ieee0824/twopass/language"
	"github.com/ieee0824/twopass/lexicon"
)

func phoneSet(t *testing.T, names ...string) *acoustic.Set {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	set := acoustic.NewSet(2)
	for _, name := range names {
		states := make([]*acoustic.State, 2)
		for k := range states {
			states[k] = acoustic.NewRandomGMMState(fmt.Sprintf("%s_s%d", name, k), 1, 2, rng)
		}
		require.NoError(t, set.AddHMM(acoustic.NewHMM(name, states)))
	}
	require.NoError(t, set.Finalize())
	return set
}

func loadGrammar(t *testing.T, dfa, dict string) (*language.DFA, *lexicon.Dictionary) {
	t.Helper()
	d, err := language.LoadDFA(strings.NewReader(dfa))
	require.NoError(t, err)
	words, err := lexicon.LoadGrammar(strings.NewReader(dict))
	require.NoError(t, err)
	return d, words
}

// greeting(0) name(1) silence(2)
const fruitDFA = `0 0 1
1 1 2
2 2 3
3 -1 -1 1
`

const fruitDict = `0 [hello] h a
1 [apple] a p u
1 [peach] p i
2 {sil} s
`

const numberDFA = `0 0 1
1 -1 -1 1
`

const numberDict = `0 [one] i
0 [two] u
`

func TestManagerAddDelete(t *testing.T) {
	m := NewManager(phoneSet(t, "h", "a", "p", "u", "i", "s"))
	fa, fw := loadGrammar(t, fruitDFA, fruitDict)
	na, nw := loadGrammar(t, numberDFA, numberDict)

	a, err := m.Add("fruit", fa, fw)
	require.NoError(t, err)
	b, err := m.Add("number", na, nw)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Pending())
	assert.Nil(t, m.Current().Tree)

	gen, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Seq)
	assert.Equal(t, fw.Len()+nw.Len(), gen.Dict.Len())
	assert.Equal(t, 4, gen.DFA.NumCategories)
	assert.Len(t, gen.DFA.States, 6)
	require.NotNil(t, gen.Tree)
	assert.Equal(t, gen.Dict.Len(), gen.Tree.NumWords)
	assert.Len(t, gen.Tree.Roots, 4)

	info, ok := gen.Grammar(b)
	require.True(t, ok)
	assert.Equal(t, 3, info.CategoryOffset)
	assert.Equal(t, 4, info.StateOffset)
	assert.Equal(t, 4, info.WordOffset)
	assert.Equal(t, "one", gen.Dict.Word(4).Output)
	assert.Equal(t, 3, gen.Dict.Word(4).Category)
	assert.True(t, gen.DFA.IsInitial(4))
	assert.True(t, gen.DFA.BeginOK(3))
	assert.False(t, gen.DFA.CategoryPair(2, 3))

	require.NoError(t, m.Delete(a))
	gen2, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Equal(t, nw.Len(), gen2.Dict.Len())
	assert.Equal(t, nw.Len(), gen2.Tree.NumWords)
	for _, n := range gen2.Tree.Nodes {
		for _, e := range n.Ends {
			assert.Less(t, e.Word, nw.Len(), "stale word id %d", e.Word)
		}
	}
	assert.False(t, gen2.Tree.HasWord(nw.Len()))
	info, ok = gen2.Grammar(b)
	require.True(t, ok)
	assert.Equal(t, 0, info.CategoryOffset)
	_, ok = gen2.Grammar(a)
	assert.False(t, ok)

	assert.Equal(t, 2, m.Rebuilds())
	assert.ErrorIs(t, m.Delete(a), ErrUnknownGrammar)
}

func TestManagerRebuildsOncePerBatch(t *testing.T) {
	m := NewManager(phoneSet(t, "h", "a", "p", "u", "i", "s"))
	for i := 0; i < 3; i++ {
		d, w := loadGrammar(t, numberDFA, numberDict)
		_, err := m.Add(fmt.Sprintf("g%d", i), d, w)
		require.NoError(t, err)
	}
	require.NoError(t, m.Delete(1))
	require.NoError(t, m.Deactivate(2))

	gen, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Rebuilds())
	assert.Equal(t, 0, m.Pending())
	assert.Len(t, gen.Grammars, 2)
	assert.Equal(t, 4, gen.Dict.Len())
	assert.Equal(t, 2, gen.ActiveWords())
	assert.True(t, gen.CategoryActive(0))
	assert.False(t, gen.CategoryActive(1))

	// no pending work returns the same generation
	again, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Same(t, gen, again)
}

func TestManagerActivationReusesTree(t *testing.T) {
	m := NewManager(phoneSet(t, "h", "a", "p", "u", "i", "s"))
	fa, fw := loadGrammar(t, fruitDFA, fruitDict)
	id, err := m.Add("fruit", fa, fw)
	require.NoError(t, err)
	gen, err := m.ExecChanges()
	require.NoError(t, err)

	require.NoError(t, m.Deactivate(id))
	off, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Same(t, gen.Tree, off.Tree)
	assert.Equal(t, 1, m.Rebuilds())
	assert.False(t, off.CategoryActive(0))
	assert.Equal(t, 0, off.ActiveWords())

	// the captured generation is untouched
	assert.True(t, gen.CategoryActive(0))
	gi, _ := gen.Grammar(id)
	assert.True(t, gi.Active)

	require.NoError(t, m.Activate(id))
	on, err := m.ExecChanges()
	require.NoError(t, err)
	assert.True(t, on.CategoryActive(2))
	assert.Equal(t, 3, on.Seq)
}

func TestManagerRejectsBadInput(t *testing.T) {
	m := NewManager(phoneSet(t, "a"))
	d, w := loadGrammar(t, numberDFA, "5 [x] a\n")
	_, err := m.Add("bad", d, w)
	assert.Error(t, err)

	_, err = m.Add("nil", nil, w)
	assert.Error(t, err)

	err = m.Activate(42)
	assert.True(t, errors.Is(err, ErrUnknownGrammar))

	d, w = loadGrammar(t, numberDFA, "0 [x] zz\n")
	_, err = m.Add("unknown phone", d, w)
	assert.ErrorIs(t, err, lexicon.ErrUnknownPhone)
	assert.Equal(t, 0, m.Pending())
	assert.Empty(t, m.List())
}

func TestManagerFailedRebuildChangesNothing(t *testing.T) {
	m := NewManager(phoneSet(t, "h", "a", "p", "u", "i", "s"))
	fa, fw := loadGrammar(t, fruitDFA, fruitDict)
	a, err := m.Add("fruit", fa, fw)
	require.NoError(t, err)
	before, err := m.ExecChanges()
	require.NoError(t, err)

	na, nw := loadGrammar(t, numberDFA, numberDict)
	b, err := m.Add("number", na, nw)
	require.NoError(t, err)
	require.NoError(t, m.Delete(a))
	// the caller still owns the dictionary and breaks it after queueing
	nw.Words[0].Phones = []string{"zz"}

	_, err = m.ExecChanges()
	require.ErrorIs(t, err, lexicon.ErrUnknownPhone)
	assert.Same(t, before, m.Current())
	assert.Equal(t, 1, m.Rebuilds())
	assert.Equal(t, 2, m.Pending())
	assert.Equal(t, []Status{
		{ID: a, Name: "fruit", Active: true, Deleting: true},
		{ID: b, Name: "number", Active: true, Newbie: true},
	}, m.List())

	nw.Words[0].Phones = []string{"i"}
	gen, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Equal(t, nw.Len(), gen.Dict.Len())
	assert.Equal(t, []Status{{ID: b, Name: "number", Active: true}}, m.List())
	assert.Equal(t, 2, m.Rebuilds())
}

func TestManagerConcurrentRequests(t *testing.T) {
	m := NewManager(phoneSet(t, "h", "a", "p", "u", "i", "s"))
	dfas := make([]*language.DFA, 8)
	dicts := make([]*lexicon.Dictionary, 8)
	for i := range dfas {
		dfas[i], dicts[i] = loadGrammar(t, numberDFA, numberDict)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Add(fmt.Sprintf("g%d", i), dfas[i], dicts[i])
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	gen, err := m.ExecChanges()
	require.NoError(t, err)
	assert.Equal(t, 16, gen.Dict.Len())
	assert.Len(t, m.List(), 8)
	for _, s := range m.List() {
		assert.False(t, s.Newbie)
		assert.True(t, s.Active)
	}
}
