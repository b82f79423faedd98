package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// §8 property 3: schema freeze — once concretized, an incompatible type
// is rejected with CastError, never silently coerced.
func TestConcretizeFreezesType(t *testing.T) {
	s := New()

	spec, err := s.Concretize("title", TypeText)
	require.NoError(t, err)
	require.Equal(t, TypeText, spec.Concrete)
	require.True(t, spec.Flags.Has(FlagConcrete))
	require.NotZero(t, spec.Slot)
	require.NotEmpty(t, spec.Prefix.Field)

	_, err = s.Concretize("title", TypeKeyword)
	require.Error(t, err)

	again, err := s.Concretize("title", TypeText)
	require.NoError(t, err)
	require.Equal(t, spec.Slot, again.Slot)
	require.Equal(t, spec.Prefix, again.Prefix)
}

func TestConcretizeRejectsReservedName(t *testing.T) {
	s := New()
	_, err := s.Concretize("_id", TypeKeyword)
	require.Error(t, err)
}

func TestConcretizeRejectsDisabledDetection(t *testing.T) {
	s := New()
	s.mu.Lock()
	old := s.cur.Load()
	newRoot, chain, _ := walkForWrite(old.root, []string{"amount"})
	chain[len(chain)-1].Spec.Flags = DefaultFlags().Clear(FlagNumericDetection)
	s.cur.Store(&tree{root: newRoot, rev: old.rev + 1})
	s.mu.Unlock()

	_, err := s.Concretize("amount", TypeInteger)
	require.Error(t, err)
}

func TestDeriveSlotReservesIDAndZero(t *testing.T) {
	require.EqualValues(t, 0, DeriveSlot("_id"))
	require.NotZero(t, DeriveSlot("anything"))
}

func TestNamespaceTermsRespectDepthCap(t *testing.T) {
	s := New()
	s.SetNamespace("tags")
	require.True(t, s.IsNamespace("tags.a.b.c"))

	terms := NamespaceTerms("a.b.c.d.e.f.g.h.i.j.k.l", Prefix{Field: "XXXX"})
	require.Len(t, terms, 10)
	require.Equal(t, "XXXX:c.d.e.f.g.h.i.j.k.l", terms[0])
}

func TestStrictInheritsFromAncestor(t *testing.T) {
	s := New()
	s.mu.Lock()
	old := s.cur.Load()
	newRoot, chain, _ := walkForWrite(old.root, []string{"meta"})
	chain[len(chain)-1].Spec.Flags = chain[len(chain)-1].Spec.Flags.Set(FlagStrict)
	s.cur.Store(&tree{root: newRoot, rev: old.rev + 1})
	s.mu.Unlock()

	require.True(t, s.Strict("meta.extra"))
	require.False(t, s.Strict("other.extra"))
}

func TestSetStrictIsReachableThroughPublicAPI(t *testing.T) {
	s := New()
	s.SetStrict("meta", true)

	require.True(t, s.Strict("meta.extra"))
	require.False(t, s.Strict("other.extra"))
}

// §4.2 "dynamic=false forbids creating new fields": an explicit
// SetDynamic(false) closes the whole subtree to new fields, even below
// nodes that still carry their own default dynamic=true flag.
func TestSetDynamicClosesSubtreeToNewFields(t *testing.T) {
	s := New()
	require.True(t, s.Dynamic("anything"))

	s.SetDynamic("locked", false)
	require.False(t, s.Dynamic("locked"))
	require.False(t, s.Dynamic("locked.nested.deep"))
	require.True(t, s.Dynamic("unlocked"))

	s.SetDynamic("locked", true)
	require.True(t, s.Dynamic("locked"))
}

func TestConcurrentConcretizeOnlyOneWins(t *testing.T) {
	s := New()
	const n = 50
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.Concretize("shared", TypeInteger)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	spec, ok := s.Lookup("shared")
	require.True(t, ok)
	require.Equal(t, TypeInteger, spec.Concrete)
}
