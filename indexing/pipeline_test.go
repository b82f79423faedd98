package indexing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/schema"
)

func TestIndexWalksNestedObjectAndInfersTypes(t *testing.T) {
	s := schema.New()
	obj := map[string]interface{}{
		"title":   "Hello World",
		"active":  true,
		"author":  map[string]interface{}{"name": "ada", "age": float64(30)},
	}
	res, err := Index(s, obj, "doc1", nil)
	require.NoError(t, err)
	require.Equal(t, "Qdoc1", res.TermID)
	require.Contains(t, res.Doc.Terms(), "Qdoc1")
	require.NotEmpty(t, res.DataPreview)

	titleSpec, ok := s.Lookup("title")
	require.True(t, ok)
	require.Equal(t, schema.TypeText, titleSpec.Concrete)

	nestedSpec, ok := s.Lookup("author.age")
	require.True(t, ok)
	require.Equal(t, schema.TypeFloat, nestedSpec.Concrete)
}

func TestIndexHonorsExplicitType(t *testing.T) {
	s := schema.New()
	obj := map[string]interface{}{
		"code": map[string]interface{}{"_type": "keyword", "_value": "ABC-123"},
	}
	_, err := Index(s, obj, "doc2", nil)
	require.NoError(t, err)
	spec, ok := s.Lookup("code")
	require.True(t, ok)
	require.Equal(t, schema.TypeKeyword, spec.Concrete)
}

func TestIndexRejectsTypeMismatchOnSecondWrite(t *testing.T) {
	s := schema.New()
	_, err := Index(s, map[string]interface{}{"n": float64(1)}, "d1", nil)
	require.NoError(t, err)
	_, err = Index(s, map[string]interface{}{"n": "not a number"}, "d2", nil)
	require.Error(t, err)
}

// §4.2 "strict forbids any auto-detection"; §7 MissingTypeError.
func TestIndexStrictScopeRejectsAutoDetectedField(t *testing.T) {
	s := schema.New()
	s.SetStrict("meta", true)

	_, err := Index(s, map[string]interface{}{
		"meta": map[string]interface{}{"untyped": "surprise"},
	}, "doc4", nil)
	require.Error(t, err)
	_, ok := s.Lookup("meta.untyped")
	require.False(t, ok)
}

// A strict scope still allows an explicitly-_type-declared field: strict
// only blocks auto-*detection*, not manifest typing.
func TestIndexStrictScopeAllowsExplicitType(t *testing.T) {
	s := schema.New()
	s.SetStrict("meta", true)

	_, err := Index(s, map[string]interface{}{
		"meta": map[string]interface{}{
			"known": map[string]interface{}{"_type": "keyword", "_value": "ABC"},
		},
	}, "doc5", nil)
	require.NoError(t, err)
	spec, ok := s.Lookup("meta.known")
	require.True(t, ok)
	require.Equal(t, schema.TypeKeyword, spec.Concrete)
}

// §4.2 "dynamic=false forbids creating new fields": blocks both
// auto-detected and explicitly-_type-declared new fields, but must not
// interfere with writes to a field that's already concretized.
func TestIndexNonDynamicScopeBlocksNewFieldsOnly(t *testing.T) {
	s := schema.New()
	_, err := s.Concretize("locked.known", schema.TypeText)
	require.NoError(t, err)
	s.SetDynamic("locked", false)

	_, err = Index(s, map[string]interface{}{
		"locked": map[string]interface{}{"known": "still writable"},
	}, "doc6", nil)
	require.NoError(t, err)

	_, err = Index(s, map[string]interface{}{
		"locked": map[string]interface{}{"brand_new": "nope"},
	}, "doc7", nil)
	require.Error(t, err)
	_, ok := s.Lookup("locked.brand_new")
	require.False(t, ok)

	_, err = Index(s, map[string]interface{}{
		"locked": map[string]interface{}{
			"also_new": map[string]interface{}{"_type": "keyword", "_value": "X"},
		},
	}, "doc8", nil)
	require.Error(t, err)
}

func TestIndexPreservesUntouchedLocatorsOnUpdate(t *testing.T) {
	s := schema.New()
	res1, err := Index(s, map[string]interface{}{"title": "v1"}, "doc3", nil)
	require.NoError(t, err)

	res1.Doc.SetData(EncodeLocators([]Locator{
		{Kind: LocatorInplace, CType: "application/json", Inline: []byte(`{}`)},
		{Kind: LocatorStored, CType: "image/png", Volume: 1, Offset: 0, Size: 10},
	}))

	res2, err := Index(s, map[string]interface{}{"title": "v2"}, "doc3", res1.Doc)
	require.NoError(t, err)
	locs, err := DecodeLocators(res2.Doc.Data())
	require.NoError(t, err)
	require.Len(t, locs, 2)
	require.Equal(t, "image/png", locs[1].CType)
}
