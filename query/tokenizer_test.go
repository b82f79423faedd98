package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeFieldValue(t *testing.T) {
	toks, err := Tokenize(`title:hello`)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	require.Equal(t, TokField, toks[0].Kind)
	require.Equal(t, "title", toks[0].Field)
	require.Equal(t, "hello", toks[0].Value)
}

func TestTokenizeBooleanOperators(t *testing.T) {
	toks, err := Tokenize(`a:1 AND b:2 OR NOT c:3`)
	require.NoError(t, err)
	kinds := make([]TokenKind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	require.Equal(t, []TokenKind{TokField, TokAnd, TokField, TokOr, TokNot, TokField, TokEOF}, kinds)
}

func TestTokenizeRangeBracket(t *testing.T) {
	toks, err := Tokenize(`age:[18,30]`)
	require.NoError(t, err)
	require.NotNil(t, toks[0].Range)
	require.Equal(t, "18", toks[0].Range.From)
	require.Equal(t, "30", toks[0].Range.To)
	require.True(t, toks[0].Range.FromInclusive)
	require.True(t, toks[0].Range.ToInclusive)
}

func TestTokenizeRangeOpenParen(t *testing.T) {
	toks, err := Tokenize(`age:(18,30]`)
	require.NoError(t, err)
	require.False(t, toks[0].Range.FromInclusive)
	require.True(t, toks[0].Range.ToInclusive)
}

func TestTokenizeDotDotRange(t *testing.T) {
	toks, err := Tokenize(`age:18..30`)
	require.NoError(t, err)
	require.NotNil(t, toks[0].Range)
	require.Equal(t, "18", toks[0].Range.From)
	require.Equal(t, "30", toks[0].Range.To)
}

func TestTokenizeQuotedValue(t *testing.T) {
	toks, err := Tokenize(`title:"hello world"`)
	require.NoError(t, err)
	require.Equal(t, "hello world", toks[0].Value)
}

func TestTokenizeParentheses(t *testing.T) {
	toks, err := Tokenize(`(a:1 OR b:2)`)
	require.NoError(t, err)
	require.Equal(t, TokLParen, toks[0].Kind)
	require.Equal(t, TokRParen, toks[len(toks)-2].Kind)
}
