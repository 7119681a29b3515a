package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyter10086/u6a/compiler"
)

func TestLexBasicCombinators(t *testing.T) {
	toks, err := compiler.Lex([]byte("`ski"))
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, compiler.KApp, toks[0].Kind)
	assert.Equal(t, compiler.KS, toks[1].Kind)
	assert.Equal(t, compiler.KK, toks[2].Kind)
	assert.Equal(t, compiler.KI, toks[3].Kind)
}

func TestLexIgnoresCommentsAndWhitespace(t *testing.T) {
	toks, err := compiler.Lex([]byte("# a comment\n  `s  k # trailing\n"))
	require.NoError(t, err)
	require.Len(t, toks, 3)
}

func TestLexDotAndQuestionPayload(t *testing.T) {
	toks, err := compiler.Lex([]byte(".X?\n"))
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, compiler.KOut, toks[0].Kind)
	assert.Equal(t, byte('X'), toks[0].Ch)
	assert.Equal(t, compiler.KCmp, toks[1].Kind)
	assert.Equal(t, byte('\n'), toks[1].Ch)
}

func TestLexRSugar(t *testing.T) {
	toks, err := compiler.Lex([]byte("r"))
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, compiler.KOut, toks[0].Kind)
	assert.Equal(t, byte('\n'), toks[0].Ch)
}

func TestLexUnexpectedEOFAfterDot(t *testing.T) {
	_, err := compiler.Lex([]byte("."))
	assert.Error(t, err)
}

func TestLexUnrecognizedByte(t *testing.T) {
	_, err := compiler.Lex([]byte("z"))
	assert.Error(t, err)
}
