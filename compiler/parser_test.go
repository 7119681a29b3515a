package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyter10086/u6a/compiler"
)

func TestParseSynthesizesOuterE(t *testing.T) {
	toks, err := compiler.Lex([]byte("i"))
	require.NoError(t, err)
	ast, err := compiler.Parse(toks)
	require.NoError(t, err)

	require.Len(t, ast, 3)
	assert.Equal(t, compiler.KApp, ast[0].Kind)
	assert.Equal(t, compiler.KE, ast[1].Kind)
	assert.Equal(t, compiler.KI, ast[2].Kind)
}

func TestParseEmptyProgramIsBadSyntax(t *testing.T) {
	toks, err := compiler.Lex([]byte(""))
	require.NoError(t, err)
	_, err = compiler.Parse(toks)
	assert.Error(t, err)
}

func TestParseStrayApplicatorIsError(t *testing.T) {
	toks, err := compiler.Lex([]byte("`k"))
	require.NoError(t, err)
	_, err = compiler.Parse(toks)
	assert.Error(t, err)
}

func TestParseTrailingTokensIsError(t *testing.T) {
	toks, err := compiler.Lex([]byte("ki"))
	require.NoError(t, err)
	_, err = compiler.Parse(toks)
	assert.Error(t, err)
}

func TestParseNestedApplication(t *testing.T) {
	toks, err := compiler.Lex([]byte("`ki"))
	require.NoError(t, err)
	ast, err := compiler.Parse(toks)
	require.NoError(t, err)

	// Outer `E <program>`, program is ``ki`` = app(k, i).
	require.Len(t, ast, 5)
	assert.Equal(t, compiler.KApp, ast[0].Kind)
	assert.Equal(t, compiler.KE, ast[1].Kind)
	assert.Equal(t, compiler.KApp, ast[2].Kind)
	assert.Equal(t, compiler.KK, ast[3].Kind)
	assert.Equal(t, compiler.KI, ast[4].Kind)
}
