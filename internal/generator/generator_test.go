package generator

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	policies := []Policy{
		{Length: 8, Classes: Lowercase},
		{Length: 12, Classes: Numbers},
		{Length: 16, Classes: AllClasses},
		{Length: 32, Classes: Lowercase | Symbols},
		{Length: 20, Classes: Uppercase | Numbers},
	}

	for _, p := range policies {
		for i := 0; i < 20; i++ {
			pw, err := Generate(p.Length, p.Classes)
			require.NoError(t, err)
			assert.Len(t, pw, p.Length)

			alphabet := p.Alphabet()
			for _, r := range pw {
				assert.True(t, strings.ContainsRune(alphabet, r), "character %q outside alphabet for %s", r, p.Classes)
			}
		}
	}
}

func TestGenerate_NoClassesFails(t *testing.T) {
	_, err := Generate(16, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestGenerate_RequiresLowercaseOrNumbers(t *testing.T) {
	_, err := Generate(16, Uppercase|Symbols)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestGenerate_ClampsLength(t *testing.T) {
	pw, err := Generate(0, AllClasses)
	require.NoError(t, err)
	assert.Len(t, pw, MinLength)

	pw, err = Generate(-5, AllClasses)
	require.NoError(t, err)
	assert.Len(t, pw, MinLength)

	pw, err = Generate(100, AllClasses)
	require.NoError(t, err)
	assert.Len(t, pw, MaxLength)
}

func TestGenerate_RandomSourceFailure(t *testing.T) {
	g := NewWithReader(bytes.NewReader(nil))
	_, err := g.Generate(DefaultPolicy())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidPolicy))
}

func TestGenerate_DeterministicReader(t *testing.T) {
	// A reader of zero bytes always selects the first alphabet character
	g := NewWithReader(bytes.NewReader(make([]byte, 1024)))
	pw, err := g.Generate(Policy{Length: 10, Classes: Numbers})
	require.NoError(t, err)
	assert.Equal(t, "0000000000", pw)
}

func TestPolicy_Alphabet(t *testing.T) {
	assert.Equal(t, lowercaseChars+uppercaseChars+numberChars+symbolChars, DefaultPolicy().Alphabet())
	assert.Equal(t, "", Policy{}.Alphabet())
	assert.Equal(t, numberChars+symbolChars, Policy{Classes: Numbers | Symbols}.Alphabet())
}

func TestPolicy_SetBackstop(t *testing.T) {
	p := DefaultPolicy()

	p = p.Set(Numbers, false)
	assert.False(t, p.Classes.Has(Numbers))
	assert.True(t, p.Classes.Has(Lowercase))

	// Turning lowercase off while numbers is off re-enables numbers
	p = p.Set(Lowercase, false)
	assert.False(t, p.Classes.Has(Lowercase))
	assert.True(t, p.Classes.Has(Numbers))

	// And the other way round
	p = p.Set(Numbers, false)
	assert.True(t, p.Classes.Has(Lowercase))
	assert.False(t, p.Classes.Has(Numbers))

	p = p.Set(Symbols, false).Set(Uppercase, false)
	assert.NoError(t, p.Validate())
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "none", Class(0).String())
	assert.Equal(t, "lowercase,symbols", (Lowercase | Symbols).String())
}
