package reconcile

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type celsius float64
type fahrenheit float64

func TestRegister_CustomConverter(t *testing.T) {
	r := NewRegistry()
	Register(r, func(c celsius) (fahrenheit, error) {
		return fahrenheit(float64(c)*9/5 + 32), nil
	})

	e := NewEngine(r)
	out, err := e.Convert(celsius(100), LeafOf[fahrenheit]())
	require.NoError(t, err)
	assert.Equal(t, fahrenheit(212), out)
}

func TestRegister_LaterRegistrationWins(t *testing.T) {
	r := NewRegistry()
	Register(r, func(s string) (int, error) { return 0, nil })
	Register(r, func(s string) (int, error) { return strconv.Atoi(s) })

	e := NewEngine(r)
	out, err := e.Convert("9", LeafOf[int]())
	require.NoError(t, err)
	assert.Equal(t, 9, out)
}

func TestRegister_DeclaredFailures(t *testing.T) {
	errTooCold := errors.New("too cold")

	r := NewRegistry()
	Register(r, func(c celsius) (fahrenheit, error) {
		if c < -273.15 {
			return 0, errTooCold
		}
		return fahrenheit(float64(c)*9/5 + 32), nil
	}, WithFailures(errTooCold))

	e := NewEngine(r)
	_, err := e.Convert(celsius(-300), LeafOf[fahrenheit]())
	require.Error(t, err)
	assert.ErrorIs(t, err, errTooCold)
}

func TestRegister_UndeclaredFailureIsFlagged(t *testing.T) {
	errTooCold := errors.New("too cold")
	errSurprise := errors.New("surprise")

	r := NewRegistry()
	Register(r, func(c celsius) (fahrenheit, error) {
		return 0, errSurprise
	}, WithFailures(errTooCold))

	e := NewEngine(r)
	_, err := e.Convert(celsius(0), LeafOf[fahrenheit]())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected converter error")
}

func TestRegister_ErrFormatTemplatesMessage(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.Convert("not-a-number", LeafOf[int]())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-number is not a valid integer")
}

func TestDefaultRegistry_BoolSynonyms(t *testing.T) {
	e := NewEngine(nil)

	for _, s := range []string{"on", "true", "yes", "1"} {
		out, err := e.Convert(s, LeafOf[bool]())
		require.NoError(t, err, s)
		assert.Equal(t, true, out, s)
	}
	for _, s := range []string{"off", "false", "no", "0"} {
		out, err := e.Convert(s, LeafOf[bool]())
		require.NoError(t, err, s)
		assert.Equal(t, false, out, s)
	}
}
