package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureErrorMessage(t *testing.T) {
	err := NewNotRegistered(Key("users", "missing"))
	assert.Equal(t, "NOT_REGISTERED: no recipe registered (key=users/missing)", err.Error())

	cause := errors.New("no such table: nope")
	gen := NewGenerationFailure(Key("users", "bad"), cause)
	assert.Contains(t, gen.Error(), "GENERATION_FAILURE")
	assert.Contains(t, gen.Error(), "no such table: nope")
	assert.ErrorIs(t, gen, cause)
}

func TestCyclicDependencyPath(t *testing.T) {
	path := []FixtureKey{Key("a", "x"), Key("b", "y"), Key("a", "x")}
	err := NewCyclicDependency(Key("a", "x"), path)

	assert.Equal(t, path, err.Path)
	assert.Contains(t, err.Error(), "a/x -> b/y -> a/x")

	// The error keeps its own copy of the path.
	path[1] = Key("c", "z")
	assert.Equal(t, Key("b", "y"), err.Path[1])
}

func TestIsHelpersThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not registered", NewNotRegistered(Key("a", "b")), IsNotRegistered},
		{"cyclic", NewCyclicDependency(Key("a", "b"), nil), IsCyclicDependency},
		{"generation", NewGenerationFailure(Key("a", "b"), errors.New("x")), IsGenerationFailure},
		{"invalid list", NewInvalidRecipeList("a", "empty recipe list"), IsInvalidRecipeList},
		{"permission", NewPermissionDenied(Key("a", "b"), errors.New("auth")), IsPermissionDenied},
		{"admission", NewAdmissionFailed(Key("a", "b"), errors.New("lock")), IsAdmissionFailed},
		{"not installed", NewNotInstalled(nil), IsNotInstalled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeAdmissionFailed, CodeOf(NewAdmissionFailed(Key("a", "b"), nil)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))

	var fe *FixtureError
	require.True(t, errors.As(fmt.Errorf("w: %w", NewNotInstalled(nil)), &fe))
	assert.Equal(t, ErrCodeNotInstalled, fe.Code)
}

func TestInvalidRecipeListMessage(t *testing.T) {
	err := NewInvalidRecipeList("users", "duplicate set name %q", "default")
	assert.Equal(t, `INVALID_RECIPE_LIST: duplicate set name "default" (key=users/)`, err.Error())
}
