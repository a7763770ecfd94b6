package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool true", IRBool(true), "true"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array with null", IRArray{IRInt(1), IRNull{}}, "[1,null]"},
		{"string slice", []string{"id", "name"}, `["id","name"]`},
		{"row slice", []IRObject{{"id": IRInt(1)}, {"id": IRInt(2)}}, `[{"id":1},{"id":2}]`},
		{"plain map", map[string]any{"b": "x", "a": nil}, `{"a":null,"b":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra": IRInt(1),
		"alpha": IRInt(2),
		"beta":  IRObject{"d": IRInt(4), "c": IRInt(3)},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"c":3,"d":4},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\ue000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\ue000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	result, err := MarshalCanonical(IRString("<a href='x'>&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a href='x'>&</a>"`, string(result))
}

func TestMarshalCanonicalKeepsDecomposedStrings(t *testing.T) {
	// "e" + combining acute accent stays decomposed.
	result, err := MarshalCanonical(IRString("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"cafe\u0301\"", string(result))
}

func TestMarshalCanonicalRejectsInvalidUTF8(t *testing.T) {
	_, err := MarshalCanonical(IRString("\xff"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid UTF-8")
}

func TestMarshalCanonicalBytes(t *testing.T) {
	result, err := MarshalCanonical(IRBytes{0xff, 0x00, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, `{"$bytes":"/wD+"}`, string(result))
}

func TestMarshalCanonicalWrapsTagLookalikes(t *testing.T) {
	result, err := MarshalCanonical(IRObject{"$bytes": IRString("/wD+")})
	require.NoError(t, err)
	assert.Equal(t, `{"$object":{"$bytes":"/wD+"}}`, string(result))

	result, err = MarshalCanonical(IRObject{"$bytes": IRString("x"), "other": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"$bytes":"x","other":1}`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalEscapedBackslashBeforeSeparatorText(t *testing.T) {
	// The literal text `\u2028` must stay escaped as `\\u2028`.
	result, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalControlCharacters(t *testing.T) {
	result, err := MarshalCanonical(IRString("tab\there\nquote\""))
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\nquote\""`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = MarshalCanonical(map[string]any{"x": 1.5})
	require.Error(t, err)
}

func TestMarshalCanonicalUnsupportedType(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	row := IRObject{"id": IRInt(7), "name": IRString("alice"), "tags": IRArray{IRString("a")}}
	first, err := MarshalCanonical(row)
	require.NoError(t, err)
	for range 20 {
		again, err := MarshalCanonical(row)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
