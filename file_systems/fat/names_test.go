package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/fatro/errors"
)

func shortName(s string) [11]byte {
	var out [11]byte
	copy(out[:], s)
	return out
}

func TestNormalizeQueryName(t *testing.T) {
	cases := map[string]string{
		"readme.txt":   "README  TXT",
		"KERNEL":       "KERNEL     ",
		"a.b":          "A       B  ",
		"12345678.abc": "12345678ABC",
		"x.tar":        "X       TAR",
		"":             "           ",
	}

	for input, expected := range cases {
		normalized, err := NormalizeQueryName(input)
		if !assert.NoErrorf(t, err, "normalizing %q", input) {
			continue
		}
		assert.Equalf(t, expected, string(normalized[:]), "normalizing %q", input)
	}
}

func TestNormalizeQueryNameSecondDotIsLiteral(t *testing.T) {
	normalized, err := NormalizeQueryName("a.b.c")
	require.NoError(t, err)
	assert.Equal(t, "A       B.C", string(normalized[:]))
}

func TestNormalizeQueryNameTooLong(t *testing.T) {
	_, err := NormalizeQueryName("abcdefghijkl")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = NormalizeQueryName("name.text")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// The base name can't spill into the extension field.
	_, err = NormalizeQueryName("abcdefghi.txt")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = NormalizeQueryName("abcdefghijk")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	normalized, err := NormalizeQueryName("abcdefgh.txt")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHTXT", string(normalized[:]))
}

func TestDisplayNameRoundTripsThroughNormalize(t *testing.T) {
	onDisk := []string{
		"README  TXT",
		"KERNEL     ",
		"12345678ABC",
		"\x05BC     D  ",
		"A       B  ",
	}

	for _, raw := range onDisk {
		query, err := NormalizeQueryName(DisplayName(shortName(raw)))
		if assert.NoErrorf(t, err, "normalizing display name of %q", raw) {
			assert.Truef(t, EqualShortName(query, shortName(raw)), "%q didn't round trip", raw)
		}
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "README.TXT", DisplayName(shortName("README  TXT")))
	assert.Equal(t, "KERNEL", DisplayName(shortName("KERNEL     ")))
	assert.Equal(t, "12345678.ABC", DisplayName(shortName("12345678ABC")))
	assert.Equal(t, "\x05BC.D", DisplayName(shortName("\x05BC     D  ")))
}

func TestEqualShortNameUppercasesDiskSide(t *testing.T) {
	query, err := NormalizeQueryName("readme.txt")
	require.NoError(t, err)

	assert.True(t, EqualShortName(query, shortName("readme  txt")))
	assert.True(t, EqualShortName(query, shortName("README  TXT")))
	assert.False(t, EqualShortName(query, shortName("README  TX ")))
}
