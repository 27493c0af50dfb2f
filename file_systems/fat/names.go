package fat

import (
	"strings"

	"github.com/blockfs/fatro/errors"
)

const (
	shortNameLength = 11
	baseNameLength  = 8
)

func asciiUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// NormalizeQueryName converts a lookup name into the space-padded 11-byte form
// used on disk. The first '.' moves the cursor to the extension; any later '.'
// is copied like any other byte. A base name over 8 bytes or an extension over
// 3 returns ErrNotFound, since no entry on disk could match it.
func NormalizeQueryName(name string) ([shortNameLength]byte, error) {
	var out [shortNameLength]byte
	for i := range out {
		out[i] = ' '
	}

	cursor := 0
	inExtension := false
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b == '.' && !inExtension {
			cursor = baseNameLength
			inExtension = true
			continue
		}
		if cursor == shortNameLength || (!inExtension && cursor == baseNameLength) {
			return out, errors.ErrNotFound.WithMessage("name too long for an 8.3 entry: " + name)
		}
		out[cursor] = asciiUpper(b)
		cursor++
	}
	return out, nil
}

// DisplayName converts an on-disk 8.3 name into its "NAME.EXT" form. Padding
// spaces are dropped, and so is the dot if the extension is blank. Other bytes,
// including a leading 0x05, are passed through so the result can be handed
// back to Scan.
func DisplayName(raw [shortNameLength]byte) string {
	base := strings.ReplaceAll(string(raw[:baseNameLength]), " ", "")
	ext := strings.ReplaceAll(string(raw[baseNameLength:]), " ", "")

	if ext == "" {
		return base
	}
	return base + "." + ext
}

// EqualShortName compares a normalized query against an on-disk name. The disk
// side is uppercased first; the query is expected to be normalized already.
func EqualShortName(query, disk [shortNameLength]byte) bool {
	for i := 0; i < shortNameLength; i++ {
		if query[i] != asciiUpper(disk[i]) {
			return false
		}
	}
	return true
}
