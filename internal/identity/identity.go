// Package identity derives the stable polygon identifier used to join a
// directory record, its rendered feature and its checkbox control.
package identity

import (
	"strconv"
	"unicode/utf16"
)

// ID is a 32-bit polygon identity. Collisions are possible; see Key.
type ID int32

// Hash folds h = h*31 + unit over the UTF-16 code units of text with 32-bit
// wraparound. The result matches identifiers produced by browser clients and
// must not change.
func Hash(text string) ID {
	var h int32
	for _, u := range utf16.Encode([]rune(text)) {
		h = h*31 + int32(u)
	}
	return ID(h)
}

// String returns the decimal form used in control identifiers.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Parse reads an ID from its decimal form.
func Parse(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

// Key pairs an identity with the geometry text it was derived from.
type Key struct {
	ID   ID
	Text string
}

// NewKey hashes text into a Key.
func NewKey(text string) Key {
	return Key{ID: Hash(text), Text: text}
}

// Same reports whether both keys refer to the same geometry text, not merely
// the same hash.
func (k Key) Same(other Key) bool {
	return k.ID == other.ID && k.Text == other.Text
}
