// Package refkey computes the keys under which reference documents are stored.
package refkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Separator joins the segments of entity and reference keys.
const Separator = "::"

// Normalize reduces a unique value to the form that is compared for duplicates:
// NFC composed, all whitespace removed, case folded.
// "Acme Corp", "acme corp" and "Acme  Corp" all normalize to "acmecorp".
func Normalize(value string) string {
	composed := norm.NFC.String(value)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, composed)
	// Casers carry state and cannot be shared between goroutines.
	return cases.Fold().String(stripped)
}

// ValidID reports whether id can name an entity. An id containing Separator
// would make Entity collide with Reference keys of the same type.
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, Separator)
}

// Entity returns the store key of an entity document.
func Entity(entityType, id string) string {
	return entityType + Separator + id
}

// Reference returns the store key of the reference document that reserves value
// for field on entityType. Returns "" when value normalizes to nothing.
func Reference(entityType, field, value string) string {
	n := Normalize(value)
	if n == "" {
		return ""
	}
	return entityType + Separator + field + Separator + n
}

// HashedReference is like Reference but replaces the normalized value with a
// 128-bit SHA-256 digest, which bounds key length and keeps keys within the
// character set every backend accepts.
func HashedReference(entityType, field, value string) string {
	n := Normalize(value)
	if n == "" {
		return ""
	}
	h := sha256.Sum256([]byte(entityType + "#" + field + "#" + n))
	return entityType + Separator + field + Separator + hex.EncodeToString(h[:16])
}

// RefType returns the discriminator stored inside reference documents.
func RefType(entityType, field string) string {
	return entityType + Separator + field
}
