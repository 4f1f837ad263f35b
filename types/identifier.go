package types

import (
	"crypto/md5" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"strings"
)

// Identifier references one spool entry.
// System-assigned identifiers are the decimal form of a random positive
// 63-bit integer; callers may also supply their own tokens on upload resume.
type Identifier string

// IsZero reports whether no identifier was supplied.
func (id Identifier) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// String returns the identifier as supplied.
func (id Identifier) String() string {
	return string(id)
}

// Digest returns the lowercase hex MD5 of the identifier's string form.
// Spool filenames are always derived from this digest, never from the raw
// identifier, so caller-supplied tokens cannot escape the spool directory.
func (id Identifier) Digest() string {
	sum := md5.Sum([]byte(id)) //nolint:gosec // see above
	return hex.EncodeToString(sum[:])
}
