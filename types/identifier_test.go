package types //nolint:revive // types is a valid package name

import "testing"

func TestIdentifier_Digest(t *testing.T) {
	// md5("42")
	const want = "a1d0c6e83f027327d8461063f4ac58a6"
	if got := Identifier("42").Digest(); got != want {
		t.Errorf("Digest() = %q, want %q", got, want)
	}
}

func TestIdentifier_DigestIsPathSafe(t *testing.T) {
	d := Identifier("../../etc/passwd").Digest()
	if len(d) != 32 {
		t.Fatalf("digest length = %d, want 32", len(d))
	}
	for _, r := range d {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("digest %q contains non-hex rune %q", d, r)
		}
	}
}

func TestIdentifier_IsZero(t *testing.T) {
	if !Identifier("").IsZero() {
		t.Error("empty identifier should be zero")
	}
	if !Identifier("  ").IsZero() {
		t.Error("blank identifier should be zero")
	}
	if Identifier("7").IsZero() {
		t.Error("non-empty identifier should not be zero")
	}
}
