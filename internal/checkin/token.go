// Package checkin implements the check-in token protocol.
//
// A token has the shape USER-<identityId>-<code>. The identity id is
// everything between the prefix and the last hyphen, so UUID account ids
// (which contain hyphens themselves) parse unambiguously. The code is opaque
// to the protocol beyond its alphabet.
package checkin

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vpaa/eventcore/internal/model"
)

// Prefix starts every check-in token.
const Prefix = "USER-"

// CodeLength is the length of generated codes.
const CodeLength = 12

// Token is a parsed check-in token.
type Token struct {
	IdentityID string
	Code       string
}

// String renders the token in its canonical shape.
func (t Token) String() string {
	return Prefix + t.IdentityID + "-" + t.Code
}

// Parse validates the token shape. Every failure is MalformedToken.
func Parse(raw string) (Token, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, Prefix) {
		return Token{}, malformed(raw, "missing USER- prefix")
	}
	rest := s[len(Prefix):]
	cut := strings.LastIndexByte(rest, '-')
	if cut < 0 {
		return Token{}, malformed(raw, "missing code segment")
	}
	id, code := rest[:cut], rest[cut+1:]
	if id == "" {
		return Token{}, malformed(raw, "empty identity")
	}
	if !validCode(code) {
		return Token{}, malformed(raw, "code must be non-empty upper-case alphanumerics")
	}
	return Token{IdentityID: id, Code: code}, nil
}

func validCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func malformed(raw, why string) error {
	return model.NewError(model.ErrCodeMalformedToken, fmt.Sprintf("malformed check-in token %q: %s", raw, why))
}

// NewCode returns a fresh opaque code: 12 upper-case hex characters.
func NewCode() string {
	return CodeFrom(uuid.New())
}

// CodeFrom derives a code from a UUID. Exposed so tests and the store can
// supply deterministic UUIDs.
func CodeFrom(u uuid.UUID) string {
	hex := strings.ReplaceAll(u.String(), "-", "")
	return strings.ToUpper(hex[:CodeLength])
}

// Generate builds a new token for an account id.
func Generate(identityID string) Token {
	return Token{IdentityID: identityID, Code: NewCode()}
}
