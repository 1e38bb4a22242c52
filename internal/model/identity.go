package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IdentityKind distinguishes the two Identity variants.
type IdentityKind string

const (
	IdentityAccount IdentityKind = "account"
	IdentityEmail   IdentityKind = "email"
)

// Identity is the natural key of a participant within an event.
// It is a closed sum type: the only variants are ByAccount and ByEmail.
type Identity interface {
	Kind() IdentityKind
	// Key returns a stable string form, e.g. "account:42" or "email:p@x.com".
	Key() string
	isIdentity()
}

// ByAccount identifies a participant by an authenticated account reference.
type ByAccount struct {
	Ref string
}

func (ByAccount) Kind() IdentityKind { return IdentityAccount }
func (a ByAccount) Key() string      { return "account:" + a.Ref }
func (ByAccount) isIdentity()        {}

// ByEmail identifies a participant by email address (anonymous or roster join).
type ByEmail struct {
	Address string
}

func (ByEmail) Kind() IdentityKind { return IdentityEmail }
func (e ByEmail) Key() string      { return "email:" + NormalizeEmail(e.Address) }
func (ByEmail) isIdentity()        {}

// NormalizeEmail trims, NFC-normalizes and lower-cases an address so that
// visually identical addresses compare equal.
func NormalizeEmail(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// MatchesIdentity reports whether p is the record for id.
func MatchesIdentity(p Participant, id Identity) bool {
	switch v := id.(type) {
	case ByAccount:
		return v.Ref != "" && p.User == v.Ref
	case ByEmail:
		addr := NormalizeEmail(v.Address)
		return addr != "" && NormalizeEmail(p.Email) == addr
	default:
		return false
	}
}

// SameIdentity reports whether two records within the same event denote the
// same participant when their account references match OR their normalized
// emails match. Records from different events never match.
func SameIdentity(a, b Participant) bool {
	if a.EventID != b.EventID {
		return false
	}
	if a.User != "" && a.User == b.User {
		return true
	}
	ea, eb := NormalizeEmail(a.Email), NormalizeEmail(b.Email)
	return ea != "" && ea == eb
}

// Validate checks that a join carries a usable identity.
func (r JoinRequest) Validate() error {
	switch id := r.Identity.(type) {
	case nil:
		if !strings.Contains(r.Email, "@") {
			return NewError(ErrCodeInvalidRequest, "join requires an account reference or an email")
		}
	case ByAccount:
		if id.Ref == "" {
			return NewError(ErrCodeInvalidRequest, "empty account reference")
		}
	case ByEmail:
		if !strings.Contains(id.Address, "@") {
			return NewError(ErrCodeInvalidRequest, fmt.Sprintf("invalid email %q", id.Address))
		}
	}
	return nil
}

// ResolvedIdentity returns the request's identity, falling back to its Email.
func (r JoinRequest) ResolvedIdentity() Identity {
	if r.Identity != nil {
		return r.Identity
	}
	return ByEmail{Address: r.Email}
}
