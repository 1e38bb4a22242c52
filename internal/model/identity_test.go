package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "p@x.com", NormalizeEmail("  P@X.com "))
	// "é" composed vs decomposed normalize to the same address
	assert.Equal(t, NormalizeEmail("jos\u00e9@x.com"), NormalizeEmail("jose\u0301@x.com"))
}

func TestMatchesIdentity(t *testing.T) {
	p := Participant{ID: "p1", EventID: "E1", User: "u1", Email: "P@x.com"}

	assert.True(t, MatchesIdentity(p, ByAccount{Ref: "u1"}))
	assert.False(t, MatchesIdentity(p, ByAccount{Ref: "u2"}))
	assert.False(t, MatchesIdentity(p, ByAccount{Ref: ""}))
	assert.True(t, MatchesIdentity(p, ByEmail{Address: "p@X.COM"}))
	assert.False(t, MatchesIdentity(p, ByEmail{Address: "q@x.com"}))
	assert.False(t, MatchesIdentity(Participant{}, ByEmail{Address: ""}))
}

func TestSameIdentity(t *testing.T) {
	tests := []struct {
		name string
		a, b Participant
		want bool
	}{
		{
			name: "same account",
			a:    Participant{EventID: "E1", User: "u1", Email: "a@x.com"},
			b:    Participant{EventID: "E1", User: "u1", Email: "b@x.com"},
			want: true,
		},
		{
			name: "same email, one without account",
			a:    Participant{EventID: "E1", User: "u1", Email: "p@x.com"},
			b:    Participant{EventID: "E1", Email: "P@x.com"},
			want: true,
		},
		{
			name: "different event",
			a:    Participant{EventID: "E1", Email: "p@x.com"},
			b:    Participant{EventID: "E2", Email: "p@x.com"},
			want: false,
		},
		{
			name: "placeholder ids never matter",
			a:    Participant{ID: "local-1", EventID: "E1", Email: "p@x.com"},
			b:    Participant{ID: "42", EventID: "E1", Email: "q@x.com"},
			want: false,
		},
		{
			name: "both empty emails",
			a:    Participant{EventID: "E1"},
			b:    Participant{EventID: "E1"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameIdentity(tt.a, tt.b))
			assert.Equal(t, tt.want, SameIdentity(tt.b, tt.a))
		})
	}
}

func TestJoinRequestValidate(t *testing.T) {
	assert.NoError(t, JoinRequest{Email: "p@x.com"}.Validate())
	assert.NoError(t, JoinRequest{Identity: ByAccount{Ref: "u1"}}.Validate())

	err := JoinRequest{}.Validate()
	assert.True(t, IsCode(err, ErrCodeInvalidRequest))

	err = JoinRequest{Identity: ByEmail{Address: "nope"}}.Validate()
	assert.True(t, IsCode(err, ErrCodeInvalidRequest))
}
