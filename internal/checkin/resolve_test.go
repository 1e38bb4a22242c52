package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpaa/eventcore/internal/model"
)

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func roster() []model.Participant {
	return []model.Participant{
		{ID: "p1", EventID: "E1", User: "42", Name: "Linked", Email: "linked@x.com", Status: model.StatusRegistered},
		{ID: "p2", EventID: "E1", Name: "Guest", Email: "Guest@X.com", Status: model.StatusRegistered},
		{ID: "p3", EventID: "E1", Name: "Roster", Email: "roster@x.com", Status: model.StatusRegistered},
		{ID: "p4", EventID: "E2", User: "42", Name: "Other event", Email: "linked@x.com", Status: model.StatusRegistered},
	}
}

func accounts(id string) (model.Account, bool) {
	switch id {
	case "42":
		return model.Account{ID: "42", Email: "linked@x.com"}, true
	case "77":
		return model.Account{ID: "77", Email: "guest@x.com"}, true
	}
	return model.Account{}, false
}

func TestResolve_Order(t *testing.T) {
	tests := []struct {
		name  string
		token string
		event string
		want  string
	}{
		{"by user", "USER-42-ABC", "E1", "p1"},
		{"by user scoped to event", "USER-42-ABC", "E2", "p4"},
		{"by account email", "USER-77-ABC", "E1", "p2"},
		{"by participant id", "USER-p3-ABC", "E1", "p3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := Parse(tt.token)
			require.NoError(t, err)
			p, err := Resolve(tok, tt.event, roster(), accounts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	tok, err := Parse("USER-99-ABC")
	require.NoError(t, err)

	_, err = Resolve(tok, "E1", roster(), accounts)
	assert.Equal(t, model.ErrCodeParticipantNotFound, model.CodeOf(err))

	// account exists but is not enrolled in E2
	tok, err = Parse("USER-77-ABC")
	require.NoError(t, err)
	_, err = Resolve(tok, "E2", roster(), accounts)
	assert.Equal(t, model.ErrCodeParticipantNotFound, model.CodeOf(err))
}

func TestScan_FirstAndSecond(t *testing.T) {
	list := roster()

	first, err := Scan("USER-42-ABC", "E1", list, accounts, at)
	require.NoError(t, err)
	assert.False(t, first.AlreadyCheckedIn)
	assert.Equal(t, model.StatusAttended, first.Participant.Status)
	assert.Equal(t, at, *first.Participant.CheckInTime)

	list[0] = first.Participant
	second, err := Scan("USER-42-ABC", "E1", list, accounts, at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, second.AlreadyCheckedIn)
	assert.Equal(t, at, *second.Participant.CheckInTime)
	assert.Equal(t, msgAlreadyCheckedIn, second.Message)
}

func TestScan_ValidationOrder(t *testing.T) {
	_, err := Scan("garbage", "E1", roster(), accounts, at)
	assert.Equal(t, model.ErrCodeMalformedToken, model.CodeOf(err))

	_, err = Scan("USER-nobody-ABC", "E1", roster(), accounts, at)
	assert.Equal(t, model.ErrCodeParticipantNotFound, model.CodeOf(err))

	// nil lookup skips the email step
	_, err = Scan("USER-77-ABC", "E1", roster(), nil, at)
	assert.Equal(t, model.ErrCodeParticipantNotFound, model.CodeOf(err))
}
