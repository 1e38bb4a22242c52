package checkin

import (
	"fmt"
	"time"

	"github.com/vpaa/eventcore/internal/lifecycle"
	"github.com/vpaa/eventcore/internal/model"
)

const (
	msgCheckedIn        = "Check-in recorded"
	msgAlreadyCheckedIn = "Participant already checked in"
)

// AccountLookup finds an account by id. The second result is false when the
// account does not exist.
type AccountLookup func(id string) (model.Account, bool)

// Resolve finds the participant a token designates inside one event's roster.
// Order: participant linked to the account id, then participant enrolled
// under the account's email, then a participant whose own id is the token
// identity (roster entries without an account).
func Resolve(tok Token, eventID string, roster []model.Participant, lookup AccountLookup) (model.Participant, error) {
	inEvent := func(p model.Participant) bool { return p.EventID == eventID }

	for _, p := range roster {
		if inEvent(p) && p.User != "" && p.User == tok.IdentityID {
			return p, nil
		}
	}
	if lookup != nil {
		if acct, ok := lookup(tok.IdentityID); ok && acct.Email != "" {
			byEmail := model.ByEmail{Address: acct.Email}
			for _, p := range roster {
				if inEvent(p) && model.MatchesIdentity(p, byEmail) {
					return p, nil
				}
			}
		}
	}
	for _, p := range roster {
		if inEvent(p) && p.ID == tok.IdentityID {
			return p, nil
		}
	}

	err := model.NewError(model.ErrCodeParticipantNotFound,
		fmt.Sprintf("no participant for %s in event %s", tok.IdentityID, eventID))
	err.EventID = eventID
	return model.Participant{}, err
}

// Scan runs the full validation order: shape, resolution, transition. It
// returns the updated participant inside the result; the caller persists it
// when the result is not AlreadyCheckedIn.
func Scan(raw, eventID string, roster []model.Participant, lookup AccountLookup, at time.Time) (model.CheckInResult, error) {
	tok, err := Parse(raw)
	if err != nil {
		return model.CheckInResult{}, err
	}
	p, err := Resolve(tok, eventID, roster, lookup)
	if err != nil {
		return model.CheckInResult{}, err
	}
	return Apply(p, eventID, at)
}

// Apply checks in a resolved participant and shapes the result.
func Apply(p model.Participant, eventID string, at time.Time) (model.CheckInResult, error) {
	next, outcome, err := lifecycle.CheckIn(p, eventID, at)
	if err != nil {
		return model.CheckInResult{}, err
	}
	res := model.CheckInResult{Participant: next, Message: msgCheckedIn}
	if outcome == lifecycle.AlreadyApplied {
		res.AlreadyCheckedIn = true
		res.Message = msgAlreadyCheckedIn
	}
	return res, nil
}
