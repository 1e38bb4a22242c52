package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/model"
)

var scanTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func registered() model.Participant {
	return model.Participant{ID: "p1", EventID: "E1", Name: "P", Email: "p@x.com", Status: model.StatusRegistered}
}

func e1() model.Event {
	return model.Event{ID: "E1", Requirements: model.Requirements{Attendance: true, Evaluation: true}}
}

func fixedMinter(n *int) Minter {
	return func(p model.Participant) (model.Certificate, error) {
		*n++
		return model.Certificate{
			CertificateNumber: "CERT-0001",
			VerificationCode:  "VERIFY-0001",
			IssuedAt:          scanTime.Add(time.Hour),
		}, nil
	}
}

func TestCheckIn_FromRegistered(t *testing.T) {
	p := registered()

	next, outcome, err := CheckIn(p, "E1", scanTime)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, model.StatusAttended, next.Status)
	require.NotNil(t, next.CheckInTime)
	assert.Equal(t, scanTime, *next.CheckInTime)
	require.NoError(t, CheckInvariants(next))

	// input untouched
	assert.Equal(t, model.StatusRegistered, p.Status)
	assert.Nil(t, p.CheckInTime)
}

func TestCheckIn_Idempotent(t *testing.T) {
	first, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)

	second, outcome, err := CheckIn(first, "E1", scanTime.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, AlreadyApplied, outcome)
	assert.Equal(t, scanTime, *second.CheckInTime, "second scan must keep the first check-in time")
}

func TestCheckIn_WrongEvent(t *testing.T) {
	p := registered()
	next, _, err := CheckIn(p, "E2", scanTime)
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
	assert.Equal(t, p, next)

	_, _, err = CheckIn(model.Participant{}, "E1", scanTime)
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
}

func TestSubmitEvaluation(t *testing.T) {
	_, err := SubmitEvaluation(registered(), "E1", model.EvaluationData{"rating": "5"})
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition))

	attended, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)

	data := model.EvaluationData{"rating": "5"}
	evaluated, err := SubmitEvaluation(attended, "E1", data)
	require.NoError(t, err)
	assert.True(t, evaluated.HasEvaluated)
	assert.Equal(t, model.StatusAttended, evaluated.Status)
	assert.Equal(t, "5", evaluated.EvaluationData["rating"])

	data["rating"] = "1"
	assert.Equal(t, "5", evaluated.EvaluationData["rating"], "payload must be copied")
}

func TestSubmitEvaluation_NilPayload(t *testing.T) {
	attended, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)
	evaluated, err := SubmitEvaluation(attended, "E1", nil)
	require.NoError(t, err)
	assert.NotNil(t, evaluated.EvaluationData)
}

func TestIssueCertificate_RequiresEligibility(t *testing.T) {
	minted := 0
	attended, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)

	next, _, _, err := IssueCertificate(attended, e1(), eligibility.Evaluator{}, fixedMinter(&minted))
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition))
	assert.Equal(t, attended, next)
	assert.Zero(t, minted)
}

func TestIssueCertificate_Idempotent(t *testing.T) {
	minted := 0
	attended, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)
	evaluated, err := SubmitEvaluation(attended, "E1", model.EvaluationData{"rating": "5"})
	require.NoError(t, err)

	completed, cert, outcome, err := IssueCertificate(evaluated, e1(), eligibility.Evaluator{}, fixedMinter(&minted))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	assert.Equal(t, "p1", cert.ParticipantID)
	require.NoError(t, CheckInvariants(completed))

	again, cert2, outcome, err := IssueCertificate(completed, e1(), eligibility.Evaluator{}, fixedMinter(&minted))
	require.NoError(t, err)
	assert.Equal(t, AlreadyApplied, outcome)
	assert.Equal(t, cert.CertificateNumber, cert2.CertificateNumber)
	assert.Equal(t, completed, again)
	assert.Equal(t, 1, minted)
}

func TestIssueCertificate_MinterError(t *testing.T) {
	attended, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)
	ev := model.Event{ID: "E1"}
	boom := errors.New("boom")

	_, _, _, err = IssueCertificate(attended, ev, eligibility.Evaluator{}, func(model.Participant) (model.Certificate, error) {
		return model.Certificate{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCheckOut(t *testing.T) {
	_, _, err := CheckOut(registered(), "E1", scanTime)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition))

	attended, _, err := CheckIn(registered(), "E1", scanTime)
	require.NoError(t, err)

	out, outcome, err := CheckOut(attended, "E1", scanTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	again, outcome, err := CheckOut(out, "E1", scanTime.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, AlreadyApplied, outcome)
	assert.Equal(t, scanTime.Add(2*time.Hour), *again.CheckOutTime)
}

func TestCheckInvariants(t *testing.T) {
	p := registered()
	p.CheckInTime = &scanTime
	assert.Error(t, CheckInvariants(p))

	p = registered()
	p.Certificate = &model.Certificate{}
	assert.Error(t, CheckInvariants(p))

	p = registered()
	p.Status = "bogus"
	assert.Error(t, CheckInvariants(p))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "already_applied", AlreadyApplied.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
