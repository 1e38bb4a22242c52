package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/model"
)

func attendedEvaluated(t *testing.T, f fixture, eventID, email string) model.Participant {
	t.Helper()
	ctx := context.Background()
	p := joinEmail(t, f.store, eventID, email, email)
	_, err := f.store.MarkAttendance(ctx, p.ID)
	require.NoError(t, err)
	out, err := f.store.SubmitEvaluation(ctx, p.ID, model.EvaluationData{"rating": 4})
	require.NoError(t, err)
	return out
}

func TestIssueCertificate_Idempotent(t *testing.T) {
	f := createTestStore(t)
	ctx := context.Background()
	createTestEvent(t, f.store, "E1", model.Requirements{Attendance: true, Evaluation: true})
	p := attendedEvaluated(t, f, "E1", "ana@x.com")

	res, err := f.store.IssueCertificate(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.Reissued)
	assert.Equal(t, model.StatusCompleted, res.Participant.Status)
	assert.Regexp(t, `^CERT-C\d{6}$`, res.Certificate.CertificateNumber)
	assert.Regexp(t, `^VERIFY-C\d{6}$`, res.Certificate.VerificationCode)
	assert.Equal(t, p.ID, res.Certificate.ParticipantID)

	again, err := f.store.IssueCertificate(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, again.Reissued)
	assert.Equal(t, res.Certificate.CertificateNumber, again.Certificate.CertificateNumber)

	var count int
	require.NoError(t, f.store.db.QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIssueCertificate_NotEligible(t *testing.T) {
	f := createTestStore(t)
	ctx := context.Background()
	createTestEvent(t, f.store, "E1", model.Requirements{Attendance: true, Evaluation: true})
	p := joinEmail(t, f.store, "E1", "Ana", "ana@x.com")

	_, err := f.store.IssueCertificate(ctx, p.ID)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition))

	_, err = f.store.MarkAttendance(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.store.IssueCertificate(ctx, p.ID)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition), "evaluation still missing")

	stored, err := f.store.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAttended, stored.Status)
	assert.Nil(t, stored.Certificate)
}

func TestIssueCertificate_QuizPolicy(t *testing.T) {
	f := createTestStore(t, WithEvaluator(eligibility.Evaluator{Quiz: eligibility.QuizBlock}))
	ctx := context.Background()
	createTestEvent(t, f.store, "E1", model.Requirements{Attendance: true, Evaluation: true, Quiz: true})
	p := attendedEvaluated(t, f, "E1", "ana@x.com")

	_, err := f.store.IssueCertificate(ctx, p.ID)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition))
}

func TestVerifyCertificate(t *testing.T) {
	f := createTestStore(t)
	ctx := context.Background()
	createTestEvent(t, f.store, "E1", model.Requirements{Evaluation: true})
	p := attendedEvaluated(t, f, "E1", "ana@x.com")
	res, err := f.store.IssueCertificate(ctx, p.ID)
	require.NoError(t, err)

	v, err := f.store.VerifyCertificate(ctx, res.Certificate.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, res.Certificate.CertificateNumber, v.Certificate.CertificateNumber)
	assert.Equal(t, "Event E1", v.EventTitle)
	assert.Equal(t, p.ID, v.Participant.ID)

	// prefix optional, case-insensitive
	bare := res.Certificate.VerificationCode[len("VERIFY-"):]
	v2, err := f.store.VerifyCertificate(ctx, "  verify-"+bare)
	require.NoError(t, err)
	assert.Equal(t, v.Certificate, v2.Certificate)

	_, err = f.store.VerifyCertificate(ctx, "VERIFY-NOPE")
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))

	_, err = f.store.VerifyCertificate(ctx, " ")
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidRequest))
}

func TestMarkCertificateEmailed(t *testing.T) {
	f := createTestStore(t)
	ctx := context.Background()
	createTestEvent(t, f.store, "E1", model.Requirements{})
	p := attendedEvaluated(t, f, "E1", "ana@x.com")
	res, err := f.store.IssueCertificate(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.Certificate.Emailed)

	f.clock.Advance(time.Hour)
	cert, err := f.store.MarkCertificateEmailed(ctx, res.Certificate.CertificateNumber)
	require.NoError(t, err)
	assert.True(t, cert.Emailed)
	require.NotNil(t, cert.EmailedAt)
	first := *cert.EmailedAt

	f.clock.Advance(time.Hour)
	again, err := f.store.MarkCertificateEmailed(ctx, res.Certificate.CertificateNumber)
	require.NoError(t, err)
	assert.Equal(t, first, *again.EmailedAt)

	_, err = f.store.MarkCertificateEmailed(ctx, "CERT-NOPE")
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
}

func TestEventReport(t *testing.T) {
	f := createTestStore(t)
	ctx := context.Background()
	createTestEvent(t, f.store, "E1", model.Requirements{Attendance: true, Evaluation: true})

	joinEmail(t, f.store, "E1", "Reg", "reg@x.com")
	attendedEvaluated(t, f, "E1", "pending@x.com")
	done := attendedEvaluated(t, f, "E1", "done@x.com")
	_, err := f.store.SubmitEvaluation(ctx, done.ID, model.EvaluationData{"rating": "2"})
	require.NoError(t, err)
	_, err = f.store.IssueCertificate(ctx, done.ID)
	require.NoError(t, err)

	r, err := f.store.EventReport(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 1, r.Registered)
	assert.Equal(t, 1, r.Attended)
	assert.Equal(t, 1, r.Completed)
	assert.Equal(t, 2, r.Evaluated)
	assert.Equal(t, 1, r.Pending)
	require.NotNil(t, r.AverageRating)
	assert.InDelta(t, 3.0, *r.AverageRating, 1e-9)

	_, err = f.store.EventReport(ctx, "E404")
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
}
