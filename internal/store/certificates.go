package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vpaa/eventcore/internal/lifecycle"
	"github.com/vpaa/eventcore/internal/model"
)

const (
	certificatePrefix  = "CERT-"
	verificationPrefix = "VERIFY-"
)

// IssueCertificate completes an eligible participant and mints its
// certificate. A participant that already holds a certificate gets it back
// with Reissued set; no second certificate is ever created.
func (s *Store) IssueCertificate(ctx context.Context, participantID string) (model.IssueResult, error) {
	var res model.IssueResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getParticipant(ctx, tx, participantID)
		if err != nil {
			return err
		}
		e, ok, err := getEvent(ctx, tx, p.EventID)
		if err != nil {
			return err
		}
		if !ok {
			return eventNotFound(p.EventID)
		}

		next, cert, outcome, err := lifecycle.IssueCertificate(p, e, s.evaluator, s.mint)
		if err != nil {
			return err
		}
		res = model.IssueResult{Certificate: cert, Participant: next, Reissued: outcome == lifecycle.AlreadyApplied}
		if res.Reissued {
			return nil
		}

		if err := updateParticipant(ctx, tx, next); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO certificates (participant_id, certificate_number, verification_code, issued_at, emailed)
			VALUES (?, ?, ?, ?, 0)
		`, cert.ParticipantID, cert.CertificateNumber, cert.VerificationCode, formatTime(cert.IssuedAt))
		if err != nil {
			return fmt.Errorf("insert certificate: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.IssueResult{}, fmt.Errorf("issue certificate: %w", err)
	}
	s.logger.Info("certificate issued",
		"participant", participantID, "number", res.Certificate.CertificateNumber, "reissued", res.Reissued)
	return res, nil
}

// mint is the authority's certificate minter.
func (s *Store) mint(p model.Participant) (model.Certificate, error) {
	code := s.newCode()
	return model.Certificate{
		ParticipantID:     p.ID,
		CertificateNumber: certificatePrefix + code,
		VerificationCode:  verificationPrefix + s.newCode(),
		IssuedAt:          s.now(),
	}, nil
}

// VerifyCertificate looks a certificate up by its verification code. The
// lookup is case-insensitive and accepts the code with or without the
// VERIFY- prefix.
func (s *Store) VerifyCertificate(ctx context.Context, code string) (model.Verification, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.Verification{}, model.NewError(model.ErrCodeInvalidRequest, "verification code is required")
	}
	if !strings.HasPrefix(code, verificationPrefix) {
		code = verificationPrefix + code
	}

	var participantID string
	err := s.db.QueryRowContext(ctx, `
		SELECT participant_id FROM certificates WHERE verification_code = ?
	`, code).Scan(&participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Verification{}, model.NewError(model.ErrCodeNotFound, fmt.Sprintf("no certificate with code %s", code))
	}
	if err != nil {
		return model.Verification{}, fmt.Errorf("verify certificate: %w", err)
	}

	p, err := getParticipant(ctx, s.db, participantID)
	if err != nil {
		return model.Verification{}, fmt.Errorf("verify certificate: %w", err)
	}
	e, _, err := getEvent(ctx, s.db, p.EventID)
	if err != nil {
		return model.Verification{}, fmt.Errorf("verify certificate: %w", err)
	}
	return model.Verification{
		Certificate: *p.Certificate,
		Participant: p,
		EventTitle:  e.Title,
		EventDate:   e.Date,
	}, nil
}

// MarkCertificateEmailed records delivery of a certificate. The first
// delivery time is kept.
func (s *Store) MarkCertificateEmailed(ctx context.Context, number string) (model.Certificate, error) {
	var participantID string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT participant_id FROM certificates WHERE certificate_number = ?
		`, number).Scan(&participantID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewError(model.ErrCodeNotFound, fmt.Sprintf("certificate %s not found", number))
		}
		if err != nil {
			return fmt.Errorf("query certificate: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE certificates SET emailed = 1, emailed_at = ?
			WHERE certificate_number = ? AND emailed = 0
		`, formatTime(s.now()), number)
		if err != nil {
			return fmt.Errorf("update certificate: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Certificate{}, fmt.Errorf("mark emailed: %w", err)
	}

	p, err := getParticipant(ctx, s.db, participantID)
	if err != nil {
		return model.Certificate{}, fmt.Errorf("mark emailed: %w", err)
	}
	return *p.Certificate, nil
}
