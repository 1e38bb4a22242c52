package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vpaa/eventcore/internal/checkin"
	"github.com/vpaa/eventcore/internal/model"
)

// CreateAccount registers an account and mints its check-in token.
// ID and QRCode are generated when empty. Creating an account whose ID
// already exists returns the stored account unchanged, so seeding is
// repeatable. An email already held by another account is InvalidRequest.
func (s *Store) CreateAccount(ctx context.Context, acct model.Account) (model.Account, error) {
	acct.Name = strings.TrimSpace(acct.Name)
	acct.Email = strings.TrimSpace(acct.Email)
	if !strings.Contains(acct.Email, "@") {
		return model.Account{}, model.NewError(model.ErrCodeInvalidRequest, fmt.Sprintf("invalid email %q", acct.Email))
	}
	if acct.Name == "" {
		acct.Name = acct.Email
	}
	if acct.ID == "" {
		acct.ID = s.newID()
	}
	if acct.QRCode == "" {
		acct.QRCode = checkin.Token{IdentityID: acct.ID, Code: s.newCode()}.String()
	} else if _, err := checkin.Parse(acct.QRCode); err != nil {
		return model.Account{}, err
	}

	var out model.Account
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, ok, err := getAccount(ctx, tx, acct.ID)
		if err != nil {
			return err
		}
		if ok {
			out = existing
			return nil
		}

		var holder string
		err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email_key = ?`,
			model.NormalizeEmail(acct.Email)).Scan(&holder)
		switch {
		case err == nil:
			return model.NewError(model.ErrCodeInvalidRequest,
				fmt.Sprintf("account with email %s already exists", acct.Email))
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup account email: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, email, email_key, qr_code, seq)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM accounts))
		`, acct.ID, acct.Name, acct.Email, model.NormalizeEmail(acct.Email), acct.QRCode)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		out = acct
		return nil
	})
	if err != nil {
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account ready", "account", out.ID, "email", out.Email)
	return out, nil
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	acct, ok, err := getAccount(ctx, s.db, id)
	if err != nil {
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	if !ok {
		return model.Account{}, model.NewError(model.ErrCodeNotFound, fmt.Sprintf("account %s not found", id))
	}
	return acct, nil
}

// ListAccounts returns every account in creation order.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, qr_code FROM accounts ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.QRCode); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

func getAccount(ctx context.Context, q querier, id string) (model.Account, bool, error) {
	var a model.Account
	err := q.QueryRowContext(ctx, `
		SELECT id, name, email, qr_code FROM accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &a.Email, &a.QRCode)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, fmt.Errorf("query account: %w", err)
	}
	return a, true, nil
}
