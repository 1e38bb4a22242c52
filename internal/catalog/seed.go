package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vpaa/eventcore/internal/model"
)

// Seeder is the part of an authority a catalog is written to. Both the
// SQLite store and the HTTP client satisfy it.
type Seeder interface {
	CreateAccount(ctx context.Context, acct model.Account) (model.Account, error)
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	ImportRoster(ctx context.Context, eventID string, rows []model.JoinRequest) (model.RosterResult, error)
}

// SeedReport counts what a Seed call wrote.
type SeedReport struct {
	Accounts int `json:"accounts"`
	Events   int `json:"events"`
	Added    int `json:"added"`
	Existing int `json:"existing"`
}

// Seed writes accounts first, then events and their rosters. Every write is
// idempotent, so seeding the same catalog twice only counts the rosters as
// existing the second time.
func Seed(ctx context.Context, s Seeder, c *Catalog, logger *slog.Logger) (SeedReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report SeedReport

	for _, acct := range c.Accounts {
		if _, err := s.CreateAccount(ctx, acct); err != nil {
			return report, fmt.Errorf("seed account %s: %w", acct.ID, err)
		}
		report.Accounts++
	}

	for _, entry := range c.Events {
		if _, err := s.CreateEvent(ctx, entry.Event); err != nil {
			return report, fmt.Errorf("seed event %s: %w", entry.Event.ID, err)
		}
		report.Events++
		if len(entry.Roster) == 0 {
			continue
		}
		res, err := s.ImportRoster(ctx, entry.Event.ID, entry.Roster)
		if err != nil {
			return report, fmt.Errorf("seed roster %s: %w", entry.Event.ID, err)
		}
		report.Added += res.Added
		report.Existing += res.Existing
		logger.Debug("roster seeded", "event", entry.Event.ID, "added", res.Added, "existing", res.Existing)
	}

	logger.Info("catalog seeded",
		"accounts", report.Accounts, "events", report.Events, "added", report.Added, "existing", report.Existing)
	return report, nil
}
