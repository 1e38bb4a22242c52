package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/testutil"
)

type fixture struct {
	store *Store
	clock *testutil.ManualClock
}

// createTestStore opens a store in a temp dir with deterministic clock, ids
// and codes.
func createTestStore(t *testing.T, opts ...Option) fixture {
	t.Helper()
	clock := testutil.NewManualClock(testutil.Epoch)
	base := []Option{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequence("id").Next),
		WithCodeGenerator(testutil.NewCodeSequence("C").Next),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return fixture{store: s, clock: clock}
}

func createTestEvent(t *testing.T, s *Store, id string, reqs model.Requirements) model.Event {
	t.Helper()
	e, err := s.CreateEvent(context.Background(), model.Event{ID: id, Title: "Event " + id, Requirements: reqs})
	require.NoError(t, err)
	return e
}

func joinEmail(t *testing.T, s *Store, eventID, name, email string) model.Participant {
	t.Helper()
	res, err := s.Join(context.Background(), eventID, model.JoinRequest{Name: name, Email: email})
	require.NoError(t, err)
	return res.Participant
}
