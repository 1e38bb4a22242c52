package reconcile

import (
	"context"

	"github.com/vpaa/eventcore/internal/model"
)

// Collaborator is the authority the engine reconciles against. The SQLite
// store satisfies it in-process; the HTTP client satisfies it remotely.
//
// Implementations report transport problems as NETWORK_FAILURE so the
// engine can tell retryable failures from definitive ones.
type Collaborator interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	Join(ctx context.Context, eventID string, req model.JoinRequest) (model.JoinResult, error)
	MarkAttendance(ctx context.Context, participantID string) (model.CheckInResult, error)
	ScanQR(ctx context.Context, token, eventID string) (model.CheckInResult, error)
	SubmitEvaluation(ctx context.Context, participantID string, data model.EvaluationData) (model.Participant, error)
	IssueCertificate(ctx context.Context, participantID string) (model.IssueResult, error)
	CheckOut(ctx context.Context, participantID string) (model.Participant, error)
}
