// Package eligibility decides certificate eligibility.
//
// Two predicates are exposed on purpose. IsCertifiable authorizes an issuance
// and stays true for participants that already completed, which is what makes
// re-issuance idempotent. IsPending builds bulk-action lists and excludes
// completed participants so a "issue all" pass never mints twice.
package eligibility

import (
	"fmt"

	"github.com/vpaa/eventcore/internal/model"
)

// QuizPolicy decides how the declared-but-unrecorded quiz requirement gates
// certification.
type QuizPolicy string

const (
	// QuizIgnore treats the quiz flag as a no-op gate.
	QuizIgnore QuizPolicy = "ignore"

	// QuizBlock treats the quiz flag as a genuine gate. No operation records
	// quiz results yet, so an event requiring a quiz is never certifiable.
	QuizBlock QuizPolicy = "block"
)

// ParseQuizPolicy parses a policy name. The empty string means QuizIgnore.
func ParseQuizPolicy(s string) (QuizPolicy, error) {
	switch QuizPolicy(s) {
	case "", QuizIgnore:
		return QuizIgnore, nil
	case QuizBlock:
		return QuizBlock, nil
	default:
		return "", fmt.Errorf("invalid quiz policy %q: must be %q or %q", s, QuizIgnore, QuizBlock)
	}
}

// Evaluator binds a quiz policy to the eligibility predicates.
// The zero value ignores the quiz gate.
type Evaluator struct {
	Quiz QuizPolicy
}

// IsCertifiable reports whether issuance for p is authorized under e.
// True for attended and completed participants that passed every enforced gate.
func (ev Evaluator) IsCertifiable(p model.Participant, e model.Event) bool {
	if p.EventID != e.ID {
		return false
	}
	if !p.Status.CheckedIn() {
		return false
	}
	if e.Requirements.Evaluation && !p.HasEvaluated {
		return false
	}
	if e.Requirements.Quiz && ev.Quiz == QuizBlock {
		return false
	}
	return true
}

// IsPending reports whether p belongs in the pending-certification set.
func (ev Evaluator) IsPending(p model.Participant, e model.Event) bool {
	return ev.IsCertifiable(p, e) && p.Status != model.StatusCompleted
}

// Pending filters participants down to the pending-certification set,
// preserving order.
func (ev Evaluator) Pending(participants []model.Participant, e model.Event) []model.Participant {
	var out []model.Participant
	for _, p := range participants {
		if ev.IsPending(p, e) {
			out = append(out, p)
		}
	}
	return out
}

// Certified returns the participants that already hold a certificate.
func Certified(participants []model.Participant) []model.Participant {
	var out []model.Participant
	for _, p := range participants {
		if p.Status == model.StatusCompleted {
			out = append(out, p)
		}
	}
	return out
}

// IsCertifiable applies the default (quiz-ignoring) evaluator.
func IsCertifiable(p model.Participant, e model.Event) bool {
	return Evaluator{}.IsCertifiable(p, e)
}

// IsPending applies the default (quiz-ignoring) evaluator.
func IsPending(p model.Participant, e model.Event) bool {
	return Evaluator{}.IsPending(p, e)
}
