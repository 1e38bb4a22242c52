package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpaa/eventcore/internal/model"
)

func event(evaluation, quiz bool) model.Event {
	return model.Event{
		ID:           "E1",
		Requirements: model.Requirements{Attendance: true, Evaluation: evaluation, Quiz: quiz},
	}
}

func participant(status model.Status, evaluated bool) model.Participant {
	p := model.Participant{ID: "p1", EventID: "E1", Email: "p@x.com", Status: status, HasEvaluated: evaluated}
	if status.CheckedIn() {
		at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		p.CheckInTime = &at
	}
	return p
}

func TestIsCertifiable(t *testing.T) {
	tests := []struct {
		name        string
		p           model.Participant
		e           model.Event
		certifiable bool
		pending     bool
	}{
		{"registered never", participant(model.StatusRegistered, true), event(false, false), false, false},
		{"attended no eval required", participant(model.StatusAttended, false), event(false, false), true, true},
		{"attended eval missing", participant(model.StatusAttended, false), event(true, false), false, false},
		{"attended evaluated", participant(model.StatusAttended, true), event(true, false), true, true},
		{"completed stays certifiable", participant(model.StatusCompleted, true), event(true, false), true, false},
		{"quiz ignored by default", participant(model.StatusAttended, true), event(true, true), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.certifiable, IsCertifiable(tt.p, tt.e))
			assert.Equal(t, tt.pending, IsPending(tt.p, tt.e))
		})
	}
}

func TestIsCertifiable_OtherEvent(t *testing.T) {
	p := participant(model.StatusAttended, true)
	e := event(false, false)
	e.ID = "E2"
	assert.False(t, IsCertifiable(p, e))
}

func TestQuizBlock(t *testing.T) {
	ev := Evaluator{Quiz: QuizBlock}
	p := participant(model.StatusAttended, true)

	assert.False(t, ev.IsCertifiable(p, event(true, true)))
	assert.True(t, ev.IsCertifiable(p, event(true, false)))
}

func TestParseQuizPolicy(t *testing.T) {
	p, err := ParseQuizPolicy("")
	require.NoError(t, err)
	assert.Equal(t, QuizIgnore, p)

	p, err = ParseQuizPolicy("block")
	require.NoError(t, err)
	assert.Equal(t, QuizBlock, p)

	_, err = ParseQuizPolicy("maybe")
	assert.Error(t, err)
}

func TestPendingAndCertified(t *testing.T) {
	e := event(true, false)
	list := []model.Participant{
		participant(model.StatusRegistered, false),
		participant(model.StatusAttended, false),
		participant(model.StatusAttended, true),
		participant(model.StatusCompleted, true),
	}
	for i := range list {
		list[i].ID = string(rune('a' + i))
	}

	pending := Evaluator{}.Pending(list, e)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)

	certified := Certified(list)
	require.Len(t, certified, 1)
	assert.Equal(t, "d", certified[0].ID)
}

// Eligibility only ever depends on forward-moving fields, so it is monotonic
// across evaluation and check-in.
func TestIsCertifiable_Monotonic(t *testing.T) {
	e := event(true, false)
	p := participant(model.StatusAttended, true)
	require.True(t, IsCertifiable(p, e))

	p.EvaluationData = model.EvaluationData{"rating": "3"}
	assert.True(t, IsCertifiable(p, e))

	p.Status = model.StatusCompleted
	assert.True(t, IsCertifiable(p, e))
}
