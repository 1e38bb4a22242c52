package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vpaa/eventcore/internal/model"
)

// EventReport aggregates attendance and evaluation figures for an event.
// AverageRating averages the numeric "rating" field of evaluation payloads
// and is nil when no payload carries one.
func (s *Store) EventReport(ctx context.Context, eventID string) (model.EventReport, error) {
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return model.EventReport{}, fmt.Errorf("event report: %w", err)
	}

	r := model.EventReport{EventID: e.ID, Title: e.Title, Total: len(e.Participants)}
	var sum float64
	var rated int
	for _, p := range e.Participants {
		switch p.Status {
		case model.StatusRegistered:
			r.Registered++
		case model.StatusAttended:
			r.Attended++
		case model.StatusCompleted:
			r.Completed++
		}
		if p.CheckOutTime != nil {
			r.CheckedOut++
		}
		if s.evaluator.IsPending(p, e) {
			r.Pending++
		}
		if !p.HasEvaluated {
			continue
		}
		r.Evaluated++
		if v, ok := rating(p.EvaluationData); ok {
			sum += v
			rated++
		}
	}
	if rated > 0 {
		avg := sum / float64(rated)
		r.AverageRating = &avg
	}
	return r, nil
}

func rating(d model.EvaluationData) (float64, bool) {
	switch v := d["rating"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
