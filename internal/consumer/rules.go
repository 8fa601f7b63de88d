package consumer

import (
	"fmt"
	"strings"
	"time"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/approval"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/event"
)

// Attendee ceilings per requester type.
const (
	studentLimit = 50
	staffLimit   = 100
	facultyLimit = 200
)

type RulesConfig struct {
	// MaxDuration rejects bookings longer than this span. Zero disables
	// the check.
	MaxDuration time.Duration
}

// Evaluator applies the approval policy to a booking event. Outcomes are
// decision values, never errors: a rule violation is a REJECTED decision
// and a panic inside evaluation becomes a REJECTED decision with a
// diagnostic reason instead of poisoning the consumer loop.
type Evaluator struct {
	cfg RulesConfig
}

func NewEvaluator(cfg RulesConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Evaluate(p *event.BookingPayload) (status, reason string) {
	defer func() {
		if r := recover(); r != nil {
			status = approval.StatusRejected
			reason = fmt.Sprintf("approval rule evaluation failed: %v", r)
		}
	}()

	var limit int
	switch strings.ToUpper(p.RequesterType) {
	case "STUDENT":
		limit = studentLimit
	case "STAFF":
		limit = staffLimit
	case "FACULTY":
		limit = facultyLimit
	default:
		return approval.StatusRejected, fmt.Sprintf("unknown requester type %q", p.RequesterType)
	}

	if p.ExpectedAttendees > limit {
		return approval.StatusRejected,
			fmt.Sprintf("expected attendees %d exceeds %s limit of %d",
				p.ExpectedAttendees, strings.ToLower(p.RequesterType), limit)
	}

	if !p.EndTime.After(p.StartTime) {
		return approval.StatusRejected, "end time must be after start time"
	}

	if e.cfg.MaxDuration > 0 && p.EndTime.Sub(p.StartTime) > e.cfg.MaxDuration {
		return approval.StatusRejected,
			fmt.Sprintf("booking duration exceeds maximum of %s", e.cfg.MaxDuration)
	}

	return approval.StatusApproved, ""
}
