// Package lifecycle validates and applies message status transitions.
package lifecycle

import (
	"fmt"
	"time"

	"smsgate/internal/domain"
)

// transitions lists the allowed destinations for every status. Terminal
// statuses keep an empty entry so the table stays total over all seven
// statuses. No status may transition to itself.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusQueued:      {domain.StatusSending, domain.StatusCanceled},
	domain.StatusSending:     {domain.StatusSent, domain.StatusFailed},
	domain.StatusSent:        {domain.StatusDelivered, domain.StatusUndelivered},
	domain.StatusFailed:      {domain.StatusQueued},
	domain.StatusUndelivered: {domain.StatusQueued},
	domain.StatusDelivered:   {},
	domain.StatusCanceled:    {},
}

// Statuses returns every status the transition table covers.
func Statuses() []domain.Status {
	out := make([]domain.Status, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	return out
}

func IsValidTransition(from, to domain.Status) bool {
	for _, dst := range transitions[from] {
		if dst == to {
			return true
		}
	}
	return false
}

func IsTerminal(s domain.Status) bool {
	dsts, ok := transitions[s]
	return ok && len(dsts) == 0
}

// IsRetryableFailure reports whether a message in this status may re-enter
// the queue.
func IsRetryableFailure(s domain.Status) bool {
	return s == domain.StatusFailed || s == domain.StatusUndelivered
}

type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Apply returns a copy of the message moved to the new status. Every retry
// re-entering the queue from a retryable failure increments RetryCount by
// exactly one.
func Apply(m domain.Message, to domain.Status, now time.Time) (domain.Message, error) {
	if !IsValidTransition(m.Status, to) {
		return m, &InvalidTransitionError{From: m.Status, To: to}
	}
	from := m.Status
	m.Status = to
	m.UpdatedAt = now
	if to == domain.StatusQueued && IsRetryableFailure(from) {
		m.RetryCount++
	}
	if to == domain.StatusDelivered {
		t := now
		m.DeliveredAt = &t
	}
	return m, nil
}
