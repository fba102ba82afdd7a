package engine

import (
	"fmt"
	"time"
)

// InvalidStateError is returned when an operation targets a negotiation that
// already reached a terminal status.
type InvalidStateError struct {
	ID     string
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("negotiation %s is %s and cannot transition", e.ID, e.Status)
}

// ExpiredError is returned when a negotiation's deadline passed before the
// operation. Returning it implies the row was transitioned to expired.
type ExpiredError struct {
	ID        string
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("negotiation %s expired at %s", e.ID, e.ExpiredAt.Format(time.RFC3339))
}

// RoundLimitError is returned when a counter would exceed the round cap.
// Accept and reject stay legal past the cap.
type RoundLimitError struct {
	ID        string
	MaxRounds int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("negotiation %s reached the %d-round limit; only accept or reject remain", e.ID, e.MaxRounds)
}
