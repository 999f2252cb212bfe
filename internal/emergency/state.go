package emergency

import (
	"fmt"

	"secure.share/emergency/internal/models"
)

// Event is an input to the access state machine.
type Event int

const (
	EventRequest Event = iota + 1
	EventApprove
	EventDeny
	EventEditWaitDays
)

func (e Event) String() string {
	switch e {
	case EventRequest:
		return "request"
	case EventApprove:
		return "approve"
	case EventDeny:
		return "deny"
	case EventEditWaitDays:
		return "edit"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Transition is the single place that decides which moves are legal:
//
//	pending   --request-->  requested
//	requested --approve-->  approved
//	requested --deny----->  denied
//	pending   --edit----->  pending
//
// Leaving approved or denied is only possible by deleting the row.
func Transition(from models.Status, ev Event) (models.Status, error) {
	switch ev {
	case EventRequest:
		if from == models.StatusPending {
			return models.StatusRequested, nil
		}
		return from, invalidTransition(fmt.Sprintf("access already %s", from))
	case EventApprove, EventDeny:
		if from == models.StatusRequested {
			if ev == EventApprove {
				return models.StatusApproved, nil
			}
			return models.StatusDenied, nil
		}
		return from, invalidTransition(fmt.Sprintf("cannot respond to %s request", from))
	case EventEditWaitDays:
		if from == models.StatusPending {
			return models.StatusPending, nil
		}
		return from, invalidTransition("cannot modify active request")
	}
	return from, invalidTransition(fmt.Sprintf("unknown event %s", ev))
}

func invalidTransition(reason string) error {
	return &Error{Kind: KindInvalidTransition, Reason: reason}
}
