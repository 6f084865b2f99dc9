package domain

import "fmt"

// Status is the durable lifecycle state of a queued report job
type Status string

// Job status constants
const (
	StatusReadyToProcess Status = "READY_TO_PROCESS"
	StatusProcessed      Status = "PROCESSED"
	StatusFailed         Status = "FAILED"
)

// transitions lists the allowed next states for every status.
// Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusReadyToProcess: {StatusProcessed, StatusFailed},
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is allowed
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates a status change and returns ErrInvalidTransition when it is not allowed
func Transition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Kind separates manual and scheduled queues; each kind is processed with its own limits
type Kind string

// Job kind constants
const (
	KindScheduled Kind = "scheduled"
	KindManual    Kind = "manual"
)

// Kinds returns every known kind in a stable order
func Kinds() []Kind {
	return []Kind{KindScheduled, KindManual}
}

// ParseKind converts a string into a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindScheduled, KindManual:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown job kind %q", s)
	}
}
