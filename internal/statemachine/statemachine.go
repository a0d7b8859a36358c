// Package statemachine implements the transition guard shared by every
// order-like entity: production requests, purchase orders, sales orders,
// work orders and material export requests each instantiate a Machine with
// their own state set.
package statemachine

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidTransition is returned when a transition violates the machine
// definition or a guard predicate, including re-entry into terminal states.
var ErrInvalidTransition = errors.New("invalid state transition")

// Guard is a predicate evaluated before a transition mutates anything.
// Returning a non-nil error aborts the transition.
type Guard func() error

// Machine describes the allowed transitions for one entity type.
type Machine[S comparable] struct {
	transitions map[S][]S
	terminal    []S
}

// New builds a Machine from a transition table and terminal states.
func New[S comparable](transitions map[S][]S, terminal ...S) Machine[S] {
	return Machine[S]{transitions: transitions, terminal: terminal}
}

// CanTransition reports whether current → target is defined.
func (m Machine[S]) CanTransition(current, target S) bool {
	if slices.Contains(m.terminal, current) {
		return false
	}
	return slices.Contains(m.transitions[current], target)
}

// IsTerminal reports whether the state accepts no further transitions.
func (m Machine[S]) IsTerminal(state S) bool {
	return slices.Contains(m.terminal, state)
}

// Transition validates current → target and runs guards in order. The caller
// is responsible for performing the actual mutation inside the same atomic
// unit that re-checked the current state.
func (m Machine[S]) Transition(current, target S, guards ...Guard) error {
	if !m.CanTransition(current, target) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, current, target)
	}
	for _, guard := range guards {
		if guard == nil {
			continue
		}
		if err := guard(); err != nil {
			return err
		}
	}
	return nil
}

// NotSelfApproval guards against an order being approved by its creator.
// It holds regardless of the actor's roles.
func NotSelfApproval(creatorID, actorID int64) Guard {
	return func() error {
		if actorID == 0 {
			return fmt.Errorf("%w: approver identity required", ErrInvalidTransition)
		}
		if creatorID == actorID {
			return fmt.Errorf("%w: requester cannot approve own order", ErrInvalidTransition)
		}
		return nil
	}
}

// HasLines guards that an order carries at least one line item.
func HasLines(n int) Guard {
	return func() error {
		if n < 1 {
			return fmt.Errorf("%w: order has no line items", ErrInvalidTransition)
		}
		return nil
	}
}
