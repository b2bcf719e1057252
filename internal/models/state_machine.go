// Package models provides the per-symbol search state for limit-price
// discovery: candidate sets, cursors, trade states, and terminal results.
package models

import (
	"fmt"
	"time"
)

// TradeState represents the lifecycle state of one symbol's price search.
type TradeState string

const (
	// StateSearching means the cursor is still walking the search space.
	StateSearching TradeState = "searching"
	// StateFilled means an order filled at some cursor position. Terminal.
	StateFilled TradeState = "filled"
	// StateExhausted means the search space was walked without a fill. Terminal.
	StateExhausted TradeState = "exhausted"
)

// Transition conditions.
const (
	ConditionOrderFilled    = "order_filled"
	ConditionChainExhausted = "chain_exhausted"
)

// StateTransition defines a valid state transition.
type StateTransition struct {
	From        TradeState
	To          TradeState
	Condition   string
	Description string
}

// ValidTransitions lists every allowed transition.
var ValidTransitions = []StateTransition{
	{StateSearching, StateFilled, ConditionOrderFilled, "Limit order filled at current cursor price"},
	{StateSearching, StateExhausted, ConditionChainExhausted, "Every expiration/contract/offset tried without a fill"},
}

// StateMachine tracks one symbol's trade state and enforces transitions.
type StateMachine struct {
	currentState   TradeState
	previousState  TradeState
	transitionTime time.Time
}

// NewStateMachine creates a state machine in the searching state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:   StateSearching,
		previousState:  StateSearching,
		transitionTime: time.Now().UTC(),
	}
}

// GetCurrentState returns the current state.
func (sm *StateMachine) GetCurrentState() TradeState {
	return sm.currentState
}

// GetPreviousState returns the previous state.
func (sm *StateMachine) GetPreviousState() TradeState {
	return sm.previousState
}

// IsTerminal reports whether the symbol has reached a final outcome.
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState == StateFilled || sm.currentState == StateExhausted
}

// IsValidTransition checks if a transition is valid from the current state.
func (sm *StateMachine) IsValidTransition(to TradeState, condition string) error {
	for _, t := range ValidTransitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// Transition moves to a new state.
func (sm *StateMachine) Transition(to TradeState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	return nil
}
