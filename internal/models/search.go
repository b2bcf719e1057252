package models

import (
	"fmt"

	"github.com/algotrading-io/callwheel/internal/broker"
)

// Cursor is a position in one symbol's (expiration x contract x price
// offset) search space. The closing variant only moves PriceOffset; the
// other indices stay at zero.
type Cursor struct {
	ExpirationIdx int
	ContractIdx   int
	PriceOffset   int
}

// CandidateSet holds the expirations and per-expiration contract candidates
// built once at batch start. Contracts is parallel to Expirations. Entries
// are only mutated by overlaying a refreshed quote onto the current
// candidate; the shape never changes after construction.
type CandidateSet struct {
	Expirations []string
	Contracts   [][]broker.OptionContract
}

// ContractsAt returns the candidate list for an expiration index, or nil
// when the index is out of range.
func (cs *CandidateSet) ContractsAt(expIdx int) []broker.OptionContract {
	if expIdx < 0 || expIdx >= len(cs.Contracts) {
		return nil
	}
	return cs.Contracts[expIdx]
}

// ExpirationAt returns the expiration date at the given index.
func (cs *CandidateSet) ExpirationAt(expIdx int) (string, bool) {
	if expIdx < 0 || expIdx >= len(cs.Expirations) {
		return "", false
	}
	return cs.Expirations[expIdx], true
}

// Current returns the contract the cursor addresses, or false when the
// cursor points at an empty or out-of-range candidate list.
func (cs *CandidateSet) Current(cur Cursor) (*broker.OptionContract, bool) {
	contracts := cs.ContractsAt(cur.ExpirationIdx)
	if cur.ContractIdx < 0 || cur.ContractIdx >= len(contracts) {
		return nil, false
	}
	return &contracts[cur.ContractIdx], true
}

// OnLastExpiration reports whether the cursor sits on the final expiration.
func (cs *CandidateSet) OnLastExpiration(cur Cursor) bool {
	return cur.ExpirationIdx >= len(cs.Expirations)-1
}

// OnLastContract reports whether the cursor sits on the final contract of
// its expiration. True for an empty candidate list.
func (cs *CandidateSet) OnLastContract(cur Cursor) bool {
	return cur.ContractIdx >= len(cs.ContractsAt(cur.ExpirationIdx))-1
}

// SearchState is the mutable per-symbol search position. The executing
// round loop is the single writer; candidate sets and cursors are never
// shared across symbols.
type SearchState struct {
	Symbol         string
	Quantity       int
	ReferencePrice float64

	// Opening variant: cursor indexes into Candidates.
	Candidates CandidateSet
	Cursor     Cursor

	// Closing variant: the contract is fixed and pre-owned.
	ContractID string
	Expiration string
	Strike     float64
	Contract   *broker.OptionContract

	// LastOrder is the filled order once the state is terminal.
	LastOrder *broker.Order

	machine *StateMachine
}

// NewSearchState creates a search state in the searching trade state.
func NewSearchState(symbol string, quantity int) *SearchState {
	return &SearchState{
		Symbol:   symbol,
		Quantity: quantity,
		machine:  NewStateMachine(),
	}
}

// State returns the symbol's current trade state.
func (s *SearchState) State() TradeState {
	return s.machine.GetCurrentState()
}

// MarkFilled records a terminal fill.
func (s *SearchState) MarkFilled() error {
	return s.machine.Transition(StateFilled, ConditionOrderFilled)
}

// MarkExhausted records terminal search-space exhaustion.
func (s *SearchState) MarkExhausted() error {
	return s.machine.Transition(StateExhausted, ConditionChainExhausted)
}

// Validate checks that the cursor is a usable position in the candidate set
// for the opening variant. Terminal states are exempt.
func (s *SearchState) Validate() error {
	if s.machine.IsTerminal() {
		return nil
	}
	if s.Contract != nil {
		// Closing variant: the fixed contract is the whole search space.
		return nil
	}
	if s.Cursor.ExpirationIdx < 0 || s.Cursor.ExpirationIdx >= len(s.Candidates.Expirations) {
		return fmt.Errorf("%s: expiration index %d out of range [0,%d)",
			s.Symbol, s.Cursor.ExpirationIdx, len(s.Candidates.Expirations))
	}
	contracts := s.Candidates.ContractsAt(s.Cursor.ExpirationIdx)
	if len(contracts) > 0 && s.Cursor.ContractIdx >= len(contracts) {
		return fmt.Errorf("%s: contract index %d out of range [0,%d)",
			s.Symbol, s.Cursor.ContractIdx, len(contracts))
	}
	if s.Cursor.PriceOffset < 0 {
		return fmt.Errorf("%s: negative price offset %d", s.Symbol, s.Cursor.PriceOffset)
	}
	return nil
}

// Result is one symbol's terminal outcome: a filled order, or
// ErrSearchExhausted when no viable fill was found in the search space.
type Result struct {
	Symbol string
	Order  *broker.Order
	Err    error
}

// Filled reports whether the result is a filled order.
func (r Result) Filled() bool {
	return r.Err == nil && r.Order != nil
}
