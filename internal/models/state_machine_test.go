package models

import (
	"testing"

	"github.com/algotrading-io/callwheel/internal/broker"
)

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name      string
		to        TradeState
		condition string
		wantErr   bool
	}{
		{
			name:      "searching to filled on order_filled",
			to:        StateFilled,
			condition: ConditionOrderFilled,
			wantErr:   false,
		},
		{
			name:      "searching to exhausted on chain_exhausted",
			to:        StateExhausted,
			condition: ConditionChainExhausted,
			wantErr:   false,
		},
		{
			name:      "searching to filled with wrong condition",
			to:        StateFilled,
			condition: ConditionChainExhausted,
			wantErr:   true,
		},
		{
			name:      "searching to searching is not defined",
			to:        StateSearching,
			condition: "",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			err := sm.Transition(tt.to, tt.condition)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition(%s, %s) error = %v, wantErr %v", tt.to, tt.condition, err, tt.wantErr)
			}
			if !tt.wantErr && sm.GetCurrentState() != tt.to {
				t.Errorf("current state = %s, expected %s", sm.GetCurrentState(), tt.to)
			}
		})
	}
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.Transition(StateFilled, ConditionOrderFilled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sm.IsTerminal() {
		t.Fatal("filled should be terminal")
	}
	if err := sm.Transition(StateExhausted, ConditionChainExhausted); err == nil {
		t.Error("expected transition out of filled to fail")
	}
	if sm.GetPreviousState() != StateSearching {
		t.Errorf("previous state = %s, expected searching", sm.GetPreviousState())
	}
}

func TestCandidateSetAccessors(t *testing.T) {
	cs := CandidateSet{
		Expirations: []string{"2026-09-04", "2026-09-11"},
		Contracts: [][]broker.OptionContract{
			{{ID: "c1"}, {ID: "c2"}},
			{},
		},
	}

	if got := cs.ContractsAt(0); len(got) != 2 {
		t.Errorf("ContractsAt(0) len = %d, expected 2", len(got))
	}
	if got := cs.ContractsAt(5); got != nil {
		t.Errorf("ContractsAt(5) = %v, expected nil", got)
	}
	if got := cs.ContractsAt(-1); got != nil {
		t.Errorf("ContractsAt(-1) = %v, expected nil", got)
	}

	if c, ok := cs.Current(Cursor{ExpirationIdx: 0, ContractIdx: 1}); !ok || c.ID != "c2" {
		t.Errorf("Current = %v, %v; expected c2", c, ok)
	}
	if _, ok := cs.Current(Cursor{ExpirationIdx: 1, ContractIdx: 0}); ok {
		t.Error("Current on empty list should report false")
	}
	if _, ok := cs.Current(Cursor{ExpirationIdx: 0, ContractIdx: 2}); ok {
		t.Error("Current past end of list should report false")
	}

	if !cs.OnLastExpiration(Cursor{ExpirationIdx: 1}) {
		t.Error("index 1 of 2 should be the last expiration")
	}
	if cs.OnLastExpiration(Cursor{ExpirationIdx: 0}) {
		t.Error("index 0 of 2 should not be the last expiration")
	}
	if !cs.OnLastContract(Cursor{ExpirationIdx: 0, ContractIdx: 1}) {
		t.Error("contract 1 of 2 should be the last contract")
	}
	if !cs.OnLastContract(Cursor{ExpirationIdx: 1, ContractIdx: 0}) {
		t.Error("empty contract list should report last contract")
	}
}

func TestSearchStateValidate(t *testing.T) {
	st := NewSearchState("XYZ", 1)
	st.Candidates = CandidateSet{
		Expirations: []string{"2026-09-04"},
		Contracts:   [][]broker.OptionContract{{{ID: "c1"}}},
	}

	if err := st.Validate(); err != nil {
		t.Fatalf("valid state reported invalid: %v", err)
	}

	st.Cursor.ExpirationIdx = 3
	if err := st.Validate(); err == nil {
		t.Error("out-of-range expiration index should fail validation")
	}

	st.Cursor.ExpirationIdx = 0
	st.Cursor.ContractIdx = 9
	if err := st.Validate(); err == nil {
		t.Error("out-of-range contract index should fail validation")
	}

	// Terminal states are exempt from cursor validation.
	st2 := NewSearchState("ABC", 1)
	if err := st2.MarkExhausted(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st2.Cursor.ExpirationIdx = 42
	if err := st2.Validate(); err != nil {
		t.Errorf("terminal state should skip validation, got %v", err)
	}
}

func TestResultFilled(t *testing.T) {
	filled := Result{Symbol: "XYZ", Order: &broker.Order{ID: "o1", State: broker.OrderStateFilled}}
	if !filled.Filled() {
		t.Error("result with order should be filled")
	}
	exhausted := Result{Symbol: "XYZ", Err: ErrSearchExhausted}
	if exhausted.Filled() {
		t.Error("exhausted result should not be filled")
	}
}
