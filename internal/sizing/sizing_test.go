package sizing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/mock"
)

func TestSuggestContracts(t *testing.T) {
	m := mock.NewBroker()
	m.Holdings = map[string]broker.Holding{
		"AAPL": {InstrumentID: "inst-aapl", Price: 189.50, Quantity: 250},
		"MSFT": {InstrumentID: "inst-msft", Price: 410.00, Quantity: 100},
		"F":    {InstrumentID: "inst-f", Price: 12.00, Quantity: 60}, // under a round lot
	}
	m.StockPositions = []broker.StockPosition{
		{InstrumentID: "inst-aapl", Quantity: 250, SharesHeldForOptionsCollateral: 100},
		{InstrumentID: "inst-unknown", Quantity: 500, SharesHeldForOptionsCollateral: 500},
	}

	s, err := SuggestContracts(m)
	require.NoError(t, err)

	// 250 shares cover 2 contracts, 1 already committed.
	assert.Equal(t, 1, s.Available["AAPL"])
	assert.Equal(t, 1, s.Available["MSFT"])
	assert.Equal(t, 0, s.Available["F"])
	assert.InDelta(t, 189.50, s.Prices["AAPL"], 1e-9)
}

func TestSuggestContractsBrokerError(t *testing.T) {
	m := mock.NewBroker()
	m.Err = errors.New("boom")

	_, err := SuggestContracts(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching holdings")
}

func TestTradablePreservesRequestOrder(t *testing.T) {
	s := &Suggestion{Available: map[string]int{"AAPL": 1, "MSFT": 0, "GOOG": 3}}

	got := s.Tradable([]string{"GOOG", "MSFT", "AAPL", "TSLA"})
	assert.Equal(t, []string{"GOOG", "AAPL"}, got)

	assert.Nil(t, s.Tradable(nil))
}
