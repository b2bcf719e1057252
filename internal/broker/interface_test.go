package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBroker counts calls and fails on demand.
type stubBroker struct {
	err   error
	calls int
}

func (s *stubBroker) GetHoldings() (map[string]Holding, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return map[string]Holding{"AAPL": {InstrumentID: "inst-1"}}, nil
}

func (s *stubBroker) GetOpenStockPositions() ([]StockPosition, error)        { return nil, s.err }
func (s *stubBroker) GetOpenOptionPositions() ([]OptionPosition, error)      { return nil, s.err }
func (s *stubBroker) GetAggregateOpenPositions() ([]AggregatePosition, error) { return nil, s.err }
func (s *stubBroker) GetOptionChain(symbol string) (*OptionChain, error)     { return nil, s.err }

func (s *stubBroker) FindContractsByProfitability(symbol, expiration, optionType, metric string, low, high float64) ([]OptionContract, error) {
	return nil, s.err
}

func (s *stubBroker) GetContractQuote(id string) (*ContractQuote, error)           { return nil, s.err }
func (s *stubBroker) GetContractInstrument(id string) (*ContractInstrument, error) { return nil, s.err }

func (s *stubBroker) SubmitSellLimitOrder(positionEffect, creditOrDebit string, price float64, symbol string, quantity int, expiration string, strike float64, optionType string) (*Order, error) {
	return nil, s.err
}

func (s *stubBroker) SubmitBuyLimitOrder(positionEffect, creditOrDebit string, price float64, symbol string, quantity int, expiration string, strike float64, optionType string) (*Order, error) {
	return nil, s.err
}

func (s *stubBroker) CancelOrder(id string) error              { return s.err }
func (s *stubBroker) GetOrderInfo(id string) (*Order, error)   { return nil, s.err }

var _ Broker = (*stubBroker)(nil)

func TestCircuitBreakerPassesThrough(t *testing.T) {
	stub := &stubBroker{}
	cb := NewCircuitBreakerBroker(stub)

	holdings, err := cb.GetHoldings()
	require.NoError(t, err)
	assert.Contains(t, holdings, "AAPL")
	assert.Equal(t, 1, stub.calls)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	stub := &stubBroker{err: errors.New("boom")}
	cb := NewCircuitBreakerBrokerWithSettings(stub, CircuitBreakerSettings{
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.GetHoldings()
		require.Error(t, err)
	}

	// The breaker is open: the underlying broker stops seeing calls.
	before := stub.calls
	_, err := cb.GetHoldings()
	require.Error(t, err)
	assert.Equal(t, before, stub.calls)
}
