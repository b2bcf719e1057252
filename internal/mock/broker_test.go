package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrading-io/callwheel/internal/broker"
)

func TestScriptedFillOnAttempt(t *testing.T) {
	m := NewBroker()
	m.FillOnAttempt["AAPL"] = 2

	first, err := m.SubmitSellLimitOrder("open", "credit", 0.45, "AAPL", 1, "2026-01-16", 110, "call")
	require.NoError(t, err)
	assert.Equal(t, broker.OrderStateOpen, first.State)

	second, err := m.SubmitSellLimitOrder("open", "credit", 0.40, "AAPL", 1, "2026-01-16", 110, "call")
	require.NoError(t, err)
	assert.Equal(t, broker.OrderStateFilled, second.State)
	assert.Equal(t, 2, m.Attempts("AAPL"))
}

func TestCancelIsIdempotentOnFills(t *testing.T) {
	m := NewBroker()
	m.FillOnAttempt["AAPL"] = 1

	order, err := m.SubmitSellLimitOrder("open", "credit", 0.45, "AAPL", 1, "2026-01-16", 110, "call")
	require.NoError(t, err)
	require.Equal(t, broker.OrderStateFilled, order.State)

	require.NoError(t, m.CancelOrder(order.ID))
	got, err := m.GetOrderInfo(order.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.OrderStateFilled, got.State)
}

func TestCancelMarksOpenOrders(t *testing.T) {
	m := NewBroker()

	order, err := m.SubmitBuyLimitOrder("close", "debit", 0.45, "AAPL", 1, "2026-01-16", 110, "call")
	require.NoError(t, err)
	require.Equal(t, broker.OrderStateOpen, order.State)

	require.NoError(t, m.CancelOrder(order.ID))
	got, err := m.GetOrderInfo(order.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.OrderStateCancelled, got.State)
	assert.Equal(t, []string{order.ID}, m.Cancelled)
}

func TestPaperBrokerSeedsTradableAccount(t *testing.T) {
	p := NewPaperBroker([]string{"AAPL", "MSFT"})

	holdings, err := p.GetHoldings()
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	for symbol, h := range holdings {
		assert.GreaterOrEqual(t, h.Quantity.Float(), 100.0, symbol)
	}

	chain, err := p.GetOptionChain("AAPL")
	require.NoError(t, err)
	require.Len(t, chain.ExpirationDates, 4)

	for _, exp := range chain.ExpirationDates {
		contracts, err := p.FindContractsByProfitability("AAPL", exp, "call", broker.ProfitMetricShort, 0.80, 1.0)
		require.NoError(t, err)
		require.NotEmpty(t, contracts)
		for _, c := range contracts {
			// Quotes and instruments are registered for every contract.
			_, err := p.GetContractQuote(c.ID)
			require.NoError(t, err)
			_, err = p.GetContractInstrument(c.ID)
			require.NoError(t, err)
			assert.Greater(t, c.AskPrice.Float(), c.BidPrice.Float())
		}
	}
}

func TestSeedShortCall(t *testing.T) {
	p := NewPaperBroker([]string{"AAPL"})
	p.SeedShortCall("AAPL", 2)

	positions, err := p.GetAggregateOpenPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.Equal(t, "short_call", pos.Strategy)
	assert.InDelta(t, 2, pos.Quantity.Float(), 1e-9)
	require.Len(t, pos.Legs, 1)
	assert.Contains(t, pos.Legs[0].Option, "/options/instruments/")
}
