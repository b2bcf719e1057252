package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/mock"
	"github.com/algotrading-io/callwheel/internal/models"
)

const closeContractID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"

// seedClose scripts a broker holding one open short call on AAPL, with
// instrument and quote data registered for its contract.
func seedClose() *mock.Broker {
	m := mock.NewBroker()
	m.AggregatePositions = []broker.AggregatePosition{{
		Symbol:   "AAPL",
		Strategy: "short_call",
		Quantity: 2,
		Legs: []broker.AggregateLeg{{
			Option:         "https://api.robinhood.com/options/instruments/" + closeContractID + "/",
			PositionType:   "short",
			ExpirationDate: testExp1,
			StrikePrice:    110,
			OptionType:     "call",
		}},
	}}
	m.Quotes[closeContractID] = &broker.ContractQuote{
		BidPrice: 0.40,
		AskPrice: 0.50,
	}
	m.Instruments[closeContractID] = &broker.ContractInstrument{
		ID:             closeContractID,
		OptionType:     "call",
		ExpirationDate: testExp1,
		StrikePrice:    110,
		MinTicks: broker.MinTicks{
			AboveTick: 0.05,
			BelowTick: 0.05,
		},
	}
	return m
}

func TestBuyToCloseInitialStates(t *testing.T) {
	m := seedClose()
	// Positions outside the request, or with other strategies, are
	// ignored.
	m.AggregatePositions = append(m.AggregatePositions,
		broker.AggregatePosition{Symbol: "MSFT", Strategy: "short_call"},
		broker.AggregatePosition{Symbol: "AAPL", Strategy: "long_call_spread"},
	)

	d := NewBuyToClose(m, quietLogger())
	states, err := d.InitialStates([]string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, states, 1)

	st := states["AAPL"]
	require.NotNil(t, st)
	assert.Equal(t, closeContractID, st.ContractID)
	assert.Equal(t, testExp1, st.Expiration)
	assert.Equal(t, 110.0, st.Strike)
	assert.Equal(t, 2, st.Quantity)
	require.NotNil(t, st.Contract)
	assert.InDelta(t, 0.40, st.Contract.BidPrice.Float(), 1e-9)
	assert.InDelta(t, 0.50, st.Contract.AskPrice.Float(), 1e-9)
	assert.Equal(t, models.StateSearching, st.State())
}

func TestBuyToCloseInitialStatesStrategyCodeFallback(t *testing.T) {
	m := seedClose()
	m.AggregatePositions[0].Legs[0].Option = "https://api.robinhood.com/options/instruments/unparseable/"
	m.AggregatePositions[0].StrategyCode = closeContractID + "_L1"

	d := NewBuyToClose(m, quietLogger())
	states, err := d.InitialStates([]string{"AAPL"})
	require.NoError(t, err)
	require.Contains(t, states, "AAPL")
	assert.Equal(t, closeContractID, states["AAPL"].ContractID)
}

func TestBuyToCloseInitialStatesNoContractID(t *testing.T) {
	m := seedClose()
	m.AggregatePositions[0].Legs[0].Option = "https://api.robinhood.com/options/instruments/unparseable/"
	m.AggregatePositions[0].StrategyCode = "also-unparseable"

	d := NewBuyToClose(m, quietLogger())
	_, err := d.InitialStates([]string{"AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contract id")
}

func TestBuyToClosePriceRisesOneTickPerAdvance(t *testing.T) {
	// Mid 0.45 floors to 0.45 on the nickel grid; each advance bids a
	// tick higher toward the market.
	m := seedClose()
	d := NewBuyToClose(m, quietLogger())
	states, err := d.InitialStates([]string{"AAPL"})
	require.NoError(t, err)
	st := states["AAPL"]

	price, err := d.CurrentPrice(st)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, price, 1e-9)

	require.NoError(t, d.Advance(st))
	price, err = d.CurrentPrice(st)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, price, 1e-9)
}

func TestBuyToClosePriceRoundsDown(t *testing.T) {
	// Mid 0.445 floors to 0.44 and aligns down to 0.40: the debit side
	// never rounds against the account.
	m := seedClose()
	m.Quotes[closeContractID] = &broker.ContractQuote{BidPrice: 0.41, AskPrice: 0.48}

	d := NewBuyToClose(m, quietLogger())
	states, err := d.InitialStates([]string{"AAPL"})
	require.NoError(t, err)

	price, err := d.CurrentPrice(states["AAPL"])
	require.NoError(t, err)
	assert.InDelta(t, 0.40, price, 1e-9)
}

func TestBuyToCloseNeverExhausts(t *testing.T) {
	m := seedClose()
	d := NewBuyToClose(m, quietLogger())
	states, err := d.InitialStates([]string{"AAPL"})
	require.NoError(t, err)
	st := states["AAPL"]

	// Walk far past any plausible spread threshold; the cursor keeps
	// climbing because the position must eventually close.
	for i := 0; i < 20; i++ {
		require.NoError(t, d.Advance(st))
	}
	assert.Equal(t, 20, st.Cursor.PriceOffset)
	assert.Equal(t, models.StateSearching, st.State())
}

func TestBuyToClosePlaceOrderSubmitsDebit(t *testing.T) {
	m := seedClose()
	d := NewBuyToClose(m, quietLogger())
	states, err := d.InitialStates([]string{"AAPL"})
	require.NoError(t, err)

	order, err := d.PlaceOrder(states["AAPL"])
	require.NoError(t, err)
	require.NotNil(t, order)

	require.Len(t, m.Submitted, 1)
	sub := m.Submitted[0]
	assert.Equal(t, "buy", sub.Side)
	assert.Equal(t, "close", sub.Effect)
	assert.Equal(t, "debit", sub.Direction)
	assert.Equal(t, "AAPL", sub.Symbol)
	assert.Equal(t, 2, sub.Quantity)
	assert.Equal(t, testExp1, sub.Expiration)
	assert.InDelta(t, 110.0, sub.Strike, 1e-9)
	assert.InDelta(t, 0.45, sub.Price, 1e-9)
}
