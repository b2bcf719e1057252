package strategy

import (
	"fmt"
	"log"
	"os"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/models"
	"github.com/algotrading-io/callwheel/internal/util"
)

// BuyToClose buys back pre-owned short calls. The contract is fixed, so
// the cursor is a single price offset that keeps rising toward the market
// each round. There is no exhausted state: with no alternate contract or
// expiration to fall back to, the only move is a better bid.
type BuyToClose struct {
	broker broker.Broker
	logger *log.Logger
}

// NewBuyToClose creates the closing-direction policy.
func NewBuyToClose(b broker.Broker, logger *log.Logger) *BuyToClose {
	if logger == nil {
		logger = log.New(os.Stderr, "strategy: ", log.LstdFlags)
	}
	return &BuyToClose{broker: b, logger: logger}
}

// Name implements Direction.
func (d *BuyToClose) Name() string { return "buy_to_close" }

// InitialStates implements Direction: finds the open short_call position
// for each requested symbol and pins its contract, strike, and expiration.
// Symbols without a matching open position are dropped.
func (d *BuyToClose) InitialStates(symbols []string) (map[string]*models.SearchState, error) {
	positions, err := d.broker.GetAggregateOpenPositions()
	if err != nil {
		return nil, fmt.Errorf("fetching aggregate positions: %w", err)
	}

	requested := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		requested[s] = struct{}{}
	}

	states := make(map[string]*models.SearchState)
	for _, pos := range positions {
		if _, ok := requested[pos.Symbol]; !ok || pos.Strategy != "short_call" || len(pos.Legs) == 0 {
			continue
		}
		leg := pos.Legs[0]
		id := extractContractID(leg.Option, pos.StrategyCode)
		if id == "" {
			return nil, fmt.Errorf("%s: no contract id in leg %q or strategy code %q",
				pos.Symbol, leg.Option, pos.StrategyCode)
		}

		st := models.NewSearchState(pos.Symbol, int(pos.Quantity.Float()))
		st.ContractID = id
		st.Expiration = leg.ExpirationDate
		st.Strike = leg.StrikePrice.Float()

		quote, err := d.broker.GetContractQuote(id)
		if err != nil {
			return nil, fmt.Errorf("%s: fetching quote: %w", pos.Symbol, err)
		}
		instrument, err := d.broker.GetContractInstrument(id)
		if err != nil {
			return nil, fmt.Errorf("%s: fetching instrument: %w", pos.Symbol, err)
		}

		contract := &broker.OptionContract{
			ID:             id,
			ChainSymbol:    pos.Symbol,
			OptionType:     instrument.OptionType,
			ExpirationDate: instrument.ExpirationDate,
			StrikePrice:    instrument.StrikePrice,
			MinTicks:       instrument.MinTicks,
		}
		contract.ApplyQuote(quote)
		st.Contract = contract

		states[pos.Symbol] = st
	}
	return states, nil
}

// buyPrice computes the debit limit price for a retry offset: midpoint
// rounded down to the cent, aligned down to the tick grid, then raised by
// one tick per prior attempt.
func (d *BuyToClose) buyPrice(c *broker.OptionContract, offset int) float64 {
	mid := util.Midpoint(c.BidPrice.Float(), c.AskPrice.Float())
	price := util.RoundToIncrement(mid, 2, util.RoundDown)
	tick := c.MinTicks.AboveTick.Float()
	price = util.AlignToTick(price, tick, util.RoundDown)
	price += tick * float64(offset)
	return util.RoundToIncrement(price, 2, util.RoundDown)
}

// CurrentPrice implements Direction.
func (d *BuyToClose) CurrentPrice(st *models.SearchState) (float64, error) {
	if st.Contract == nil {
		return 0, models.ErrNoViableContract
	}
	return d.buyPrice(st.Contract, st.Cursor.PriceOffset), nil
}

// PlaceOrder implements Direction.
func (d *BuyToClose) PlaceOrder(st *models.SearchState) (*broker.Order, error) {
	if st.Contract == nil {
		return nil, models.ErrNoViableContract
	}
	price := d.buyPrice(st.Contract, st.Cursor.PriceOffset)
	d.logger.Printf("%s: submitting buy %d x %s %s strike %.2f @ %.2f (offset %d)",
		st.Symbol, st.Quantity, st.Contract.OptionType, st.Expiration,
		st.Strike, price, st.Cursor.PriceOffset)

	return d.broker.SubmitBuyLimitOrder("close", "debit", price, st.Symbol,
		st.Quantity, st.Expiration, st.Strike, st.Contract.OptionType)
}

// Advance implements Direction. The offset increments unconditionally; a
// spread anomaly is logged but never terminal, since there is nowhere else
// for the cursor to go.
func (d *BuyToClose) Advance(st *models.SearchState) error {
	st.Cursor.PriceOffset++
	if st.Contract == nil {
		return nil
	}

	mid := util.Midpoint(st.Contract.BidPrice.Float(), st.Contract.AskPrice.Float())
	price := d.buyPrice(st.Contract, st.Cursor.PriceOffset)
	if util.SpreadTooWide(mid, price) {
		d.logger.Printf("%s: %v: bid %.2f ask %.2f mid %.2f price %.2f",
			st.Symbol, models.ErrSpreadTooWide,
			st.Contract.BidPrice.Float(), st.Contract.AskPrice.Float(), mid, price)
	}
	return nil
}

// Ensure BuyToClose implements Direction at compile time.
var _ Direction = (*BuyToClose)(nil)
