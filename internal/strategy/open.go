package strategy

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/chain"
	"github.com/algotrading-io/callwheel/internal/models"
	"github.com/algotrading-io/callwheel/internal/sizing"
	"github.com/algotrading-io/callwheel/internal/util"
)

// SellToOpen opens short call positions. Its cursor walks expiration,
// contract, and price offset; each retry erodes the ask by one tick to
// raise fill probability.
type SellToOpen struct {
	broker  broker.Broker
	catalog *chain.Catalog
	logger  *log.Logger
	now     func() time.Time
}

// NewSellToOpen creates the opening-direction policy.
func NewSellToOpen(b broker.Broker, catalog *chain.Catalog, logger *log.Logger) *SellToOpen {
	if logger == nil {
		logger = log.New(os.Stderr, "strategy: ", log.LstdFlags)
	}
	return &SellToOpen{
		broker:  b,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (d *SellToOpen) WithClock(now func() time.Time) *SellToOpen {
	d.now = now
	return d
}

// Name implements Direction.
func (d *SellToOpen) Name() string { return "sell_to_open" }

// InitialStates implements Direction: derives contract quantities from
// holdings, drops symbols with nothing available to cover, and builds each
// remaining symbol's candidate set.
func (d *SellToOpen) InitialStates(symbols []string) (map[string]*models.SearchState, error) {
	suggestion, err := sizing.SuggestContracts(d.broker)
	if err != nil {
		return nil, err
	}

	states := make(map[string]*models.SearchState)
	for _, symbol := range suggestion.Tradable(symbols) {
		st := models.NewSearchState(symbol, suggestion.Available[symbol])
		st.ReferencePrice = suggestion.Prices[symbol]

		candidates, err := d.catalog.Build(symbol, st.ReferencePrice, d.now())
		if err != nil {
			return nil, fmt.Errorf("building candidates for %s: %w", symbol, err)
		}
		st.Candidates = candidates
		states[symbol] = st
	}
	return states, nil
}

// sellPrice computes the credit limit price for a contract at a retry
// offset: midpoint rounded up to the cent, aligned up to the tick grid,
// then eroded by one tick per prior attempt.
func (d *SellToOpen) sellPrice(c *broker.OptionContract, offset int) float64 {
	mid := util.Midpoint(c.BidPrice.Float(), c.AskPrice.Float())
	price := util.RoundToIncrement(mid, 2, util.RoundUp)
	tick := c.MinTicks.BelowTick.Float()
	price = util.AlignToTick(price, tick, util.RoundUp)
	price -= tick * float64(offset)
	return util.RoundToIncrement(price, 2, util.RoundUp)
}

// CurrentPrice implements Direction.
func (d *SellToOpen) CurrentPrice(st *models.SearchState) (float64, error) {
	contract, ok := st.Candidates.Current(st.Cursor)
	if !ok {
		return 0, models.ErrNoViableContract
	}
	return d.sellPrice(contract, st.Cursor.PriceOffset), nil
}

// PlaceOrder implements Direction.
func (d *SellToOpen) PlaceOrder(st *models.SearchState) (*broker.Order, error) {
	contract, ok := st.Candidates.Current(st.Cursor)
	if !ok {
		return nil, models.ErrNoViableContract
	}
	expiration, ok := st.Candidates.ExpirationAt(st.Cursor.ExpirationIdx)
	if !ok {
		return nil, models.ErrNoViableContract
	}

	price := d.sellPrice(contract, st.Cursor.PriceOffset)
	d.logger.Printf("%s: submitting sell %d x %s %s strike %.2f @ %.2f (offset %d)",
		st.Symbol, st.Quantity, contract.OptionType, expiration,
		contract.StrikePrice.Float(), price, st.Cursor.PriceOffset)

	return d.broker.SubmitSellLimitOrder("open", "credit", price, st.Symbol,
		st.Quantity, expiration, contract.StrikePrice.Float(), contract.OptionType)
}

// Advance implements Direction. Empty candidate lists skip straight to the
// next expiration; otherwise the price offset increments, and a spread
// anomaly backtracks to the next contract or expiration with the offset
// reset. After any cursor change the current candidate's quote is
// refreshed so the next round prices against live market data.
func (d *SellToOpen) Advance(st *models.SearchState) error {
	cur := &st.Cursor
	contracts := st.Candidates.ContractsAt(cur.ExpirationIdx)

	if len(contracts) == 0 {
		if st.Candidates.OnLastExpiration(*cur) {
			d.logger.Printf("%s: no contracts on final expiration, search exhausted", st.Symbol)
			if err := st.MarkExhausted(); err != nil {
				return err
			}
			return models.ErrSearchExhausted
		}
		d.logger.Printf("%s: no contracts at expiration %d, advancing", st.Symbol, cur.ExpirationIdx)
		cur.ExpirationIdx++
		cur.ContractIdx = 0
		cur.PriceOffset = 0
	} else {
		cur.PriceOffset++
		contract := contracts[cur.ContractIdx]
		mid := util.Midpoint(contract.BidPrice.Float(), contract.AskPrice.Float())
		price := d.sellPrice(&contract, cur.PriceOffset)

		if util.SpreadTooWide(mid, price) {
			d.logger.Printf("%s: %v: bid %.2f ask %.2f mid %.2f price %.2f",
				st.Symbol, models.ErrSpreadTooWide,
				contract.BidPrice.Float(), contract.AskPrice.Float(), mid, price)
			cur.PriceOffset = 0
			if st.Candidates.OnLastContract(*cur) {
				cur.ContractIdx = 0
				if st.Candidates.OnLastExpiration(*cur) {
					d.logger.Printf("%s: spread too wide on final contract, search exhausted", st.Symbol)
					if err := st.MarkExhausted(); err != nil {
						return err
					}
					return models.ErrSearchExhausted
				}
				d.logger.Printf("%s: seeking further expiration date", st.Symbol)
				cur.ExpirationIdx++
			} else {
				cur.ContractIdx++
			}
		}
	}

	if contract, ok := st.Candidates.Current(st.Cursor); ok {
		if err := d.catalog.RefreshQuote(contract); err != nil {
			return err
		}
	}
	return nil
}

// Ensure SellToOpen implements Direction at compile time.
var _ Direction = (*SellToOpen)(nil)
