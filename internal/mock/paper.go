package mock

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/algotrading-io/callwheel/internal/broker"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewPaperBroker builds a scripted broker seeded with plausible synthetic
// holdings and chains for the given symbols. Used in paper mode so the
// executor can run end to end without touching the live broker. Every
// symbol fills on its second attempt.
func NewPaperBroker(symbols []string) *Broker {
	m := NewBroker()
	now := time.Now()

	for _, symbol := range symbols {
		price := 40 + secureFloat64()*400

		m.Holdings[symbol] = broker.Holding{
			InstrumentID: uuid.New().String(),
			Price:        broker.Amount(price),
			Quantity:     broker.Amount(100 + float64(int(secureFloat64()*3))*100),
		}

		// Fridays out from the coming week.
		var expirations []string
		friday := now
		for friday.Weekday() != time.Friday {
			friday = friday.AddDate(0, 0, 1)
		}
		for i := 0; i < 4; i++ {
			expirations = append(expirations, friday.AddDate(0, 0, 7*i).Format("2006-01-02"))
		}

		m.Chains[symbol] = &broker.OptionChain{
			ID:              uuid.New().String(),
			Symbol:          symbol,
			ExpirationDates: expirations,
		}

		byExp := make(map[string][]broker.OptionContract, len(expirations))
		for _, exp := range expirations {
			var contracts []broker.OptionContract
			for i := 0; i < 3; i++ {
				strike := price * (1.05 + 0.03*float64(i))
				bid := 0.30 + secureFloat64()*0.40
				ask := bid + 0.05 + secureFloat64()*0.10
				contract := broker.OptionContract{
					ID:                  uuid.New().String(),
					ChainSymbol:         symbol,
					OptionType:          "call",
					ExpirationDate:      exp,
					StrikePrice:         broker.Amount(strike),
					BidPrice:            broker.Amount(bid),
					AskPrice:            broker.Amount(ask),
					ChanceOfProfitShort: broker.Amount(0.85 + 0.03*float64(i)),
					ChanceOfProfitLong:  broker.Amount(0.15 - 0.03*float64(i)),
					MinTicks: broker.MinTicks{
						AboveTick: 0.05,
						BelowTick: 0.05,
					},
				}
				contracts = append(contracts, contract)
				m.Quotes[contract.ID] = &broker.ContractQuote{
					BidPrice:            contract.BidPrice,
					AskPrice:            contract.AskPrice,
					ChanceOfProfitShort: contract.ChanceOfProfitShort,
					ChanceOfProfitLong:  contract.ChanceOfProfitLong,
				}
				m.Instruments[contract.ID] = &broker.ContractInstrument{
					ID:             contract.ID,
					OptionType:     contract.OptionType,
					ExpirationDate: contract.ExpirationDate,
					StrikePrice:    contract.StrikePrice,
					MinTicks:       contract.MinTicks,
				}
			}
			byExp[exp] = contracts
		}
		m.Contracts[symbol] = byExp

		m.FillOnAttempt[symbol] = 2
	}
	return m
}

// SeedShortCall adds a pre-owned short call aggregate position for a symbol
// so the closing variant has something to buy back in paper mode.
func (m *Broker) SeedShortCall(symbol string, quantity int) {
	contracts := m.Contracts[symbol]
	for exp, list := range contracts {
		if len(list) == 0 {
			continue
		}
		leg := list[0]
		m.AggregatePositions = append(m.AggregatePositions, broker.AggregatePosition{
			Symbol:   symbol,
			Strategy: "short_call",
			Quantity: broker.Amount(quantity),
			Legs: []broker.AggregateLeg{{
				Option:         fmt.Sprintf("https://api.robinhood.com/options/instruments/%s/", leg.ID),
				PositionType:   "short",
				ExpirationDate: exp,
				StrikePrice:    leg.StrikePrice,
				OptionType:     leg.OptionType,
			}},
		})
		return
	}
}
