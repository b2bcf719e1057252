// Package sizing derives how many option contracts each holding can cover.
package sizing

import (
	"fmt"

	"github.com/algotrading-io/callwheel/internal/broker"
)

// Suggestion maps each held symbol to the number of contracts its shares
// can still cover, alongside the reference share price.
type Suggestion struct {
	Available map[string]int
	Prices    map[string]float64
}

// SuggestContracts computes per-symbol available contracts: one contract
// per 100 shares held, minus shares already committed as options
// collateral.
func SuggestContracts(b broker.Broker) (*Suggestion, error) {
	holdings, err := b.GetHoldings()
	if err != nil {
		return nil, fmt.Errorf("fetching holdings: %w", err)
	}

	maxContracts := make(map[string]int, len(holdings))
	prices := make(map[string]float64, len(holdings))
	instrumentToSymbol := make(map[string]string, len(holdings))
	for symbol, holding := range holdings {
		maxContracts[symbol] = int(holding.Quantity.Float() / 100)
		prices[symbol] = holding.Price.Float()
		instrumentToSymbol[holding.InstrumentID] = symbol
	}

	positions, err := b.GetOpenStockPositions()
	if err != nil {
		return nil, fmt.Errorf("fetching stock positions: %w", err)
	}

	committed := make(map[string]int, len(positions))
	for _, pos := range positions {
		symbol, ok := instrumentToSymbol[pos.InstrumentID]
		if !ok {
			continue
		}
		committed[symbol] = int(pos.SharesHeldForOptionsCollateral.Float() / 100)
	}

	available := make(map[string]int, len(maxContracts))
	for symbol, max := range maxContracts {
		available[symbol] = max - committed[symbol]
	}

	return &Suggestion{Available: available, Prices: prices}, nil
}

// Tradable filters the requested symbols down to those with at least one
// available contract, preserving request order.
func (s *Suggestion) Tradable(symbols []string) []string {
	var out []string
	for _, symbol := range symbols {
		if s.Available[symbol] > 0 {
			out = append(out, symbol)
		}
	}
	return out
}
