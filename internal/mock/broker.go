// Package mock provides a scripted in-memory broker for tests and paper
// trading. Fill behavior is deterministic: each symbol fills on a
// configured submission attempt, or never.
package mock

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/algotrading-io/callwheel/internal/broker"
)

// Broker is a scripted broker.Broker implementation. Zero values behave as
// an empty account whose orders never fill.
type Broker struct {
	mu sync.Mutex

	Holdings           map[string]broker.Holding
	StockPositions     []broker.StockPosition
	OptionPositions    []broker.OptionPosition
	AggregatePositions []broker.AggregatePosition

	Chains      map[string]*broker.OptionChain
	Contracts   map[string]map[string][]broker.OptionContract // symbol -> expiration -> candidates
	Quotes      map[string]*broker.ContractQuote              // contract ID -> live quote
	Instruments map[string]*broker.ContractInstrument

	// FillOnAttempt maps a symbol to the submission attempt (1-based) on
	// which its order fills. Absent or zero means never fill.
	FillOnAttempt map[string]int

	// Err, when set, is returned by every call.
	Err error

	attempts  map[string]int
	orders    map[string]*broker.Order
	Submitted []SubmittedOrder
	Cancelled []string
}

// SubmittedOrder records one order submission for assertions.
type SubmittedOrder struct {
	Side       string
	Effect     string
	Direction  string
	Price      float64
	Symbol     string
	Quantity   int
	Expiration string
	Strike     float64
	OptionType string
}

// NewBroker creates an empty scripted broker.
func NewBroker() *Broker {
	return &Broker{
		Holdings:      make(map[string]broker.Holding),
		Chains:        make(map[string]*broker.OptionChain),
		Contracts:     make(map[string]map[string][]broker.OptionContract),
		Quotes:        make(map[string]*broker.ContractQuote),
		Instruments:   make(map[string]*broker.ContractInstrument),
		FillOnAttempt: make(map[string]int),
		attempts:      make(map[string]int),
		orders:        make(map[string]*broker.Order),
	}
}

// GetHoldings implements broker.Broker.
func (m *Broker) GetHoldings() (map[string]broker.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]broker.Holding, len(m.Holdings))
	for k, v := range m.Holdings {
		out[k] = v
	}
	return out, nil
}

// GetOpenStockPositions implements broker.Broker.
func (m *Broker) GetOpenStockPositions() ([]broker.StockPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]broker.StockPosition(nil), m.StockPositions...), nil
}

// GetOpenOptionPositions implements broker.Broker.
func (m *Broker) GetOpenOptionPositions() ([]broker.OptionPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]broker.OptionPosition(nil), m.OptionPositions...), nil
}

// GetAggregateOpenPositions implements broker.Broker.
func (m *Broker) GetAggregateOpenPositions() ([]broker.AggregatePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]broker.AggregatePosition(nil), m.AggregatePositions...), nil
}

// GetOptionChain implements broker.Broker.
func (m *Broker) GetOptionChain(symbol string) (*broker.OptionChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	chain, ok := m.Chains[symbol]
	if !ok {
		return nil, fmt.Errorf("no option chain for %s", symbol)
	}
	return chain, nil
}

// FindContractsByProfitability implements broker.Broker. The band filter is
// applied to the scripted contracts so tests can verify query behavior.
func (m *Broker) FindContractsByProfitability(
	symbol, expiration, optionType, metric string, low, high float64,
) ([]broker.OptionContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []broker.OptionContract
	for _, c := range m.Contracts[symbol][expiration] {
		if c.OptionType != optionType {
			continue
		}
		chance := c.ChanceOfProfitShort.Float()
		if chance < low || chance > high {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// GetContractQuote implements broker.Broker.
func (m *Broker) GetContractQuote(id string) (*broker.ContractQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	q, ok := m.Quotes[id]
	if !ok {
		return nil, fmt.Errorf("no market data for contract %s", id)
	}
	quote := *q
	return &quote, nil
}

// GetContractInstrument implements broker.Broker.
func (m *Broker) GetContractInstrument(id string) (*broker.ContractInstrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	inst, ok := m.Instruments[id]
	if !ok {
		return nil, fmt.Errorf("no instrument data for contract %s", id)
	}
	instrument := *inst
	return &instrument, nil
}

// SubmitSellLimitOrder implements broker.Broker.
func (m *Broker) SubmitSellLimitOrder(
	positionEffect, creditOrDebit string, price float64, symbol string,
	quantity int, expiration string, strike float64, optionType string,
) (*broker.Order, error) {
	return m.submit("sell", positionEffect, creditOrDebit, price, symbol,
		quantity, expiration, strike, optionType)
}

// SubmitBuyLimitOrder implements broker.Broker.
func (m *Broker) SubmitBuyLimitOrder(
	positionEffect, creditOrDebit string, price float64, symbol string,
	quantity int, expiration string, strike float64, optionType string,
) (*broker.Order, error) {
	return m.submit("buy", positionEffect, creditOrDebit, price, symbol,
		quantity, expiration, strike, optionType)
}

func (m *Broker) submit(
	side, positionEffect, creditOrDebit string, price float64, symbol string,
	quantity int, expiration string, strike float64, optionType string,
) (*broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	m.Submitted = append(m.Submitted, SubmittedOrder{
		Side:       side,
		Effect:     positionEffect,
		Direction:  creditOrDebit,
		Price:      price,
		Symbol:     symbol,
		Quantity:   quantity,
		Expiration: expiration,
		Strike:     strike,
		OptionType: optionType,
	})

	m.attempts[symbol]++
	state := broker.OrderStateOpen
	if at := m.FillOnAttempt[symbol]; at > 0 && m.attempts[symbol] >= at {
		state = broker.OrderStateFilled
	}

	order := &broker.Order{
		ID:          uuid.New().String(),
		ChainSymbol: symbol,
		State:       state,
		Price:       broker.Amount(price),
		Quantity:    broker.Amount(quantity),
	}
	m.orders[order.ID] = order
	return order, nil
}

// CancelOrder implements broker.Broker. Cancelling a filled order is a
// no-op, mirroring the real broker's idempotent cancel endpoint.
func (m *Broker) CancelOrder(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Cancelled = append(m.Cancelled, id)
	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("unknown order %s", id)
	}
	if order.State != broker.OrderStateFilled {
		order.State = broker.OrderStateCancelled
	}
	return nil
}

// GetOrderInfo implements broker.Broker.
func (m *Broker) GetOrderInfo(id string) (*broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", id)
	}
	copied := *order
	return &copied, nil
}

// Attempts returns how many orders were submitted for a symbol.
func (m *Broker) Attempts(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[symbol]
}

// Ensure Broker implements broker.Broker at compile time.
var _ broker.Broker = (*Broker)(nil)
