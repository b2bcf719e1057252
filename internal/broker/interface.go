package broker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Broker defines the interface for interacting with a brokerage.
type Broker interface {
	// Account and position data
	GetHoldings() (map[string]Holding, error)
	GetOpenStockPositions() ([]StockPosition, error)
	GetOpenOptionPositions() ([]OptionPosition, error)
	GetAggregateOpenPositions() ([]AggregatePosition, error)

	// Contract discovery and market data
	GetOptionChain(symbol string) (*OptionChain, error)
	FindContractsByProfitability(symbol, expiration, optionType, metric string,
		low, high float64) ([]OptionContract, error)
	GetContractQuote(id string) (*ContractQuote, error)
	GetContractInstrument(id string) (*ContractInstrument, error)

	// Order placement and lifecycle
	SubmitSellLimitOrder(positionEffect, creditOrDebit string, price float64,
		symbol string, quantity int, expiration string, strike float64,
		optionType string) (*Order, error)
	SubmitBuyLimitOrder(positionEffect, creditOrDebit string, price float64,
		symbol string, quantity int, expiration string, strike float64,
		optionType string) (*Order, error)
	CancelOrder(id string) error
	GetOrderInfo(id string) (*Order, error)
}

// Ensure RobinhoodAPI implements Broker at compile time.
var _ Broker = (*RobinhoodAPI)(nil)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// GetHoldings wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetHoldings() (map[string]Holding, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (map[string]Holding, error) {
		return b.GetHoldings()
	})
}

// GetOpenStockPositions wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOpenStockPositions() ([]StockPosition, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]StockPosition, error) {
		return b.GetOpenStockPositions()
	})
}

// GetOpenOptionPositions wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOpenOptionPositions() ([]OptionPosition, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]OptionPosition, error) {
		return b.GetOpenOptionPositions()
	})
}

// GetAggregateOpenPositions wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetAggregateOpenPositions() ([]AggregatePosition, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]AggregatePosition, error) {
		return b.GetAggregateOpenPositions()
	})
}

// GetOptionChain wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionChain(symbol string) (*OptionChain, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OptionChain, error) {
		return b.GetOptionChain(symbol)
	})
}

// FindContractsByProfitability wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) FindContractsByProfitability(
	symbol, expiration, optionType, metric string, low, high float64,
) ([]OptionContract, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]OptionContract, error) {
		return b.FindContractsByProfitability(symbol, expiration, optionType, metric, low, high)
	})
}

// GetContractQuote wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetContractQuote(id string) (*ContractQuote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*ContractQuote, error) {
		return b.GetContractQuote(id)
	})
}

// GetContractInstrument wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetContractInstrument(id string) (*ContractInstrument, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*ContractInstrument, error) {
		return b.GetContractInstrument(id)
	})
}

// SubmitSellLimitOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) SubmitSellLimitOrder(
	positionEffect, creditOrDebit string, price float64, symbol string,
	quantity int, expiration string, strike float64, optionType string,
) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) {
		return b.SubmitSellLimitOrder(positionEffect, creditOrDebit, price, symbol,
			quantity, expiration, strike, optionType)
	})
}

// SubmitBuyLimitOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) SubmitBuyLimitOrder(
	positionEffect, creditOrDebit string, price float64, symbol string,
	quantity int, expiration string, strike float64, optionType string,
) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) {
		return b.SubmitBuyLimitOrder(positionEffect, creditOrDebit, price, symbol,
			quantity, expiration, strike, optionType)
	})
}

// CancelOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) CancelOrder(id string) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.CancelOrder(id)
	})
	return err
}

// GetOrderInfo wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOrderInfo(id string) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) {
		return b.GetOrderInfo(id)
	})
}
