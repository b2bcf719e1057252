// Package orders runs the round loop that turns per-symbol search states
// into terminal results: submit limit orders for every active symbol, wait
// out a cooldown, cancel what didn't fill, classify each outcome, and
// advance the search cursors until every symbol fills or exhausts.
package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/models"
	"github.com/algotrading-io/callwheel/internal/storage"
	"github.com/algotrading-io/callwheel/internal/strategy"
)

// ErrRoundLimit is the terminal result error for symbols still searching
// when the configured round cap is reached.
var ErrRoundLimit = errors.New("round limit reached")

// Config contains configuration for the executor.
type Config struct {
	// CooldownMin and CooldownMax bound the randomized wait between
	// submitting a round's orders and cancelling the unfilled ones.
	CooldownMin time.Duration
	CooldownMax time.Duration
	// MaxRounds caps the number of rounds; zero means unbounded.
	MaxRounds int
}

// DefaultConfig is the default executor configuration.
var DefaultConfig = Config{
	CooldownMin: 30 * time.Second,
	CooldownMax: 90 * time.Second,
	MaxRounds:   0,
}

// Executor drives a trade direction's search states to completion.
type Executor struct {
	broker    broker.Broker
	direction strategy.Direction
	store     storage.Interface
	logger    *log.Logger
	config    Config

	// cooldown and sleep are injectable for tests.
	cooldown func() time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor. A nil store disables run-history
// persistence.
func NewExecutor(
	b broker.Broker,
	direction strategy.Direction,
	store storage.Interface,
	logger *log.Logger,
	config ...Config,
) *Executor {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = log.New(os.Stderr, "orders: ", log.LstdFlags)
	}

	if cfg.CooldownMin <= 0 {
		cfg.CooldownMin = DefaultConfig.CooldownMin
	}
	if cfg.CooldownMax < cfg.CooldownMin {
		cfg.CooldownMax = cfg.CooldownMin
	}

	if b == nil {
		panic("orders.NewExecutor: broker must not be nil")
	}
	if direction == nil {
		panic("orders.NewExecutor: direction must not be nil")
	}

	e := &Executor{
		broker:    b,
		direction: direction,
		store:     store,
		logger:    logger,
		config:    cfg,
	}
	e.cooldown = e.randomCooldown
	e.sleep = sleepCtx
	return e
}

// randomCooldown picks a wait in [CooldownMin, CooldownMax].
func (e *Executor) randomCooldown() time.Duration {
	span := e.config.CooldownMax - e.config.CooldownMin
	if span <= 0 {
		return e.config.CooldownMin
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return e.config.CooldownMin
	}
	return e.config.CooldownMin + time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pending tracks one symbol's in-flight order within a round. A nil order
// means the cursor addressed an empty candidate list and the round is
// treated as an immediate cancel.
type pending struct {
	symbol string
	order  *broker.Order
}

// Execute runs rounds until every symbol reaches a terminal state, the
// round cap is hit, or the context is cancelled. The returned map has one
// Result per active symbol; on cancellation the partial map is returned
// alongside the context error.
func (e *Executor) Execute(ctx context.Context, runID string, symbols []string) (map[string]models.Result, error) {
	states, err := e.direction.InitialStates(symbols)
	if err != nil {
		return nil, fmt.Errorf("building initial states: %w", err)
	}

	results := make(map[string]models.Result)
	if len(states) == 0 {
		e.logger.Printf("nothing to trade for %v", symbols)
		return results, nil
	}

	// Deterministic iteration order keeps logs and stored history stable.
	active := make([]string, 0, len(states))
	for symbol := range states {
		active = append(active, symbol)
	}
	sort.Strings(active)
	e.logger.Printf("run %s: %s over %v", runID, e.direction.Name(), active)

	for round := 1; len(active) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if e.config.MaxRounds > 0 && round > e.config.MaxRounds {
			for _, symbol := range active {
				e.logger.Printf("%s: round limit %d reached", symbol, e.config.MaxRounds)
				results[symbol] = models.Result{Symbol: symbol, Err: ErrRoundLimit}
				e.recordOutcome(runID, results[symbol])
			}
			return results, nil
		}

		inFlight, err := e.submitRound(runID, round, active, states)
		if err != nil {
			return results, err
		}

		if err := e.sleep(ctx, e.cooldown()); err != nil {
			return results, err
		}

		active, err = e.settleRound(runID, active, states, inFlight)
		if err != nil {
			return results, err
		}
		for symbol, st := range states {
			if st.State() == models.StateFilled || st.State() == models.StateExhausted {
				if _, done := results[symbol]; !done {
					results[symbol] = e.terminalResult(runID, st)
				}
			}
		}
	}
	return results, nil
}

// submitRound places one order per active symbol at its cursor's price.
func (e *Executor) submitRound(runID string, round int, active []string, states map[string]*models.SearchState) ([]pending, error) {
	inFlight := make([]pending, 0, len(active))
	for _, symbol := range active {
		st := states[symbol]
		order, err := e.direction.PlaceOrder(st)
		switch {
		case errors.Is(err, models.ErrNoViableContract):
			// Empty candidate list at the cursor: no order goes out,
			// and the round classifies as an immediate cancel so the
			// cursor still advances.
			e.logger.Printf("%s: no viable contract at cursor, skipping submission", symbol)
			e.recordAttempt(runID, round, symbol, nil)
			inFlight = append(inFlight, pending{symbol: symbol})
		case err != nil:
			return nil, fmt.Errorf("%s: placing order: %w", symbol, err)
		default:
			e.recordAttempt(runID, round, symbol, order)
			inFlight = append(inFlight, pending{symbol: symbol, order: order})
		}
	}
	return inFlight, nil
}

// settleRound cancels each in-flight order, reads its final state, and
// either records a fill or advances the symbol's cursor. It returns the
// symbols still active.
func (e *Executor) settleRound(runID string, active []string, states map[string]*models.SearchState, inFlight []pending) ([]string, error) {
	next := active[:0]
	for _, p := range inFlight {
		st := states[p.symbol]

		order := p.order
		if order != nil {
			// Cancel first; a fill that beat the cancel survives it and
			// shows up in the follow-up read.
			if err := e.broker.CancelOrder(order.ID); err != nil {
				return nil, fmt.Errorf("%s: cancelling order %s: %w", p.symbol, order.ID, err)
			}
			final, err := e.broker.GetOrderInfo(order.ID)
			if err != nil {
				return nil, fmt.Errorf("%s: reading order %s: %w", p.symbol, order.ID, err)
			}
			order = final
		}

		if order != nil && order.State == broker.OrderStateFilled {
			e.logger.Printf("%s: filled %s @ %.2f", p.symbol, order.ID, order.Price.Float())
			if err := st.MarkFilled(); err != nil {
				return nil, fmt.Errorf("%s: %w", p.symbol, err)
			}
			st.LastOrder = order
			continue
		}

		// Open, cancelled, rejected, or never submitted: move the cursor.
		if err := e.direction.Advance(st); err != nil {
			if errors.Is(err, models.ErrSearchExhausted) {
				continue
			}
			return nil, fmt.Errorf("%s: advancing cursor: %w", p.symbol, err)
		}
		next = append(next, p.symbol)
	}
	return next, nil
}

// terminalResult converts a terminal search state into a Result and
// persists the outcome.
func (e *Executor) terminalResult(runID string, st *models.SearchState) models.Result {
	res := models.Result{Symbol: st.Symbol}
	if st.State() == models.StateFilled {
		res.Order = st.LastOrder
	} else {
		res.Err = models.ErrSearchExhausted
	}
	e.recordOutcome(runID, res)
	return res
}

func (e *Executor) recordAttempt(runID string, round int, symbol string, order *broker.Order) {
	if e.store == nil {
		return
	}
	att := &storage.Attempt{
		RunID:     runID,
		Symbol:    symbol,
		Round:     round,
		CreatedAt: time.Now().UTC(),
	}
	if order != nil {
		att.OrderID = order.ID
		att.Price = order.Price.Float()
		att.State = order.State
	} else {
		att.State = "skipped"
	}
	if err := e.store.RecordAttempt(att); err != nil {
		e.logger.Printf("%s: recording attempt: %v", symbol, err)
	}
}

func (e *Executor) recordOutcome(runID string, res models.Result) {
	if e.store == nil {
		return
	}
	out := &storage.Outcome{
		RunID:     runID,
		Symbol:    res.Symbol,
		Filled:    res.Filled(),
		CreatedAt: time.Now().UTC(),
	}
	if res.Order != nil {
		out.OrderID = res.Order.ID
		out.Price = res.Order.Price.Float()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if err := e.store.RecordOutcome(out); err != nil {
		e.logger.Printf("%s: recording outcome: %v", res.Symbol, err)
	}
}
