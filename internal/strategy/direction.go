// Package strategy implements the per-trade-direction policies that drive
// limit-price discovery: building initial search states, computing the
// limit price at a cursor position, and advancing the cursor when an order
// does not fill.
package strategy

import (
	"regexp"

	"github.com/algotrading-io/callwheel/internal/models"

	"github.com/algotrading-io/callwheel/internal/broker"
)

// Direction is a trade-direction policy. The executor calls InitialStates
// once per batch, then PlaceOrder and Advance each round until every
// symbol is terminal.
type Direction interface {
	// Name identifies the direction in logs and stored results.
	Name() string

	// InitialStates builds the per-symbol search states. Symbols with
	// nothing to trade (no coverable shares, no matching open position)
	// are silently dropped from the returned map.
	InitialStates(symbols []string) (map[string]*models.SearchState, error)

	// CurrentPrice computes the limit price at the state's cursor.
	// Returns models.ErrNoViableContract when the cursor addresses an
	// empty candidate list.
	CurrentPrice(st *models.SearchState) (float64, error)

	// PlaceOrder submits a limit order at the cursor's price. Returns
	// models.ErrNoViableContract without a broker call when the cursor
	// addresses an empty candidate list.
	PlaceOrder(st *models.SearchState) (*broker.Order, error)

	// Advance moves the cursor after an unfilled order. Returns
	// models.ErrSearchExhausted once the search space is walked out;
	// any other error is a broker failure.
	Advance(st *models.SearchState) error
}

// contractIDPattern matches the contract UUID embedded in instrument URLs
// and strategy codes.
var contractIDPattern = regexp.MustCompile(
	`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-5][0-9a-f]{3}-[089ab][0-9a-f]{3}-[0-9a-f]{12}`)

// extractContractID pulls a contract UUID out of the given strings,
// returning the first match.
func extractContractID(candidates ...string) string {
	for _, s := range candidates {
		if id := contractIDPattern.FindString(s); id != "" {
			return id
		}
	}
	return ""
}
