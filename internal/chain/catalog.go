// Package chain discovers tradable option contract candidates for a symbol:
// profitability-band queries, out-of-the-money filtering, and expiration
// selection that avoids same-week gamma risk.
package chain

import (
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/models"
	"github.com/algotrading-io/callwheel/internal/util"
)

// Config contains candidate selection parameters.
type Config struct {
	OptionType     string  // contract type to sell, e.g. "call"
	ProfitLow      float64 // lower bound of the chance-of-profit band
	ProfitHigh     float64 // upper bound of the chance-of-profit band
	ProfitTarget   float64 // candidates sort by closeness to this
	MinPrice       float64 // floor below which the broker rejects orders
	MaxCandidates  int     // contracts kept per expiration
	NumExpirations int     // expirations kept per symbol
}

// DefaultConfig is the default candidate selection configuration.
var DefaultConfig = Config{
	OptionType:     "call",
	ProfitLow:      0.85,
	ProfitHigh:     0.95,
	ProfitTarget:   0.88,
	MinPrice:       0.05,
	MaxCandidates:  2,
	NumExpirations: 2,
}

// Catalog builds and refreshes per-symbol candidate sets from the broker.
type Catalog struct {
	broker broker.Broker
	logger *log.Logger
	config Config
}

// NewCatalog creates a contract catalog.
func NewCatalog(b broker.Broker, logger *log.Logger, config ...Config) *Catalog {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.New(os.Stderr, "chain: ", log.LstdFlags)
	}
	if b == nil {
		panic("chain.NewCatalog: broker must not be nil")
	}
	return &Catalog{broker: b, logger: logger, config: cfg}
}

// MinViablePrice returns the smallest price at which a contract is worth
// quoting: the broker's high fill-rate sell price when present, otherwise
// the bid/ask midpoint.
func MinViablePrice(c *broker.OptionContract) float64 {
	if c.HighFillRateSellPrice > 0 {
		return c.HighFillRateSellPrice.Float()
	}
	return util.Midpoint(c.BidPrice.Float(), c.AskPrice.Float())
}

// Candidates returns the ordered contract candidates for one expiration.
// An empty (non-nil-error) result means no viable contract exists at this
// expiration; callers must treat that differently from end of search space.
func (c *Catalog) Candidates(symbol, expiration string, referencePrice float64) ([]broker.OptionContract, error) {
	found, err := c.broker.FindContractsByProfitability(
		symbol, expiration, c.config.OptionType, broker.ProfitMetricShort,
		c.config.ProfitLow, c.config.ProfitHigh)
	if err != nil {
		return nil, fmt.Errorf("finding contracts for %s %s: %w", symbol, expiration, err)
	}

	// Only out-of-the-money contracts are eligible to sell.
	otm := found[:0]
	for _, opt := range found {
		if opt.StrikePrice.Float() > referencePrice {
			otm = append(otm, opt)
		}
	}

	sort.SliceStable(otm, func(i, j int) bool {
		di := math.Abs(otm[i].ChanceOfProfitShort.Float() - c.config.ProfitTarget)
		dj := math.Abs(otm[j].ChanceOfProfitShort.Float() - c.config.ProfitTarget)
		return di < dj
	})

	candidates := make([]broker.OptionContract, 0, c.config.MaxCandidates)
	for _, opt := range otm {
		if MinViablePrice(&opt) < c.config.MinPrice {
			continue
		}
		candidates = append(candidates, opt)
		if len(candidates) == c.config.MaxCandidates {
			break
		}
	}
	return candidates, nil
}

// SelectExpirations picks the expirations worth trading: the first date
// outside the current calendar week (Sunday-aligned) plus the following
// ones, up to the configured count. Same-week expirations carry too much
// gamma risk, so they are skipped unless every expiration falls inside the
// current week, in which case the first count dates are returned as-is.
func (c *Catalog) SelectExpirations(all []string, now time.Time) []string {
	week := currentWeek(now)
	idx := -1
	for i, exp := range all {
		if _, sameWeek := week[exp]; !sameWeek {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = 0
	}
	end := idx + c.config.NumExpirations
	if end > len(all) {
		end = len(all)
	}
	return all[idx:end]
}

// currentWeek returns the seven Sunday-aligned dates containing now,
// formatted as expiration date strings.
func currentWeek(now time.Time) map[string]struct{} {
	dayIdx := int(now.Weekday()) // Sunday == 0
	sunday := now.AddDate(0, 0, -dayIdx)
	week := make(map[string]struct{}, 7)
	for i := 0; i < 7; i++ {
		week[sunday.AddDate(0, 0, i).Format("2006-01-02")] = struct{}{}
	}
	return week
}

// Build constructs the full candidate set for one symbol: selected
// expirations and the candidate contracts at each.
func (c *Catalog) Build(symbol string, referencePrice float64, now time.Time) (models.CandidateSet, error) {
	optChain, err := c.broker.GetOptionChain(symbol)
	if err != nil {
		return models.CandidateSet{}, fmt.Errorf("fetching chain for %s: %w", symbol, err)
	}

	expirations := c.SelectExpirations(optChain.ExpirationDates, now)
	contracts := make([][]broker.OptionContract, 0, len(expirations))
	for _, exp := range expirations {
		candidates, err := c.Candidates(symbol, exp, referencePrice)
		if err != nil {
			return models.CandidateSet{}, err
		}
		if len(candidates) == 0 {
			c.logger.Printf("%s: no viable contracts at %s", symbol, exp)
		}
		contracts = append(contracts, candidates)
	}

	return models.CandidateSet{Expirations: expirations, Contracts: contracts}, nil
}

// RefreshQuote overlays a live quote onto a cached contract descriptor.
// Quotes go stale between rounds; only market-data fields change.
func (c *Catalog) RefreshQuote(contract *broker.OptionContract) error {
	quote, err := c.broker.GetContractQuote(contract.ID)
	if err != nil {
		return fmt.Errorf("refreshing quote for %s: %w", contract.ID, err)
	}
	contract.ApplyQuote(quote)
	return nil
}
