// Package broker provides trading API clients for executing options trades.
// It includes the Robinhood API client implementation used for covered call
// order placement and price discovery.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Order lifecycle states reported by the broker.
const (
	OrderStateOpen      = "open"
	OrderStateFilled    = "filled"
	OrderStateCancelled = "cancelled"
	OrderStateRejected  = "rejected"
)

// ProfitMetricShort is the contract metric used when filtering call
// candidates for short positions.
const ProfitMetricShort = "chance_of_profit_short"

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Amount is a price or quantity field that the broker serializes as a
// quoted decimal string ("1.23"), a bare number, or null. Null and empty
// values decode to zero.
type Amount float64

// UnmarshalJSON accepts string, number, and null encodings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// MarshalJSON emits the broker's quoted-decimal encoding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(a), 'f', -1, 64))
}

// Float returns the amount as a plain float64.
func (a Amount) Float() float64 { return float64(a) }

// OptionChain describes the chain metadata for an underlying symbol.
type OptionChain struct {
	ID              string   `json:"id"`
	Symbol          string   `json:"symbol"`
	ExpirationDates []string `json:"expiration_dates"`
}

// MinTicks describes the valid price increments for a contract. BelowTick
// applies when approaching a price level from below, AboveTick from above.
type MinTicks struct {
	AboveTick   Amount `json:"above_tick"`
	BelowTick   Amount `json:"below_tick"`
	CutoffPrice Amount `json:"cutoff_price"`
}

// OptionContract is a tradable contract descriptor combining instrument and
// market data.
type OptionContract struct {
	ID                    string   `json:"id"`
	ChainSymbol           string   `json:"chain_symbol"`
	OptionType            string   `json:"type"`
	ExpirationDate        string   `json:"expiration_date"`
	StrikePrice           Amount   `json:"strike_price"`
	BidPrice              Amount   `json:"bid_price"`
	AskPrice              Amount   `json:"ask_price"`
	ChanceOfProfitShort   Amount   `json:"chance_of_profit_short"`
	ChanceOfProfitLong    Amount   `json:"chance_of_profit_long"`
	HighFillRateSellPrice Amount   `json:"high_fill_rate_sell_price"`
	MinTicks              MinTicks `json:"min_ticks"`
}

// ContractQuote is the live market-data slice of a contract, fetched when a
// cached descriptor's quote has gone stale.
type ContractQuote struct {
	BidPrice              Amount `json:"bid_price"`
	AskPrice              Amount `json:"ask_price"`
	ChanceOfProfitShort   Amount `json:"chance_of_profit_short"`
	ChanceOfProfitLong    Amount `json:"chance_of_profit_long"`
	HighFillRateSellPrice Amount `json:"high_fill_rate_sell_price"`
}

// ApplyQuote overlays live market data onto a cached contract descriptor,
// preserving the instrument fields.
func (o *OptionContract) ApplyQuote(q *ContractQuote) {
	if q == nil {
		return
	}
	o.BidPrice = q.BidPrice
	o.AskPrice = q.AskPrice
	o.ChanceOfProfitShort = q.ChanceOfProfitShort
	o.ChanceOfProfitLong = q.ChanceOfProfitLong
	o.HighFillRateSellPrice = q.HighFillRateSellPrice
}

// ContractInstrument is the static instrument data for a contract.
type ContractInstrument struct {
	ID             string   `json:"id"`
	OptionType     string   `json:"type"`
	ExpirationDate string   `json:"expiration_date"`
	StrikePrice    Amount   `json:"strike_price"`
	MinTicks       MinTicks `json:"min_ticks"`
}

// Holding is a stock holding for an underlying symbol.
type Holding struct {
	InstrumentID string `json:"id"`
	Price        Amount `json:"price"`
	Quantity     Amount `json:"quantity"`
}

// StockPosition is an open stock position, including shares committed as
// options collateral.
type StockPosition struct {
	InstrumentID                   string `json:"instrument_id"`
	Quantity                       Amount `json:"quantity"`
	SharesHeldForOptionsCollateral Amount `json:"shares_held_for_options_collateral"`
}

// OptionPosition is a single open option position leg.
type OptionPosition struct {
	ChainSymbol string `json:"chain_symbol"`
	OptionID    string `json:"option_id"`
	Type        string `json:"type"` // short | long
	Quantity    Amount `json:"quantity"`
}

// AggregateLeg is one leg of an aggregate option strategy position.
type AggregateLeg struct {
	Option         string `json:"option"` // instrument URL containing the contract ID
	PositionType   string `json:"position_type"`
	ExpirationDate string `json:"expiration_date"`
	StrikePrice    Amount `json:"strike_price"`
	OptionType     string `json:"option_type"`
}

// AggregatePosition is an open option strategy position grouped by symbol.
type AggregatePosition struct {
	Symbol       string         `json:"symbol"`
	Strategy     string         `json:"strategy"` // e.g. short_call
	StrategyCode string         `json:"strategy_code"`
	Quantity     Amount         `json:"quantity"`
	Legs         []AggregateLeg `json:"legs"`
}

// Order is the broker's view of a submitted option order.
type Order struct {
	ID             string `json:"id"`
	ChainSymbol    string `json:"chain_symbol"`
	State          string `json:"state"`
	Price          Amount `json:"price"`
	Quantity       Amount `json:"quantity"`
	PendingQty     Amount `json:"pending_quantity"`
	ProcessedQty   Amount `json:"processed_quantity"`
	PremiumDir     string `json:"direction"` // credit | debit
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	CancelURL      string `json:"cancel_url"`
}

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool {
	switch strings.ToLower(o.State) {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// paginated wraps the broker's cursor-paginated list responses.
type paginated[T any] struct {
	Results []T     `json:"results"`
	Next    *string `json:"next"`
}

// RobinhoodAPI is an HTTP client for the Robinhood options endpoints used by
// the order engine.
type RobinhoodAPI struct {
	client  *http.Client
	baseURL string
	token   string
	timeout time.Duration
}

const defaultBaseURL = "https://api.robinhood.com"

// NewRobinhoodAPI creates a client authenticating with the given bearer
// token. An empty baseURL selects the production endpoint.
func NewRobinhoodAPI(token, baseURL string) *RobinhoodAPI {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	timeout := 10 * time.Second
	return &RobinhoodAPI{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (r *RobinhoodAPI) WithHTTPClient(c *http.Client) *RobinhoodAPI {
	if c != nil {
		r.client = c
	}
	return r
}

// WithTimeout sets the HTTP client timeout duration.
func (r *RobinhoodAPI) WithTimeout(timeout time.Duration) *RobinhoodAPI {
	r.timeout = timeout
	if r.client != nil {
		r.client.Timeout = timeout
	}
	return r
}

func (r *RobinhoodAPI) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (r *RobinhoodAPI) getPaginated(ctx context.Context, path string, query url.Values, collect func([]byte) (next *string, err error)) error {
	// Follow the broker's cursor pagination until exhausted.
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	for u != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Body: string(data)}
		}
		next, err := collect(data)
		if err != nil {
			return err
		}
		if next == nil || *next == "" {
			return nil
		}
		u = *next
	}
	return nil
}

// GetHoldings returns the account's stock holdings keyed by symbol.
func (r *RobinhoodAPI) GetHoldings() (map[string]Holding, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.GetHoldingsCtx(ctx)
}

// GetHoldingsCtx returns the account's stock holdings keyed by symbol.
func (r *RobinhoodAPI) GetHoldingsCtx(ctx context.Context) (map[string]Holding, error) {
	var out map[string]Holding
	if err := r.do(ctx, http.MethodGet, "/portfolio/holdings/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOpenStockPositions returns open stock positions, including collateral.
func (r *RobinhoodAPI) GetOpenStockPositions() ([]StockPosition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var all []StockPosition
	q := url.Values{"nonzero": {"true"}}
	err := r.getPaginated(ctx, "/positions/", q, func(data []byte) (*string, error) {
		var page paginated[StockPosition]
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding positions page: %w", err)
		}
		all = append(all, page.Results...)
		return page.Next, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetOpenOptionPositions returns open single-leg option positions.
func (r *RobinhoodAPI) GetOpenOptionPositions() ([]OptionPosition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var all []OptionPosition
	q := url.Values{"nonzero": {"True"}}
	err := r.getPaginated(ctx, "/options/positions/", q, func(data []byte) (*string, error) {
		var page paginated[OptionPosition]
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding option positions page: %w", err)
		}
		all = append(all, page.Results...)
		return page.Next, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetAggregateOpenPositions returns open option positions grouped into
// strategies (e.g. short_call) with their legs.
func (r *RobinhoodAPI) GetAggregateOpenPositions() ([]AggregatePosition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var all []AggregatePosition
	q := url.Values{"nonzero": {"True"}}
	err := r.getPaginated(ctx, "/options/aggregate_positions/", q, func(data []byte) (*string, error) {
		var page paginated[AggregatePosition]
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding aggregate positions page: %w", err)
		}
		all = append(all, page.Results...)
		return page.Next, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetOptionChain returns chain metadata (expiration dates) for a symbol.
func (r *RobinhoodAPI) GetOptionChain(symbol string) (*OptionChain, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.GetOptionChainCtx(ctx, symbol)
}

// GetOptionChainCtx returns chain metadata (expiration dates) for a symbol.
func (r *RobinhoodAPI) GetOptionChainCtx(ctx context.Context, symbol string) (*OptionChain, error) {
	q := url.Values{"equity_symbol": {symbol}}
	var page paginated[OptionChain]
	if err := r.do(ctx, http.MethodGet, "/options/chains/", q, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, fmt.Errorf("no option chain for %s", symbol)
	}
	return &page.Results[0], nil
}

// FindContractsByProfitability returns contracts of the given type at the
// given expiration whose profitability metric falls inside [low, high].
func (r *RobinhoodAPI) FindContractsByProfitability(
	symbol, expiration, optionType, metric string,
	low, high float64,
) ([]OptionContract, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	q := url.Values{
		"chain_symbol":    {symbol},
		"expiration_date": {expiration},
		"type":            {optionType},
		"metric":          {metric},
		"metric_low":      {strconv.FormatFloat(low, 'f', -1, 64)},
		"metric_high":     {strconv.FormatFloat(high, 'f', -1, 64)},
		"state":           {"active"},
	}
	var all []OptionContract
	err := r.getPaginated(ctx, "/options/instruments/", q, func(data []byte) (*string, error) {
		var page paginated[OptionContract]
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding contracts page: %w", err)
		}
		all = append(all, page.Results...)
		return page.Next, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetContractQuote returns live market data for a contract by ID.
func (r *RobinhoodAPI) GetContractQuote(id string) (*ContractQuote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.GetContractQuoteCtx(ctx, id)
}

// GetContractQuoteCtx returns live market data for a contract by ID.
func (r *RobinhoodAPI) GetContractQuoteCtx(ctx context.Context, id string) (*ContractQuote, error) {
	var page paginated[ContractQuote]
	path := fmt.Sprintf("/marketdata/options/%s/", url.PathEscape(id))
	if err := r.do(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, fmt.Errorf("no market data for contract %s", id)
	}
	return &page.Results[0], nil
}

// GetContractInstrument returns static instrument data for a contract by ID.
func (r *RobinhoodAPI) GetContractInstrument(id string) (*ContractInstrument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var out ContractInstrument
	path := fmt.Sprintf("/options/instruments/%s/", url.PathEscape(id))
	if err := r.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// limitOrderPayload is the order submission body.
type limitOrderPayload struct {
	Side           string `json:"side"`             // buy | sell
	PositionEffect string `json:"position_effect"`  // open | close
	PremiumDir     string `json:"credit_or_debit"`  // credit | debit
	OrderType      string `json:"type"`             // always limit
	TimeInForce    string `json:"time_in_force"`    // gfd
	Price          Amount `json:"price"`
	Symbol         string `json:"chain_symbol"`
	Quantity       int    `json:"quantity"`
	Expiration     string `json:"expiration_date"`
	Strike         Amount `json:"strike_price"`
	OptionType     string `json:"option_type"`
}

// SubmitSellLimitOrder submits a sell limit order for a single option leg.
func (r *RobinhoodAPI) SubmitSellLimitOrder(
	positionEffect, creditOrDebit string,
	price float64, symbol string, quantity int,
	expiration string, strike float64, optionType string,
) (*Order, error) {
	return r.submitLimitOrder("sell", positionEffect, creditOrDebit,
		price, symbol, quantity, expiration, strike, optionType)
}

// SubmitBuyLimitOrder submits a buy limit order for a single option leg.
func (r *RobinhoodAPI) SubmitBuyLimitOrder(
	positionEffect, creditOrDebit string,
	price float64, symbol string, quantity int,
	expiration string, strike float64, optionType string,
) (*Order, error) {
	return r.submitLimitOrder("buy", positionEffect, creditOrDebit,
		price, symbol, quantity, expiration, strike, optionType)
}

func (r *RobinhoodAPI) submitLimitOrder(
	side, positionEffect, creditOrDebit string,
	price float64, symbol string, quantity int,
	expiration string, strike float64, optionType string,
) (*Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload := limitOrderPayload{
		Side:           side,
		PositionEffect: positionEffect,
		PremiumDir:     creditOrDebit,
		OrderType:      "limit",
		TimeInForce:    "gfd",
		Price:          Amount(price),
		Symbol:         symbol,
		Quantity:       quantity,
		Expiration:     expiration,
		Strike:         Amount(strike),
		OptionType:     optionType,
	}
	var out Order
	if err := r.do(ctx, http.MethodPost, "/options/orders/", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder requests cancellation of an order. Cancelling an order that
// already filled is a no-op on the broker side.
func (r *RobinhoodAPI) CancelOrder(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	path := fmt.Sprintf("/options/orders/%s/cancel/", url.PathEscape(id))
	return r.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// GetOrderInfo fetches the current state of an order.
func (r *RobinhoodAPI) GetOrderInfo(id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.GetOrderInfoCtx(ctx, id)
}

// GetOrderInfoCtx fetches the current state of an order.
func (r *RobinhoodAPI) GetOrderInfoCtx(ctx context.Context, id string) (*Order, error) {
	var out Order
	path := fmt.Sprintf("/options/orders/%s/", url.PathEscape(id))
	if err := r.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
