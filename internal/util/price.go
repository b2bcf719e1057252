// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundDirection selects which way RoundToIncrement moves a value.
type RoundDirection string

const (
	// RoundUp rounds toward positive infinity (ceiling).
	RoundUp RoundDirection = "UP"
	// RoundDown rounds toward negative infinity (floor).
	RoundDown RoundDirection = "DOWN"
)

// Midpoint returns the bid/ask midpoint.
func Midpoint(bid, ask float64) float64 {
	return (ask + bid) / 2
}

// RoundToIncrement rounds x to the given number of decimal places in the
// given direction. It scales by 10^decimals, applies ceiling or floor, and
// rescales. The operation is idempotent: applying it twice with the same
// arguments yields the same value.
func RoundToIncrement(x float64, decimals int, dir RoundDirection) float64 {
	multiplier := math.Pow(10, float64(decimals))
	if dir == RoundDown {
		return math.Floor(x*multiplier) / multiplier
	}
	return math.Ceil(x*multiplier) / multiplier
}

// AlignToTick snaps x onto the contract's price increment grid. RoundUp
// aligns to the next tick at or above x, RoundDown to the next tick at or
// below. A non-positive tick leaves x unchanged.
func AlignToTick(x, tick float64, dir RoundDirection) float64 {
	if tick <= 0 {
		return x
	}
	if dir == RoundDown {
		return math.Floor(x/tick) * tick
	}
	return math.Ceil(x/tick) * tick
}

// SpreadTooWide reports whether the computed limit price has drifted more
// than 20% from the quote midpoint, which marks the quote as unreliable.
// The check is deliberately relative: it can trigger on absolute
// differences well under $5 for low-priced contracts. A non-positive
// midpoint is always treated as too wide.
func SpreadTooWide(midPrice, price float64) bool {
	if midPrice <= 0 {
		return true
	}
	return math.Abs((midPrice-price)/midPrice) > 0.2
}
