package models

import "errors"

var (
	// ErrNoViableContract signals that the cursor addresses an empty
	// candidate list. Recoverable: the caller advances the cursor.
	ErrNoViableContract = errors.New("no viable contract at cursor")

	// ErrSpreadTooWide signals that the computed limit price diverged too
	// far from the quote midpoint. Recoverable: the caller advances or
	// resets the cursor without consuming a broker order.
	ErrSpreadTooWide = errors.New("bid/ask spread too wide")

	// ErrSearchExhausted signals that every expiration, contract, and
	// price offset was tried without a fill. Terminal for the symbol.
	ErrSearchExhausted = errors.New("EXHAUSTED")
)
