package trade

import (
	"errors"

	"github.com/papertrade/trading-engine/internal/ledger"
)

// Typed order failures. Every rejected order carries a specific reason
// so a caller can tell "insufficient funds" from "system unavailable".
var (
	// ErrMissingFields: required order fields absent or non-positive.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidSide: side is neither BUY nor SELL.
	ErrInvalidSide = errors.New("side must be BUY or SELL")

	// ErrUserNotFound: the order references an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrPriceUnavailable: no cached price for the requested symbol.
	// There is no fallback price; the order is rejected.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInsufficientFunds: buy notional exceeds the cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares: sell quantity exceeds the held position.
	ErrInsufficientShares = ledger.ErrInsufficientShares

	// ErrStorage wraps collaborator failures. Retryable by the caller;
	// the engine itself never retries a financial mutation.
	ErrStorage = errors.New("storage failure")
)
