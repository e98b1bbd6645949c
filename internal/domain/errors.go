package domain

import "errors"

// Domain errors shared across modules. Handlers map these to HTTP status
// codes; the execution engine maps the validation subset to FAILED
// transaction notes.
var (
	// ErrInvalidQuantity indicates a zero or negative trade quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrPriceUnavailable indicates the price oracle has no quote for
	// the requested ticker.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInsufficientFunds indicates the cash balance cannot cover a
	// purchase or reservation.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares indicates a sell larger than the held
	// position.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrNoPosition indicates a sell against a ticker with no position.
	ErrNoPosition = errors.New("no position in ticker")

	// ErrNotOwner indicates an order operation by a user who does not
	// own the order's portfolio.
	ErrNotOwner = errors.New("order does not belong to user")

	// ErrInvalidState indicates an order state transition that the
	// state machine forbids, such as cancelling a FILLED order.
	ErrInvalidState = errors.New("order is not open")

	// ErrDivisionByZero guards derived-value computations against a
	// zero quantity denominator.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrContention indicates the per-portfolio lock could not be
	// acquired within the configured wait.
	ErrContention = errors.New("portfolio busy, try again")

	// ErrPortfolioNotFound indicates a lookup for a portfolio that does
	// not exist.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrOrderNotFound indicates a lookup for an order that does not
	// exist.
	ErrOrderNotFound = errors.New("order not found")
)

// FailureKind classifies a trade validation failure for the audit note
// on a FAILED transaction.
type FailureKind string

const (
	FailureInvalidQuantity    FailureKind = "INVALID_QUANTITY"
	FailurePriceUnavailable   FailureKind = "PRICE_UNAVAILABLE"
	FailureInsufficientFunds  FailureKind = "INSUFFICIENT_FUNDS"
	FailureInsufficientShares FailureKind = "INSUFFICIENT_SHARES"
	FailureNoPosition         FailureKind = "NO_POSITION"
)

// ClassifyFailure maps a validation error to its FailureKind. The second
// return is false for errors that are not trade validation failures
// (those never produce a FAILED transaction).
func ClassifyFailure(err error) (FailureKind, bool) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return FailureInvalidQuantity, true
	case errors.Is(err, ErrPriceUnavailable):
		return FailurePriceUnavailable, true
	case errors.Is(err, ErrInsufficientFunds):
		return FailureInsufficientFunds, true
	case errors.Is(err, ErrInsufficientShares):
		return FailureInsufficientShares, true
	case errors.Is(err, ErrNoPosition):
		return FailureNoPosition, true
	default:
		return "", false
	}
}
