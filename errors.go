package billing

import "errors"

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("billing: not found")
	ErrAlreadyExists = errors.New("billing: already exists")
	ErrInvalidInput  = errors.New("billing: invalid input")

	// Order errors
	ErrOrderNotFound = errors.New("billing: order not found")
	ErrOrderNoLines  = errors.New("billing: order has no lines")

	// Ledger errors
	ErrEntryNotFound   = errors.New("billing: ledger entry not found")
	ErrAccountNotFound = errors.New("billing: billing account not found")
	ErrBadEntrySign    = errors.New("billing: amount sign does not match entry type")
	ErrZeroAmount      = errors.New("billing: zero-amount posting")

	// Wallet errors
	ErrWalletNotFound     = errors.New("billing: wallet not found")
	ErrNegativeWalletLoad = errors.New("billing: wallet top-up must be positive")

	// Subscription errors
	ErrSubscriptionNotFound   = errors.New("billing: subscription not found")
	ErrSubscriptionNotActive  = errors.New("billing: subscription is not active")
	ErrSubscriptionIncomplete = errors.New("billing: subscription missing user, plan or billing date")

	// Discount errors
	ErrCouponNotFound = errors.New("billing: coupon not found")

	// Tax errors
	ErrTaxRateNotFound = errors.New("billing: tax rate not configured")

	// Region errors
	ErrRegionNotFound = errors.New("billing: region not found")
	ErrAgentNotFound  = errors.New("billing: sales agent not found")
)

// IsNotFound returns true if the error is any not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrTaxRateNotFound) ||
		errors.Is(err, ErrRegionNotFound) ||
		errors.Is(err, ErrAgentNotFound)
}
