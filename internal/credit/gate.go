// Package credit gates paid generation work behind a consumable balance.
// The check and the reservation are one atomic operation: two concurrent
// requests against a balance of one credit can never both pass.
package credit

import "context"

// Gate is consulted immediately before dispatching any credit-consuming
// queue. On domain.ErrCreditExhausted the caller surfaces an upgrade
// prompt and no job is dispatched.
type Gate interface {
	// CheckAndReserve atomically deducts cost from the user's balance.
	// It fails with domain.ErrCreditExhausted when the balance is short;
	// the balance is untouched in that case.
	CheckAndReserve(ctx context.Context, userID string, cost int) error

	// Refund returns previously reserved credits, for handlers that fail
	// before any billable provider call was made.
	Refund(ctx context.Context, userID string, amount int) error

	// Balance reports the current balance.
	Balance(ctx context.Context, userID string) (int, error)
}
