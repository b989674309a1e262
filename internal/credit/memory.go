package credit

import (
	"context"
	"fmt"
	"sync"

	"brandkit/internal/domain"
)

// MemoryGate keeps balances in process memory. Used by tests and the
// dev-mode wiring; production uses the Postgres gate.
type MemoryGate struct {
	mu       sync.Mutex
	balances map[string]int
}

// NewMemoryGate creates a gate with the given starting balances.
func NewMemoryGate(balances map[string]int) *MemoryGate {
	g := &MemoryGate{balances: make(map[string]int, len(balances))}
	for user, n := range balances {
		g.balances[user] = n
	}
	return g
}

func (g *MemoryGate) CheckAndReserve(_ context.Context, userID string, cost int) error {
	if cost <= 0 {
		return fmt.Errorf("credit cost must be positive, got %d", cost)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balances[userID] < cost {
		return fmt.Errorf("user %s: %w", userID, domain.ErrCreditExhausted)
	}
	g.balances[userID] -= cost
	return nil
}

func (g *MemoryGate) Refund(_ context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[userID] += amount
	return nil
}

func (g *MemoryGate) Balance(_ context.Context, userID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[userID], nil
}
