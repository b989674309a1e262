package credit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"brandkit/internal/domain"
)

func TestCheckAndReserveDeducts(t *testing.T) {
	g := NewMemoryGate(map[string]int{"u1": 3})
	ctx := context.Background()

	if err := g.CheckAndReserve(ctx, "u1", 2); err != nil {
		t.Fatalf("CheckAndReserve returned error: %v", err)
	}
	balance, err := g.Balance(ctx, "u1")
	if err != nil || balance != 1 {
		t.Fatalf("Balance = (%d, %v), want 1", balance, err)
	}
}

func TestCheckAndReserveExhausted(t *testing.T) {
	g := NewMemoryGate(map[string]int{"u1": 1})
	ctx := context.Background()

	err := g.CheckAndReserve(ctx, "u1", 2)
	if !errors.Is(err, domain.ErrCreditExhausted) {
		t.Fatalf("error mismatch: got %v want ErrCreditExhausted", err)
	}
	// A failed reservation must not touch the balance.
	balance, _ := g.Balance(ctx, "u1")
	if balance != 1 {
		t.Fatalf("balance changed on failed reservation: got %d want 1", balance)
	}
}

func TestCheckAndReserveIsAtomic(t *testing.T) {
	g := NewMemoryGate(map[string]int{"u1": 1})
	ctx := context.Background()

	const racers = 16
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.CheckAndReserve(ctx, "u1", 1); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	wins := 0
	for range succeeded {
		wins++
	}
	if wins != 1 {
		t.Fatalf("reservation races: %d succeeded against a balance of 1", wins)
	}
	balance, _ := g.Balance(ctx, "u1")
	if balance != 0 {
		t.Fatalf("balance mismatch after race: got %d want 0", balance)
	}
}

func TestRefundRestores(t *testing.T) {
	g := NewMemoryGate(map[string]int{"u1": 1})
	ctx := context.Background()

	if err := g.CheckAndReserve(ctx, "u1", 1); err != nil {
		t.Fatalf("CheckAndReserve returned error: %v", err)
	}
	if err := g.Refund(ctx, "u1", 1); err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	balance, _ := g.Balance(ctx, "u1")
	if balance != 1 {
		t.Fatalf("balance after refund: got %d want 1", balance)
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	g := NewMemoryGate(map[string]int{"u1": 5})
	ctx := context.Background()
	if err := g.CheckAndReserve(ctx, "u1", 0); err == nil {
		t.Fatal("CheckAndReserve accepted zero cost")
	}
	if err := g.Refund(ctx, "u1", -1); err == nil {
		t.Fatal("Refund accepted a negative amount")
	}
}
