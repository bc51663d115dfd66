package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func openSeeded(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Seed(context.Background()); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

func TestGetCustomer(t *testing.T) {
	t.Parallel()
	s := openSeeded(t)
	ctx := context.Background()

	c, err := s.GetCustomer(ctx, 1)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if c.Name == "" || c.Email == "" {
		t.Fatalf("customer 1 incomplete: %+v", c)
	}

	if _, err := s.GetCustomer(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCustomers(t *testing.T) {
	t.Parallel()
	s := openSeeded(t)
	ctx := context.Background()

	all, err := s.ListCustomers(ctx, "", 0)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 customers, got %d", len(all))
	}

	disabled, err := s.ListCustomers(ctx, "disabled", 0)
	if err != nil {
		t.Fatalf("list disabled: %v", err)
	}
	if len(disabled) != 1 {
		t.Fatalf("expected 1 disabled customer, got %d", len(disabled))
	}

	capped, err := s.ListCustomers(ctx, "", 2)
	if err != nil {
		t.Fatalf("list capped: %v", err)
	}
	if len(capped) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(capped))
	}

	if _, err := s.ListCustomers(ctx, "bogus", 0); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateCustomer(t *testing.T) {
	t.Parallel()
	s := openSeeded(t)
	ctx := context.Background()

	updated, err := s.UpdateCustomer(ctx, 1, map[string]string{"email": "new@example.com"})
	if err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Fatalf("email not updated: %+v", updated)
	}

	if _, err := s.UpdateCustomer(ctx, 1, nil); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
	if _, err := s.UpdateCustomer(ctx, 1, map[string]string{"id": "7"}); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
	if _, err := s.UpdateCustomer(ctx, 9999, map[string]string{"email": "x@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentUpdatesLastWriteWins(t *testing.T) {
	t.Parallel()
	s := openSeeded(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := []string{"+1-100", "+1-200", "+1-300", "+1-400", "+1-500", "+1-600", "+1-700", "+1-800"}[i]
			if _, err := s.UpdateCustomer(ctx, 2, map[string]string{"phone": phone}); err != nil {
				t.Errorf("concurrent update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	c, err := s.GetCustomer(ctx, 2)
	if err != nil {
		t.Fatalf("get after updates: %v", err)
	}
	valid := map[string]bool{
		"+1-100": true, "+1-200": true, "+1-300": true, "+1-400": true,
		"+1-500": true, "+1-600": true, "+1-700": true, "+1-800": true,
	}
	if !valid[c.Phone] {
		t.Fatalf("phone is not one of the written values: %q", c.Phone)
	}
}

func TestCreateCaseAndHistory(t *testing.T) {
	t.Parallel()
	s := openSeeded(t)
	ctx := context.Background()

	created, err := s.CreateCase(ctx, 3, "cannot export data", "high")
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if created.Status != "open" || created.Priority != "high" {
		t.Fatalf("unexpected case: %+v", created)
	}

	history, err := s.CaseHistory(ctx, 3)
	if err != nil {
		t.Fatalf("case history: %v", err)
	}
	if len(history) != 1 || history[0].Issue != "cannot export data" {
		t.Fatalf("unexpected history: %+v", history)
	}

	if _, err := s.CreateCase(ctx, 9999, "orphan", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing customer, got %v", err)
	}
	if _, err := s.CreateCase(ctx, 3, "bad prio", "whenever"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for bad priority, got %v", err)
	}
	if _, err := s.CaseHistory(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for history of missing customer, got %v", err)
	}
}

func TestCustomersWithOpenCases(t *testing.T) {
	t.Parallel()
	s := openSeeded(t)
	ctx := context.Background()

	// Seed data: customers 1, 4 and 5 hold open cases.
	open, err := s.CustomersWithOpenCases(ctx, "")
	if err != nil {
		t.Fatalf("open cases: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("expected 3 customers with open cases, got %d", len(open))
	}
	if open[0].ID != 1 || open[1].ID != 4 || open[2].ID != 5 {
		t.Fatalf("unexpected ordering: %+v", open)
	}

	active, err := s.CustomersWithOpenCases(ctx, "active")
	if err != nil {
		t.Fatalf("open cases active: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active customers with open cases, got %d", len(active))
	}
}
