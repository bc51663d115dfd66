// Package store provides the SQLite-backed record store behind the tool
// gateway. It holds customer records and their support cases; every write is
// a single statement, atomic at the record level.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNoFields      = errors.New("no fields to update")
	ErrInvalidField  = errors.New("invalid field")
	ErrInvalidStatus = errors.New("invalid status")
)

// Store wraps a SQLite database holding customers and cases.
type Store struct {
	conn *sql.DB
	path string
}

// Customer is one customer record.
type Customer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

// Case is one support case attached to a customer.
type Case struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	Issue      string `json:"issue"`
	Priority   string `json:"priority"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

// Open opens (creating if necessary) the store at path and applies the
// schema. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	// SQLite permits one writer at a time; a single pooled connection keeps
	// concurrent updates queued instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active'
		);
		CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			issue TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'open',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_cases_customer ON cases(customer_id);
	`)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Seed inserts sample customers and cases when the store is empty, so the
// system answers demo queries out of the box.
func (s *Store) Seed(ctx context.Context) error {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	customers := []Customer{
		{Name: "Ada Lindqvist", Email: "ada@example.com", Phone: "+46-70-1234567", Status: "active"},
		{Name: "Bram Okafor", Email: "bram@example.com", Phone: "+31-6-7654321", Status: "active"},
		{Name: "Chiyo Tanaka", Email: "chiyo@example.com", Phone: "+81-90-1112223", Status: "disabled"},
		{Name: "Derya Aksoy", Email: "derya@example.com", Phone: "+90-532-9988776", Status: "active"},
		{Name: "Elio Marchetti", Email: "elio@example.com", Phone: "+39-333-4455667", Status: "active"},
	}
	for _, c := range customers {
		if _, err := s.conn.ExecContext(ctx,
			"INSERT INTO customers (name, email, phone, status) VALUES (?, ?, ?, ?)",
			c.Name, c.Email, c.Phone, c.Status,
		); err != nil {
			return err
		}
	}

	cases := []Case{
		{CustomerID: 1, Issue: "Cannot log in after password reset", Priority: "high", Status: "open"},
		{CustomerID: 2, Issue: "Invoice shows the wrong billing address", Priority: "medium", Status: "closed"},
		{CustomerID: 4, Issue: "Subscription renewal charged twice", Priority: "high", Status: "open"},
		{CustomerID: 5, Issue: "Feature request: export to CSV", Priority: "low", Status: "open"},
	}
	for _, c := range cases {
		if _, err := s.conn.ExecContext(ctx,
			"INSERT INTO cases (customer_id, issue, priority, status) VALUES (?, ?, ?, ?)",
			c.CustomerID, c.Issue, c.Priority, c.Status,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetCustomer returns one customer by ID.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, name, email, phone, status FROM customers WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCustomers returns customers, optionally filtered by status, capped at
// limit (default 10 when limit <= 0).
func (s *Store) ListCustomers(ctx context.Context, status string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 10
	}
	query := "SELECT id, name, email, phone, status FROM customers"
	args := []any{}
	if status != "" {
		if status != "active" && status != "disabled" {
			return nil, fmt.Errorf("status %q: %w", status, ErrInvalidStatus)
		}
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Customer, 0)
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var updatableFields = map[string]bool{
	"name":   true,
	"email":  true,
	"phone":  true,
	"status": true,
}

// UpdateCustomer updates the given fields on one customer record in a single
// statement; concurrent updates to the same record serialize at the database,
// last write wins.
func (s *Store) UpdateCustomer(ctx context.Context, id int64, fields map[string]string) (*Customer, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for k, v := range fields {
		if !updatableFields[k] {
			return nil, fmt.Errorf("field %q: %w", k, ErrInvalidField)
		}
		setClauses = append(setClauses, k+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	res, err := s.conn.ExecContext(ctx,
		"UPDATE customers SET "+strings.Join(setClauses, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	return s.GetCustomer(ctx, id)
}

var validCasePriorities = map[string]bool{"low": true, "medium": true, "high": true}

// CreateCase opens a new support case for an existing customer.
func (s *Store) CreateCase(ctx context.Context, customerID int64, issue, priority string) (*Case, error) {
	if priority == "" {
		priority = "medium"
	}
	if !validCasePriorities[priority] {
		return nil, fmt.Errorf("priority %q: %w", priority, ErrInvalidStatus)
	}
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO cases (customer_id, issue, priority, status) VALUES (?, ?, ?, 'open')",
		customerID, issue, priority)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.getCase(ctx, id)
}

func (s *Store) getCase(ctx context.Context, id int64) (*Case, error) {
	var c Case
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, customer_id, issue, priority, status, created_at FROM cases WHERE id = ?", id,
	).Scan(&c.ID, &c.CustomerID, &c.Issue, &c.Priority, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CaseHistory returns all cases for one customer, newest first.
func (s *Store) CaseHistory(ctx context.Context, customerID int64) ([]Case, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, customer_id, issue, priority, status, created_at
		FROM cases WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Case, 0)
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Issue, &c.Priority, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CustomersWithOpenCases returns customers that have at least one open case,
// optionally filtered by customer status.
func (s *Store) CustomersWithOpenCases(ctx context.Context, status string) ([]Customer, error) {
	query := `
		SELECT DISTINCT c.id, c.name, c.email, c.phone, c.status
		FROM customers c
		JOIN cases t ON c.id = t.customer_id
		WHERE t.status = 'open'`
	args := []any{}
	if status != "" {
		if status != "active" && status != "disabled" {
			return nil, fmt.Errorf("status %q: %w", status, ErrInvalidStatus)
		}
		query += " AND c.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY c.id"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Customer, 0)
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
