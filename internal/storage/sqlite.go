package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"crm-agent-pipeline/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sqlite-backed CRM store. modernc's driver is pure Go, so a
// single connection with WAL is both the simplest and the safest setup.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the database under dataDir and applies pending
// migrations. Pass ":memory:" as dataDir for an in-memory store in tests.
func Open(dataDir string) (*Store, error) {
	dsn := "file::memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = "file:" + filepath.Join(dataDir, "crm.db")
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the vector index can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		version, err := strconv.Atoi(strings.SplitN(entry.Name(), "_", 2)[0])
		if err != nil {
			return fmt.Errorf("bad migration name %q: %w", entry.Name(), err)
		}
		if version <= current {
			continue
		}

		script, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %q: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %q: %w", entry.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// --- clients ---

func (s *Store) CreateClient(ctx context.Context, userID string, req models.CreateClientRequest) (*models.Client, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (name, email, company, user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		req.Name, req.Email, req.Company, userID, now)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Client{ID: id, Name: req.Name, Email: req.Email, Company: req.Company, UserID: userID, CreatedAt: now}, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, company, user_id, created_at FROM clients WHERE id = ?`, id)
	client, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("CLIENT_NOT_FOUND", fmt.Sprintf("client %d not found", id))
	}
	return client, err
}

func (s *Store) ListClients(ctx context.Context, userID string) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, company, user_id, created_at FROM clients WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()
	return collectClients(rows)
}

func (s *Store) DeleteClient(ctx context.Context, id int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.NewNotFoundError("CLIENT_NOT_FOUND", fmt.Sprintf("client %d not found", id))
	}
	return nil
}

// FindClients does a case-insensitive substring match over name, email and
// company.
func (s *Store) FindClients(ctx context.Context, search string, limit int) ([]models.Client, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(search) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, company, user_id, created_at FROM clients
		 WHERE lower(name) LIKE ? OR lower(email) LIKE ? OR lower(company) LIKE ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("find clients: %w", err)
	}
	defer rows.Close()
	return collectClients(rows)
}

func (s *Store) CountClients(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clients: %w", err)
	}
	return n, nil
}

// CountClientsActiveSince counts clients with at least one invoice due on
// or after the given time.
func (s *Store) CountClientsActiveSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT client_id) FROM invoices WHERE due_date >= ?`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active clients: %w", err)
	}
	return n, nil
}

// RecentClients returns the newest clients across all users, for batch
// churn analysis.
func (s *Store) RecentClients(ctx context.Context, limit int) ([]models.Client, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, company, user_id, created_at FROM clients ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("recent clients: %w", err)
	}
	defer rows.Close()
	return collectClients(rows)
}

// ClientWithInvoices loads a client together with its most recent invoices
// by due date.
func (s *Store) ClientWithInvoices(ctx context.Context, id int64, invoiceLimit int) (*models.Client, []models.Invoice, error) {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if invoiceLimit <= 0 {
		invoiceLimit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, amount, due_date, paid, client_id, user_id, created_at FROM invoices
		 WHERE client_id = ? ORDER BY due_date DESC, id DESC LIMIT ?`,
		id, invoiceLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("client invoices: %w", err)
	}
	defer rows.Close()

	invoices, err := collectInvoices(rows)
	if err != nil {
		return nil, nil, err
	}
	return client, invoices, nil
}

// --- invoices ---

func (s *Store) CreateInvoice(ctx context.Context, userID string, req models.CreateInvoiceRequest) (*models.Invoice, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (amount, due_date, paid, client_id, user_id, created_at) VALUES (?, ?, 0, ?, ?, ?)`,
		req.Amount, req.DueDate.UTC(), req.ClientID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Invoice{ID: id, Amount: req.Amount, DueDate: req.DueDate.UTC(), ClientID: req.ClientID, UserID: userID, CreatedAt: now}, nil
}

func (s *Store) ListInvoices(ctx context.Context, userID string) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, amount, due_date, paid, client_id, user_id, created_at FROM invoices
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *Store) MarkInvoicePaid(ctx context.Context, id int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invoices SET paid = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.NewNotFoundError("INVOICE_NOT_FOUND", fmt.Sprintf("invoice %d not found", id))
	}
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.NewNotFoundError("INVOICE_NOT_FOUND", fmt.Sprintf("invoice %d not found", id))
	}
	return nil
}

// FindInvoices matches invoices whose amount is at least minAmount, or
// whose client name contains clientName (case-insensitive). Either filter
// may be zero-valued.
func (s *Store) FindInvoices(ctx context.Context, minAmount float64, clientName string, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 10
	}

	var (
		conditions []string
		args       []interface{}
	)
	if minAmount > 0 {
		conditions = append(conditions, "i.amount >= ?")
		args = append(args, minAmount)
	}
	if clientName != "" {
		conditions = append(conditions, "lower(c.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(clientName)+"%")
	}

	query := `SELECT i.id, i.amount, i.due_date, i.paid, i.client_id, i.user_id, i.created_at
		 FROM invoices i JOIN clients c ON c.id = i.client_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " OR ")
	}
	query += " ORDER BY i.due_date DESC, i.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find invoices: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// CountOverdueInvoices counts a client's unpaid invoices past due, capped
// so prompt enrichment stays bounded.
func (s *Store) CountOverdueInvoices(ctx context.Context, clientID int64, limit int) (int, error) {
	if limit <= 0 {
		limit = 5
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
		   SELECT id FROM invoices WHERE client_id = ? AND paid = 0 AND due_date < ? LIMIT ?
		 )`,
		clientID, time.Now().UTC(), limit).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overdue invoices: %w", err)
	}
	return n, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &c.UserID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectClients(rows *sql.Rows) ([]models.Client, error) {
	var clients []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func collectInvoices(rows *sql.Rows) ([]models.Invoice, error) {
	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.Amount, &inv.DueDate, &inv.Paid, &inv.ClientID, &inv.UserID, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
