package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"poupa/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Export states of a transaction row.
const (
	ExportPending  = "pending"
	ExportExported = "exported"
	ExportError    = "error"
)

const transactionColumns = `id, user_id, name, amount_cents, type, category, payment_method,
	date_ms, created_ms, updated_ms`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// PendingExport is the minimal data the export sweep needs to re-publish a
// transaction event.
type PendingExport struct {
	ID        string
	UserID    string
	Version   int64
	Deleted   bool
	CreatedAt time.Time
}

// ExportRecord is a transaction together with its export bookkeeping,
// including rows that have been soft-deleted.
type ExportRecord struct {
	Transaction  core.Transaction
	Version      int64
	ExportStatus string
	Deleted      bool
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create implements ports.TransactionWriter.
func (r *SQLiteRepository) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	now := r.now().UTC()
	cents, err := amountCents(tx.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, name, name_key, amount_cents, type, category,
			payment_method, date_ms, created_ms, updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Name, nameKey(tx.Name), cents, string(tx.Type),
		string(tx.Category), string(tx.PaymentMethod), tx.Date.UnixMilli(),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"amount_cents", cents)

	tx.Amount = core.FromCents(cents)
	tx.Date = time.UnixMilli(tx.Date.UnixMilli()).UTC()
	return tx, nil
}

// Update implements ports.TransactionWriter. It bumps the row version and
// resets the export state so the change is mirrored again.
func (r *SQLiteRepository) Update(ctx context.Context, tx core.Transaction) error {
	cents, err := amountCents(tx.Amount)
	if err != nil {
		return err
	}
	updated := tx.UpdatedAt
	if updated.IsZero() {
		updated = r.now()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET name = ?, name_key = ?, amount_cents = ?, type = ?, category = ?, payment_method = ?,
			date_ms = ?, updated_ms = ?, version = version + 1, export_status = ?, export_attempts = 0
		WHERE id = ? AND user_id = ? AND deleted_ms IS NULL`,
		tx.Name, nameKey(tx.Name), cents, string(tx.Type), string(tx.Category),
		string(tx.PaymentMethod), tx.Date.UnixMilli(), updated.UnixMilli(), ExportPending,
		tx.ID, tx.UserID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireAffected(res)
}

// Delete implements ports.TransactionWriter. Rows are soft-deleted so the
// export sweep can still remove them from the spreadsheet.
func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) error {
	now := r.now().UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET deleted_ms = ?, updated_ms = ?, version = version + 1, export_status = ?, export_attempts = 0
		WHERE id = ? AND user_id = ? AND deleted_ms IS NULL`,
		now, now, ExportPending, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return nil
}

// Get implements ports.TransactionReader.
func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ? AND user_id = ? AND deleted_ms IS NULL`, id, userID)

	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// List implements ports.TransactionReader. The end day is inclusive.
func (r *SQLiteRepository) List(ctx context.Context, userID string, rng core.DateRange) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND deleted_ms IS NULL`
	args := []any{userID}
	if !rng.IsZero() {
		from, until := rng.Bounds()
		query += ` AND date_ms >= ? AND date_ms < ?`
		args = append(args, from.UnixMilli(), until.UnixMilli())
	}
	query += ` ORDER BY date_ms DESC, created_ms DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// FindLatestByName implements ports.TransactionReader.
func (r *SQLiteRepository) FindLatestByName(ctx context.Context, userID, name string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND name_key = ? AND deleted_ms IS NULL
		ORDER BY date_ms DESC, created_ms DESC
		LIMIT 1`, userID, nameKey(name))

	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction by name: %w", err)
	}
	return tx, nil
}

// FindOrCreateUser implements ports.UserDirectory.
func (r *SQLiteRepository) FindOrCreateUser(ctx context.Context, channel, address string) (string, error) {
	channel, address = strings.TrimSpace(channel), strings.TrimSpace(address)
	if channel == "" || address == "" {
		return "", core.ErrMissingUser
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, channel, address, created_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT (channel, address) DO NOTHING`,
		uuid.NewString(), channel, address, r.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	var id string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE channel = ? AND address = ?`, channel, address).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	return id, nil
}

// GetPendingExports returns rows whose latest change has not been mirrored
// yet. Rows with fewer failed attempts come first, then oldest first.
func (r *SQLiteRepository) GetPendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, version, deleted_ms IS NOT NULL, created_ms
		FROM transactions
		WHERE export_status = ?
		ORDER BY export_attempts ASC, created_ms ASC
		LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	defer rows.Close()

	var pending []PendingExport
	for rows.Next() {
		var (
			p         PendingExport
			createdMs int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Version, &p.Deleted, &createdMs); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		p.CreatedAt = time.UnixMilli(createdMs).UTC()
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	return pending, nil
}

// GetExportRecord returns a transaction by ID regardless of owner or
// soft-delete state.
func (r *SQLiteRepository) GetExportRecord(ctx context.Context, id string) (ExportRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+`, version, export_status, deleted_ms IS NOT NULL
		FROM transactions
		WHERE id = ?`, id)

	var rec ExportRecord
	tx, err := scanTransaction(row, &rec.Version, &rec.ExportStatus, &rec.Deleted)
	if err != nil {
		return ExportRecord{}, fmt.Errorf("get export record: %w", err)
	}
	rec.Transaction = tx
	return rec, nil
}

// MarkExported records a successful mirror of the given row version. A newer
// version written meanwhile stays pending.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET export_status = ?, exported_ms = ?
		WHERE id = ? AND version = ?`,
		ExportExported, r.now().UnixMilli(), id, version)
	if err != nil {
		return fmt.Errorf("mark transaction exported: %w", err)
	}

	slog.InfoContext(ctx, "Transaction marked as exported", "id", id, "version", version)
	return nil
}

// RecordExportFailure counts a failed export of the given row version and
// returns the attempts made so far. It returns 0 when the row has moved on
// to a newer version or is no longer pending.
func (r *SQLiteRepository) RecordExportFailure(ctx context.Context, id string, version int64) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE transactions SET export_attempts = export_attempts + 1
		WHERE id = ? AND version = ? AND export_status = ?
		RETURNING export_attempts`,
		id, version, ExportPending).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("record export failure: %w", err)
	}
	return attempts, nil
}

// MarkExportError flags a row whose export failed permanently.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_status = ? WHERE id = ?`, ExportError, id)
	if err != nil {
		return fmt.Errorf("mark transaction export error: %w", err)
	}

	slog.WarnContext(ctx, "Transaction marked with export error", "id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner, extra ...any) (core.Transaction, error) {
	var (
		tx                                  core.Transaction
		typ, category, method               string
		cents, dateMs, createdMs, updatedMs int64
	)
	dest := []any{&tx.ID, &tx.UserID, &tx.Name, &cents, &typ, &category, &method,
		&dateMs, &createdMs, &updatedMs}
	dest = append(dest, extra...)

	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.ErrNotFound
		}
		return core.Transaction{}, err
	}

	tx.Amount = core.FromCents(cents)
	tx.Type = core.TransactionType(typ)
	tx.Category = core.Category(category)
	tx.PaymentMethod = core.PaymentMethod(method)
	tx.Date = time.UnixMilli(dateMs).UTC()
	tx.CreatedAt = time.UnixMilli(createdMs).UTC()
	tx.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return tx, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// amountCents converts an amount for the amount_cents column. Amounts the
// column cannot hold are rejected as validation errors.
func amountCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, &core.ValidationError{Fields: map[string]string{"amount": "min"}}
	}
	if amount.Round(2).GreaterThan(core.MaxAmount) {
		return 0, &core.ValidationError{Fields: map[string]string{"amount": "max"}}
	}
	cents, err := core.ToCents(amount)
	if err != nil {
		return 0, &core.ValidationError{Fields: map[string]string{"amount": "max"}}
	}
	return cents, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
