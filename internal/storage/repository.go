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

	"github.com/shopspring/decimal"

	"financeflow/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the default Store, backed by a single SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Persistence("begin transaction", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.Persistence("commit transaction", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

const userColumns = `id, email, full_name, password_hash, base_currency, declared_balance,
	phone, home_address, national_id, dob, created_at`

func (t *sqliteTx) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = u.CreatedAt.UTC()
	if u.BaseCurrency == "" {
		u.BaseCurrency = core.DefaultCurrency
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO users
		(email, full_name, password_hash, base_currency, declared_balance, phone, home_address, national_id, dob, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.FullName, u.PasswordHash, u.BaseCurrency, u.DeclaredBalance.String(),
		nullString(u.Profile.Phone), nullString(u.Profile.HomeAddress), nullString(u.Profile.NationalID),
		nullTime(u.Profile.DOB), u.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.User{}, core.Invalid("create user", "email already registered")
		}
		return core.User{}, core.Persistence("create user", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, core.Persistence("create user", err)
	}
	return u, nil
}

func (t *sqliteTx) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("get user", "user", id)
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	return u, nil
}

func (t *sqliteTx) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, &core.Error{Kind: core.ErrNotFound, Op: "get user by email", Msg: "user " + email + " not found"}
	}
	if err != nil {
		return core.User{}, core.Persistence("get user by email", err)
	}
	return u, nil
}

func (t *sqliteTx) UpdateBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET declared_balance = ? WHERE id = ?`, balance.String(), userID)
	return affectedOne(res, err, "update balance", "user", userID)
}

const entryColumns = `id, owner_id, title, category, amount, occurred_at, covered`

func (t *sqliteTx) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	e.OccurredAt = e.OccurredAt.UTC()
	res, err := t.tx.ExecContext(ctx, `INSERT INTO entries (owner_id, title, category, amount, occurred_at, covered)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.Title, e.Category, e.Amount.String(), e.OccurredAt, e.Covered)
	if err != nil {
		return core.Entry{}, core.Persistence("create entry", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Entry{}, core.Persistence("create entry", err)
	}
	slog.InfoContext(ctx, "Entry saved to SQLite",
		"entry_id", e.ID,
		"owner_id", e.OwnerID,
		"category", e.Category,
		"amount", e.Amount.String())
	return e, nil
}

func (t *sqliteTx) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, core.NotFound("get entry", "entry", id)
	}
	if err != nil {
		return core.Entry{}, core.Persistence("get entry", err)
	}
	return e, nil
}

func (t *sqliteTx) ListEntries(ctx context.Context, ownerID int64, f core.EntryFilter) ([]core.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE owner_id = ?`
	args := []any{ownerID}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.PendingOnly {
		query += ` AND covered = 0`
	}
	if !f.Before.IsZero() {
		query += ` AND occurred_at < ?`
		args = append(args, f.Before.UTC())
	}
	query += ` ORDER BY occurred_at ASC, id ASC`
	return t.queryEntries(ctx, "list entries", query, args...)
}

func (t *sqliteTx) PendingBefore(ctx context.Context, before time.Time) ([]core.Entry, error) {
	return t.queryEntries(ctx, "list pending entries",
		`SELECT `+entryColumns+` FROM entries WHERE covered = 0 AND occurred_at < ? ORDER BY occurred_at ASC, id ASC`,
		before.UTC())
}

func (t *sqliteTx) queryEntries(ctx context.Context, op, query string, args ...any) ([]core.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence(op, err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, core.Persistence(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence(op, err)
	}
	return entries, nil
}

func (t *sqliteTx) MarkCovered(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE entries SET covered = 1 WHERE id = ?`, id)
	return affectedOne(res, err, "mark covered", "entry", id)
}

func (t *sqliteTx) UpdateEntryTitle(ctx context.Context, id int64, title string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE entries SET title = ? WHERE id = ?`, title, id)
	return affectedOne(res, err, "update entry title", "entry", id)
}

func (t *sqliteTx) DeleteEntry(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	return affectedOne(res, err, "delete entry", "entry", id)
}

func (t *sqliteTx) DeleteEntries(ctx context.Context, ownerID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM entries WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, core.Persistence("delete entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.Persistence("delete entries", err)
	}
	return n, nil
}

func (t *sqliteTx) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	row := t.tx.QueryRowContext(ctx, `INSERT INTO budgets (owner_id, category, allocated) VALUES (?, ?, ?)
		ON CONFLICT (owner_id, category) DO UPDATE SET allocated = excluded.allocated
		RETURNING id`, b.OwnerID, b.Category, b.Allocated.String())
	if err := row.Scan(&b.ID); err != nil {
		return core.Budget{}, core.Persistence("upsert budget", err)
	}
	return b, nil
}

func (t *sqliteTx) ListBudgets(ctx context.Context, ownerID int64) ([]core.Budget, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, owner_id, category, allocated FROM budgets WHERE owner_id = ? ORDER BY category`, ownerID)
	if err != nil {
		return nil, core.Persistence("list budgets", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		var b core.Budget
		var allocated string
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Category, &allocated); err != nil {
			return nil, core.Persistence("list budgets", err)
		}
		if b.Allocated, err = decimal.NewFromString(allocated); err != nil {
			return nil, core.Persistence("list budgets", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list budgets", err)
	}
	return budgets, nil
}

func (t *sqliteTx) RecordActivity(ctx context.Context, a core.Activity) (bool, error) {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now()
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO activity (event_id, owner_id, kind, entry_id, title, amount, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (event_id) DO NOTHING`,
		a.EventID, a.OwnerID, a.Kind, a.EntryID, a.Title, a.Amount.String(), a.RecordedAt.UTC())
	if err != nil {
		return false, core.Persistence("record activity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.Persistence("record activity", err)
	}
	return n == 1, nil
}

func (t *sqliteTx) ListActivity(ctx context.Context, ownerID int64, limit int) ([]core.Activity, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, event_id, owner_id, kind, entry_id, title, amount, recorded_at
		FROM activity WHERE owner_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, core.Persistence("list activity", err)
	}
	defer rows.Close()

	var out []core.Activity
	for rows.Next() {
		var a core.Activity
		var amount string
		if err := rows.Scan(&a.ID, &a.EventID, &a.OwnerID, &a.Kind, &a.EntryID, &a.Title, &amount, &a.RecordedAt); err != nil {
			return nil, core.Persistence("list activity", err)
		}
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, core.Persistence("list activity", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list activity", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (core.User, error) {
	var (
		u                          core.User
		balance                    string
		phone, address, nationalID sql.NullString
		dob                        sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.BaseCurrency, &balance,
		&phone, &address, &nationalID, &dob, &u.CreatedAt)
	if err != nil {
		return core.User{}, err
	}
	if u.DeclaredBalance, err = decimal.NewFromString(balance); err != nil {
		return core.User{}, fmt.Errorf("parse balance: %w", err)
	}
	u.Profile = core.Profile{
		Phone:       stringPtr(phone),
		HomeAddress: stringPtr(address),
		NationalID:  stringPtr(nationalID),
	}
	if dob.Valid {
		d := dob.Time
		u.Profile.DOB = &d
	}
	return u, nil
}

func scanEntry(s scanner) (core.Entry, error) {
	var e core.Entry
	var amount string
	if err := s.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Category, &amount, &e.OccurredAt, &e.Covered); err != nil {
		return core.Entry{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Entry{}, fmt.Errorf("parse amount: %w", err)
	}
	return e, nil
}

func affectedOne(res sql.Result, err error, op, what string, id int64) error {
	if err != nil {
		return core.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence(op, err)
	}
	if n == 0 {
		return core.NotFound(op, what, id)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
