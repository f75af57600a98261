// Package postgres implements storage.Store on a pgx connection pool.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, applies migrations and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if _, err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RunMigrations brings the database at dsn up to the latest embedded schema
// and returns the resulting version.
func RunMigrations(dsn string) (uint, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return 0, fmt.Errorf("create pgx driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	return storage.ApplyMigrations(m)
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return core.Persistence("begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Persistence("commit transaction", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const userColumns = `id, email, full_name, password_hash, base_currency, declared_balance::text,
	phone, home_address, national_id, dob, created_at`

func (t *pgTx) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.BaseCurrency == "" {
		u.BaseCurrency = core.DefaultCurrency
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO users
		(email, full_name, password_hash, base_currency, declared_balance, phone, home_address, national_id, dob, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10) RETURNING id`,
		u.Email, u.FullName, u.PasswordHash, u.BaseCurrency, u.DeclaredBalance.String(),
		u.Profile.Phone, u.Profile.HomeAddress, u.Profile.NationalID, u.Profile.DOB, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.User{}, core.Invalid("create user", "email already registered")
		}
		return core.User{}, core.Persistence("create user", err)
	}
	return u, nil
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.NotFound("get user", "user", id)
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	return u, nil
}

func (t *pgTx) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, &core.Error{Kind: core.ErrNotFound, Op: "get user by email", Msg: "user " + email + " not found"}
	}
	if err != nil {
		return core.User{}, core.Persistence("get user by email", err)
	}
	return u, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET declared_balance = $1::numeric WHERE id = $2`, balance.String(), userID)
	return affectedOne(tag, err, "update balance", "user", userID)
}

const entryColumns = `id, owner_id, title, category, amount::text, occurred_at, covered`

func (t *pgTx) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO entries (owner_id, title, category, amount, occurred_at, covered)
		VALUES ($1, $2, $3, $4::numeric, $5, $6) RETURNING id`,
		e.OwnerID, e.Title, e.Category, e.Amount.String(), e.OccurredAt, e.Covered,
	).Scan(&e.ID)
	if err != nil {
		return core.Entry{}, core.Persistence("create entry", err)
	}
	slog.InfoContext(ctx, "Entry saved to Postgres",
		"entry_id", e.ID,
		"owner_id", e.OwnerID,
		"category", e.Category,
		"amount", e.Amount.String())
	return e, nil
}

func (t *pgTx) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Entry{}, core.NotFound("get entry", "entry", id)
	}
	if err != nil {
		return core.Entry{}, core.Persistence("get entry", err)
	}
	return e, nil
}

func (t *pgTx) ListEntries(ctx context.Context, ownerID int64, f core.EntryFilter) ([]core.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE owner_id = $1`
	args := []any{ownerID}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if f.PendingOnly {
		query += ` AND NOT covered`
	}
	if !f.Before.IsZero() {
		args = append(args, f.Before)
		query += fmt.Sprintf(` AND occurred_at < $%d`, len(args))
	}
	query += ` ORDER BY occurred_at ASC, id ASC`
	return t.queryEntries(ctx, "list entries", query, args...)
}

func (t *pgTx) PendingBefore(ctx context.Context, before time.Time) ([]core.Entry, error) {
	return t.queryEntries(ctx, "list pending entries",
		`SELECT `+entryColumns+` FROM entries WHERE NOT covered AND occurred_at < $1 ORDER BY occurred_at ASC, id ASC`,
		before)
}

func (t *pgTx) queryEntries(ctx context.Context, op, query string, args ...any) ([]core.Entry, error) {
	rows, err := t.tx.Query(ctx, query, args...)
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

func (t *pgTx) MarkCovered(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE entries SET covered = TRUE WHERE id = $1`, id)
	return affectedOne(tag, err, "mark covered", "entry", id)
}

func (t *pgTx) UpdateEntryTitle(ctx context.Context, id int64, title string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE entries SET title = $1 WHERE id = $2`, title, id)
	return affectedOne(tag, err, "update entry title", "entry", id)
}

func (t *pgTx) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	return affectedOne(tag, err, "delete entry", "entry", id)
}

func (t *pgTx) DeleteEntries(ctx context.Context, ownerID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM entries WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, core.Persistence("delete entries", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO budgets (owner_id, category, allocated) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (owner_id, category) DO UPDATE SET allocated = EXCLUDED.allocated
		RETURNING id`, b.OwnerID, b.Category, b.Allocated.String()).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, core.Persistence("upsert budget", err)
	}
	return b, nil
}

func (t *pgTx) ListBudgets(ctx context.Context, ownerID int64) ([]core.Budget, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, owner_id, category, allocated::text FROM budgets WHERE owner_id = $1 ORDER BY category`, ownerID)
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

func (t *pgTx) RecordActivity(ctx context.Context, a core.Activity) (bool, error) {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `INSERT INTO activity (event_id, owner_id, kind, entry_id, title, amount, recorded_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::numeric, $7) ON CONFLICT (event_id) DO NOTHING`,
		a.EventID, a.OwnerID, a.Kind, a.EntryID, a.Title, a.Amount.String(), a.RecordedAt)
	if err != nil {
		return false, core.Persistence("record activity", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ListActivity(ctx context.Context, ownerID int64, limit int) ([]core.Activity, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, event_id::text, owner_id, kind, entry_id, title, amount::text, recorded_at
		FROM activity WHERE owner_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`, ownerID, limit)
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

func scanUser(row pgx.Row) (core.User, error) {
	var u core.User
	var balance string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.BaseCurrency, &balance,
		&u.Profile.Phone, &u.Profile.HomeAddress, &u.Profile.NationalID, &u.Profile.DOB, &u.CreatedAt)
	if err != nil {
		return core.User{}, err
	}
	if u.DeclaredBalance, err = decimal.NewFromString(balance); err != nil {
		return core.User{}, fmt.Errorf("parse balance: %w", err)
	}
	return u, nil
}

func scanEntry(row pgx.Row) (core.Entry, error) {
	var e core.Entry
	var amount string
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Category, &amount, &e.OccurredAt, &e.Covered); err != nil {
		return core.Entry{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Entry{}, fmt.Errorf("parse amount: %w", err)
	}
	return e, nil
}

func affectedOne(tag pgconn.CommandTag, err error, op, what string, id int64) error {
	if err != nil {
		return core.Persistence(op, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound(op, what, id)
	}
	return nil
}
