/*
Package sqlite provides a SQLite-backed implementation of pharmacy.Store.

PURPOSE:
  Persists medicines, patients, transactions, usage records and code
  counters, and runs every atomic unit as one SQLite transaction.

KEY TABLES:
  medicines:          catalog + stock counter (CHECK stock_quantity >= 0)
  patients:           patient_code UNIQUE, email UNIQUE when present
  transactions:       transaction_code UNIQUE, total in cents
  transaction_items:  one row per requested line, snapshot unit price
  medicine_usage:     administrative consumption
  code_sequences:     last issued number per code series

MONEY:
  Stored as INTEGER cents. pharmacy.Money implements Scanner/Valuer in cents,
  so rows carry Money directly.

CONCURRENCY:
  The pool is capped at one connection and every unit starts with
  BEGIN IMMEDIATE (_txlock=immediate), so units are serialized and a
  read-check-decrement inside one can never interleave with another.
  Waiting for the connection is bounded by the context deadline; SQLITE_BUSY
  from another process is bounded by _busy_timeout. Both surface as
  pharmacy.ConflictError.

CODE COUNTERS:
  code_sequences rows are incremented inside the unit, so a rollback hands
  the number back. On open, each counter is raised to the highest code
  already stored (databases written before the table existed).

USAGE:
  store, err := sqlite.New("./data/pharmacy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := pharmacy.NewLedger(store)

SEE ALSO:
  - pharmacy/store.go: interface definitions
  - pharmacy/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/pharmacy-engine/pharmacy"
)

// DefaultBusyTimeout is how long SQLite retries a locked database file.
const DefaultBusyTimeout = 5 * time.Second

// Options tunes how the database is opened.
type Options struct {
	BusyTimeout time.Duration
}

// Store implements pharmacy.Store using SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (and migrates) the database at dbPath with default options.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(dbPath, Options{})
}

// Open opens (and migrates) the database at dbPath.
func Open(dbPath string, opts Options) (*Store, error) {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=%d",
		dbPath, busy.Milliseconds())

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS medicines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT,
	unit TEXT NOT NULL,
	price_cents INTEGER NOT NULL CHECK (price_cents > 0),
	stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
	minimum_stock INTEGER NOT NULL DEFAULT 0 CHECK (minimum_stock >= 0),
	expiry_date TEXT NOT NULL,
	supplier TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines(name);

CREATE TABLE IF NOT EXISTS patients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	date_of_birth TEXT NOT NULL,
	gender TEXT NOT NULL CHECK (gender IN ('male', 'female')),
	phone TEXT,
	email TEXT UNIQUE,
	address TEXT,
	emergency_contact TEXT,
	medical_history TEXT,
	allergies TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_code TEXT NOT NULL UNIQUE,
	patient_id INTEGER NOT NULL REFERENCES patients(id),
	transaction_date TEXT NOT NULL,
	total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
	payment_status TEXT NOT NULL DEFAULT 'pending'
		CHECK (payment_status IN ('pending', 'paid', 'cancelled')),
	notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_patient ON transactions(patient_id);

CREATE TABLE IF NOT EXISTS transaction_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
	medicine_id INTEGER NOT NULL REFERENCES medicines(id),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	unit_price_cents INTEGER NOT NULL,
	subtotal_cents INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_transaction ON transaction_items(transaction_id);
CREATE INDEX IF NOT EXISTS idx_items_medicine ON transaction_items(medicine_id);

CREATE TABLE IF NOT EXISTS medicine_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	medicine_id INTEGER NOT NULL REFERENCES medicines(id),
	quantity_used INTEGER NOT NULL CHECK (quantity_used > 0),
	usage_date TEXT NOT NULL,
	notes TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_medicine ON medicine_usage(medicine_id);
CREATE INDEX IF NOT EXISTS idx_usage_date ON medicine_usage(usage_date DESC);

CREATE TABLE IF NOT EXISTS code_sequences (
	name TEXT PRIMARY KEY,
	last_no INTEGER NOT NULL DEFAULT 0
);
`

// seriesSources maps each code series to the column its codes live in.
var seriesSources = []struct {
	series pharmacy.Series
	table  string
	column string
}{
	{pharmacy.SeriesTransaction, "transactions", "transaction_code"},
	{pharmacy.SeriesPatient, "patients", "patient_code"},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, src := range seriesSources {
		if err := seedSequence(ctx, tx, src.series, src.table, src.column); err != nil {
			return fmt.Errorf("seed sequence %s: %w", src.series.Name, err)
		}
	}
	return tx.Commit()
}

// seedSequence raises a counter to the highest code already stored, so the
// next issued code never collides with an existing row.
func seedSequence(ctx context.Context, tx *sqlx.Tx, series pharmacy.Series, table, column string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO code_sequences (name, last_no) VALUES (?, 0) ON CONFLICT(name) DO NOTHING`,
		series.Name); err != nil {
		return err
	}

	var codes []string
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE ?`, column, table, column)
	if err := tx.SelectContext(ctx, &codes, query, series.Prefix+"%"); err != nil {
		return err
	}
	var maxNo int64
	for _, code := range codes {
		n, err := pharmacy.ParseCode(series.Prefix, code)
		if err != nil {
			continue
		}
		if n > maxNo {
			maxNo = n
		}
	}

	var lastNo int64
	if err := tx.GetContext(ctx, &lastNo, `SELECT last_no FROM code_sequences WHERE name = ?`, series.Name); err != nil {
		return err
	}
	if maxNo > lastNo {
		log.Printf("[Sequence] Raising %s last_no from %d to %d", series.Name, lastNo, maxNo)
		_, err := tx.ExecContext(ctx, `UPDATE code_sequences SET last_no = ? WHERE name = ?`, maxNo, series.Name)
		return err
	}
	return nil
}

// =============================================================================
// ATOMIC UNITS
// =============================================================================

// WithTx executes fn within one SQLite transaction (BEGIN IMMEDIATE).
func (s *Store) WithTx(ctx context.Context, fn func(pharmacy.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(ctx, "begin", err)
	}
	defer sqlTx.Rollback()

	ts := &txStore{tx: sqlTx, locked: make(map[pharmacy.MedicineID]bool)}
	if err := fn(ts); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(ctx, "commit", err)
	}
	return nil
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// classify maps driver errors onto the pharmacy error taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return &pharmacy.ConflictError{Op: op, Err: err}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return &pharmacy.ConflictError{Op: op, Err: err}
		case sqlite3.ErrConstraint:
			switch {
			case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
				strings.Contains(sqliteErr.Error(), "patients.email"):
				return fmt.Errorf("%s: %w", op, pharmacy.ErrDuplicateEmail)
			case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
				return &pharmacy.ConflictError{Op: op, Err: err}
			}
		}
	}
	return &pharmacy.StorageError{Op: op, Err: err}
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

var _ pharmacy.Store = (*Store)(nil)
var _ pharmacy.PatientSummaryReader = (*Store)(nil)
