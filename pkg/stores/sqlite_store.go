package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// SQLiteStore implements RecordStore using SQLite.
//
// mu is the store's single mutual-exclusion domain: every public operation
// holds it for its whole duration.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	cfg  Config
	now  func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var _ RecordStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Writes are serialized by the store mutex, one connection is enough and
	// keeps ":memory:" databases alive across calls.
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 1
	}
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
		now:  time.Now,
	}, nil
}

// Init opens the database connection and enables WAL mode for file databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path
	if s.path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", s.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Upsert replaces any record with the same id, then inserts it.
func (s *SQLiteStore) Upsert(ctx context.Context, record *TrackedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var createdAt sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM tracked_records WHERE id = ?`, record.ID).Scan(&createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up record %s: %w", record.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_records WHERE id = ?`, record.ID); err != nil {
		return fmt.Errorf("failed to replace record %s: %w", record.ID, err)
	}

	now := s.now().UTC()
	record.UpdatedAt = now
	record.CreatedAt = now
	if createdAt.Valid {
		if t, perr := time.Parse(timeLayout, createdAt.String); perr == nil {
			record.CreatedAt = t
		}
	}

	if err := insertRecord(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record %s: %w", record.ID, err)
	}
	return nil
}

// Refresh replaces a record that is still tracked. The stored owner wins over
// the one carried by record.
func (s *SQLiteStore) Refresh(ctx context.Context, record *TrackedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner, createdAt string
	err = tx.QueryRowContext(ctx, `SELECT owner, created_at FROM tracked_records WHERE id = ?`, record.ID).Scan(&owner, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, record.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, record.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_records WHERE id = ?`, record.ID); err != nil {
		return fmt.Errorf("failed to replace record %s: %w", record.ID, err)
	}

	record.Owner = owner
	record.UpdatedAt = s.now().UTC()
	if t, perr := time.Parse(timeLayout, createdAt); perr == nil {
		record.CreatedAt = t
	}

	if err := insertRecord(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record %s: %w", record.ID, err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, record *TrackedRecord) error {
	locations := record.LogLocations
	if locations == nil {
		locations = map[string][]string{}
	}
	encoded, err := json.Marshal(locations)
	if err != nil {
		return fmt.Errorf("failed to encode log locations: %w", err)
	}

	query := `
		INSERT INTO tracked_records (id, owner, status, log_locations, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.Owner,
		record.Status,
		string(encoded),
		record.CreatedAt.Format(timeLayout),
		record.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", record.ID, err)
	}
	return nil
}

// Get retrieves a tracked record by id. Any storage failure is reported as
// ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*TrackedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, status, log_locations, created_at, updated_at
		FROM tracked_records
		WHERE id = ?
	`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, id, err)
	}
	return record, nil
}

// All returns every tracked record ordered by owner and creation time.
func (s *SQLiteStore) All(ctx context.Context) ([]*TrackedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryRecords(ctx, `
		SELECT id, owner, status, log_locations, created_at, updated_at
		FROM tracked_records
		ORDER BY owner, created_at
	`)
}

// ListByOwner returns the records tracked for one owner.
func (s *SQLiteStore) ListByOwner(ctx context.Context, owner string) ([]*TrackedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryRecords(ctx, `
		SELECT id, owner, status, log_locations, created_at, updated_at
		FROM tracked_records
		WHERE owner = ?
		ORDER BY created_at
	`, owner)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]*TrackedRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*TrackedRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*TrackedRecord, error) {
	var (
		record               TrackedRecord
		locations            string
		createdAt, updatedAt string
	)
	if err := row.Scan(&record.ID, &record.Owner, &record.Status, &locations, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(locations), &record.LogLocations); err != nil {
		return nil, fmt.Errorf("failed to decode log locations of %s: %w", record.ID, err)
	}

	var err error
	if record.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at of %s: %w", record.ID, err)
	}
	if record.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at of %s: %w", record.ID, err)
	}

	return &record, nil
}

// Remove deletes a tracked record if present.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracked_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove record %s: %w", id, err)
	}
	return nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	query := `
		INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.TargetID,
		entry.Details,
		entry.Timestamp.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries with optional filters and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, action, actor, target_id, details, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR actor = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		var ts string
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if entry.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
