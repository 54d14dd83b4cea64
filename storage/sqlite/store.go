// Package sqlite provides a SQLite implementation of queuekit.Store, plus the
// response cache persister, on top of github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opSaveItem           = "sqlite.SaveItem"
	opGetItem            = "sqlite.GetItem"
	opListItems          = "sqlite.ListItems"
	opClaimItem          = "sqlite.ClaimItem"
	opDeleteItem         = "sqlite.DeleteItem"
	opClearItems         = "sqlite.ClearItems"
	opResetProcessing    = "sqlite.ResetProcessing"
	opMarkConflict       = "sqlite.MarkConflict"
	opUpdateConflict     = "sqlite.UpdateConflict"
	opGetConflict        = "sqlite.GetConflict"
	opListConflicts      = "sqlite.ListConflicts"
	opCompleteResolution = "sqlite.CompleteResolution"

	component = "storage/sqlite"
)

// ErrStoreClosed is returned by every method after Close
var ErrStoreClosed = errors.New("store is closed")

// Config holds configuration options for the Store.
//
// Defaults applied by DefaultConfig:
//   - WAL mode with a 5s busy timeout
//   - Connection pool with 25 max open, 5 max idle connections
//   - Connection lifetimes of 1 hour max, 5 minutes max idle
type Config struct {
	// DataSourceName is the database file or a file: URI.
	// Example: "file:queue.db"
	DataSourceName string

	// EnableWAL turns on Write-Ahead Logging so readers do not block the writer
	EnableWAL bool

	// BusyTimeout is how long a connection waits on a locked database
	BusyTimeout time.Duration

	// Logger defaults to the package default, scoped to this component
	Logger *slog.Logger

	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 1h
	ConnMaxIdleTime time.Duration // Default: 5m
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

// dsn appends the driver parameters the store relies on. Transactions take
// the write lock up front so two writers never deadlock upgrading a read lock.
func (c *Config) dsn() string {
	params := []string{"_txlock=immediate", fmt.Sprintf("_busy_timeout=%d", c.BusyTimeout.Milliseconds())}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		params = append(params, "_journal_mode=WAL")
	}
	sep := "?"
	if strings.Contains(c.DataSourceName, "?") {
		sep = "&"
	}
	return c.DataSourceName + sep + strings.Join(params, "&")
}

// DefaultConfig returns a Config with production-ready defaults
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// NewWithDataSource is a convenience constructor
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Store implements queuekit.Store and cache.Persister
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *slog.Logger
}

var _ queuekit.Store = (*Store)(nil)

// New opens the database and creates the schema
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.For(config.Logger, component)
	logger.Info("opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	logger.Info("SQLite queue store initialized",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Duration("busy_timeout", config.BusyTimeout),
	)
	return store, nil
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS queue (
        seq          INTEGER PRIMARY KEY AUTOINCREMENT,
        id           TEXT NOT NULL UNIQUE,
        type         TEXT NOT NULL,
        collection   TEXT NOT NULL,
        document_id  TEXT NOT NULL DEFAULT '',
        data         TEXT,
        operations   TEXT,
        priority     TEXT NOT NULL,
        status       TEXT NOT NULL,
        retry_count  INTEGER NOT NULL DEFAULT 0,
        max_retries  INTEGER NOT NULL DEFAULT 3,
        error        TEXT NOT NULL DEFAULT '',
        timestamp    INTEGER NOT NULL,
        updated_at   INTEGER NOT NULL,
        user_id      TEXT NOT NULL DEFAULT '',
        team_id      TEXT NOT NULL DEFAULT '',
        metadata     TEXT,
        claimed_by   TEXT NOT NULL DEFAULT '',
        claimed_at   INTEGER NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_queue_status ON queue (status);
    CREATE INDEX IF NOT EXISTS idx_queue_scope ON queue (user_id, team_id);

    CREATE TABLE IF NOT EXISTS conflicts (
        item_id          TEXT PRIMARY KEY,
        collection       TEXT NOT NULL,
        document_id      TEXT NOT NULL DEFAULT '',
        server_data      TEXT,
        client_data      TEXT,
        server_version   TEXT NOT NULL DEFAULT '',
        original_version TEXT NOT NULL DEFAULT '',
        strategy         TEXT NOT NULL,
        user_id          TEXT NOT NULL DEFAULT '',
        team_id          TEXT NOT NULL DEFAULT '',
        detected_at      INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS response_cache (
        key        TEXT PRIMARY KEY,
        value      BLOB NOT NULL,
        expires_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache (expires_at);
    `
	if _, err := s.db.Exec(query); err != nil {
		return err
	}

	// databases created before claims were recorded
	for _, col := range []struct{ name, decl string }{
		{"claimed_by", "TEXT NOT NULL DEFAULT ''"},
		{"claimed_at", "INTEGER NOT NULL DEFAULT 0"},
	} {
		if err := s.addColumn("queue", col.name, col.decl); err != nil {
			return err
		}
	}
	return nil
}

// addColumn adds a column unless the table already has it
func (s *Store) addColumn(table, name, decl string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, name).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, name, decl))
	return err
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const itemColumns = `id, type, collection, document_id, data, operations, priority, status,
    retry_count, max_retries, error, timestamp, updated_at, user_id, team_id, metadata,
    claimed_by, claimed_at`

const upsertItem = `INSERT INTO queue (` + itemColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(id) DO UPDATE SET
        type = excluded.type,
        collection = excluded.collection,
        document_id = excluded.document_id,
        data = excluded.data,
        operations = excluded.operations,
        priority = excluded.priority,
        status = excluded.status,
        retry_count = excluded.retry_count,
        max_retries = excluded.max_retries,
        error = excluded.error,
        timestamp = excluded.timestamp,
        updated_at = excluded.updated_at,
        user_id = excluded.user_id,
        team_id = excluded.team_id,
        metadata = excluded.metadata,
        claimed_by = excluded.claimed_by,
        claimed_at = excluded.claimed_at`

func saveItem(ctx context.Context, e execer, item *queuekit.Item) error {
	data, err := marshalNullable(item.Data)
	if err != nil {
		return err
	}
	var ops sql.NullString
	if len(item.Operations) > 0 {
		raw, err := json.Marshal(item.Operations)
		if err != nil {
			return err
		}
		ops = sql.NullString{String: string(raw), Valid: true}
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return err
	}
	var claimedBy string
	var claimedAt int64
	if item.Claim != nil && item.Status == queuekit.StatusProcessing {
		claimedBy, claimedAt = item.Claim.Owner, toNanos(item.Claim.At)
	}

	_, err = e.ExecContext(ctx, upsertItem,
		item.ID, string(item.Type), item.Collection, item.DocumentID, data, ops,
		string(item.Priority), string(item.Status), item.RetryCount, item.MaxRetries, item.Error,
		toNanos(item.Timestamp), toNanos(item.UpdatedAt), item.UserID, item.TeamID, string(meta),
		claimedBy, claimedAt)
	return err
}

func (s *Store) SaveItem(ctx context.Context, item *queuekit.Item) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if item == nil || item.ID == "" {
		return queueErrors.WrapOpComponentKind(errors.New("item must have an id"), opSaveItem, component, queueErrors.KindInvalid)
	}
	if err := saveItem(ctx, s.db, item); err != nil {
		return queueErrors.WrapOpComponent(err, opSaveItem, component)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*queuekit.Item, error) {
	var (
		it                    queuekit.Item
		typ, priority, status string
		data, ops, meta       sql.NullString
		timestamp, updatedAt  int64
		claimedBy             string
		claimedAt             int64
	)
	err := row.Scan(&it.ID, &typ, &it.Collection, &it.DocumentID, &data, &ops, &priority, &status,
		&it.RetryCount, &it.MaxRetries, &it.Error, &timestamp, &updatedAt, &it.UserID, &it.TeamID, &meta,
		&claimedBy, &claimedAt)
	if err != nil {
		return nil, err
	}
	it.Type = queuekit.OperationType(typ)
	it.Priority = queuekit.Priority(priority)
	it.Status = queuekit.Status(status)
	it.Timestamp = fromNanos(timestamp)
	it.UpdatedAt = fromNanos(updatedAt)
	if claimedBy != "" || claimedAt != 0 {
		it.Claim = &queuekit.Claim{Owner: claimedBy, At: fromNanos(claimedAt)}
	}

	if it.Data, err = unmarshalNullable(data); err != nil {
		return nil, fmt.Errorf("decode data of item %s: %w", it.ID, err)
	}
	if ops.Valid {
		if err := json.Unmarshal([]byte(ops.String), &it.Operations); err != nil {
			return nil, fmt.Errorf("decode operations of item %s: %w", it.ID, err)
		}
	}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &it.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of item %s: %w", it.ID, err)
		}
	}
	return &it, nil
}

func getItem(ctx context.Context, e execer, id string) (*queuekit.Item, error) {
	row := e.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, queuekit.ErrItemNotFound)
	}
	return it, err
}

func (s *Store) GetItem(ctx context.Context, id string) (*queuekit.Item, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	it, err := getItem(ctx, s.db, id)
	if err != nil {
		return nil, queueErrors.WrapOpComponent(err, opGetItem, component)
	}
	return it, nil
}

// whereItems renders a Filter as a WHERE clause; prefix qualifies the columns
func whereItems(f queuekit.Filter, prefix string) (string, []any) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val != "" {
			conds = append(conds, prefix+col+" = ?")
			args = append(args, val)
		}
	}
	add("user_id", f.UserID)
	add("team_id", f.TeamID)
	add("status", string(f.Status))
	add("priority", string(f.Priority))
	add("collection", f.Collection)
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

func (s *Store) ListItems(ctx context.Context, filter queuekit.Filter) ([]*queuekit.Item, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	where, args := whereItems(filter, "")
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM queue WHERE `+where+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, queueErrors.WrapOpComponent(err, opListItems, component)
	}
	defer rows.Close()

	var items []*queuekit.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, queueErrors.WrapOpComponent(err, opListItems, component)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, queueErrors.WrapOpComponent(err, opListItems, component)
	}
	return items, nil
}

// withTx runs fn in a transaction, committing only if it returns nil
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ClaimItem(ctx context.Context, id string, claim queuekit.Claim) (*queuekit.Item, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var claimed *queuekit.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		it, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if it.Status != queuekit.StatusPending {
			return fmt.Errorf("item %s is %s: %w", id, it.Status, queuekit.ErrNotClaimable)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE queue SET status = ?, claimed_by = ?, claimed_at = ? WHERE id = ?`,
			string(queuekit.StatusProcessing), claim.Owner, toNanos(claim.At), id); err != nil {
			return err
		}
		it.Status = queuekit.StatusProcessing
		it.Claim = &claim
		claimed = it
		return nil
	})
	if err != nil {
		return nil, queueErrors.WrapOpComponent(err, opClaimItem, component)
	}
	return claimed, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM queue WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("item %s: %w", id, queuekit.ErrItemNotFound)
		}
		if err != nil {
			return err
		}
		if queuekit.Status(status) == queuekit.StatusProcessing {
			return fmt.Errorf("item %s: %w", id, queuekit.ErrItemInFlight)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conflicts WHERE item_id = ?`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id)
		return err
	})
	return queueErrors.WrapOpComponent(err, opDeleteItem, component)
}

func (s *Store) ClearItems(ctx context.Context, filter queuekit.Filter) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	where, args := whereItems(filter, "")
	where += " AND status <> ?"
	args = append(args, string(queuekit.StatusProcessing))

	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM conflicts WHERE item_id IN (SELECT id FROM queue WHERE `+where+`)`, args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE `+where, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, queueErrors.WrapOpComponent(err, opClearItems, component)
	}
	return int(n), nil
}

func (s *Store) ResetProcessing(ctx context.Context, r queuekit.Recovery) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	scope := r.Filter
	scope.Status = queuekit.StatusProcessing
	where, args := whereItems(scope, "")

	// claimed_at = 0 covers rows claimed without a recorded claim
	stale := "claimed_at = 0 OR claimed_at < ?"
	args = append(args, toNanos(r.StaleBefore))
	if r.Owner != "" {
		stale += " OR claimed_by = ?"
		args = append(args, r.Owner)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = ?, claimed_by = '', claimed_at = 0 WHERE `+where+` AND (`+stale+`)`,
		append([]any{string(queuekit.StatusPending)}, args...)...)
	if err != nil {
		return 0, queueErrors.WrapOpComponent(err, opResetProcessing, component)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queueErrors.WrapOpComponent(err, opResetProcessing, component)
	}
	if n > 0 {
		s.logger.Info("reset interrupted items", slog.Int64("count", n))
	}
	return int(n), nil
}

const conflictColumns = `item_id, collection, document_id, server_data, client_data, server_version,
    original_version, strategy, user_id, team_id, detected_at`

func upsertConflict(ctx context.Context, e execer, rec *queuekit.ConflictResolution) error {
	server, err := marshalNullable(rec.ServerData)
	if err != nil {
		return err
	}
	client, err := marshalNullable(rec.ClientData)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `INSERT OR REPLACE INTO conflicts (`+conflictColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ItemID, rec.Collection, rec.DocumentID, server, client, rec.ServerVersion,
		rec.OriginalVersion, string(rec.Strategy), rec.UserID, rec.TeamID, toNanos(rec.DetectedAt))
	return err
}

func scanConflict(row scanner) (*queuekit.ConflictResolution, error) {
	var (
		rec            queuekit.ConflictResolution
		server, client sql.NullString
		strategy       string
		detectedAt     int64
	)
	err := row.Scan(&rec.ItemID, &rec.Collection, &rec.DocumentID, &server, &client, &rec.ServerVersion,
		&rec.OriginalVersion, &strategy, &rec.UserID, &rec.TeamID, &detectedAt)
	if err != nil {
		return nil, err
	}
	rec.Strategy = conflictStrategy(strategy)
	rec.DetectedAt = fromNanos(detectedAt)
	if rec.ServerData, err = unmarshalNullable(server); err != nil {
		return nil, err
	}
	if rec.ClientData, err = unmarshalNullable(client); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) MarkConflict(ctx context.Context, item *queuekit.Item, record *queuekit.ConflictResolution) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if item == nil || record == nil || item.ID != record.ItemID {
		return queueErrors.WrapOpComponentKind(errors.New("conflict record must belong to the item"), opMarkConflict, component, queueErrors.KindInvalid)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := saveItem(ctx, tx, item); err != nil {
			return err
		}
		return upsertConflict(ctx, tx, record)
	})
	return queueErrors.WrapOpComponent(err, opMarkConflict, component)
}

func (s *Store) UpdateConflict(ctx context.Context, record *queuekit.ConflictResolution) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM conflicts WHERE item_id = ?`, record.ItemID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("item %s: %w", record.ItemID, queuekit.ErrConflictNotFound)
		}
		if err != nil {
			return err
		}
		return upsertConflict(ctx, tx, record)
	})
	return queueErrors.WrapOpComponent(err, opUpdateConflict, component)
}

func (s *Store) GetConflict(ctx context.Context, itemID string) (*queuekit.ConflictResolution, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE item_id = ?`, itemID)
	rec, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("item %s: %w", itemID, queuekit.ErrConflictNotFound)
	}
	if err != nil {
		return nil, queueErrors.WrapOpComponent(err, opGetConflict, component)
	}
	return rec, nil
}

func (s *Store) ListConflicts(ctx context.Context, filter queuekit.Filter) ([]*queuekit.ConflictResolution, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	scope := queuekit.Filter{UserID: filter.UserID, TeamID: filter.TeamID, Collection: filter.Collection}
	where, args := whereItems(scope, "c.")

	rows, err := s.db.QueryContext(ctx, `SELECT `+prefixed("c.", conflictColumns)+`
        FROM conflicts c LEFT JOIN queue q ON q.id = c.item_id
        WHERE `+where+` ORDER BY q.seq ASC`, args...)
	if err != nil {
		return nil, queueErrors.WrapOpComponent(err, opListConflicts, component)
	}
	defer rows.Close()

	var out []*queuekit.ConflictResolution
	for rows.Next() {
		rec, err := scanConflict(rows)
		if err != nil {
			return nil, queueErrors.WrapOpComponent(err, opListConflicts, component)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, queueErrors.WrapOpComponent(err, opListConflicts, component)
	}
	return out, nil
}

func (s *Store) CompleteResolution(ctx context.Context, item *queuekit.Item) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM conflicts WHERE item_id = ?`, item.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("item %s: %w", item.ID, queuekit.ErrConflictNotFound)
		}
		return saveItem(ctx, tx, item)
	})
	return queueErrors.WrapOpComponent(err, opCompleteResolution, component)
}

// Close closes the database connection.
// It's safe to call Close multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("closing SQLite queue store")
	return s.db.Close()
}
