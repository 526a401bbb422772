package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const sqliteBusyTimeoutMs = 5000

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS governance_journal (
    idx          INTEGER PRIMARY KEY,
    id           TEXT    NOT NULL,
    block        INTEGER NOT NULL,
    kind         TEXT    NOT NULL,
    actor        TEXT    NOT NULL DEFAULT '',
    account      TEXT    NOT NULL DEFAULT '',
    counterparty TEXT    NOT NULL DEFAULT '',
    amount       TEXT    NOT NULL DEFAULT '',
    previous     TEXT    NOT NULL DEFAULT '',
    ts_micros    INTEGER NOT NULL,
    prev_hash    TEXT    NOT NULL,
    hash         TEXT    NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS governance_journal_account_idx ON governance_journal (account, block);
`

const sqliteColumns = `idx, id, block, kind, actor, account, counterparty, amount, previous, ts_micros, prev_hash, hash`

// SQLiteLog persists the journal to a single SQLite database file. Appends
// are serialised in-process; the file must not be shared between processes.
type SQLiteLog struct {
	mu     sync.Mutex
	db     *sql.DB
	file   string
	logger *zap.Logger
}

// OpenSQLiteLog opens (creating if needed) the journal at path.
func OpenSQLiteLog(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLog, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", absPath, sqliteBusyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db, file: absPath, logger: logger}
	if err := l.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) ensureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	g := genesisEntry(time.Now())
	if _, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO governance_journal (`+sqliteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Index, g.ID.String(), int64(g.Block), string(g.Kind),
		g.Actor, g.Account, g.Counterparty, g.Amount, g.Previous,
		g.Timestamp.UnixMicro(), g.PrevHash, g.Hash,
	); err != nil {
		return fmt.Errorf("insert genesis: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Append implements Log.
func (l *SQLiteLog) Append(ctx context.Context, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := scanSQLiteEntry(tx.QueryRowContext(ctx,
		"SELECT "+sqliteColumns+" FROM governance_journal ORDER BY idx DESC LIMIT 1",
	))
	if err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}
	if rec.Block < prev.Block {
		return nil, fmt.Errorf("append block %d behind tail block %d", rec.Block, prev.Block)
	}

	e := newEntry(prev, rec)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO governance_journal (`+sqliteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Index, e.ID.String(), int64(e.Block), string(e.Kind),
		e.Actor, e.Account, e.Counterparty, e.Amount, e.Previous,
		e.Timestamp.UnixMicro(), e.PrevHash, e.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit journal tx: %w", err)
	}

	l.logger.Debug("journal entry appended",
		zap.Int("idx", e.Index),
		zap.String("kind", string(e.Kind)),
		zap.Uint64("block", e.Block),
		zap.String("file", l.file),
	)
	return e, nil
}

// Get implements Log.
func (l *SQLiteLog) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanSQLiteEntry(l.db.QueryRowContext(ctx,
		"SELECT "+sqliteColumns+" FROM governance_journal WHERE idx = ?", index,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Log.
func (l *SQLiteLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM governance_journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// Verify implements Log.
func (l *SQLiteLog) Verify(ctx context.Context) error {
	var prev *Entry
	return l.Range(ctx, 0, func(curr *Entry) error {
		if err := verifyNext(prev, curr); err != nil {
			return err
		}
		prev = curr
		return nil
	})
}

// Root implements Log.
func (l *SQLiteLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.db.QueryRowContext(ctx,
		"SELECT hash FROM governance_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get journal root: %w", err)
	}
	return hash, nil
}

// Range implements Log. Rows are read fully before fn is called so that fn
// may append to the same log.
func (l *SQLiteLog) Range(ctx context.Context, from int, fn func(*Entry) error) error {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+sqliteColumns+" FROM governance_journal WHERE idx >= ? ORDER BY idx ASC", from,
	)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}

	var entries []*Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan journal row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner) (*Entry, error) {
	var (
		e      Entry
		id     string
		block  int64
		kind   string
		micros int64
	)
	if err := row.Scan(
		&e.Index, &id, &block, &kind,
		&e.Actor, &e.Account, &e.Counterparty, &e.Amount, &e.Previous,
		&micros, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse entry id %q: %w", id, err)
	}
	e.ID = parsed
	e.Block = uint64(block)
	e.Kind = Kind(kind)
	e.Timestamp = time.UnixMicro(micros).UTC()
	return &e, nil
}
