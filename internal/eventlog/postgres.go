package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent Append calls across every instance
// sharing the database.
const advisoryLockKey = int64(1_729_004_211)

const entryColumns = `idx, id, block, kind, actor, account, counterparty, amount, previous, ts, prev_hash, hash`

// PostgresLog persists the journal to the governance_journal table created by
// migrations/001_governance_journal.up.sql.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Append implements Log. The tail read and the insert run in one transaction
// under a transaction-scoped advisory lock.
func (l *PostgresLog) Append(ctx context.Context, rec Record) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := scanEntry(tx.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM governance_journal ORDER BY idx DESC LIMIT 1",
	))
	if err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}
	if rec.Block < prev.Block {
		return nil, fmt.Errorf("append block %d behind tail block %d", rec.Block, prev.Block)
	}

	e := newEntry(prev, rec)
	if _, err := tx.Exec(ctx,
		`INSERT INTO governance_journal (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.Index, e.ID, int64(e.Block), string(e.Kind),
		e.Actor, e.Account, e.Counterparty, e.Amount, e.Previous,
		e.Timestamp, e.PrevHash, e.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit journal tx: %w", err)
	}

	l.logger.Debug("journal entry appended",
		zap.Int("idx", e.Index),
		zap.String("kind", string(e.Kind)),
		zap.Uint64("block", e.Block),
	)
	return e, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(l.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM governance_journal WHERE idx = $1", index,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM governance_journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// Verify implements Log. O(n) in journal length.
func (l *PostgresLog) Verify(ctx context.Context) error {
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
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM governance_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get journal root: %w", err)
	}
	return hash, nil
}

// Range implements Log.
func (l *PostgresLog) Range(ctx context.Context, from int, fn func(*Entry) error) error {
	rows, err := l.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM governance_journal WHERE idx >= $1 ORDER BY idx ASC", from,
	)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan journal row: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e     Entry
		block int64
		kind  string
	)
	if err := row.Scan(
		&e.Index, &e.ID, &block, &kind,
		&e.Actor, &e.Account, &e.Counterparty, &e.Amount, &e.Previous,
		&e.Timestamp, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.Block = uint64(block)
	e.Kind = Kind(kind)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
