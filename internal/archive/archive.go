package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pocket-trading-bot/internal/config"
	"pocket-trading-bot/internal/signal"
)

// ErrNotConfigured indicates the archive pool was not initialised.
var ErrNotConfigured = errors.New("archive: pool not configured")

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS signal_history (
        id            TEXT PRIMARY KEY,
        asset         TEXT NOT NULL,
        direction     TEXT NOT NULL,
        confidence    DOUBLE PRECISION NOT NULL,
        entry_time    TEXT NOT NULL,
        duration      INT NOT NULL,
        reason        TEXT,
        fallback      BOOLEAN NOT NULL DEFAULT FALSE,
        generated_at  TIMESTAMPTZ NOT NULL,
        saved_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertSignalSQL = `INSERT INTO signal_history (
        id, asset, direction, confidence, entry_time, duration, reason, fallback, generated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentSignalsSQL = `SELECT
        id, asset, direction, confidence, entry_time, duration, reason, fallback, generated_at
    FROM signal_history
    ORDER BY generated_at DESC
    LIMIT $1;`

	countSignalsSQL = `SELECT COUNT(*) FROM signal_history;`
)

// SignalArchive defines operations for mirrored signal history.
type SignalArchive interface {
	InsertSignals(ctx context.Context, signals []signal.Signal) error
	ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error)
	CountSignals(ctx context.Context) (int64, error)
}

// Archive mirrors issued signals into PostgreSQL. The JSON store remains the
// source of truth; the archive exists for long-term querying only.
type Archive struct {
	pool *pgxpool.Pool
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	if cfg.ArchiveDSN == "" {
		return nil, fmt.Errorf("storage.archive_dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ArchiveDSN)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// New wires a pgx pool into an Archive and ensures the schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Archive, error) {
	a := &Archive{pool: pool}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return a, nil
}

// Close releases the underlying pool resources.
func (a *Archive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

func (a *Archive) getPool() (*pgxpool.Pool, error) {
	if a == nil || a.pool == nil {
		return nil, ErrNotConfigured
	}
	return a.pool, nil
}

// InsertSignals mirrors a saved batch. Duplicate ids (same asset, same
// second) are silently ignored.
func (a *Archive) InsertSignals(ctx context.Context, signals []signal.Signal) error {
	pool, err := a.getPool()
	if err != nil {
		return err
	}

	for _, s := range signals {
		_, execErr := pool.Exec(ctx, insertSignalSQL,
			s.ID,
			s.Asset,
			string(s.Direction),
			s.Confidence,
			s.EntryTime,
			s.Duration,
			s.Reason,
			s.Fallback,
			s.GeneratedAtUTC,
		)
		if execErr != nil {
			return fmt.Errorf("insert signal %s: %w", s.ID, execErr)
		}
	}
	return nil
}

// ListRecentSignals lists mirrored signals, newest first.
func (a *Archive) ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	signals := make([]signal.Signal, 0)
	for rows.Next() {
		var (
			s         signal.Signal
			direction string
			generated time.Time
		)
		if scanErr := rows.Scan(&s.ID, &s.Asset, &direction, &s.Confidence, &s.EntryTime, &s.Duration, &s.Reason, &s.Fallback, &generated); scanErr != nil {
			return nil, fmt.Errorf("scan signal row: %w", scanErr)
		}
		s.Direction = signal.Direction(direction)
		s.GeneratedAtUTC = generated
		s.GeneratedAt = generated
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return signals, nil
}

// CountSignals returns the archived signal count.
func (a *Archive) CountSignals(ctx context.Context) (int64, error) {
	pool, err := a.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := pool.QueryRow(ctx, countSignalsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return count, nil
}

var _ SignalArchive = (*Archive)(nil)
