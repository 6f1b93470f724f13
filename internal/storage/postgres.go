package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createPostgresSlotsSQL = `CREATE TABLE IF NOT EXISTS kv_slots (
        key        TEXT PRIMARY KEY,
        value      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertPostgresSlotSQL = `INSERT INTO kv_slots (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	selectPostgresSlotSQL = `SELECT value FROM kv_slots WHERE key = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Postgres stores slots in a shared PostgreSQL table so several instances
// can serve the same state.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a backend and ensures the schema.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createPostgresSlotsSQL); err != nil {
		return fmt.Errorf("create kv_slots table: %w", err)
	}
	return nil
}

// Load reads the slot value.
func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	var value []byte
	scanErr := pool.QueryRow(ctx, selectPostgresSlotSQL, key).Scan(&value)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if scanErr != nil {
		return nil, fmt.Errorf("select slot: %w", scanErr)
	}
	return value, nil
}

// Save upserts the slot value.
func (p *Postgres) Save(ctx context.Context, key string, value []byte) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertPostgresSlotSQL, key, string(value)); execErr != nil {
		return fmt.Errorf("upsert slot: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (p *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock dies with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

var (
	_ Backend        = (*Postgres)(nil)
	_ AdvisoryLocker = (*Postgres)(nil)
)
