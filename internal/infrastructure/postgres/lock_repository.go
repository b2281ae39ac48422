package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskboard/taskboard/internal/domain/lock"
)

// LockRepository implements lock.Repository. Every state transition runs in
// a transaction that row-locks the task_locks row, applies the domain
// transition to the loaded state and writes the result back, so concurrent
// acquires on the same task serialize at the database.
type LockRepository struct {
	pool *pgxpool.Pool
}

func NewLockRepository(pool *pgxpool.Pool) *LockRepository {
	return &LockRepository{pool: pool}
}

func (r *LockRepository) Acquire(ctx context.Context, taskID uuid.UUID, kind lock.Kind, holder lock.Holder, now time.Time) (*lock.Grant, error) {
	var grant *lock.Grant
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		l, err := lockRowForUpdate(ctx, tx, taskID, kind)
		if err != nil {
			return err
		}
		if l == nil {
			return lock.ErrNotFound
		}
		if !l.Acquire(holder, now) {
			grant = &lock.Grant{Granted: false, LockedBy: l.Holder()}
			return nil
		}
		if err := writeLockRow(ctx, tx, taskID, kind, l); err != nil {
			return err
		}
		grant = &lock.Grant{Granted: true, AcquiredAt: l.AcquiredAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (r *LockRepository) Release(ctx context.Context, taskID uuid.UUID, kind lock.Kind, holderID uuid.UUID) (bool, error) {
	var released bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		l, err := lockRowForUpdate(ctx, tx, taskID, kind)
		if err != nil {
			return err
		}
		if l == nil {
			return lock.ErrNotFound
		}
		if !l.Release(holderID) {
			return nil
		}
		if err := writeLockRow(ctx, tx, taskID, kind, l); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

func (r *LockRepository) ForceRelease(ctx context.Context, taskID uuid.UUID, kind lock.Kind) (bool, error) {
	var released bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		l, err := lockRowForUpdate(ctx, tx, taskID, kind)
		if err != nil {
			return err
		}
		if l == nil {
			return lock.ErrNotFound
		}
		if !l.ForceRelease() {
			return nil
		}
		if err := writeLockRow(ctx, tx, taskID, kind, l); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

func (r *LockRepository) Get(ctx context.Context, taskID uuid.UUID, kind lock.Kind) (*lock.Lock, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT holder_id, holder_name, acquired_at
		FROM task_locks
		WHERE task_id=$1 AND kind=$2
	`, taskID, kind)
	return scanLock(row)
}

func (r *LockRepository) ListExpired(ctx context.Context, threshold time.Time, limit int) ([]*lock.HeldLock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id, kind, holder_id, holder_name, acquired_at
		FROM task_locks
		WHERE holder_id IS NOT NULL AND acquired_at < $1
		ORDER BY acquired_at ASC
		LIMIT $2
	`, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*lock.HeldLock
	for rows.Next() {
		var h lock.HeldLock
		if err := rows.Scan(&h.TaskID, &h.Kind, &h.Holder.ID, &h.Holder.Name, &h.AcquiredAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func lockRowForUpdate(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, kind lock.Kind) (*lock.Lock, error) {
	row := tx.QueryRow(ctx, `
		SELECT holder_id, holder_name, acquired_at
		FROM task_locks
		WHERE task_id=$1 AND kind=$2
		FOR UPDATE
	`, taskID, kind)
	return scanLock(row)
}

func writeLockRow(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, kind lock.Kind, l *lock.Lock) error {
	_, err := tx.Exec(ctx, `
		UPDATE task_locks
		SET holder_id=$1, holder_name=$2, acquired_at=$3
		WHERE task_id=$4 AND kind=$5
	`, l.HolderID, l.HolderName, l.AcquiredAt, taskID, kind)
	return err
}

func scanLock(row pgx.Row) (*lock.Lock, error) {
	var l lock.Lock
	if err := row.Scan(&l.HolderID, &l.HolderName, &l.AcquiredAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	l.Held = l.HolderID != nil
	return &l, nil
}
