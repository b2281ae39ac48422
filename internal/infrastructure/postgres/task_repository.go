package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskboard/taskboard/internal/domain/task"
)

// TaskRepository implements task.Repository.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// Create inserts the task at the end of its column and seeds a free lock
// row per kind, all in one transaction so a task is never visible without
// its locks.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tasks
			(task_id, title, description, status, order_index, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,
				(SELECT COALESCE(MAX(order_index), 0) + 1 FROM tasks WHERE status=$4),
				$5,$6,$7)
			RETURNING id, order_index
		`, t.TaskID, t.Title, t.Description, t.Status, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
		if err := row.Scan(&t.ID, &t.OrderIndex); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO task_locks (task_id, kind)
			VALUES ($1, 'position'), ($1, 'content')
		`, t.TaskID)
		return err
	})
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, task_id, title, description, status, order_index, created_by, created_at, updated_at
		FROM tasks
		WHERE task_id=$1
	`, taskID)
	return scanTask(row)
}

func (r *TaskRepository) List(ctx context.Context) ([]*task.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, title, description, status, order_index, created_by, created_at, updated_at
		FROM tasks
		ORDER BY status ASC, order_index ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, title, description, status, order_index, created_by, created_at, updated_at
		FROM tasks
		WHERE status=$1
		ORDER BY order_index ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *TaskRepository) ListIDsByStatus(ctx context.Context, status task.Status) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id
		FROM tasks
		WHERE status=$1
		ORDER BY order_index ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *TaskRepository) UpdateContent(ctx context.Context, taskID uuid.UUID, title, description string, updatedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET title=$1, description=$2, updated_at=$3
		WHERE task_id=$4
	`, title, description, updatedAt, taskID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MoveToEnd reassigns the task to status at the column's next free index.
// Appending at MAX+1 never collides with an existing (status, order_index)
// pair, so no renumbering happens here.
func (r *TaskRepository) MoveToEnd(ctx context.Context, taskID uuid.UUID, status task.Status, updatedAt time.Time) (int, error) {
	var idx int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE tasks
			SET status=$1,
				order_index=(SELECT COALESCE(MAX(order_index), 0) + 1 FROM tasks WHERE status=$1 AND task_id <> $2),
				updated_at=$3
			WHERE task_id=$2
			RETURNING order_index
		`, status, taskID, updatedAt)
		if err := row.Scan(&idx); err != nil {
			if err == pgx.ErrNoRows {
				return task.ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// UpdateOrderIndexes applies a batch of position assignments atomically.
// Callers sequence batches so no single statement collides with the unique
// (status, order_index) constraint mid-flight.
func (r *TaskRepository) UpdateOrderIndexes(ctx context.Context, positions []task.Position, updatedAt time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range positions {
			batch.Queue(`
				UPDATE tasks
				SET order_index=$1, updated_at=$2
				WHERE task_id=$3
			`, p.OrderIndex, updatedAt, p.TaskID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Delete removes the task; its lock rows cascade.
func (r *TaskRepository) Delete(ctx context.Context, taskID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE task_id=$1
	`, taskID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	if err := row.Scan(&t.ID, &t.TaskID, &t.Title, &t.Description, &t.Status, &t.OrderIndex, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
