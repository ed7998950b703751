package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"kanflow/domain"
)

//go:embed migrations/001_create_tasks.up.sql
var createTasksUp string

// Postgres stores tasks in a PostgreSQL database.
type Postgres struct {
	conn *sqlx.DB
	log  *log.Entry
	now  func() time.Time
}

// NewPostgres connects using the pgx driver.
func NewPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Postgres, error) {
	conn, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Postgres{conn: conn, log: logger.WithField("component", "postgres"), now: time.Now}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.conn.Close()
}

// Migrate applies the embedded schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	p.log.Debug("running migrations")
	if _, err := p.conn.ExecContext(ctx, createTasksUp); err != nil {
		return fmt.Errorf("apply tasks migration: %w", err)
	}
	p.log.Debug("migrations finished")
	return nil
}

type taskRow struct {
	UserID      string     `db:"user_id"`
	ID          string     `db:"id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	Status      string     `db:"status"`
	Priority    string     `db:"priority"`
	Assignee    string     `db:"assignee"`
	Labels      string     `db:"labels"`
	DueDate     *time.Time `db:"due_date"`
	Position    float64    `db:"position"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

const taskColumns = `user_id, id, title, description, status, priority, assignee, labels, due_date, position, created_at, updated_at`

func rowFromTask(userID string, t domain.Task) (taskRow, error) {
	labels := []string{}
	if t.Labels != nil {
		labels = t.Labels
	}
	raw, err := json.Marshal(labels)
	if err != nil {
		return taskRow{}, err
	}
	return taskRow{
		UserID:      userID,
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Assignee:    t.Assignee,
		Labels:      string(raw),
		DueDate:     t.DueDate,
		Position:    t.Order,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

func (r taskRow) task() (domain.Task, error) {
	t := domain.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.Status(r.Status),
		Priority:    domain.Priority(r.Priority),
		Assignee:    r.Assignee,
		DueDate:     r.DueDate,
		Order:       r.Position,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Labels != "" && r.Labels != "[]" {
		if err := json.Unmarshal([]byte(r.Labels), &t.Labels); err != nil {
			return domain.Task{}, fmt.Errorf("decode labels of %s: %w", r.ID, err)
		}
	}
	return t, nil
}

func (p *Postgres) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY status, position, created_at`
	var rows []taskRow
	if err := p.conn.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, mapPgError("list tasks", err)
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (p *Postgres) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND id = $2`
	var r taskRow
	if err := p.conn.GetContext(ctx, &r, q, userID, id); err != nil {
		return domain.Task{}, mapPgError("get task "+id, err)
	}
	return r.task()
}

func (p *Postgres) CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	r, err := rowFromTask(userID, t)
	if err != nil {
		return domain.Task{}, err
	}
	const q = `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (:user_id, :id, :title, :description, :status, :priority, :assignee, :labels, :due_date, :position, :created_at, :updated_at)`
	if _, err := p.conn.NamedExecContext(ctx, q, r); err != nil {
		return domain.Task{}, mapPgError("create task", err)
	}
	return t, nil
}

// UpdateTask locks the row, applies patch and writes the result back in
// one transaction.
func (p *Postgres) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	tx, err := p.conn.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Task{}, mapPgError("begin update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var r taskRow
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &r, q, userID, id); err != nil {
		return domain.Task{}, mapPgError("lock task "+id, err)
	}
	current, err := r.task()
	if err != nil {
		return domain.Task{}, err
	}
	next := patch.Apply(current, p.now())
	nr, err := rowFromTask(userID, next)
	if err != nil {
		return domain.Task{}, err
	}
	const upd = `
		UPDATE tasks SET title = :title, description = :description, status = :status,
			priority = :priority, assignee = :assignee, labels = :labels, due_date = :due_date,
			position = :position, updated_at = :updated_at
		WHERE user_id = :user_id AND id = :id`
	if _, err := tx.NamedExecContext(ctx, upd, nr); err != nil {
		return domain.Task{}, mapPgError("update task "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, mapPgError("commit update", err)
	}
	return next, nil
}

func (p *Postgres) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := p.conn.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return mapPgError("delete task "+id, err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001":
			return fmt.Errorf("%s: %w", op, domain.ErrConcurrencyConflict)
		case "23514":
			return fmt.Errorf("%s: %w", op, domain.ErrInvalidTask)
		case "23503":
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		case "42501":
			return fmt.Errorf("%s: %w", op, domain.ErrPermissionDenied)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
