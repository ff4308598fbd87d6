package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

const taskColumns = `
	id, org_id, title, due_at, status, priority, owner_id,
	company_id, person_id, deal_id, created_at, completed_at
`

func scanTask(row scanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.OrgID, &t.Title, &t.DueAt, &t.Status, &t.Priority, &t.OwnerID,
		&t.CompanyID, &t.PersonID, &t.DealID, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *CRMStore) ListTasks(ctx context.Context, orgID uuid.UUID, filter store.TaskFilter) ([]*models.Task, int, error) {
	cond := &conditions{}
	cond.add("org_id = ?", orgID)
	if filter.Status != "" {
		cond.add("status = ?", filter.Status)
	}
	if filter.DealID != nil {
		cond.add("deal_id = ?", *filter.DealID)
	}
	if filter.PersonID != nil {
		cond.add("person_id = ?", *filter.PersonID)
	}

	return list(ctx, s.pool, taskColumns, "tasks", "created_at DESC, id DESC", cond, filter.Page, scanTask)
}

// CreateTask stores a new task.
func (s *CRMStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		task.ID, task.OrgID, task.Title, task.DueAt, task.Status, task.Priority, task.OwnerID,
		task.CompanyID, task.PersonID, task.DealID, task.CreatedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", task.OrgID.String()).
		Str("task_id", task.ID.String()).
		Msg("Created task")

	return nil
}

// GetTask retrieves a task by ID within an organization.
func (s *CRMStore) GetTask(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE org_id = $1 AND id = $2`, orgID, id)
	return getOne(row, "task", scanTask)
}

// UpdateTask locks the task, applies mutate and writes the result.
func (s *CRMStore) UpdateTask(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Task)) (*models.Task, error) {
	var updated *models.Task
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := getOne(tx.QueryRow(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE org_id = $1 AND id = $2
			FOR UPDATE
		`, orgID, id), "task", scanTask)
		if err != nil {
			return err
		}

		next := *current
		mutate(&next)
		next.ID, next.OrgID = current.ID, current.OrgID

		err = execOne(ctx, tx, "update task", `
			UPDATE tasks SET
				title = $3, due_at = $4, status = $5, priority = $6, owner_id = $7,
				company_id = $8, person_id = $9, deal_id = $10, completed_at = $11
			WHERE org_id = $1 AND id = $2
		`,
			orgID, id, next.Title, next.DueAt, next.Status, next.Priority, next.OwnerID,
			next.CompanyID, next.PersonID, next.DealID, next.CompletedAt,
		)
		if err != nil {
			return err
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteTask permanently removes a task.
func (s *CRMStore) DeleteTask(ctx context.Context, orgID, id uuid.UUID) error {
	return execOne(ctx, s.pool, "delete task", `DELETE FROM tasks WHERE org_id = $1 AND id = $2`, orgID, id)
}
