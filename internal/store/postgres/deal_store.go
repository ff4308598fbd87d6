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

// expected_close_date is a DATE column; it travels as YYYY-MM-DD text.
const dealColumns = `
	id, org_id, pipeline_id, stage_id, company_id, person_id, name, value_cents, currency,
	owner_id, to_char(expected_close_date, 'YYYY-MM-DD'), status, created_at, updated_at, closed_at
`

func scanDeal(row scanner) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(
		&d.ID, &d.OrgID, &d.PipelineID, &d.StageID, &d.CompanyID, &d.PersonID, &d.Name, &d.ValueCents, &d.Currency,
		&d.OwnerID, &d.ExpectedCloseDate, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListPipelines returns the organization's pipelines with their stages in position order.
func (s *CRMStore) ListPipelines(ctx context.Context, orgID uuid.UUID) ([]*models.Pipeline, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, name, created_at
		FROM pipelines
		WHERE org_id = $1
		ORDER BY created_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", mapPostgresError(err))
	}

	pipelines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Pipeline, error) {
		var p models.Pipeline
		if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Stages = []*models.Stage{}
		return &p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pipelines: %w", mapPostgresError(err))
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, org_id, pipeline_id, name, position
		FROM deal_stages
		WHERE org_id = $1
		ORDER BY pipeline_id, position
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", mapPostgresError(err))
	}

	stages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Stage, error) {
		return scanStage(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stages: %w", mapPostgresError(err))
	}

	byID := make(map[uuid.UUID]*models.Pipeline, len(pipelines))
	for _, p := range pipelines {
		byID[p.ID] = p
	}
	for _, stage := range stages {
		if p, ok := byID[stage.PipelineID]; ok {
			p.Stages = append(p.Stages, stage)
		}
	}

	return pipelines, nil
}

// CreatePipeline stores a pipeline and its stages in one transaction.
func (s *CRMStore) CreatePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO pipelines (id, org_id, name, created_at)
			VALUES ($1, $2, $3, $4)
		`, pipeline.ID, pipeline.OrgID, pipeline.Name, pipeline.CreatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, stage := range pipeline.Stages {
			batch.Queue(`
				INSERT INTO deal_stages (id, org_id, pipeline_id, name, position)
				VALUES ($1, $2, $3, $4, $5)
			`, stage.ID, stage.OrgID, stage.PipelineID, stage.Name, stage.Position)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", pipeline.OrgID.String()).
		Str("pipeline_id", pipeline.ID.String()).
		Int("stages", len(pipeline.Stages)).
		Msg("Created pipeline")

	return nil
}

// GetStage retrieves a stage by ID within an organization.
func (s *CRMStore) GetStage(ctx context.Context, orgID, stageID uuid.UUID) (*models.Stage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, org_id, pipeline_id, name, position
		FROM deal_stages
		WHERE org_id = $1 AND id = $2
	`, orgID, stageID)
	return getOne(row, "stage", scanStage)
}

func scanStage(row scanner) (*models.Stage, error) {
	var st models.Stage
	if err := row.Scan(&st.ID, &st.OrgID, &st.PipelineID, &st.Name, &st.Position); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListDeals returns deals matching the filter, newest first.
func (s *CRMStore) ListDeals(ctx context.Context, orgID uuid.UUID, filter store.DealFilter) ([]*models.Deal, int, error) {
	cond := &conditions{}
	cond.add("org_id = ?", orgID)
	if filter.PipelineID != nil {
		cond.add("pipeline_id = ?", *filter.PipelineID)
	}
	if filter.StageID != nil {
		cond.add("stage_id = ?", *filter.StageID)
	}
	if filter.Status != "" {
		cond.add("status = ?", filter.Status)
	}

	return list(ctx, s.pool, dealColumns, "deals", "created_at DESC, id DESC", cond, filter.Page, scanDeal)
}

// CreateDeal stores a new deal.
func (s *CRMStore) CreateDeal(ctx context.Context, deal *models.Deal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deals (
			id, org_id, pipeline_id, stage_id, company_id, person_id, name, value_cents, currency,
			owner_id, expected_close_date, status, created_at, updated_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::date, $12, $13, $14, $15)
	`,
		deal.ID, deal.OrgID, deal.PipelineID, deal.StageID, deal.CompanyID, deal.PersonID,
		deal.Name, deal.ValueCents, deal.Currency, deal.OwnerID, deal.ExpectedCloseDate,
		deal.Status, deal.CreatedAt, deal.UpdatedAt, deal.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", deal.OrgID.String()).
		Str("deal_id", deal.ID.String()).
		Msg("Created deal")

	return nil
}

// GetDeal retrieves a deal by ID within an organization.
func (s *CRMStore) GetDeal(ctx context.Context, orgID, id uuid.UUID) (*models.Deal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE org_id = $1 AND id = $2`, orgID, id)
	return getOne(row, "deal", scanDeal)
}

// UpdateDeal locks the deal, applies mutate and writes the result.
func (s *CRMStore) UpdateDeal(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Deal)) (*models.Deal, error) {
	var updated *models.Deal
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := getOne(tx.QueryRow(ctx, `
			SELECT `+dealColumns+` FROM deals
			WHERE org_id = $1 AND id = $2
			FOR UPDATE
		`, orgID, id), "deal", scanDeal)
		if err != nil {
			return err
		}

		next := *current
		mutate(&next)
		next.ID, next.OrgID = current.ID, current.OrgID

		err = execOne(ctx, tx, "update deal", `
			UPDATE deals SET
				pipeline_id = $3, stage_id = $4, company_id = $5, person_id = $6, name = $7,
				value_cents = $8, currency = $9, owner_id = $10, expected_close_date = $11::date,
				status = $12, updated_at = $13, closed_at = $14
			WHERE org_id = $1 AND id = $2
		`,
			orgID, id, next.PipelineID, next.StageID, next.CompanyID, next.PersonID, next.Name,
			next.ValueCents, next.Currency, next.OwnerID, next.ExpectedCloseDate,
			next.Status, next.UpdatedAt, next.ClosedAt,
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

// DeleteDeal permanently removes a deal.
func (s *CRMStore) DeleteDeal(ctx context.Context, orgID, id uuid.UUID) error {
	return execOne(ctx, s.pool, "delete deal", `DELETE FROM deals WHERE org_id = $1 AND id = $2`, orgID, id)
}
