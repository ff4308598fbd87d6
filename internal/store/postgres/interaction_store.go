package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

const interactionColumns = `
	id, org_id, type, occurred_at, summary, company_id, person_id, deal_id, metadata, created_at
`

func scanInteraction(row scanner) (*models.Interaction, error) {
	var i models.Interaction
	err := row.Scan(
		&i.ID, &i.OrgID, &i.Type, &i.OccurredAt, &i.Summary,
		&i.CompanyID, &i.PersonID, &i.DealID, &i.Metadata, &i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ListInteractions returns interactions matching the filter, most recent first.
func (s *CRMStore) ListInteractions(ctx context.Context, orgID uuid.UUID, filter store.InteractionFilter) ([]*models.Interaction, int, error) {
	cond := &conditions{}
	cond.add("org_id = ?", orgID)
	if filter.CompanyID != nil {
		cond.add("company_id = ?", *filter.CompanyID)
	}
	if filter.PersonID != nil {
		cond.add("person_id = ?", *filter.PersonID)
	}
	if filter.DealID != nil {
		cond.add("deal_id = ?", *filter.DealID)
	}

	return list(ctx, s.pool, interactionColumns, "interactions", "occurred_at DESC, id DESC", cond, filter.Page, scanInteraction)
}

// CreateInteraction appends an interaction.
func (s *CRMStore) CreateInteraction(ctx context.Context, interaction *models.Interaction) error {
	metadata := interaction.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		interaction.ID, interaction.OrgID, interaction.Type, interaction.OccurredAt, interaction.Summary,
		interaction.CompanyID, interaction.PersonID, interaction.DealID, metadata, interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", interaction.OrgID.String()).
		Str("interaction_id", interaction.ID.String()).
		Str("type", interaction.Type).
		Msg("Created interaction")

	return nil
}
