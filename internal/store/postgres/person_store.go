package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

const personColumns = `
	id, org_id, company_id, first_name, last_name, email, phone, title,
	linkedin_url, tags, owner_id, last_contacted_at, created_at, updated_at, deleted_at
`

func scanPerson(row scanner) (*models.Person, error) {
	var p models.Person
	err := row.Scan(
		&p.ID, &p.OrgID, &p.CompanyID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Title,
		&p.LinkedInURL, &p.Tags, &p.OwnerID, &p.LastContactedAt, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPeople returns live people matching the filter, newest first.
func (s *CRMStore) ListPeople(ctx context.Context, orgID uuid.UUID, filter store.PersonFilter) ([]*models.Person, int, error) {
	cond := &conditions{}
	cond.add("org_id = ?", orgID)
	cond.clauses = append(cond.clauses, "deleted_at IS NULL")
	if filter.CompanyID != nil {
		cond.add("company_id = ?", *filter.CompanyID)
	}
	if filter.Search != "" {
		cond.add("(first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?)", likePattern(filter.Search))
	}

	return list(ctx, s.pool, personColumns, "people", "created_at DESC, id DESC", cond, filter.Page, scanPerson)
}

// CreatePerson stores a new person.
func (s *CRMStore) CreatePerson(ctx context.Context, person *models.Person) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO people (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		person.ID, person.OrgID, person.CompanyID, person.FirstName, person.LastName,
		person.Email, person.Phone, person.Title, person.LinkedInURL, nonNilTags(person.Tags),
		person.OwnerID, person.LastContactedAt, person.CreatedAt, person.UpdatedAt, person.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", person.OrgID.String()).
		Str("person_id", person.ID.String()).
		Msg("Created person")

	return nil
}

// GetPerson retrieves a live person by ID within an organization.
func (s *CRMStore) GetPerson(ctx context.Context, orgID, id uuid.UUID) (*models.Person, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+personColumns+` FROM people
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id)
	return getOne(row, "person", scanPerson)
}

// UpdatePerson locks the person, applies mutate and writes the result.
func (s *CRMStore) UpdatePerson(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Person)) (*models.Person, error) {
	var updated *models.Person
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := getOne(tx.QueryRow(ctx, `
			SELECT `+personColumns+` FROM people
			WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
			FOR UPDATE
		`, orgID, id), "person", scanPerson)
		if err != nil {
			return err
		}

		next := *current
		next.Tags = slices.Clone(current.Tags)
		mutate(&next)
		next.ID, next.OrgID, next.DeletedAt = current.ID, current.OrgID, current.DeletedAt

		err = execOne(ctx, tx, "update person", `
			UPDATE people SET
				company_id = $3, first_name = $4, last_name = $5, email = $6, phone = $7,
				title = $8, linkedin_url = $9, tags = $10, owner_id = $11,
				last_contacted_at = $12, updated_at = $13
			WHERE org_id = $1 AND id = $2
		`,
			orgID, id, next.CompanyID, next.FirstName, next.LastName, next.Email, next.Phone,
			next.Title, next.LinkedInURL, nonNilTags(next.Tags), next.OwnerID,
			next.LastContactedAt, next.UpdatedAt,
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

// DeletePerson soft-deletes a person.
func (s *CRMStore) DeletePerson(ctx context.Context, orgID, id uuid.UUID) error {
	return execOne(ctx, s.pool, "delete person", `
		UPDATE people SET deleted_at = $3
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id, time.Now())
}
