package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

const companyColumns = `
	id, org_id, name, website, phone, address_line1, address_line2, city, state,
	postal_code, country, tags, owner_id, created_at, updated_at, deleted_at
`

func scanCompany(row scanner) (*models.Company, error) {
	var c models.Company
	err := row.Scan(
		&c.ID, &c.OrgID, &c.Name, &c.Website, &c.Phone, &c.AddressLine1, &c.AddressLine2, &c.City, &c.State,
		&c.PostalCode, &c.Country, &c.Tags, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCompanies returns live companies matching the filter, newest first.
func (s *CRMStore) ListCompanies(ctx context.Context, orgID uuid.UUID, filter store.CompanyFilter) ([]*models.Company, int, error) {
	cond := &conditions{}
	cond.add("org_id = ?", orgID)
	cond.clauses = append(cond.clauses, "deleted_at IS NULL")
	if filter.Search != "" {
		cond.add("name ILIKE ?", likePattern(filter.Search))
	}

	return list(ctx, s.pool, companyColumns, "companies", "created_at DESC, id DESC", cond, filter.Page, scanCompany)
}

// CreateCompany stores a new company.
func (s *CRMStore) CreateCompany(ctx context.Context, company *models.Company) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		company.ID, company.OrgID, company.Name, company.Website, company.Phone,
		company.AddressLine1, company.AddressLine2, company.City, company.State,
		company.PostalCode, company.Country, nonNilTags(company.Tags), company.OwnerID,
		company.CreatedAt, company.UpdatedAt, company.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", company.OrgID.String()).
		Str("company_id", company.ID.String()).
		Msg("Created company")

	return nil
}

// GetCompany retrieves a live company by ID within an organization.
func (s *CRMStore) GetCompany(ctx context.Context, orgID, id uuid.UUID) (*models.Company, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id)
	return getOne(row, "company", scanCompany)
}

// UpdateCompany locks the company, applies mutate and writes the result.
func (s *CRMStore) UpdateCompany(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Company)) (*models.Company, error) {
	var updated *models.Company
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := getOne(tx.QueryRow(ctx, `
			SELECT `+companyColumns+` FROM companies
			WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
			FOR UPDATE
		`, orgID, id), "company", scanCompany)
		if err != nil {
			return err
		}

		next := *current
		next.Tags = slices.Clone(current.Tags)
		mutate(&next)
		next.ID, next.OrgID, next.DeletedAt = current.ID, current.OrgID, current.DeletedAt

		err = execOne(ctx, tx, "update company", `
			UPDATE companies SET
				name = $3, website = $4, phone = $5, address_line1 = $6, address_line2 = $7,
				city = $8, state = $9, postal_code = $10, country = $11, tags = $12,
				owner_id = $13, updated_at = $14
			WHERE org_id = $1 AND id = $2
		`,
			orgID, id, next.Name, next.Website, next.Phone, next.AddressLine1, next.AddressLine2,
			next.City, next.State, next.PostalCode, next.Country, nonNilTags(next.Tags),
			next.OwnerID, next.UpdatedAt,
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

// DeleteCompany soft-deletes a company.
func (s *CRMStore) DeleteCompany(ctx context.Context, orgID, id uuid.UUID) error {
	return execOne(ctx, s.pool, "delete company", `
		UPDATE companies SET deleted_at = $3
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id, time.Now())
}

// likePattern builds a case-insensitive substring pattern, escaping LIKE wildcards.
func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(search)
	return "%" + escaped + "%"
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
