package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.CRMStore = (*CRMStore)(nil)

// CRMStore implements store.CRMStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type CRMStore struct {
	mu sync.RWMutex

	people       *table[models.Person]
	companies    *table[models.Company]
	deals        *table[models.Deal]
	tasks        *table[models.Task]
	interactions *table[models.Interaction]

	pipelines map[uuid.UUID]*models.Pipeline // pipeline_id -> Pipeline (with stages)
	stages    map[uuid.UUID]*models.Stage    // stage_id -> Stage
}

// NewCRMStore creates a new in-memory CRM store.
func NewCRMStore() *CRMStore {
	return &CRMStore{
		people: &table[models.Person]{
			rows:      make(map[uuid.UUID]*models.Person),
			id:        func(p *models.Person) uuid.UUID { return p.ID },
			org:       func(p *models.Person) uuid.UUID { return p.OrgID },
			createdAt: func(p *models.Person) time.Time { return p.CreatedAt },
			live:      func(p *models.Person) bool { return p.DeletedAt == nil },
			clone: func(p *models.Person) *models.Person {
				c := *p
				c.Tags = slices.Clone(p.Tags)
				return &c
			},
		},
		companies: &table[models.Company]{
			rows:      make(map[uuid.UUID]*models.Company),
			id:        func(c *models.Company) uuid.UUID { return c.ID },
			org:       func(c *models.Company) uuid.UUID { return c.OrgID },
			createdAt: func(c *models.Company) time.Time { return c.CreatedAt },
			live:      func(c *models.Company) bool { return c.DeletedAt == nil },
			clone: func(c *models.Company) *models.Company {
				cc := *c
				cc.Tags = slices.Clone(c.Tags)
				return &cc
			},
		},
		deals: &table[models.Deal]{
			rows:      make(map[uuid.UUID]*models.Deal),
			id:        func(d *models.Deal) uuid.UUID { return d.ID },
			org:       func(d *models.Deal) uuid.UUID { return d.OrgID },
			createdAt: func(d *models.Deal) time.Time { return d.CreatedAt },
			live:      alwaysLive[models.Deal],
			clone:     func(d *models.Deal) *models.Deal { c := *d; return &c },
		},
		tasks: &table[models.Task]{
			rows:      make(map[uuid.UUID]*models.Task),
			id:        func(t *models.Task) uuid.UUID { return t.ID },
			org:       func(t *models.Task) uuid.UUID { return t.OrgID },
			createdAt: func(t *models.Task) time.Time { return t.CreatedAt },
			live:      alwaysLive[models.Task],
			clone:     func(t *models.Task) *models.Task { c := *t; return &c },
		},
		interactions: &table[models.Interaction]{
			rows:      make(map[uuid.UUID]*models.Interaction),
			id:        func(i *models.Interaction) uuid.UUID { return i.ID },
			org:       func(i *models.Interaction) uuid.UUID { return i.OrgID },
			createdAt: func(i *models.Interaction) time.Time { return i.OccurredAt },
			live:      alwaysLive[models.Interaction],
			clone: func(i *models.Interaction) *models.Interaction {
				c := *i
				c.Metadata = maps.Clone(i.Metadata)
				return &c
			},
		},
		pipelines: make(map[uuid.UUID]*models.Pipeline),
		stages:    make(map[uuid.UUID]*models.Stage),
	}
}

// Ping always succeeds for the in-memory store.
func (s *CRMStore) Ping(ctx context.Context) error {
	return nil
}

// ListPeople returns people matching the filter.
func (s *CRMStore) ListPeople(ctx context.Context, orgID uuid.UUID, filter store.PersonFilter) ([]*models.Person, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	people, total := s.people.list(orgID, func(p *models.Person) bool {
		if !matchesID(filter.CompanyID, p.CompanyID) {
			return false
		}
		if search == "" {
			return true
		}
		return contains(p.FirstName, search) || contains(p.LastName, search) ||
			(p.Email != nil && contains(*p.Email, search))
	}, filter.Page)

	return people, total, nil
}

// CreatePerson stores a new person.
func (s *CRMStore) CreatePerson(ctx context.Context, person *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.people.insert(person)
	return nil
}

// GetPerson retrieves a person by ID within an organization.
func (s *CRMStore) GetPerson(ctx context.Context, orgID, id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.people.get(orgID, id)
}

// UpdatePerson applies mutate to the person and stores the result.
func (s *CRMStore) UpdatePerson(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Person)) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.people.update(orgID, id, mutate, func(updated, current *models.Person) {
		updated.ID, updated.OrgID, updated.DeletedAt = current.ID, current.OrgID, current.DeletedAt
	})
}

// DeletePerson soft-deletes a person.
func (s *CRMStore) DeletePerson(ctx context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	person, err := s.people.lookup(orgID, id)
	if err != nil {
		return err
	}

	now := time.Now()
	person.DeletedAt = &now
	return nil
}

// ListCompanies returns companies matching the filter.
func (s *CRMStore) ListCompanies(ctx context.Context, orgID uuid.UUID, filter store.CompanyFilter) ([]*models.Company, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	companies, total := s.companies.list(orgID, func(c *models.Company) bool {
		return search == "" || contains(c.Name, search)
	}, filter.Page)

	return companies, total, nil
}

// CreateCompany stores a new company.
func (s *CRMStore) CreateCompany(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.companies.insert(company)
	return nil
}

// GetCompany retrieves a company by ID within an organization.
func (s *CRMStore) GetCompany(ctx context.Context, orgID, id uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.companies.get(orgID, id)
}

// UpdateCompany applies mutate to the company and stores the result.
func (s *CRMStore) UpdateCompany(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Company)) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.companies.update(orgID, id, mutate, func(updated, current *models.Company) {
		updated.ID, updated.OrgID, updated.DeletedAt = current.ID, current.OrgID, current.DeletedAt
	})
}

// DeleteCompany soft-deletes a company.
func (s *CRMStore) DeleteCompany(ctx context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	company, err := s.companies.lookup(orgID, id)
	if err != nil {
		return err
	}

	now := time.Now()
	company.DeletedAt = &now
	return nil
}

// ListPipelines returns the organization's pipelines with their stages in position order.
func (s *CRMStore) ListPipelines(ctx context.Context, orgID uuid.UUID) ([]*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Pipeline
	for _, p := range s.pipelines {
		if p.OrgID == orgID {
			result = append(result, clonePipeline(p))
		}
	}
	slices.SortFunc(result, func(a, b *models.Pipeline) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return result, nil
}

// CreatePipeline stores a pipeline and its stages.
func (s *CRMStore) CreatePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := clonePipeline(pipeline)
	s.pipelines[pipeline.ID] = clone
	for _, stage := range clone.Stages {
		s.stages[stage.ID] = stage
	}

	return nil
}

// GetStage retrieves a stage by ID within an organization.
func (s *CRMStore) GetStage(ctx context.Context, orgID, stageID uuid.UUID) (*models.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stage, ok := s.stages[stageID]
	if !ok || stage.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	clone := *stage
	return &clone, nil
}

// ListDeals returns deals matching the filter.
func (s *CRMStore) ListDeals(ctx context.Context, orgID uuid.UUID, filter store.DealFilter) ([]*models.Deal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deals, total := s.deals.list(orgID, func(d *models.Deal) bool {
		return matchesID(filter.PipelineID, &d.PipelineID) &&
			matchesID(filter.StageID, &d.StageID) &&
			(filter.Status == "" || filter.Status == d.Status)
	}, filter.Page)

	return deals, total, nil
}

// CreateDeal stores a new deal.
func (s *CRMStore) CreateDeal(ctx context.Context, deal *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deals.insert(deal)
	return nil
}

// GetDeal retrieves a deal by ID within an organization.
func (s *CRMStore) GetDeal(ctx context.Context, orgID, id uuid.UUID) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.deals.get(orgID, id)
}

// UpdateDeal applies mutate to the deal and stores the result.
func (s *CRMStore) UpdateDeal(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Deal)) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deals.update(orgID, id, mutate, func(updated, current *models.Deal) {
		updated.ID, updated.OrgID = current.ID, current.OrgID
	})
}

// DeleteDeal permanently removes a deal.
func (s *CRMStore) DeleteDeal(ctx context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deals.lookup(orgID, id); err != nil {
		return err
	}

	delete(s.deals.rows, id)
	return nil
}

// ListTasks returns tasks matching the filter.
func (s *CRMStore) ListTasks(ctx context.Context, orgID uuid.UUID, filter store.TaskFilter) ([]*models.Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, total := s.tasks.list(orgID, func(t *models.Task) bool {
		return (filter.Status == "" || filter.Status == t.Status) &&
			matchesID(filter.DealID, t.DealID) &&
			matchesID(filter.PersonID, t.PersonID)
	}, filter.Page)

	return tasks, total, nil
}

// CreateTask stores a new task.
func (s *CRMStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks.insert(task)
	return nil
}

// GetTask retrieves a task by ID within an organization.
func (s *CRMStore) GetTask(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tasks.get(orgID, id)
}

// UpdateTask applies mutate to the task and stores the result.
func (s *CRMStore) UpdateTask(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Task)) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tasks.update(orgID, id, mutate, func(updated, current *models.Task) {
		updated.ID, updated.OrgID = current.ID, current.OrgID
	})
}

// DeleteTask permanently removes a task.
func (s *CRMStore) DeleteTask(ctx context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tasks.lookup(orgID, id); err != nil {
		return err
	}

	delete(s.tasks.rows, id)
	return nil
}

// ListInteractions returns interactions matching the filter, most recent first.
func (s *CRMStore) ListInteractions(ctx context.Context, orgID uuid.UUID, filter store.InteractionFilter) ([]*models.Interaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	interactions, total := s.interactions.list(orgID, func(i *models.Interaction) bool {
		return matchesID(filter.CompanyID, i.CompanyID) &&
			matchesID(filter.PersonID, i.PersonID) &&
			matchesID(filter.DealID, i.DealID)
	}, filter.Page)

	return interactions, total, nil
}

// CreateInteraction appends an interaction.
func (s *CRMStore) CreateInteraction(ctx context.Context, interaction *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interactions.insert(interaction)
	return nil
}

func clonePipeline(p *models.Pipeline) *models.Pipeline {
	clone := *p
	clone.Stages = make([]*models.Stage, 0, len(p.Stages))
	for _, stage := range p.Stages {
		stageClone := *stage
		clone.Stages = append(clone.Stages, &stageClone)
	}
	slices.SortFunc(clone.Stages, func(a, b *models.Stage) int {
		return a.Position - b.Position
	})
	return &clone
}

func contains(value, lowerSearch string) bool {
	return strings.Contains(strings.ToLower(value), lowerSearch)
}
