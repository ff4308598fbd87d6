package store

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
)

// ErrNotFound is returned when a CRM record does not exist or belongs to another organization.
// Callers cannot tell the two cases apart.
var ErrNotFound = errors.New("record not found")

// Page selects a window of a list ordered by creation time, newest first.
type Page struct {
	Page  int // 1-based
	Limit int
}

// Offset returns the number of rows to skip, saturating at math.MaxInt.
func (p Page) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// PersonFilter narrows ListPeople.
type PersonFilter struct {
	Page
	Search    string // matches first name, last name or email
	CompanyID *uuid.UUID
}

// CompanyFilter narrows ListCompanies.
type CompanyFilter struct {
	Page
	Search string // matches name
}

// DealFilter narrows ListDeals.
type DealFilter struct {
	Page
	PipelineID *uuid.UUID
	StageID    *uuid.UUID
	Status     string
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Page
	Status   string
	DealID   *uuid.UUID
	PersonID *uuid.UUID
}

// InteractionFilter narrows ListInteractions.
type InteractionFilter struct {
	Page
	CompanyID *uuid.UUID
	PersonID  *uuid.UUID
	DealID    *uuid.UUID
}

// Every method below takes the caller's organization ID as a mandatory predicate.
// Updates are read-modify-write: the mutate func receives the current record and
// the store persists whatever it leaves behind (ID and OrgID are not writable).

// PersonStore stores people. Deleted people are hidden from every read.
type PersonStore interface {
	ListPeople(ctx context.Context, orgID uuid.UUID, filter PersonFilter) ([]*models.Person, int, error)
	CreatePerson(ctx context.Context, person *models.Person) error
	GetPerson(ctx context.Context, orgID, id uuid.UUID) (*models.Person, error)
	UpdatePerson(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Person)) (*models.Person, error)
	DeletePerson(ctx context.Context, orgID, id uuid.UUID) error
}

// CompanyStore stores companies. Deleted companies are hidden from every read.
type CompanyStore interface {
	ListCompanies(ctx context.Context, orgID uuid.UUID, filter CompanyFilter) ([]*models.Company, int, error)
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, orgID, id uuid.UUID) (*models.Company, error)
	UpdateCompany(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Company)) (*models.Company, error)
	DeleteCompany(ctx context.Context, orgID, id uuid.UUID) error
}

// DealStore stores pipelines, their stages and deals.
type DealStore interface {
	ListPipelines(ctx context.Context, orgID uuid.UUID) ([]*models.Pipeline, error)
	CreatePipeline(ctx context.Context, pipeline *models.Pipeline) error
	GetStage(ctx context.Context, orgID, stageID uuid.UUID) (*models.Stage, error)

	ListDeals(ctx context.Context, orgID uuid.UUID, filter DealFilter) ([]*models.Deal, int, error)
	CreateDeal(ctx context.Context, deal *models.Deal) error
	GetDeal(ctx context.Context, orgID, id uuid.UUID) (*models.Deal, error)
	UpdateDeal(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Deal)) (*models.Deal, error)
	DeleteDeal(ctx context.Context, orgID, id uuid.UUID) error
}

// TaskStore stores tasks.
type TaskStore interface {
	ListTasks(ctx context.Context, orgID uuid.UUID, filter TaskFilter) ([]*models.Task, int, error)
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, orgID, id uuid.UUID, mutate func(*models.Task)) (*models.Task, error)
	DeleteTask(ctx context.Context, orgID, id uuid.UUID) error
}

// InteractionStore stores the append-only interaction log.
type InteractionStore interface {
	ListInteractions(ctx context.Context, orgID uuid.UUID, filter InteractionFilter) ([]*models.Interaction, int, error)
	CreateInteraction(ctx context.Context, interaction *models.Interaction) error
}

// CRMStore groups the tenant-scoped stores.
type CRMStore interface {
	PersonStore
	CompanyStore
	DealStore
	TaskStore
	InteractionStore

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
