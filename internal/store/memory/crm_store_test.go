package memory

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

func addPerson(t *testing.T, st *CRMStore, orgID uuid.UUID, first, last string, createdAt time.Time) *models.Person {
	t.Helper()
	person := &models.Person{
		ID:        uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		FirstName: first,
		LastName:  last,
		Tags:      []string{"lead"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, st.CreatePerson(context.Background(), person))
	return person
}

func TestCRMStore_PeopleAreScopedToOrganization(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgA, orgB := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())

	person := addPerson(t, st, orgA, "Ada", "Lovelace", time.Now())

	_, err := st.GetPerson(ctx, orgB, person.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.UpdatePerson(ctx, orgB, person.ID, func(p *models.Person) { p.FirstName = "Mallory" })
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, st.DeletePerson(ctx, orgB, person.ID), store.ErrNotFound)

	people, total, err := st.ListPeople(ctx, orgB, store.PersonFilter{Page: store.Page{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, people)

	got, err := st.GetPerson(ctx, orgA, person.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.FirstName)
}

func TestCRMStore_UpdateKeepsIdentityColumns(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	person := addPerson(t, st, orgID, "Ada", "Lovelace", time.Now())

	updated, err := st.UpdatePerson(ctx, orgID, person.ID, func(p *models.Person) {
		p.ID = uuid.Must(uuid.NewV7())
		p.OrgID = uuid.Must(uuid.NewV7())
		p.LastName = "King"
	})
	require.NoError(t, err)
	require.Equal(t, person.ID, updated.ID)
	require.Equal(t, orgID, updated.OrgID)
	require.Equal(t, "King", updated.LastName)

	got, err := st.GetPerson(ctx, orgID, person.ID)
	require.NoError(t, err)
	require.Equal(t, "King", got.LastName)
}

func TestCRMStore_SoftDeletedPeopleAreHidden(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	person := addPerson(t, st, orgID, "Ada", "Lovelace", time.Now())

	require.NoError(t, st.DeletePerson(ctx, orgID, person.ID))

	_, err := st.GetPerson(ctx, orgID, person.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, st.DeletePerson(ctx, orgID, person.ID), store.ErrNotFound)

	_, total, err := st.ListPeople(ctx, orgID, store.PersonFilter{Page: store.Page{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestCRMStore_ListPeoplePagesNewestFirst(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		addPerson(t, st, orgID, fmt.Sprintf("Person%d", i), "Test", base.Add(time.Duration(i)*time.Minute))
	}

	page1, total, err := st.ListPeople(ctx, orgID, store.PersonFilter{Page: store.Page{Page: 1, Limit: 2}})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page1, 2)
	require.Equal(t, "Person4", page1[0].FirstName)
	require.Equal(t, "Person3", page1[1].FirstName)

	page3, _, err := st.ListPeople(ctx, orgID, store.PersonFilter{Page: store.Page{Page: 3, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Equal(t, "Person0", page3[0].FirstName)

	beyond, total, err := st.ListPeople(ctx, orgID, store.PersonFilter{Page: store.Page{Page: 10, Limit: 2}})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Empty(t, beyond)

	huge, total, err := st.ListPeople(ctx, orgID, store.PersonFilter{Page: store.Page{Page: math.MaxInt/2 + 1, Limit: 4}})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Empty(t, huge)
}

func TestCRMStore_ListPeopleSearch(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())

	ada := addPerson(t, st, orgID, "Ada", "Lovelace", time.Now())
	addPerson(t, st, orgID, "Grace", "Hopper", time.Now())

	email := "countess@example.com"
	_, err := st.UpdatePerson(ctx, orgID, ada.ID, func(p *models.Person) { p.Email = &email })
	require.NoError(t, err)

	for _, search := range []string{"love", "ADA", "countess"} {
		people, total, err := st.ListPeople(ctx, orgID, store.PersonFilter{Page: store.Page{Page: 1, Limit: 10}, Search: search})
		require.NoError(t, err)
		require.Equal(t, 1, total, search)
		require.Equal(t, ada.ID, people[0].ID)
	}
}

func TestCRMStore_ReturnsCopies(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	person := addPerson(t, st, orgID, "Ada", "Lovelace", time.Now())

	person.Tags[0] = "mutated"

	got, err := st.GetPerson(ctx, orgID, person.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"lead"}, got.Tags)
}

func TestCRMStore_PipelinesAndDeals(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgA, orgB := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())

	pipeline := &models.Pipeline{ID: uuid.Must(uuid.NewV7()), OrgID: orgA, Name: "Sales", CreatedAt: time.Now()}
	for i, name := range []string{"Won", "Lead", "Qualified"} {
		pipeline.Stages = append(pipeline.Stages, &models.Stage{
			ID:         uuid.Must(uuid.NewV7()),
			OrgID:      orgA,
			PipelineID: pipeline.ID,
			Name:       name,
			Position:   []int{2, 0, 1}[i],
		})
	}
	require.NoError(t, st.CreatePipeline(ctx, pipeline))

	pipelines, err := st.ListPipelines(ctx, orgA)
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	require.Equal(t, "Lead", pipelines[0].Stages[0].Name)
	require.Equal(t, "Won", pipelines[0].Stages[2].Name)

	pipelines, err = st.ListPipelines(ctx, orgB)
	require.NoError(t, err)
	require.Empty(t, pipelines)

	lead := stageNamed(t, st, orgA, "Lead")
	_, err = st.GetStage(ctx, orgB, lead.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	deal := &models.Deal{
		ID:         uuid.Must(uuid.NewV7()),
		OrgID:      orgA,
		PipelineID: pipeline.ID,
		StageID:    lead.ID,
		Name:       "Big deal",
		Currency:   "USD",
		Status:     models.DealStatusOpen,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, st.CreateDeal(ctx, deal))

	now := time.Now()
	updated, err := st.UpdateDeal(ctx, orgA, deal.ID, func(d *models.Deal) { d.SetStatus(models.DealStatusWon, now) })
	require.NoError(t, err)
	require.Equal(t, models.DealStatusWon, updated.Status)
	require.NotNil(t, updated.ClosedAt)

	won, total, err := st.ListDeals(ctx, orgA, store.DealFilter{Page: store.Page{Page: 1, Limit: 10}, Status: models.DealStatusWon})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, deal.ID, won[0].ID)

	_, total, err = st.ListDeals(ctx, orgA, store.DealFilter{Page: store.Page{Page: 1, Limit: 10}, Status: models.DealStatusOpen})
	require.NoError(t, err)
	require.Zero(t, total)

	require.ErrorIs(t, st.DeleteDeal(ctx, orgB, deal.ID), store.ErrNotFound)
	require.NoError(t, st.DeleteDeal(ctx, orgA, deal.ID))
	_, err = st.GetDeal(ctx, orgA, deal.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func stageNamed(t *testing.T, st *CRMStore, orgID uuid.UUID, name string) *models.Stage {
	t.Helper()
	pipelines, err := st.ListPipelines(context.Background(), orgID)
	require.NoError(t, err)
	for _, stage := range pipelines[0].Stages {
		if stage.Name == name {
			return stage
		}
	}
	t.Fatalf("stage %q not found", name)
	return nil
}

func TestCRMStore_TaskFilters(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	dealID := uuid.Must(uuid.NewV7())

	for i, status := range []string{models.TaskStatusPending, models.TaskStatusCompleted, models.TaskStatusPending} {
		task := &models.Task{
			ID:        uuid.Must(uuid.NewV7()),
			OrgID:     orgID,
			Title:     fmt.Sprintf("Task %d", i),
			Status:    status,
			Priority:  models.TaskPriorityMedium,
			CreatedAt: time.Now(),
		}
		if i == 0 {
			task.DealID = &dealID
		}
		require.NoError(t, st.CreateTask(ctx, task))
	}

	_, total, err := st.ListTasks(ctx, orgID, store.TaskFilter{Page: store.Page{Page: 1, Limit: 10}, Status: models.TaskStatusPending})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	tasks, total, err := st.ListTasks(ctx, orgID, store.TaskFilter{Page: store.Page{Page: 1, Limit: 10}, DealID: &dealID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "Task 0", tasks[0].Title)
}

func TestCRMStore_InteractionsOrderedByOccurrence(t *testing.T) {
	st := NewCRMStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	personID := uuid.Must(uuid.NewV7())
	now := time.Now()

	for i, offset := range []time.Duration{-2 * time.Hour, 0, -time.Hour} {
		require.NoError(t, st.CreateInteraction(ctx, &models.Interaction{
			ID:         uuid.Must(uuid.NewV7()),
			OrgID:      orgID,
			Type:       "note",
			OccurredAt: now.Add(offset),
			PersonID:   &personID,
			Metadata:   map[string]any{"seq": i},
			CreatedAt:  now,
		}))
	}

	interactions, total, err := st.ListInteractions(ctx, orgID, store.InteractionFilter{Page: store.Page{Page: 1, Limit: 10}, PersonID: &personID})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, 1, interactions[0].Metadata["seq"])
	require.Equal(t, 2, interactions[1].Metadata["seq"])
	require.Equal(t, 0, interactions[2].Metadata["seq"])
}
