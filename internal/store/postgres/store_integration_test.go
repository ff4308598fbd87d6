//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))
	// second run is a no-op
	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func createUser(t *testing.T, ctx context.Context, users *UserStore, email string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Email:        email,
		PasswordHash: []byte("hash"),
		Metadata:     map[string]any{models.MetadataFullName: "Jane Doe"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, users.Create(ctx, user))
	return user
}

func newOrgWithOwner(userID uuid.UUID) (*models.Organization, *models.Membership) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	org := &models.Organization{
		OrgID:     uuid.Must(uuid.NewV7()),
		Name:      "Jane Doe's Organization",
		CreatedAt: now,
		UpdatedAt: now,
	}
	org.Slug = "jane-doe-" + org.OrgID.String()
	return org, &models.Membership{OrgID: org.OrgID, UserID: userID, Role: models.RoleOwner, CreatedAt: now}
}

func TestIntegration_Organizations(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)
	orgs := NewOrganizationStore(pool)

	t.Run("create and resolve membership", func(t *testing.T) {
		user := createUser(t, ctx, users, "owner@example.com")

		_, err := orgs.FirstMembership(ctx, user.UserID)
		require.ErrorIs(t, err, store.ErrMembershipNotFound)

		org, member := newOrgWithOwner(user.UserID)
		require.NoError(t, orgs.CreateOrganizationWithOwner(ctx, org, member))

		got, err := orgs.FirstMembership(ctx, user.UserID)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, got.OrgID)
		require.Equal(t, models.RoleOwner, got.Role)

		stored, err := orgs.GetOrganization(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Slug, stored.Slug)
	})

	t.Run("second organization for same user leaves no orphan", func(t *testing.T) {
		user := createUser(t, ctx, users, "twice@example.com")

		org1, member1 := newOrgWithOwner(user.UserID)
		require.NoError(t, orgs.CreateOrganizationWithOwner(ctx, org1, member1))

		org2, member2 := newOrgWithOwner(user.UserID)
		err := orgs.CreateOrganizationWithOwner(ctx, org2, member2)
		require.ErrorIs(t, err, store.ErrMembershipAlreadyExists)

		_, err = orgs.GetOrganization(ctx, org2.OrgID)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("concurrent creates converge on one membership", func(t *testing.T) {
		user := createUser(t, ctx, users, "race@example.com")

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				org, member := newOrgWithOwner(user.UserID)
				errs[i] = orgs.CreateOrganizationWithOwner(ctx, org, member)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, store.ErrMembershipAlreadyExists)
		}
		require.Equal(t, 1, succeeded)

		var count int
		require.NoError(t, pool.QueryRow(ctx, `
			SELECT count(*) FROM orgs o JOIN org_members m ON m.org_id = o.org_id WHERE m.user_id = $1
		`, user.UserID).Scan(&count))
		require.Equal(t, 1, count)
	})

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		createUser(t, ctx, users, "Dup@Example.com")
		now := time.Now()
		err := users.Create(ctx, &models.User{
			UserID: uuid.Must(uuid.NewV7()), Email: "dup@example.com", PasswordHash: []byte("x"),
			CreatedAt: now, UpdatedAt: now,
		})
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)

		got, err := users.GetByEmail(ctx, "DUP@example.com")
		require.NoError(t, err)
		require.Equal(t, "Dup@Example.com", got.Email)
	})
}

func TestIntegration_Sessions(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)
	sessions := NewSessionStore(pool)
	user := createUser(t, ctx, users, "session@example.com")

	now := time.Now().UTC()
	session := &models.Session{
		SessionID:  uuid.Must(uuid.NewV7()),
		UserID:     user.UserID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
		LastUsedAt: now,
		UserAgent:  "test",
		IPAddress:  "192.0.2.10",
	}
	require.NoError(t, sessions.Create(ctx, session))

	got, err := sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, "192.0.2.10", got.IPAddress)
	require.NoError(t, sessions.UpdateLastUsed(ctx, session.SessionID))

	count, err := sessions.DeleteByUser(ctx, user.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = sessions.Get(ctx, session.SessionID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestIntegration_CRMIsolation(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)
	orgs := NewOrganizationStore(pool)
	crm := NewCRMStore(pool)
	require.NoError(t, crm.Ping(ctx))

	orgA, memberA := newOrgWithOwner(createUser(t, ctx, users, "a@example.com").UserID)
	require.NoError(t, orgs.CreateOrganizationWithOwner(ctx, orgA, memberA))
	orgB, memberB := newOrgWithOwner(createUser(t, ctx, users, "b@example.com").UserID)
	require.NoError(t, orgs.CreateOrganizationWithOwner(ctx, orgB, memberB))

	now := time.Now().UTC().Truncate(time.Microsecond)
	email := "ada@example.com"
	person := &models.Person{
		ID: uuid.Must(uuid.NewV7()), OrgID: orgA.OrgID, FirstName: "Ada", LastName: "Lovelace",
		Email: &email, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, crm.CreatePerson(ctx, person))

	t.Run("other organization sees not found", func(t *testing.T) {
		_, err := crm.GetPerson(ctx, orgB.OrgID, person.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = crm.UpdatePerson(ctx, orgB.OrgID, person.ID, func(p *models.Person) { p.FirstName = "Mallory" })
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, crm.DeletePerson(ctx, orgB.OrgID, person.ID), store.ErrNotFound)

		people, total, err := crm.ListPeople(ctx, orgB.OrgID, store.PersonFilter{Page: store.Page{Page: 1, Limit: 20}})
		require.NoError(t, err)
		require.Empty(t, people)
		require.Zero(t, total)
	})

	t.Run("search and update within organization", func(t *testing.T) {
		people, total, err := crm.ListPeople(ctx, orgA.OrgID, store.PersonFilter{Page: store.Page{Page: 1, Limit: 20}, Search: "LOVE"})
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Len(t, people, 1)
		require.Empty(t, people[0].Tags)

		updated, err := crm.UpdatePerson(ctx, orgA.OrgID, person.ID, func(p *models.Person) {
			p.Title = &email
			p.OrgID = orgB.OrgID
		})
		require.NoError(t, err)
		require.Equal(t, orgA.OrgID, updated.OrgID)
	})

	t.Run("soft delete hides person", func(t *testing.T) {
		require.NoError(t, crm.DeletePerson(ctx, orgA.OrgID, person.ID))
		_, err := crm.GetPerson(ctx, orgA.OrgID, person.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("deals move through pipeline stages", func(t *testing.T) {
		pipeline := &models.Pipeline{ID: uuid.Must(uuid.NewV7()), OrgID: orgA.OrgID, Name: "Sales", CreatedAt: now}
		for i, name := range []string{"Lead", "Won"} {
			pipeline.Stages = append(pipeline.Stages, &models.Stage{
				ID: uuid.Must(uuid.NewV7()), OrgID: orgA.OrgID, PipelineID: pipeline.ID, Name: name, Position: i,
			})
		}
		require.NoError(t, crm.CreatePipeline(ctx, pipeline))

		pipelines, err := crm.ListPipelines(ctx, orgA.OrgID)
		require.NoError(t, err)
		require.Len(t, pipelines, 1)
		require.Len(t, pipelines[0].Stages, 2)

		closeDate := "2026-12-31"
		deal := &models.Deal{
			ID: uuid.Must(uuid.NewV7()), OrgID: orgA.OrgID, PipelineID: pipeline.ID, StageID: pipeline.Stages[0].ID,
			Name: "Big deal", Currency: "USD", ExpectedCloseDate: &closeDate, Status: models.DealStatusOpen,
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, crm.CreateDeal(ctx, deal))

		updated, err := crm.UpdateDeal(ctx, orgA.OrgID, deal.ID, func(d *models.Deal) {
			d.StageID = pipeline.Stages[1].ID
			d.SetStatus(models.DealStatusWon, now)
		})
		require.NoError(t, err)
		require.NotNil(t, updated.ClosedAt)

		got, err := crm.GetDeal(ctx, orgA.OrgID, deal.ID)
		require.NoError(t, err)
		require.Equal(t, closeDate, *got.ExpectedCloseDate)
		require.Equal(t, models.DealStatusWon, got.Status)

		_, err = crm.GetStage(ctx, orgB.OrgID, pipeline.Stages[0].ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, crm.DeleteDeal(ctx, orgA.OrgID, deal.ID))
		_, err = crm.GetDeal(ctx, orgA.OrgID, deal.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
