package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/internal/events"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	"github.com/smallbiznis/tenantkit/internal/migration"
	"github.com/smallbiznis/tenantkit/internal/observability/metrics"
	"github.com/smallbiznis/tenantkit/internal/organization/domain"
	"github.com/smallbiznis/tenantkit/internal/organization/repository"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
	userrepository "github.com/smallbiznis/tenantkit/internal/user/repository"
	"github.com/smallbiznis/tenantkit/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// staleSlugRepo reports every slug as free inside a transaction, as a
// concurrent bootstrap that committed after the check would look.
type staleSlugRepo struct {
	domain.Repository
	inTx bool
}

func (r staleSlugRepo) WithTx(tx *gorm.DB) domain.Repository {
	return staleSlugRepo{Repository: r.Repository.WithTx(tx), inTx: true}
}

func (r staleSlugRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	if r.inTx {
		return false, nil
	}
	return r.Repository.SlugExists(ctx, slug)
}

type testEnv struct {
	conn *gorm.DB
	node *snowflake.Node
	svc  *Service
}

func newTestEnv(t *testing.T, wrap func(domain.Repository) domain.Repository) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(baseTime)

	repo := repository.NewRepository(conn)
	if wrap != nil {
		repo = wrap(repo)
	}

	svc := NewService(Params{
		DB:        conn,
		Repo:      repo,
		UserRepo:  userrepository.NewRepository(conn),
		GenID:     node,
		Clock:     clk,
		Publisher: events.NewOutboxPublisher(conn, node, clk),
		Metrics:   metrics.NewNoop(),
		Log:       zaptest.NewLogger(t),
	})
	return &testEnv{conn: conn, node: node, svc: svc}
}

func (e *testEnv) seedOrg(t *testing.T, name, slug string, orgDomain *string) *domain.Organization {
	t.Helper()
	org := &domain.Organization{
		ID:        e.node.Generate(),
		Name:      name,
		Slug:      slug,
		Domain:    orgDomain,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	require.NoError(t, e.conn.Create(org).Error)
	return org
}

func identityFor(id, addr string) *identitydomain.Identity {
	return &identitydomain.Identity{ID: id, Email: addr}
}

func TestCreateInitialCreatesOrganizationAndAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	org, user, err := env.svc.CreateInitial(context.Background(), identityFor("auth-1", "Owner@Acme.test"), domain.CreateOrganizationRequest{
		Name:   " Acme Corp ",
		Domain: "ACME",
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", org.Name)
	assert.Equal(t, "acme-corp", org.Slug)
	require.NotNil(t, org.Domain)
	assert.Equal(t, "acme", *org.Domain)
	assert.Equal(t, org.ID, user.OrganizationID)
	assert.Equal(t, userdomain.RoleOrgAdmin, user.Role)
	assert.Equal(t, "owner@acme.test", user.Email)

	var outbox []events.OutboxEvent
	require.NoError(t, env.conn.Where("event_type = ?", events.OrganizationCreated).Find(&outbox).Error)
	assert.Len(t, outbox, 1)
}

func TestCreateInitialSuffixesTakenSlug(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedOrg(t, "Acme Corp", "acme-corp", nil)

	org, _, err := env.svc.CreateInitial(context.Background(), identityFor("auth-1", "owner@acme.test"), domain.CreateOrganizationRequest{Name: "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp-"+strings.ToLower(org.ID.Base36()), org.Slug)
}

func TestCreateInitialRetriesConcurrentSlugCollision(t *testing.T) {
	env := newTestEnv(t, func(r domain.Repository) domain.Repository { return staleSlugRepo{Repository: r} })
	env.seedOrg(t, "Acme Corp", "acme-corp", nil)

	org, user, err := env.svc.CreateInitial(context.Background(), identityFor("auth-1", "owner@acme.test"), domain.CreateOrganizationRequest{Name: "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp-"+strings.ToLower(org.ID.Base36()), org.Slug)
	assert.Equal(t, org.ID, user.OrganizationID)

	var n int64
	require.NoError(t, env.conn.Model(&domain.Organization{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestCreateInitialConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	taken := "acme"
	env.seedOrg(t, "Acme", "acme", &taken)

	_, _, err := env.svc.CreateInitial(ctx, identityFor("auth-1", "owner@globex.test"), domain.CreateOrganizationRequest{Name: "Globex", Domain: "acme"})
	assert.ErrorIs(t, err, domain.ErrDomainTaken)

	_, _, err = env.svc.CreateInitial(ctx, identityFor("auth-1", "owner@globex.test"), domain.CreateOrganizationRequest{Name: "Globex"})
	require.NoError(t, err)

	_, _, err = env.svc.CreateInitial(ctx, identityFor("auth-1", "owner@globex.test"), domain.CreateOrganizationRequest{Name: "Globex Two"})
	assert.ErrorIs(t, err, userdomain.ErrAlreadyOnboarded)

	_, _, err = env.svc.CreateInitial(ctx, identityFor("auth-2", "OWNER@globex.test"), domain.CreateOrganizationRequest{Name: "Globex Three"})
	assert.ErrorIs(t, err, userdomain.ErrUserExists)

	var n int64
	require.NoError(t, env.conn.Model(&domain.Organization{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestCreateInitialValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, _, err := env.svc.CreateInitial(ctx, nil, domain.CreateOrganizationRequest{Name: "Acme"})
	assert.ErrorIs(t, err, identitydomain.ErrUnauthenticated)

	_, _, err = env.svc.CreateInitial(ctx, identityFor("auth-1", "owner@acme.test"), domain.CreateOrganizationRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, _, err = env.svc.CreateInitial(ctx, identityFor("auth-1", "owner@acme.test"), domain.CreateOrganizationRequest{Name: "Acme", Domain: "acme.test/x"})
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
}

func TestGetByID(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	seeded := env.seedOrg(t, "Acme", "acme", nil)

	org, err := env.svc.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)

	_, err = env.svc.GetByID(ctx, env.node.Generate())
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	_, err = env.svc.GetByID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestLockByID(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seedOrg(t, "Acme", "acme", nil)
	repo := repository.NewRepository(env.conn)

	err := env.conn.Transaction(func(tx *gorm.DB) error {
		org, err := repo.WithTx(tx).LockByID(context.Background(), seeded.ID)
		require.NoError(t, err)
		require.NotNil(t, org)
		assert.Equal(t, seeded.ID, org.ID)

		missing, err := repo.WithTx(tx).LockByID(context.Background(), env.node.Generate())
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}
