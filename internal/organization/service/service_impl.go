package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/internal/events"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	"github.com/smallbiznis/tenantkit/internal/observability/metrics"
	"github.com/smallbiznis/tenantkit/internal/organization/domain"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
	"github.com/smallbiznis/tenantkit/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Repo      domain.Repository
	UserRepo  userdomain.Repository
	GenID     *snowflake.Node
	Clock     clock.Clock
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

// Service bootstraps organizations and resolves them by id or domain.
type Service struct {
	db        *gorm.DB
	repo      domain.Repository
	userRepo  userdomain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		repo:      p.Repo,
		userRepo:  p.UserRepo,
		genID:     p.GenID,
		clock:     p.Clock,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		log:       p.Log.Named("organization.service"),
	}
}

type organizationCreatedPayload struct {
	OrganizationID string `json:"organization_id"`
	AdminUserID    string `json:"admin_user_id"`
}

// CreateInitial creates an organization together with its first ORG_ADMIN user
// for an identity that has not been onboarded yet.
func (s *Service) CreateInitial(ctx context.Context, ident *identitydomain.Identity, req domain.CreateOrganizationRequest) (*domain.Organization, *userdomain.User, error) {
	if ident == nil || strings.TrimSpace(ident.ID) == "" {
		return nil, nil, identitydomain.ErrUnauthenticated
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, domain.ErrInvalidName
	}

	email := userdomain.NormalizeEmail(ident.Email)
	if email == "" {
		return nil, nil, userdomain.ErrInvalidEmail
	}

	var orgDomain *string
	if value := strings.ToLower(strings.TrimSpace(req.Domain)); value != "" {
		if strings.ContainsAny(value, " /:@") {
			return nil, nil, domain.ErrInvalidDomain
		}
		orgDomain = &value
	}

	existing, err := s.userRepo.FindByAuthUserID(ctx, ident.ID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, userdomain.ErrAlreadyOnboarded
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Domain:    orgDomain,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	displayName := ident.DisplayName()
	user := &userdomain.User{
		ID:             s.genID.Generate(),
		OrganizationID: org.ID,
		AuthUserID:     ident.ID,
		Email:          email,
		Name:           &displayName,
		Role:           userdomain.RoleOrgAdmin,
		Status:         userdomain.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			if attempt == 0 {
				slugValue, err := s.uniqueSlug(ctx, repo, name, org.ID)
				if err != nil {
					return err
				}
				org.Slug = slugValue
			} else {
				org.Slug = suffixedSlug(name, org.ID)
			}

			if err := repo.CreateOrganization(ctx, org); err != nil {
				return err
			}
			return s.userRepo.WithTx(tx).Create(ctx, user)
		})
		if err == nil {
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, nil, err
		}

		retry, conflict := s.classifyBootstrapConflict(ctx, ident.ID, org, attempt == 0)
		if !retry {
			return nil, nil, conflict
		}
		s.log.Info("organization slug taken concurrently, retrying with suffix",
			zap.String("slug", org.Slug),
			zap.String("org_id", org.ID.String()),
		)
	}

	user.Organization = org
	s.metrics.RecordOrganizationCreated(ctx)
	s.emitOrganizationCreated(ctx, org, user)

	return org, user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) GetByDomain(ctx context.Context, value string) (*domain.Organization, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, domain.ErrInvalidDomain
	}
	org, err := s.repo.FindByDomain(ctx, value)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) uniqueSlug(ctx context.Context, repo domain.Repository, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	taken, err := repo.SlugExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	return suffixedSlug(name, id), nil
}

func suffixedSlug(name string, id snowflake.ID) string {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	return base + "-" + strings.ToLower(id.Base36())
}

// classifyBootstrapConflict runs after a unique violation during bootstrap.
// It returns retry when only the slug collided and the suffixed slug has not
// been tried yet, and the error to report otherwise.
func (s *Service) classifyBootstrapConflict(ctx context.Context, authUserID string, org *domain.Organization, canRetry bool) (bool, error) {
	existing, err := s.userRepo.FindByAuthUserID(ctx, authUserID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, userdomain.ErrAlreadyOnboarded
	}

	if org.Domain != nil {
		taken, err := s.repo.FindByDomain(ctx, *org.Domain)
		if err != nil {
			return false, err
		}
		if taken != nil {
			return false, domain.ErrDomainTaken
		}
	}

	slugTaken, err := s.repo.SlugExists(ctx, org.Slug)
	if err != nil {
		return false, err
	}
	if slugTaken {
		if canRetry {
			return true, nil
		}
		return false, domain.ErrSlugTaken
	}
	return false, userdomain.ErrUserExists
}

func (s *Service) emitOrganizationCreated(ctx context.Context, org *domain.Organization, admin *userdomain.User) {
	if s.publisher == nil {
		return
	}
	payload := organizationCreatedPayload{
		OrganizationID: org.ID.String(),
		AdminUserID:    admin.ID.String(),
	}
	if err := s.publisher.Publish(ctx, org.ID, events.OrganizationCreated, payload); err != nil {
		s.log.Warn("failed to publish organization created event",
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
	}
}

var _ domain.Service = (*Service)(nil)

// AsDomainService exposes the concrete service under its lookup interface.
func AsDomainService(s *Service) domain.Service { return s }
