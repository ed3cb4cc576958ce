package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantkit/internal/authorization"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	"github.com/smallbiznis/tenantkit/internal/user/domain"
	"go.uber.org/zap"
)

type service struct {
	repo  domain.Repository
	authz authorization.Service
	log   *zap.Logger
}

func NewService(repo domain.Repository, authz authorization.Service, log *zap.Logger) domain.Service {
	return &service{
		repo:  repo,
		authz: authz,
		log:   log.Named("user.service"),
	}
}

func (s *service) Current(ctx context.Context, ident *identitydomain.Identity) (*domain.User, error) {
	if ident == nil || strings.TrimSpace(ident.ID) == "" {
		return nil, identitydomain.ErrUnauthenticated
	}
	user, err := s.repo.FindByAuthUserID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *service) ListMembers(ctx context.Context, requestor *domain.User, orgID snowflake.ID) ([]domain.User, error) {
	if err := s.authz.Authorize(ctx, requestor, orgID, authorization.ActionMemberView); err != nil {
		return nil, err
	}
	users, err := s.repo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	s.log.Debug("listed organization members",
		zap.String("org_id", orgID.String()),
		zap.Int("count", len(users)),
	)
	return users, nil
}
