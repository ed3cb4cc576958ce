package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantkit/internal/authorization"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/internal/config"
	"github.com/smallbiznis/tenantkit/internal/events"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	"github.com/smallbiznis/tenantkit/internal/invitation/domain"
	obslogger "github.com/smallbiznis/tenantkit/internal/observability/logger"
	"github.com/smallbiznis/tenantkit/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
	"github.com/smallbiznis/tenantkit/internal/providers/email"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
	"github.com/smallbiznis/tenantkit/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const acceptInvitePath = "accept-invite"

const (
	stageValidate = "validate"
	stageAccept   = "accept"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Authz     authorization.Service
	Repo      domain.Repository
	UserRepo  userdomain.Repository
	OrgRepo   orgdomain.Repository
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Policy    *config.InvitationPolicyHolder
	Email     email.Provider   `optional:"true"`
	Publisher events.Publisher `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

type Service struct {
	db        *gorm.DB
	authz     authorization.Service
	repo      domain.Repository
	userRepo  userdomain.Repository
	orgRepo   orgdomain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	appURL    string
	policy    *config.InvitationPolicyHolder
	email     email.Provider
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		authz:     p.Authz,
		repo:      p.Repo,
		userRepo:  p.UserRepo,
		orgRepo:   p.OrgRepo,
		genID:     p.GenID,
		clock:     p.Clock,
		appURL:    p.Config.AppURL,
		policy:    p.Policy,
		email:     p.Email,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		log:       p.Log.Named("invitation.service"),
	}
}

type invitationIssuedPayload struct {
	InvitationID   string    `json:"invitation_id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	InvitedBy      string    `json:"invited_by"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type invitationAcceptedPayload struct {
	InvitationID   string `json:"invitation_id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
}

// Validate checks a raw token against stored invitations without side effects.
func (s *Service) Validate(ctx context.Context, token string) (domain.ValidationResult, error) {
	return s.validate(ctx, stageValidate, token)
}

func (s *Service) validate(ctx context.Context, stage, token string) (domain.ValidationResult, error) {
	if strings.TrimSpace(token) == "" {
		return s.reject(ctx, stage, domain.ErrInvalidToken), nil
	}

	inv, err := s.repo.FindByTokenHash(ctx, domain.HashToken(token))
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("lookup invitation: %w", err)
	}

	switch {
	case inv == nil || !domain.VerifyToken(token, inv.TokenHash):
		return s.reject(ctx, stage, domain.ErrInvalidToken), nil
	case inv.IsUsed():
		return s.reject(ctx, stage, domain.ErrAlreadyUsed), nil
	case inv.IsExpired(s.clock.Now()):
		return s.reject(ctx, stage, domain.ErrExpired), nil
	}

	return domain.ValidationResult{
		Valid: true,
		Invitation: &domain.ValidInvitation{
			ID:             inv.ID,
			OrganizationID: inv.OrganizationID,
			Email:          inv.Email,
			Role:           inv.Role,
		},
	}, nil
}

// Issue creates a single-use invitation and returns the URL carrying its raw token.
func (s *Service) Issue(ctx context.Context, requestor *userdomain.User, req domain.IssueRequest) (*domain.IssueResult, error) {
	if requestor == nil {
		return nil, identitydomain.ErrUnauthenticated
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, domain.ErrInvalidEmail
	}

	// Nothing about the request content is reported before access is granted.
	if err := authorization.ValidateOrgAccess(requestor, req.OrganizationID, userdomain.RoleOrgAdmin); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, requestor, req.OrganizationID, authorization.ActionInvitationCreate); err != nil {
		return nil, err
	}

	emailAddr, err := normalizeAddress(req.Email)
	if err != nil {
		return nil, err
	}
	role, err := userdomain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if !s.policy.Get().AllowsEmail(emailAddr) {
		return nil, domain.ErrEmailNotAllowed
	}

	existingUser, err := s.userRepo.FindByEmail(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, userdomain.ErrUserExists
	}

	now := s.clock.Now()
	pending, err := s.repo.FindValid(ctx, req.OrganizationID, emailAddr, now)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, domain.ErrDuplicateInvitation
	}

	token, err := domain.GenerateToken()
	if err != nil {
		return nil, err
	}
	inv := &domain.Invitation{
		ID:             s.genID.Generate(),
		OrganizationID: req.OrganizationID,
		Email:          emailAddr,
		Role:           role,
		TokenHash:      domain.HashToken(token),
		ExpiresAt:      now.Add(domain.InvitationTTL),
		InvitedBy:      requestor.ID,
		CreatedAt:      now,
	}

	// The organization row lock serializes concurrent issuance for the same
	// organization so the pending-invitation check sees committed rows.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.orgRepo.WithTx(tx).LockByID(ctx, req.OrganizationID)
		if err != nil {
			return err
		}
		if org == nil {
			return orgdomain.ErrOrganizationNotFound
		}
		created, err := s.repo.WithTx(tx).CreateIfNoneValid(ctx, inv, now)
		if err != nil {
			return err
		}
		if !created {
			return domain.ErrDuplicateInvitation
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inviteURL, err := buildInviteURL(s.appURL, token)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvitationIssued(ctx, role.String())
	s.afterIssue(ctx, requestor, inv, inviteURL)

	return &domain.IssueResult{
		InviteURL: inviteURL,
		Invitation: domain.IssuedInvitation{
			ID:        inv.ID,
			Email:     inv.Email,
			Role:      inv.Role,
			ExpiresAt: inv.ExpiresAt,
		},
	}, nil
}

// Accept consumes a valid invitation and creates the user for identity.
func (s *Service) Accept(ctx context.Context, ident *identitydomain.Identity, token string) (*userdomain.User, error) {
	if ident == nil || strings.TrimSpace(ident.ID) == "" {
		return nil, identitydomain.ErrUnauthenticated
	}
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrTokenRequired
	}

	result, err := s.validate(ctx, stageAccept, token)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, result.Err
	}
	inv := result.Invitation

	existing, err := s.userRepo.FindByAuthUserID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, s.rejectErr(ctx, userdomain.ErrAlreadyOnboarded)
	}

	if !strings.EqualFold(strings.TrimSpace(ident.Email), strings.TrimSpace(inv.Email)) {
		return nil, s.rejectErr(ctx, domain.ErrEmailMismatch)
	}

	now := s.clock.Now()
	name := ident.DisplayName()
	user := &userdomain.User{
		ID:             s.genID.Generate(),
		OrganizationID: inv.OrganizationID,
		AuthUserID:     ident.ID,
		Email:          inv.Email,
		Name:           &name,
		Role:           inv.Role,
		Status:         userdomain.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		marked, err := s.repo.WithTx(tx).MarkUsed(ctx, inv.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return domain.ErrAlreadyUsed
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, s.rejectErr(ctx, s.classifyUserConflict(ctx, ident.ID))
		}
		if errors.Is(err, domain.ErrAlreadyUsed) {
			return nil, s.rejectErr(ctx, err)
		}
		return nil, err
	}

	org, err := s.orgRepo.FindByID(ctx, user.OrganizationID)
	if err != nil {
		s.log.Warn("failed to load organization for accepted invitation",
			zap.String("org_id", user.OrganizationID.String()),
			zap.Error(err),
		)
	}
	user.Organization = org

	s.metrics.RecordInvitationAccepted(ctx, user.Role.String())
	s.publish(ctx, inv.OrganizationID, events.InvitationAccepted, invitationAcceptedPayload{
		InvitationID:   inv.ID.String(),
		OrganizationID: inv.OrganizationID.String(),
		UserID:         user.ID.String(),
		Role:           user.Role.String(),
	})

	return user, nil
}

func (s *Service) afterIssue(ctx context.Context, requestor *userdomain.User, inv *domain.Invitation, inviteURL string) {
	s.publish(ctx, inv.OrganizationID, events.InvitationIssued, invitationIssuedPayload{
		InvitationID:   inv.ID.String(),
		OrganizationID: inv.OrganizationID.String(),
		Email:          inv.Email,
		Role:           inv.Role.String(),
		InvitedBy:      inv.InvitedBy.String(),
		ExpiresAt:      inv.ExpiresAt,
	})

	if s.email == nil {
		return
	}
	data := email.InviteMemberData{
		Role:      inv.Role.String(),
		InviteURL: inviteURL,
		ExpiresAt: inv.ExpiresAt.Format("January 2, 2006"),
	}
	if requestor.Name != nil {
		data.InviterName = *requestor.Name
	}
	if org, err := s.orgRepo.FindByID(ctx, inv.OrganizationID); err == nil && org != nil {
		data.OrgName = org.Name
	}
	if err := s.email.SendTemplate(ctx, []string{inv.Email}, email.TemplateInviteMember, data); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to send invitation email",
			zap.String("invitation_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, orgID, topic, payload); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to publish event",
			zap.String("topic", topic),
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) classifyUserConflict(ctx context.Context, authUserID string) error {
	existing, err := s.userRepo.FindByAuthUserID(ctx, authUserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return userdomain.ErrAlreadyOnboarded
	}
	return userdomain.ErrUserExists
}

func (s *Service) reject(ctx context.Context, stage string, reason error) domain.ValidationResult {
	s.metrics.RecordInvitationRejected(ctx, stage, reason.Error())
	return domain.ValidationResult{Valid: false, Err: reason}
}

func (s *Service) rejectErr(ctx context.Context, reason error) error {
	s.metrics.RecordInvitationRejected(ctx, stageAccept, reason.Error())
	return reason
}

func normalizeAddress(raw string) (string, error) {
	value := userdomain.NormalizeEmail(raw)
	if value == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", domain.ErrInvalidEmail
	}
	return value, nil
}

func buildInviteURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return "", fmt.Errorf("parse app url: %w", err)
	}
	u = u.JoinPath(acceptInvitePath)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
