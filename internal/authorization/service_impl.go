package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize requires membership of orgID and a role holding the capability.
func (s *ServiceImpl) Authorize(ctx context.Context, user *userdomain.User, orgID snowflake.ID, action string) error {
	action = strings.TrimSpace(action)
	object, _, ok := strings.Cut(action, ".")
	if !ok || object == "" {
		return ErrInvalidAction
	}

	if err := ValidateOrgAccess(user, orgID, ""); err != nil {
		return err
	}

	subject := roleSubject(user.Role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("capability denied",
			zap.String("user_id", user.ID.String()),
			zap.String("org_id", orgID.String()),
			zap.String("role", user.Role.String()),
			zap.String("action", action),
		)
		return fmt.Errorf("%w: %s not permitted for role %s", ErrAccessDenied, action, user.Role)
	}
	return nil
}

func roleSubject(role userdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSubject(userdomain.RoleUser), ObjectMember, ActionMemberView},
		{roleSubject(userdomain.RoleUser), ObjectOrganization, ActionOrganizationView},
		{roleSubject(userdomain.RoleOrgAdmin), ObjectInvitation, ActionInvitationCreate},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	// ORG_ADMIN inherits every USER capability.
	admin, member := roleSubject(userdomain.RoleOrgAdmin), roleSubject(userdomain.RoleUser)
	has, err := enforcer.HasGroupingPolicy(admin, member)
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy(admin, member); err != nil {
			return err
		}
	}
	return nil
}
