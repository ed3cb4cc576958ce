package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
)

const (
	ObjectMember       = "member"
	ObjectOrganization = "organization"
	ObjectInvitation   = "invitation"
)

const (
	ActionMemberView       = "member.view"
	ActionOrganizationView = "organization.view"
	ActionInvitationCreate = "invitation.create"
)

// Service answers capability questions for organization members.
type Service interface {
	Authorize(ctx context.Context, user *userdomain.User, orgID snowflake.ID, action string) error
}
