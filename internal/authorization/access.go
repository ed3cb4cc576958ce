package authorization

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
)

var (
	ErrAccessDenied  = errors.New("access_denied")
	ErrInvalidAction = errors.New("invalid_action")
)

// ValidateOrgAccess checks that user belongs to organizationID and, when
// requiredRole is set, holds at least that role. It performs no I/O.
func ValidateOrgAccess(user *userdomain.User, organizationID snowflake.ID, requiredRole userdomain.Role) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrAccessDenied)
	}
	if organizationID == 0 || user.OrganizationID != organizationID {
		return fmt.Errorf("%w: user does not belong to this organization", ErrAccessDenied)
	}
	if requiredRole != "" && !user.Role.AtLeast(requiredRole) {
		return fmt.Errorf("%w: %s role required", ErrAccessDenied, requiredRole)
	}
	return nil
}
