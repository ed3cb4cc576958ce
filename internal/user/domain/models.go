// Package domain contains persistence models for users.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
)

// Role is an organization-scoped role. Roles are ordered: USER < ORG_ADMIN.
type Role string

const (
	RoleUser     Role = "USER"
	RoleOrgAdmin Role = "ORG_ADMIN"
)

const StatusActive = "active"

var roleRank = map[Role]int{
	RoleUser:     1,
	RoleOrgAdmin: 2,
}

// ParseRole normalizes raw into a known role. Empty input yields RoleUser.
func ParseRole(raw string) (Role, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return RoleUser, nil
	}
	role := Role(value)
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the position of r in the role order, 0 for unknown roles.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r grants everything required grants.
func (r Role) AtLeast(required Role) bool {
	return r.Valid() && r.Rank() >= required.Rank()
}

func (r Role) String() string { return string(r) }

// User is a member of exactly one organization, linked to one external identity.
type User struct {
	ID             snowflake.ID            `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID            `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Organization   *orgdomain.Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	AuthUserID     string                  `gorm:"column:auth_user_id;type:varchar(255);not null;uniqueIndex:ux_users_auth_user_id" json:"auth_user_id"`
	Email          string                  `gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email" json:"email"`
	Name           *string                 `gorm:"type:varchar(255)" json:"name"`
	Role           Role                    `gorm:"type:varchar(32);not null" json:"role"`
	Status         string                  `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt      time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time               `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// NormalizeEmail trims and lower-cases an address for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultName derives a display name from the local part of an email address.
func DefaultName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}
