package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
)

// InvitationTTL is how long an issued invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation grants an email address a role in an organization. Only the
// hash of the token is stored.
type Invitation struct {
	ID             snowflake.ID            `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID            `gorm:"column:organization_id;not null;index:ix_invitations_org_email,priority:1" json:"organization_id"`
	Organization   *orgdomain.Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Email          string                  `gorm:"type:varchar(320);not null;index:ix_invitations_org_email,priority:2" json:"email"`
	Role           userdomain.Role         `gorm:"type:varchar(32);not null" json:"role"`
	TokenHash      string                  `gorm:"column:token_hash;type:char(64);not null;uniqueIndex:ux_invitations_token_hash" json:"-"`
	ExpiresAt      time.Time               `gorm:"column:expires_at;not null" json:"expires_at"`
	UsedAt         *time.Time              `gorm:"column:used_at" json:"used_at"`
	InvitedBy      snowflake.ID            `gorm:"column:invited_by;not null" json:"invited_by"`
	CreatedAt      time.Time               `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }

// IsUsed reports whether the invitation has been consumed.
func (i Invitation) IsUsed() bool { return i.UsedAt != nil }

// IsExpired reports whether now is at or past the expiry instant.
func (i Invitation) IsExpired(now time.Time) bool { return !i.ExpiresAt.After(now) }

// ValidInvitation is the projection exposed for a valid invitation.
type ValidInvitation struct {
	ID             snowflake.ID    `json:"id"`
	OrganizationID snowflake.ID    `json:"organization_id"`
	Email          string          `json:"email"`
	Role           userdomain.Role `json:"role"`
}

// ValidationResult is the outcome of checking a raw token. Err carries the
// rejection reason when Valid is false.
type ValidationResult struct {
	Valid      bool
	Invitation *ValidInvitation
	Err        error
}

type IssueRequest struct {
	OrganizationID snowflake.ID
	Email          string
	Role           string
}

type IssuedInvitation struct {
	ID        snowflake.ID    `json:"id"`
	Email     string          `json:"email"`
	Role      userdomain.Role `json:"role"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type IssueResult struct {
	InviteURL  string           `json:"invite_url"`
	Invitation IssuedInvitation `json:"invitation"`
}
