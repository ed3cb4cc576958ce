package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
)

type Service interface {
	// Current returns the onboarded user for identity, with its organization.
	Current(ctx context.Context, identity *identitydomain.Identity) (*User, error)
	ListMembers(ctx context.Context, requestor *User, orgID snowflake.ID) ([]User, error)
}
