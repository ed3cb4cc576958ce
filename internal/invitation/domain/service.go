package domain

import (
	"context"

	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
)

type Service interface {
	// Validate never returns a rejection as error; it is reserved for infrastructure failures.
	Validate(ctx context.Context, token string) (ValidationResult, error)
	Issue(ctx context.Context, requestor *userdomain.User, req IssueRequest) (*IssueResult, error)
	Accept(ctx context.Context, identity *identitydomain.Identity, token string) (*userdomain.User, error)
}
