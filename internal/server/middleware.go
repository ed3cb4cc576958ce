package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	obscontext "github.com/smallbiznis/tenantkit/internal/observability/context"
	"github.com/smallbiznis/tenantkit/internal/observability/logger"
	organizationdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
	"go.uber.org/zap"
)

const (
	HeaderOrganizationSubdomain = "X-Organization-Subdomain"

	contextIdentityKey = "identity"
	contextUserKey     = "user"

	actorTypeUser     = "user"
	actorTypeIdentity = "identity"
)

type organizationHintKey struct{}

// IdentityRequired verifies the bearer token or the access token cookie.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := s.accessTokenFromRequest(c)
		if raw == "" {
			AbortWithError(c, identitydomain.ErrUnauthenticated)
			return
		}

		ident, err := s.verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, identitydomain.ErrUnauthenticated)
			return
		}

		c.Set(contextIdentityKey, ident)
		ctx := obscontext.WithActor(c.Request.Context(), actorTypeIdentity, ident.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserRequired loads the onboarded user for the verified identity.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, identitydomain.ErrUnauthenticated)
			return
		}

		user, err := s.userSvc.Current(c.Request.Context(), ident)
		if err != nil {
			if errors.Is(err, userdomain.ErrUserNotFound) {
				AbortWithError(c, identitydomain.ErrUnauthenticated)
				return
			}
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		ctx := obscontext.WithActor(c.Request.Context(), actorTypeUser, user.ID.String())
		ctx = obscontext.WithOrgID(ctx, user.OrganizationID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OrganizationHint resolves the subdomain header set by the routing layer.
// Unknown hints are ignored.
func (s *Server) OrganizationHint() gin.HandlerFunc {
	return func(c *gin.Context) {
		hint := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderOrganizationSubdomain)))
		if hint == "" || s.organizationSvc == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		org, err := s.organizationSvc.GetByDomain(ctx, hint)
		if err != nil {
			if !errors.Is(err, organizationdomain.ErrOrganizationNotFound) && !errors.Is(err, organizationdomain.ErrInvalidDomain) {
				logger.FromContext(ctx).Warn("organization hint lookup failed", zap.Error(err))
			}
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(context.WithValue(ctx, organizationHintKey{}, org))
		c.Next()
	}
}

func (s *Server) accessTokenFromRequest(c *gin.Context) string {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	cookieName := strings.TrimSpace(s.cfg.Auth.CookieName)
	if cookieName == "" {
		cookieName = "access_token"
	}
	value, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func identityFromContext(c *gin.Context) (*identitydomain.Identity, bool) {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil, false
	}
	ident, ok := value.(*identitydomain.Identity)
	return ident, ok && ident != nil
}

func userFromContext(c *gin.Context) (*userdomain.User, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*userdomain.User)
	return user, ok && user != nil
}

func organizationHintFromContext(ctx context.Context) (*organizationdomain.Organization, bool) {
	if ctx == nil {
		return nil, false
	}
	org, ok := ctx.Value(organizationHintKey{}).(*organizationdomain.Organization)
	return org, ok && org != nil
}
