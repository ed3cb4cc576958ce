package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantkit/internal/authorization"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	organizationdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
)

type createOrganizationRequest struct {
	OrganizationName string `json:"organization_name"`
	Domain           string `json:"domain"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	ident, ok := identityFromContext(c)
	if !ok {
		AbortWithError(c, identitydomain.ErrUnauthenticated)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, user, err := s.orgBootstrap.CreateInitial(c.Request.Context(), ident, organizationdomain.CreateOrganizationRequest{
		Name:   req.OrganizationName,
		Domain: req.Domain,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"organization": org,
		"user":         user,
	})
}

func (s *Server) GetOrganization(c *gin.Context) {
	requestor, ok := userFromContext(c)
	if !ok {
		AbortWithError(c, identitydomain.ErrUnauthenticated)
		return
	}

	orgID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || orgID == 0 {
		AbortWithError(c, newValidationError("id", "invalid_organization", "invalid organization id"))
		return
	}

	if err := s.authz.Authorize(c.Request.Context(), requestor, orgID, authorization.ActionOrganizationView); err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.organizationSvc.GetByID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": org})
}
