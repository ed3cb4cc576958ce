package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
)

func (s *Server) Me(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		AbortWithError(c, identitydomain.ErrUnauthenticated)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) ListOrganizationUsers(c *gin.Context) {
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

	users, err := s.userSvc.ListMembers(c.Request.Context(), requestor, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
