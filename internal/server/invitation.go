package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	invitationdomain "github.com/smallbiznis/tenantkit/internal/invitation/domain"
)

type issueInvitationRequest struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

type validateInvitationResponse struct {
	Valid      bool                              `json:"valid"`
	Invitation *invitationdomain.ValidInvitation `json:"invitation,omitempty"`
	Error      string                            `json:"error,omitempty"`
}

func (s *Server) IssueInvitation(c *gin.Context) {
	requestor, ok := userFromContext(c)
	if !ok {
		AbortWithError(c, identitydomain.ErrUnauthenticated)
		return
	}

	var req issueInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID, err := s.resolveInvitationOrganization(c, req.OrganizationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.invitationSvc.Issue(c.Request.Context(), requestor, invitationdomain.IssueRequest{
		OrganizationID: orgID,
		Email:          req.Email,
		Role:           req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"invite_url": result.InviteURL,
		"invitation": result.Invitation,
	})
}

// resolveInvitationOrganization prefers the explicit body value and falls back
// to the organization hint.
func (s *Server) resolveInvitationOrganization(c *gin.Context, raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			return 0, newValidationError("organization_id", "invalid_organization", "invalid organization id")
		}
		return parsed, nil
	}

	if org, ok := organizationHintFromContext(c.Request.Context()); ok {
		return org.ID, nil
	}
	return 0, invitationdomain.ErrInvalidOrganization
}

func (s *Server) ValidateInvitation(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))

	result, err := s.invitationSvc.Validate(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := validateInvitationResponse{
		Valid:      result.Valid,
		Invitation: result.Invitation,
	}
	if !result.Valid && result.Err != nil {
		resp.Error = result.Err.Error()
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	ident, ok := identityFromContext(c)
	if !ok {
		AbortWithError(c, identitydomain.ErrUnauthenticated)
		return
	}

	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.invitationSvc.Accept(c.Request.Context(), ident, req.Token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user,
	})
}
