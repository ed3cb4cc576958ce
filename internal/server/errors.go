package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantkit/internal/authorization"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	invitationdomain "github.com/smallbiznis/tenantkit/internal/invitation/domain"
	organizationdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

const (
	errorTypeUnauthenticated     = "unauthenticated"
	errorTypeAccessDenied        = "access_denied"
	errorTypeUserExists          = "user_exists"
	errorTypeAlreadyOnboarded    = "already_onboarded"
	errorTypeDuplicateInvitation = "duplicate_invitation"
	errorTypeInvalidToken        = "invalid_token"
	errorTypeAlreadyUsed         = "already_used"
	errorTypeExpired             = "expired"
	errorTypeEmailMismatch       = "email_mismatch"
	errorTypeValidation          = "validation_error"
	errorTypeNotFound            = "not_found"
	errorTypeConflict            = "conflict"
	errorTypeRateLimited         = "rate_limited"
	errorTypeUnavailable         = "service_unavailable"
	errorTypeInternal            = "internal_error"
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    errorTypeInternal,
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeValidation,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, identitydomain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorPayload{
			Type:    errorTypeUnauthenticated,
			Message: "authentication required",
		}
	case errors.Is(err, authorization.ErrAccessDenied):
		return http.StatusForbidden, errorPayload{
			Type:    errorTypeAccessDenied,
			Message: accessDeniedMessage(err),
		}
	case errors.Is(err, userdomain.ErrUserExists):
		return http.StatusConflict, errorPayload{
			Type:    errorTypeUserExists,
			Message: "a user with this email already exists",
		}
	case errors.Is(err, userdomain.ErrAlreadyOnboarded):
		return http.StatusConflict, errorPayload{
			Type:    errorTypeAlreadyOnboarded,
			Message: "user is already a member of an organization",
		}
	case errors.Is(err, invitationdomain.ErrDuplicateInvitation):
		return http.StatusConflict, errorPayload{
			Type:    errorTypeDuplicateInvitation,
			Message: "a pending invitation already exists for this email",
		}
	case errors.Is(err, organizationdomain.ErrDomainTaken):
		return http.StatusConflict, errorPayload{
			Type:    errorTypeConflict,
			Message: "domain is already taken",
		}
	case errors.Is(err, organizationdomain.ErrSlugTaken):
		return http.StatusConflict, errorPayload{
			Type:    errorTypeConflict,
			Message: "organization slug is already taken",
		}
	case errors.Is(err, invitationdomain.ErrInvalidToken):
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeInvalidToken,
			Message: "invalid invitation token",
		}
	case errors.Is(err, invitationdomain.ErrAlreadyUsed):
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeAlreadyUsed,
			Message: "invitation has already been used",
		}
	case errors.Is(err, invitationdomain.ErrExpired):
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeExpired,
			Message: "invitation has expired",
		}
	case errors.Is(err, invitationdomain.ErrEmailMismatch):
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeEmailMismatch,
			Message: "invitation was issued for a different email",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    errorTypeNotFound,
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    errorTypeRateLimited,
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    errorTypeUnavailable,
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    errorTypeInternal,
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and the most specific error code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func accessDeniedMessage(err error) string {
	reason := strings.TrimSpace(strings.TrimPrefix(err.Error(), authorization.ErrAccessDenied.Error()+":"))
	if reason == "" || reason == err.Error() {
		return "access denied"
	}
	return reason
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invitationdomain.ErrTokenRequired),
		errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, invitationdomain.ErrInvalidOrganization),
		errors.Is(err, invitationdomain.ErrEmailNotAllowed),
		errors.Is(err, userdomain.ErrInvalidRole),
		errors.Is(err, userdomain.ErrInvalidEmail),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidDomain),
		errors.Is(err, organizationdomain.ErrInvalidOrganization),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, invitationdomain.ErrInvalidOrganization),
		errors.Is(err, organizationdomain.ErrInvalidOrganization):
		return "invalid_organization"
	case errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, userdomain.ErrInvalidEmail):
		return "invalid_email"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "token_required":
		return "token"
	case "email_domain_not_allowed":
		return "email"
	case "invalid_organization":
		return "organization_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "token_required":
		return "token is required"
	case "email_domain_not_allowed":
		return "email domain is not allowed"
	case "invalid_email":
		return "a valid email address is required"
	case "invalid_name":
		return "organization name is required"
	default:
		return "invalid value"
	}
}
