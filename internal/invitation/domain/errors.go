package domain

import "errors"

var (
	ErrInvalidToken        = errors.New("invalid_token")
	ErrAlreadyUsed         = errors.New("already_used")
	ErrExpired             = errors.New("expired")
	ErrEmailMismatch       = errors.New("email_mismatch")
	ErrDuplicateInvitation = errors.New("duplicate_invitation")

	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrEmailNotAllowed     = errors.New("email_domain_not_allowed")
	ErrTokenRequired       = errors.New("token_required")
)
