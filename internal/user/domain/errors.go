package domain

import "errors"

var (
	ErrUserExists       = errors.New("user_exists")
	ErrAlreadyOnboarded = errors.New("already_onboarded")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidEmail     = errors.New("invalid_email")
)
