package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	// GetByDomain resolves the organization registered for an already extracted subdomain.
	GetByDomain(ctx context.Context, domain string) (*Organization, error)
}

type CreateOrganizationRequest struct {
	Name   string
	Domain string
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidDomain        = errors.New("invalid_domain")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrDomainTaken          = errors.New("domain_taken")
	ErrSlugTaken            = errors.New("slug_taken")
)
