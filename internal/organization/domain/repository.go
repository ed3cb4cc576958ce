package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org *Organization) error
	FindByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	LockByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindByDomain(ctx context.Context, domain string) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}
