package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateIfNoneValid inserts inv unless a valid invitation for the same
	// organization and email exists at now. It reports whether a row was written.
	CreateIfNoneValid(ctx context.Context, inv *Invitation, now time.Time) (bool, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	FindValid(ctx context.Context, orgID snowflake.ID, email string, now time.Time) (*Invitation, error)
	// MarkUsed sets used_at only if it is still unset and reports whether it did.
	MarkUsed(ctx context.Context, id snowflake.ID, usedAt time.Time) (bool, error)
}
