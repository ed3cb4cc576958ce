package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantkit/internal/invitation/domain"
	"github.com/smallbiznis/tenantkit/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

const insertIfNoneValidSQL = `INSERT INTO invitations
	(id, organization_id, email, role, token_hash, expires_at, invited_by, created_at)
	SELECT %s
	WHERE NOT EXISTS (
		SELECT 1 FROM invitations
		WHERE organization_id = ? AND email = ? AND used_at IS NULL AND expires_at > ?
	)`

func (r *repository) CreateIfNoneValid(ctx context.Context, inv *domain.Invitation, now time.Time) (bool, error) {
	query := insertIfNoneValidStatement(r.db.Dialector.Name())
	res := r.db.WithContext(ctx).Exec(query,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		string(inv.Role),
		inv.TokenHash,
		inv.ExpiresAt,
		inv.InvitedBy,
		inv.CreatedAt,
		inv.OrganizationID,
		inv.Email,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindValid(ctx context.Context, orgID snowflake.ID, email string, now time.Time) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND email = ? AND used_at IS NULL AND expires_at > ?", orgID, email, now).
		Order("created_at DESC").
		Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) MarkUsed(ctx context.Context, id snowflake.ID, usedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func insertIfNoneValidStatement(dialect string) string {
	switch dialect {
	case db.TypePostgres:
		// Parameters in a bare SELECT list are untyped in postgres.
		return fmt.Sprintf(insertIfNoneValidSQL,
			"CAST(? AS BIGINT), CAST(? AS BIGINT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TIMESTAMPTZ), CAST(? AS BIGINT), CAST(? AS TIMESTAMPTZ)")
	case db.TypeMySQL:
		return fmt.Sprintf(insertIfNoneValidSQL, "?, ?, ?, ?, ?, ?, ?, ? FROM DUAL")
	default:
		return fmt.Sprintf(insertIfNoneValidSQL, "?, ?, ?, ?, ?, ?, ?, ?")
	}
}
