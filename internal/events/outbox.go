package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/pkg/telemetry/correlation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrganizationCreated = "organization.created"
	InvitationIssued    = "invitation.issued"
	InvitationAccepted  = "invitation.accepted"
)

var ErrInvalidTopic = errors.New("invalid_topic")

// OutboxEvent is a domain event waiting to be relayed by an external dispatcher.
type OutboxEvent struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID   `gorm:"column:org_id;not null;index" json:"org_id"`
	EventType     string         `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	CorrelationID string         `gorm:"column:correlation_id;type:varchar(128)" json:"correlation_id"`
	Published     bool           `gorm:"not null;default:false;index" json:"published"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }

//go:generate mockgen -source=outbox.go -destination=./mocks/mock_publisher.go -package=mocks

// Publisher records domain events.
type Publisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) Publisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
		clock: clk,
	}
}

func (p *outboxPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrInvalidTopic
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	event := OutboxEvent{
		ID:            p.genID.Generate(),
		OrgID:         orgID,
		EventType:     topic,
		Payload:       datatypes.JSON(raw),
		CorrelationID: correlationID,
		CreatedAt:     p.clock.Now(),
	}
	return p.db.WithContext(ctx).Create(&event).Error
}
