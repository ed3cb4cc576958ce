package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("role", "USER"),
		attribute.String("email", "someone@example.com"),
		attribute.String("token", "deadbeef"),
		attribute.String("reason", "expired"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "email" || attr.Key == "token" {
			t.Fatalf("expected %s to be dropped", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordInvitationIssued(ctx, "USER")
	m.RecordInvitationAccepted(ctx, "USER")
	m.RecordInvitationRejected(ctx, "accept", "expired")
	m.RecordOrganizationCreated(ctx)
	m.RecordRateLimitAllowed(ctx, "accept_invite")
	m.RecordRateLimitDenied(ctx, "accept_invite", "limit_exceeded")
}

func TestNewNoopRecords(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatal("expected metrics instance")
	}
	m.RecordInvitationIssued(context.Background(), "ORG_ADMIN")
}
