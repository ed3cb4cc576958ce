package email

import "context"

const TemplateInviteMember = "invite_member"

//go:generate mockgen -source=provider.go -destination=./mocks/mock_provider.go -package=mocks

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data any) error
}

// InviteMemberData feeds the invite_member template.
type InviteMemberData struct {
	OrgName     string
	InviterName string
	Role        string
	InviteURL   string
	ExpiresAt   string
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data any) error {
	return nil
}
