package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// InvitationPolicy holds runtime-tunable invitation rules.
type InvitationPolicy struct {
	// AllowedEmailDomains restricts invitation targets. Empty allows any domain.
	AllowedEmailDomains []string `mapstructure:"allowedEmailDomains"`
}

func DefaultInvitationPolicy() InvitationPolicy {
	return InvitationPolicy{AllowedEmailDomains: []string{}}
}

// AllowsEmail reports whether the domain part of email is permitted.
func (p InvitationPolicy) AllowsEmail(email string) bool {
	if len(p.AllowedEmailDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for _, allowed := range p.AllowedEmailDomains {
		if strings.ToLower(strings.TrimSpace(allowed)) == domain {
			return true
		}
	}
	return false
}

type InvitationPolicyHolder struct {
	current atomic.Value // holds InvitationPolicy
}

// NewStaticInvitationPolicy returns a holder that never reloads.
func NewStaticInvitationPolicy(policy InvitationPolicy) *InvitationPolicyHolder {
	holder := &InvitationPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewInvitationPolicyHolder() (*InvitationPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("invitations")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/tenantkit")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TENANTKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("invitations.allowedEmailDomains", DefaultInvitationPolicy().AllowedEmailDomains)
		watch = false
	}

	var policy InvitationPolicy
	if err := v.UnmarshalKey("invitations", &policy); err != nil {
		return nil, err
	}
	if err := validateInvitationPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticInvitationPolicy(policy)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated InvitationPolicy
		if err := v.UnmarshalKey("invitations", &updated); err != nil {
			log.Printf("[invitation-policy] reload failed: %v", err)
			return
		}
		if err := validateInvitationPolicy(updated); err != nil {
			log.Printf("[invitation-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[invitation-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *InvitationPolicyHolder) Get() InvitationPolicy {
	if h == nil {
		return DefaultInvitationPolicy()
	}
	policy, ok := h.current.Load().(InvitationPolicy)
	if !ok {
		return DefaultInvitationPolicy()
	}
	return policy
}

func validateInvitationPolicy(policy InvitationPolicy) error {
	for _, domain := range policy.AllowedEmailDomains {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			return errors.New("invitations.allowedEmailDomains cannot contain empty entries")
		}
		if strings.Contains(domain, "@") {
			return errors.New("invitations.allowedEmailDomains entries must be bare domains")
		}
	}
	return nil
}
