package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/internal/config"
	"github.com/smallbiznis/tenantkit/internal/identity/domain"
	"go.uber.org/zap"
)

// Claims is the access token shape issued by the hosted identity provider.
type Claims struct {
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

type UserMetadata struct {
	FullName string `json:"full_name,omitempty"`
	Name     string `json:"name,omitempty"`
}

// JWTVerifier validates HS256 access tokens.
type JWTVerifier struct {
	secret   []byte
	audience string
	issuer   string
	clock    clock.Clock
	log      *zap.Logger
}

func NewVerifier(cfg config.Config, clk clock.Clock, log *zap.Logger) (domain.Verifier, error) {
	return NewJWTVerifier(cfg.Auth, clk, log)
}

func NewJWTVerifier(cfg config.AuthConfig, clk clock.Clock, log *zap.Logger) (*JWTVerifier, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	if clk == nil {
		clk = &clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		audience: strings.TrimSpace(cfg.JWTAudience),
		issuer:   strings.TrimSpace(cfg.JWTIssuer),
		clock:    clk,
		log:      log.Named("identity"),
	}, nil
}

// Verify checks signature, algorithm, expiry and the configured audience and issuer.
func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (*domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		v.log.Debug("access token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthenticated, reason(err))
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrUnauthenticated)
	}

	name := strings.TrimSpace(claims.UserMetadata.FullName)
	if name == "" {
		name = strings.TrimSpace(claims.UserMetadata.Name)
	}

	return &domain.Identity{
		ID:          subject,
		Email:       strings.TrimSpace(claims.Email),
		ProfileName: name,
	}, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "invalid audience"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid issuer"
	default:
		return "invalid token"
	}
}
