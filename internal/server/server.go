package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tenantkit/internal/authorization"
	"github.com/smallbiznis/tenantkit/internal/config"
	"github.com/smallbiznis/tenantkit/internal/events"
	"github.com/smallbiznis/tenantkit/internal/identity"
	identitydomain "github.com/smallbiznis/tenantkit/internal/identity/domain"
	"github.com/smallbiznis/tenantkit/internal/invitation"
	invitationdomain "github.com/smallbiznis/tenantkit/internal/invitation/domain"
	"github.com/smallbiznis/tenantkit/internal/observability"
	obsmiddleware "github.com/smallbiznis/tenantkit/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tenantkit/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tenantkit/internal/observability/tracing"
	"github.com/smallbiznis/tenantkit/internal/organization"
	organizationdomain "github.com/smallbiznis/tenantkit/internal/organization/domain"
	orgservice "github.com/smallbiznis/tenantkit/internal/organization/service"
	"github.com/smallbiznis/tenantkit/internal/providers"
	"github.com/smallbiznis/tenantkit/internal/ratelimit"
	"github.com/smallbiznis/tenantkit/internal/user"
	userdomain "github.com/smallbiznis/tenantkit/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	events.Module,
	identity.Module,
	user.Module,
	organization.Module,
	invitation.Module,
	providers.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

// organizationBootstrapper creates the first organization of an identity.
type organizationBootstrapper interface {
	CreateInitial(ctx context.Context, identity *identitydomain.Identity, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, *userdomain.User, error)
}

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	verifier        identitydomain.Verifier
	authz           authorization.Service
	userSvc         userdomain.Service
	organizationSvc organizationdomain.Service
	orgBootstrap    organizationBootstrapper
	invitationSvc   invitationdomain.Service
	inviteLimiter   *ratelimit.InviteTokenLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Verifier        identitydomain.Verifier
	Authz           authorization.Service
	UserSvc         userdomain.Service
	OrganizationSvc organizationdomain.Service
	OrgBootstrap    *orgservice.Service
	InvitationSvc   invitationdomain.Service
	InviteLimiter   *ratelimit.InviteTokenLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		verifier:        p.Verifier,
		authz:           p.Authz,
		userSvc:         p.UserSvc,
		organizationSvc: p.OrganizationSvc,
		orgBootstrap:    p.OrgBootstrap,
		invitationSvc:   p.InvitationSvc,
		inviteLimiter:   p.InviteLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")
	auth.Use(s.OrganizationHint())

	auth.GET("/invite/validate", s.InviteTokenRateLimit(rateLimitEndpointValidate), s.ValidateInvitation)
	auth.POST("/accept-invite", s.InviteTokenRateLimit(rateLimitEndpointAccept), s.IdentityRequired(), s.AcceptInvitation)
	auth.POST("/invite", s.IdentityRequired(), s.UserRequired(), s.IssueInvitation)
	auth.GET("/me", s.IdentityRequired(), s.UserRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Organizations --------
	api.POST("/organizations", s.IdentityRequired(), s.CreateOrganization)
	api.GET("/organizations/:id", s.IdentityRequired(), s.UserRequired(), s.GetOrganization)
	api.GET("/organizations/:id/users", s.IdentityRequired(), s.UserRequired(), s.ListOrganizationUsers)
}
