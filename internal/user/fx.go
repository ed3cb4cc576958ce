package user

import (
	"github.com/smallbiznis/tenantkit/internal/user/repository"
	"github.com/smallbiznis/tenantkit/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
