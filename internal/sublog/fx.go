package sublog

import (
	"github.com/smallbiznis/clinicsub/internal/sublog/repository"
	"github.com/smallbiznis/clinicsub/internal/sublog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sublog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
