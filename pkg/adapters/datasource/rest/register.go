package rest

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeAPIRest,
			DisplayName: "REST API",
			Description: "Query any HTTP/JSON API with bearer, API key or basic auth",
			Icon:        "api",
			Dialect:     "REST",
		},
		Factory: func(logger *zap.Logger) datasource.Adapter {
			return NewAdapter(logger)
		},
	})
}
