package postgres

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypePostgreSQL,
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL",
			Icon:        "postgres",
			Dialect:     "PostgreSQL",
		},
		Factory: func(logger *zap.Logger) datasource.Adapter {
			return NewAdapter(logger)
		},
	})
}
