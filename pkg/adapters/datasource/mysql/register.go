package mysql

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeMySQL,
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MariaDB, Aurora MySQL",
			Icon:        "mysql",
			Dialect:     "MySQL",
		},
		Factory: func(logger *zap.Logger) datasource.Adapter {
			return NewAdapter(logger)
		},
	})
}
