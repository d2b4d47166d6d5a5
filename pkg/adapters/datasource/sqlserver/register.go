package sqlserver

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeSQLServer,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
			Icon:        "mssql",
			Dialect:     "T-SQL",
		},
		Factory: func(logger *zap.Logger) datasource.Adapter {
			return NewAdapter(logger)
		},
	})
}
