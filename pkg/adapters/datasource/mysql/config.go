package mysql

import (
	"fmt"
	"net"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// DefaultPort is the default MySQL port.
const DefaultPort = 3306

func sqlConfig(cfg models.ConnectionConfig) (*models.SQLConfig, error) {
	c, ok := cfg.(*models.SQLConfig)
	if !ok {
		return nil, fmt.Errorf("%w: mysql expects a SQL config, got %T", apperrors.ErrInvalidConfig, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// buildDSN renders a go-sql-driver DSN. The driver splits on the last @ and
// the last /, so passwords containing either still parse.
func buildDSN(cfg *models.SQLConfig) string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	dc := mysqldriver.NewConfig()
	dc.User = cfg.Username
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(port))
	dc.DBName = cfg.Database
	dc.Timeout = cfg.Timeout()
	dc.ReadTimeout = cfg.Timeout()
	dc.ParseTime = true

	switch cfg.SSLMode {
	case "require", "verify-ca", "verify-full", "true":
		dc.TLSConfig = "true"
	case "skip-verify", "prefer":
		dc.TLSConfig = "skip-verify"
	}

	return dc.FormatDSN()
}
