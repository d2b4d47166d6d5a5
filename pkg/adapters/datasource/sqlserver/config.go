package sqlserver

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// DefaultPort is the default SQL Server port.
const DefaultPort = 1433

func sqlConfig(cfg models.ConnectionConfig) (*models.SQLConfig, error) {
	c, ok := cfg.(*models.SQLConfig)
	if !ok {
		return nil, fmt.Errorf("%w: sqlserver expects a SQL config, got %T", apperrors.ErrInvalidConfig, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// buildConnectionString renders a sqlserver:// URL for SQL authentication.
// Encryption is on unless SSLMode is disable or false; skip-verify and prefer
// trust the server certificate.
func buildConnectionString(cfg *models.SQLConfig) string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	query := url.Values{}
	query.Set("database", cfg.Database)
	query.Set("app name", "ekaya-query")
	query.Set("connection timeout", strconv.Itoa(int(cfg.Timeout().Seconds())))

	switch cfg.SSLMode {
	case "disable", "false":
		query.Set("encrypt", "disable")
	case "skip-verify", "prefer", "allow":
		query.Set("encrypt", "true")
		query.Set("TrustServerCertificate", "true")
	default:
		query.Set("encrypt", "true")
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(port)),
		RawQuery: query.Encode(),
	}
	return u.String()
}
