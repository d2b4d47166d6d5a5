package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	DefaultPort    = 5432
	DefaultSSLMode = "require"
)

// ConnParams are the resolved PostgreSQL connection settings for one call.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Resolver maps a connection config variant onto ConnParams.
type Resolver func(cfg models.ConnectionConfig) (ConnParams, error)

// ResolveSQLConfig accepts the SQLConfig variant used by POSTGRESQL connections.
func ResolveSQLConfig(cfg models.ConnectionConfig) (ConnParams, error) {
	c, ok := cfg.(*models.SQLConfig)
	if !ok {
		return ConnParams{}, fmt.Errorf("%w: postgres expects a SQL config, got %T", apperrors.ErrInvalidConfig, cfg)
	}
	if err := c.Validate(); err != nil {
		return ConnParams{}, err
	}

	p := ConnParams{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.Username,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  c.SSLMode,
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.SSLMode == "" {
		p.SSLMode = DefaultSSLMode
	}
	return p, nil
}

// BuildConnectionString builds a PostgreSQL URL. Every user-provided field is
// escaped so that passwords containing @, /, # or ? do not break parsing.
func BuildConnectionString(p ConnParams, timeoutSeconds int) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(p.User, p.Password),
		Host:   config.ResolveHostForDocker(p.Host) + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	q.Set("sslmode", p.SSLMode)
	if timeoutSeconds > 0 {
		q.Set("connect_timeout", strconv.Itoa(timeoutSeconds))
	}
	q.Set("application_name", "ekaya-query")
	u.RawQuery = q.Encode()
	return u.String()
}
