// Package supabase reaches a Supabase project's Postgres database through the
// postgres adapter.
package supabase

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	defaultDatabase = "postgres"
	defaultUser     = "postgres"
)

// NewAdapter creates an adapter for SUPABASE connections.
func NewAdapter(logger *zap.Logger) datasource.Adapter {
	return postgres.NewAdapterWithResolver(logger.Named("supabase"), Resolve, "Supabase")
}

// Resolve derives Postgres settings from a SupabaseConfig. The host defaults
// to db.<project-ref>.supabase.co and TLS is always required.
func Resolve(cfg models.ConnectionConfig) (postgres.ConnParams, error) {
	c, ok := cfg.(*models.SupabaseConfig)
	if !ok {
		return postgres.ConnParams{}, fmt.Errorf("%w: supabase expects a Supabase config, got %T", apperrors.ErrInvalidConfig, cfg)
	}
	if err := c.Validate(); err != nil {
		return postgres.ConnParams{}, err
	}

	host := c.Host
	if host == "" {
		ref, err := ProjectRef(c.ProjectURL)
		if err != nil {
			return postgres.ConnParams{}, err
		}
		host = "db." + ref + ".supabase.co"
	}

	p := postgres.ConnParams{
		Host:     host,
		Port:     c.Port,
		User:     c.Username,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  "require",
	}
	if p.Port == 0 {
		p.Port = postgres.DefaultPort
	}
	if p.User == "" {
		p.User = defaultUser
	}
	if p.Database == "" {
		p.Database = defaultDatabase
	}
	return p, nil
}

// ProjectRef extracts the project reference from https://<ref>.supabase.co.
func ProjectRef(projectURL string) (string, error) {
	u, err := url.Parse(projectURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: invalid supabase project url %q", apperrors.ErrInvalidConfig, projectURL)
	}
	ref, _, ok := strings.Cut(u.Hostname(), ".")
	if !ok || ref == "" {
		return "", fmt.Errorf("%w: cannot derive project ref from %q", apperrors.ErrInvalidConfig, projectURL)
	}
	return ref, nil
}

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.ConnectionTypeSupabase,
			DisplayName: "Supabase",
			Description: "Connect to a Supabase project's Postgres database",
			Icon:        "supabase",
			Dialect:     "PostgreSQL",
		},
		Factory: func(logger *zap.Logger) datasource.Adapter {
			return NewAdapter(logger)
		},
	})
}
