package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

const (
	DefaultConnectionTimeout = 30 * time.Second
	MinConnectionTimeout     = 1 * time.Second
	MaxConnectionTimeout     = 60 * time.Second

	// SecretMask replaces credentials in API responses. Updates that send the
	// mask back keep the stored secret.
	SecretMask = "********"
)

var validate = validator.New()

// ConnectionConfig is the per-type configuration of a DataConnection.
// Each connection type maps to exactly one concrete variant (see DecodeConfig).
type ConnectionConfig interface {
	Family() ConnectionFamily
	Validate() error
	// Timeout is applied to both the connect and query phases.
	Timeout() time.Duration
	Redacted() ConnectionConfig
}

// ClampTimeout converts a configured number of seconds to a duration within
// [MinConnectionTimeout, MaxConnectionTimeout]. Zero means the default.
func ClampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultConnectionTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d < MinConnectionTimeout {
		return MinConnectionTimeout
	}
	if d > MaxConnectionTimeout {
		return MaxConnectionTimeout
	}
	return d
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, err.Error())
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return SecretMask
}

// SQLConfig is the connection shape for MYSQL, POSTGRESQL and SQLSERVER.
type SQLConfig struct {
	Host           string `json:"host" validate:"required"`
	Port           int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Database       string `json:"database" validate:"required"`
	Username       string `json:"username" validate:"required"`
	Password       string `json:"password,omitempty"`
	SSLMode        string `json:"ssl_mode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full true false skip-verify"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"omitempty,min=0"`
}

func (c *SQLConfig) Family() ConnectionFamily { return FamilySQL }
func (c *SQLConfig) Validate() error          { return validateStruct(c) }
func (c *SQLConfig) Timeout() time.Duration   { return ClampTimeout(c.TimeoutSeconds) }

func (c *SQLConfig) Redacted() ConnectionConfig {
	out := *c
	out.Password = mask(c.Password)
	return &out
}

// SupabaseConfig reaches a Supabase project's Postgres database. Host defaults
// to db.<project-ref>.supabase.co derived from ProjectURL.
type SupabaseConfig struct {
	ProjectURL     string `json:"project_url" validate:"required,url"`
	Host           string `json:"host,omitempty"`
	Port           int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Database       string `json:"database,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password" validate:"required"`
	APIKey         string `json:"api_key,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"omitempty,min=0"`
}

func (c *SupabaseConfig) Family() ConnectionFamily { return FamilySQL }
func (c *SupabaseConfig) Validate() error          { return validateStruct(c) }
func (c *SupabaseConfig) Timeout() time.Duration   { return ClampTimeout(c.TimeoutSeconds) }

func (c *SupabaseConfig) Redacted() ConnectionConfig {
	out := *c
	out.Password = mask(c.Password)
	out.APIKey = mask(c.APIKey)
	return &out
}

// Header is a single custom HTTP header sent with every API request.
type Header struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// APIConfig is the connection shape for API_REST and API_GRAPHQL.
// APIKey is sent as a bearer token, or as X-API-Key when basic auth is also configured.
type APIConfig struct {
	APIURL         string   `json:"api_url" validate:"required,url"`
	APIKey         string   `json:"api_key,omitempty"`
	Username       string   `json:"username,omitempty"`
	Password       string   `json:"password,omitempty"`
	Headers        []Header `json:"headers" validate:"dive"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" validate:"omitempty,min=0"`
}

func (c *APIConfig) Family() ConnectionFamily { return FamilyAPI }
func (c *APIConfig) Validate() error          { return validateStruct(c) }
func (c *APIConfig) Timeout() time.Duration   { return ClampTimeout(c.TimeoutSeconds) }

func (c *APIConfig) Redacted() ConnectionConfig {
	out := *c
	out.APIKey = mask(c.APIKey)
	out.Password = mask(c.Password)
	if c.Headers != nil {
		out.Headers = make([]Header, len(c.Headers))
		for i, h := range c.Headers {
			out.Headers[i] = Header{Name: h.Name, Value: mask(h.Value)}
		}
	}
	return &out
}

// FirebaseConfig is accepted and stored, but no adapter serves it.
type FirebaseConfig struct {
	ProjectID       string `json:"project_id" validate:"required"`
	CredentialsJSON string `json:"credentials_json,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty" validate:"omitempty,min=0"`
}

func (c *FirebaseConfig) Family() ConnectionFamily { return FamilyDocument }
func (c *FirebaseConfig) Validate() error          { return validateStruct(c) }
func (c *FirebaseConfig) Timeout() time.Duration   { return ClampTimeout(c.TimeoutSeconds) }

func (c *FirebaseConfig) Redacted() ConnectionConfig {
	out := *c
	out.CredentialsJSON = mask(c.CredentialsJSON)
	return &out
}

// NewConfig returns an empty config variant for the connection type.
func NewConfig(t ConnectionType) (ConnectionConfig, error) {
	switch t {
	case ConnectionTypeMySQL, ConnectionTypePostgreSQL, ConnectionTypeSQLServer:
		return &SQLConfig{}, nil
	case ConnectionTypeSupabase:
		return &SupabaseConfig{}, nil
	case ConnectionTypeAPIRest, ConnectionTypeAPIGraphQL:
		return &APIConfig{}, nil
	case ConnectionTypeFirebase:
		return &FirebaseConfig{}, nil
	}
	return nil, ErrUnsupportedType(t)
}

// DecodeConfig decodes raw JSON into the variant selected by t.
// Fields that do not belong to the variant are rejected.
func DecodeConfig(t ConnectionType, raw []byte) (ConnectionConfig, error) {
	cfg, err := NewConfig(t)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s config: %s", apperrors.ErrInvalidConfig, t, err.Error())
	}
	return cfg, nil
}

// MatchesType reports whether cfg is the variant DecodeConfig would produce for t.
func MatchesType(t ConnectionType, cfg ConnectionConfig) bool {
	switch cfg.(type) {
	case *SQLConfig:
		return t == ConnectionTypeMySQL || t == ConnectionTypePostgreSQL || t == ConnectionTypeSQLServer
	case *SupabaseConfig:
		return t == ConnectionTypeSupabase
	case *APIConfig:
		return t == ConnectionTypeAPIRest || t == ConnectionTypeAPIGraphQL
	case *FirebaseConfig:
		return t == ConnectionTypeFirebase
	}
	return false
}

// PreserveSecrets copies stored secrets into next wherever next carries the
// SecretMask, so that a redacted config read back from the API can be saved unchanged.
func PreserveSecrets(next, prev ConnectionConfig) {
	keep := func(dst *string, old string) {
		if *dst == SecretMask {
			*dst = old
		}
	}

	switch n := next.(type) {
	case *SQLConfig:
		if p, ok := prev.(*SQLConfig); ok {
			keep(&n.Password, p.Password)
		}
	case *SupabaseConfig:
		if p, ok := prev.(*SupabaseConfig); ok {
			keep(&n.Password, p.Password)
			keep(&n.APIKey, p.APIKey)
		}
	case *APIConfig:
		if p, ok := prev.(*APIConfig); ok {
			keep(&n.APIKey, p.APIKey)
			keep(&n.Password, p.Password)
			old := make(map[string]string, len(p.Headers))
			for _, h := range p.Headers {
				old[h.Name] = h.Value
			}
			for i := range n.Headers {
				keep(&n.Headers[i].Value, old[n.Headers[i].Name])
			}
		}
	case *FirebaseConfig:
		if p, ok := prev.(*FirebaseConfig); ok {
			keep(&n.CredentialsJSON, p.CredentialsJSON)
		}
	}
}
