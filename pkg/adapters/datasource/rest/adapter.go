// Package rest adapts generic REST APIs to the datasource interface. A query
// is a "METHOD /path" string resolved against the connection's base URL.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// Adapter issues HTTP requests. The client carries no timeout of its own;
// every request is bound by the connection timeout through its context.
type Adapter struct {
	logger      *zap.Logger
	client      *http.Client
	resolveHost func(hostport string) string
}

// NewAdapter creates a REST adapter using a dedicated HTTP client.
func NewAdapter(logger *zap.Logger) *Adapter {
	return NewAdapterWithClient(logger, &http.Client{})
}

// NewAdapterWithClient creates a REST adapter with a caller-supplied client.
func NewAdapterWithClient(logger *zap.Logger, client *http.Client) *Adapter {
	return &Adapter{
		logger:      logger.Named("rest"),
		client:      client,
		resolveHost: config.ResolveHostPortForDocker,
	}
}

// target resolves path against the base URL and applies the host rewrite.
func (a *Adapter) target(base, path string) (string, error) {
	resolved, err := resolveURL(base, path)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(resolved)
	if err != nil {
		return "", err
	}
	u.Host = a.resolveHost(u.Host)
	return u.String(), nil
}

// TestConnection issues GET against the base URL. Any 2xx or 3xx answer
// counts as reachable.
func (a *Adapter) TestConnection(ctx context.Context, cfg models.ConnectionConfig) *models.ConnectionTestResult {
	c, err := apiConfig(cfg)
	if err != nil {
		return datasource.InvalidConfigResult(err)
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, c)
	defer cancel()

	start := time.Now()
	err = a.probe(ctx, c)
	if err != nil {
		a.logger.Info("Connection test failed",
			zap.String("api_url", c.APIURL),
			zap.String("error", logging.SanitizeError(err)))
	}
	return datasource.ProbeResult(start, err, "API is reachable at "+c.APIURL)
}

func (a *Adapter) probe(ctx context.Context, c *models.APIConfig) error {
	target, err := a.target(c.APIURL, "")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, c, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	client := *a.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return &StatusError{Method: http.MethodGet, URL: c.APIURL, StatusCode: resp.StatusCode}
	}
	return nil
}

// SanitizeQuery cleans the path portion of a "METHOD /path" query.
func (a *Adapter) SanitizeQuery(query string) (string, error) {
	method, path := parseQuery(query)
	return method + " " + sqlguard.SanitizePath(path), nil
}

// ExecuteQuery runs a "METHOD /path" query.
func (a *Adapter) ExecuteQuery(ctx context.Context, cfg models.ConnectionConfig, query string) ([]models.Row, error) {
	sanitized, err := a.SanitizeQuery(query)
	if err != nil {
		return nil, err
	}
	method, path := parseQuery(sanitized)
	return a.ExecuteRequest(ctx, cfg, datasource.APIRequest{Method: method, Path: path})
}

// ExecuteRequest issues a structured call. Params become query string values
// and Body is sent as JSON.
func (a *Adapter) ExecuteRequest(ctx context.Context, cfg models.ConnectionConfig, r datasource.APIRequest) ([]models.Row, error) {
	c, err := apiConfig(cfg)
	if err != nil {
		return nil, err
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	target, err := a.target(c.APIURL, sqlguard.SanitizePath(r.Path))
	if err != nil {
		return nil, err
	}
	if target, err = addParams(target, r.Params); err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, c)
	defer cancel()

	req, err := newRequest(ctx, c, method, target, r.Body)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Executing API request", zap.String("method", method), zap.String("url", target))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       logging.TruncateString(string(body), 200),
		}
	}

	if v, ok := decodeBody(body); ok {
		return datasource.WrapValue(v), nil
	}
	return []models.Row{{"body": string(body)}}, nil
}

var (
	_ datasource.Adapter         = (*Adapter)(nil)
	_ datasource.RequestExecutor = (*Adapter)(nil)
)
