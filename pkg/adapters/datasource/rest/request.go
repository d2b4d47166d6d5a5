package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

func apiConfig(cfg models.ConnectionConfig) (*models.APIConfig, error) {
	c, ok := cfg.(*models.APIConfig)
	if !ok {
		return nil, fmt.Errorf("%w: rest expects an API config, got %T", apperrors.ErrInvalidConfig, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseQuery splits "METHOD /path" into its parts. A bare path means GET.
func parseQuery(query string) (method, path string) {
	fields := strings.Fields(query)
	switch len(fields) {
	case 0:
		return http.MethodGet, "/"
	case 1:
		if strings.HasPrefix(fields[0], "/") || strings.Contains(fields[0], "://") {
			return http.MethodGet, fields[0]
		}
		return strings.ToUpper(fields[0]), "/"
	default:
		return strings.ToUpper(fields[0]), strings.Join(fields[1:], "")
	}
}

// resolveURL joins path onto the configured base URL, keeping the base path.
func resolveURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid api url: %v", apperrors.ErrInvalidConfig, err)
	}
	if path == "" || path == "/" {
		return u.String(), nil
	}

	rawPath, rawQuery, _ := strings.Cut(path, "?")
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rawPath, "/")
	if rawQuery != "" {
		extra, err := url.ParseQuery(rawQuery)
		if err != nil {
			return "", fmt.Errorf("invalid query string %q: %w", rawQuery, err)
		}
		q := u.Query()
		for k, vs := range extra {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// applyAuth attaches the stored credentials. With basic auth configured the
// API key travels as X-API-Key; otherwise it is a bearer token.
func applyAuth(req *http.Request, c *models.APIConfig) {
	req.Header.Set("Accept", "application/json")
	hasBasic := c.Username != "" || c.Password != ""
	if hasBasic {
		req.SetBasicAuth(c.Username, c.Password)
	}
	if c.APIKey != "" {
		if hasBasic {
			req.Header.Set("X-API-Key", c.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
	}
	for _, h := range c.Headers {
		req.Header.Set(h.Name, h.Value)
	}
}

func addParams(rawURL string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := u.Query()
	for _, k := range keys {
		q.Set(k, jsonutil.StringValue(params[k]))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newRequest(ctx context.Context, c *models.APIConfig, method, target string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyAuth(req, c)
	return req, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned HTTP %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// decodeBody decodes a JSON response body. ok is false when the body is not
// JSON, in which case callers keep the raw text.
func decodeBody(body []byte) (any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, true
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, false
	}
	return v, true
}
