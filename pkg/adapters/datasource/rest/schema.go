package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// schemaProbePaths are tried in order until one answers 2xx.
var schemaProbePaths = []string{
	"/schema",
	"/api/schema",
	"/swagger.json",
	"/openapi.json",
	"/docs",
	"/api/docs",
}

// PlaceholderTable is reported when no schema document can be found.
const PlaceholderTable = "api_endpoints"

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "options": true,
}

// GetSchemaInfo probes well-known schema locations. The first Swagger/OpenAPI
// document found (JSON or YAML) maps each path to a table whose columns are the
// operations' parameters. Without one, the first non-empty 2xx body is
// described as a single table. A placeholder table is returned when no probe
// yields a body, unless every probe failed at the transport level.
func (a *Adapter) GetSchemaInfo(ctx context.Context, cfg models.ConnectionConfig) (*models.SchemaInfo, error) {
	c, err := apiConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, c)
	defer cancel()

	var (
		lastErr   error
		responded bool
		firstPath string
		firstBody []byte
	)
	for _, path := range schemaProbePaths {
		body, err := a.fetch(ctx, c, path)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				responded = true
			} else {
				lastErr = err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("get schema: %w", ctx.Err())
			}
			continue
		}
		responded = true

		if info, ok := parseOpenAPI(body); ok {
			a.logger.Debug("Discovered API schema", zap.String("path", path), zap.Int("tables", info.TotalTables))
			return info, nil
		}
		if firstBody == nil && len(bytes.TrimSpace(body)) > 0 {
			firstPath, firstBody = path, body
		}
	}

	if firstBody != nil {
		a.logger.Debug("Describing schema response body", zap.String("path", firstPath))
		return describeBody(firstPath, firstBody), nil
	}
	if !responded && lastErr != nil {
		return nil, fmt.Errorf("get schema: %w", lastErr)
	}
	return placeholderSchema(), nil
}

func (a *Adapter) fetch(ctx context.Context, c *models.APIConfig, path string) ([]byte, error) {
	target, err := a.target(c.APIURL, path)
	if err != nil {
		return nil, err
	}
	req, err := newRequest(ctx, c, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode}
	}
	return readBody(resp)
}

// parseOpenAPI reads the paths object of a Swagger/OpenAPI document. Path
// level parameter lists and vendor extensions are skipped.
func parseOpenAPI(body []byte) (*models.SchemaInfo, bool) {
	var doc struct {
		Paths map[string]map[string]any `json:"paths" yaml:"paths"`
	}
	trimmed := bytes.TrimSpace(body)
	var err error
	if bytes.HasPrefix(trimmed, []byte("{")) {
		err = json.Unmarshal(trimmed, &doc)
	} else {
		err = yaml.Unmarshal(trimmed, &doc)
	}
	if err != nil || len(doc.Paths) == 0 {
		return nil, false
	}

	tables := make([]models.TableInfo, 0, len(doc.Paths))
	for path, ops := range doc.Paths {
		methods := make([]string, 0, len(ops))
		for m := range ops {
			if httpMethods[strings.ToLower(m)] {
				methods = append(methods, m)
			}
		}
		sort.Strings(methods)

		seen := make(map[string]bool)
		columns := make([]models.ColumnInfo, 0)
		for _, m := range methods {
			op, _ := ops[m].(map[string]any)
			params, _ := op["parameters"].([]any)
			for _, raw := range params {
				param, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				name, _ := param["name"].(string)
				if name == "" || seen[name] {
					continue
				}
				seen[name] = true
				required, _ := param["required"].(bool)
				columns = append(columns, models.ColumnInfo{
					Name:     name,
					Type:     parameterType(param),
					Nullable: !required,
				})
			}
		}
		tables = append(tables, models.TableInfo{Name: path, Columns: columns})
	}
	return models.NewSchemaInfo(tables), true
}

func parameterType(param map[string]any) string {
	if t, ok := param["type"].(string); ok && t != "" {
		return t
	}
	if schema, ok := param["schema"].(map[string]any); ok {
		if t, ok := schema["type"].(string); ok {
			return t
		}
	}
	return "string"
}

// describeBody turns a schema response that is not an OpenAPI document into
// one table named after the probe path. JSON objects contribute their
// top-level keys (arrays use their first element); anything else becomes a
// single text column.
func describeBody(path string, body []byte) *models.SchemaInfo {
	var doc any
	if err := json.Unmarshal(bytes.TrimSpace(body), &doc); err == nil {
		if items, ok := doc.([]any); ok && len(items) > 0 {
			doc = items[0]
		}
		if obj, ok := doc.(map[string]any); ok && len(obj) > 0 {
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			columns := make([]models.ColumnInfo, 0, len(keys))
			for _, k := range keys {
				columns = append(columns, models.ColumnInfo{
					Name:     k,
					Type:     jsonType(obj[k]),
					Nullable: obj[k] == nil,
				})
			}
			return models.NewSchemaInfo([]models.TableInfo{{Name: path, Columns: columns}})
		}
	}

	return models.NewSchemaInfo([]models.TableInfo{{
		Name:    path,
		Columns: []models.ColumnInfo{{Name: "content", Type: "text"}},
	}})
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "null"
	}
}

func placeholderSchema() *models.SchemaInfo {
	return models.NewSchemaInfo([]models.TableInfo{{
		Name: PlaceholderTable,
		Columns: []models.ColumnInfo{
			{Name: "method", Type: "string"},
			{Name: "path", Type: "string"},
			{Name: "description", Type: "string", Nullable: true},
		},
	}})
}
