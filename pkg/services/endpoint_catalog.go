package services

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// EndpointCatalog supplies the known operations of an HTTP API so the
// translator can ground its prompt. Implementations may be backed by a static
// table or by stored API descriptions.
type EndpointCatalog interface {
	// Lookup returns the endpoints known for hostOrURL, or an empty list.
	Lookup(ctx context.Context, hostOrURL string) ([]models.APIEndpoint, error)
}

// StaticEndpointCatalog maps a host substring to the REST resources it serves.
// Each resource expands into a list and a get-by-id endpoint.
type StaticEndpointCatalog struct {
	resources map[string][]string
}

// DefaultAPIResources covers the public demo APIs the product is usually tried against.
var DefaultAPIResources = map[string][]string{
	"jsonplaceholder.typicode.com": {"posts", "comments", "albums", "photos", "todos", "users"},
	"reqres.in":                    {"users", "unknown"},
	"dummyjson.com":                {"products", "carts", "users", "posts", "comments", "quotes", "recipes", "todos"},
}

// NewStaticEndpointCatalog builds a catalog from host substring to resource names.
func NewStaticEndpointCatalog(resources map[string][]string) *StaticEndpointCatalog {
	return &StaticEndpointCatalog{resources: resources}
}

func (c *StaticEndpointCatalog) Lookup(_ context.Context, hostOrURL string) ([]models.APIEndpoint, error) {
	host := strings.ToLower(hostOrURL)
	if u, err := url.Parse(hostOrURL); err == nil && u.Host != "" {
		host = strings.ToLower(u.Hostname())
	}
	if host == "" {
		return []models.APIEndpoint{}, nil
	}

	// Longest key first so the most specific host entry wins.
	keys := make([]string, 0, len(c.resources))
	for k := range c.resources {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		if strings.Contains(host, key) {
			return expandResources(c.resources[key]), nil
		}
	}
	return []models.APIEndpoint{}, nil
}

func expandResources(resources []string) []models.APIEndpoint {
	endpoints := make([]models.APIEndpoint, 0, len(resources)*2)
	for _, resource := range resources {
		plural := inflection.Plural(resource)
		singular := inflection.Singular(resource)
		endpoints = append(endpoints,
			models.APIEndpoint{Method: "GET", Path: "/" + resource, Description: "List " + plural},
			models.APIEndpoint{Method: "GET", Path: "/" + resource + "/{id}", Description: "Get a single " + singular},
		)
	}
	return endpoints
}

var _ EndpointCatalog = (*StaticEndpointCatalog)(nil)
