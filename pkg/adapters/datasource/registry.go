package datasource

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// AdapterInfo describes a registered adapter for discovery by API clients.
type AdapterInfo struct {
	Type        models.ConnectionType `json:"type"`
	DisplayName string                `json:"display_name"`
	Description string                `json:"description"`
	Icon        string                `json:"icon"`
	// Dialect is the query language named in translation prompts.
	Dialect string `json:"dialect"`
}

// AdapterRegistration pairs adapter info with its constructor.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(logger *zap.Logger) Adapter
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.ConnectionType]AdapterRegistration)
)

// Register is called by each adapter package's init().
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// Lookup returns the registration for a connection type.
func Lookup(connType models.ConnectionType) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[connType]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(connType models.ConnectionType) bool {
	_, ok := Lookup(connType)
	return ok
}

// DialectFor returns the registered dialect, or "SQL" when the type has no adapter.
func DialectFor(connType models.ConnectionType) string {
	if reg, ok := Lookup(connType); ok && reg.Info.Dialect != "" {
		return reg.Info.Dialect
	}
	return "SQL"
}
