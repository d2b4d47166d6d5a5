package datasource

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// AdapterFactory creates adapters by connection type.
type AdapterFactory interface {
	// NewAdapter fails for types without a compiled-in adapter, so an
	// unsupported connection is caught before any work starts.
	NewAdapter(connType models.ConnectionType) (Adapter, error)

	ListTypes() []AdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewAdapterFactory returns a factory backed by the global registry.
func NewAdapterFactory(logger *zap.Logger) AdapterFactory {
	return &registryFactory{logger: logger}
}

func (f *registryFactory) NewAdapter(connType models.ConnectionType) (Adapter, error) {
	reg, ok := Lookup(connType)
	if !ok || reg.Factory == nil {
		return nil, fmt.Errorf("%w (no adapter compiled in)", models.ErrUnsupportedType(connType))
	}
	return reg.Factory(f.logger), nil
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

var _ AdapterFactory = (*registryFactory)(nil)
