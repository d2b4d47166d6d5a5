package crypto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	cipherVersion = "v1"
	keyInfoPrefix = "ekaya-query/connection-config/"
)

// ConfigCipher encrypts connection configs for storage. Implementations must
// satisfy Decrypt(Encrypt(cfg)) == cfg for every config variant.
type ConfigCipher interface {
	Encrypt(tenantID uuid.UUID, cfg models.ConnectionConfig) (string, error)
	Decrypt(tenantID uuid.UUID, connType models.ConnectionType, blob string) (models.ConnectionConfig, error)
}

var (
	_ ConfigCipher = (*TenantConfigCipher)(nil)
	_ ConfigCipher = PassthroughConfigCipher{}
)

// TenantConfigCipher seals configs with AES-256-GCM under a per-tenant key
// derived from the master key. The tenant id is bound as additional data, so a
// blob copied to another tenant's row fails to decrypt.
type TenantConfigCipher struct {
	master []byte
}

// NewTenantConfigCipher creates a cipher from the configured master key.
func NewTenantConfigCipher(keyInput string) (*TenantConfigCipher, error) {
	master, err := ParseMasterKey(keyInput)
	if err != nil {
		return nil, err
	}
	return &TenantConfigCipher{master: master}, nil
}

func (c *TenantConfigCipher) sealerFor(tenantID uuid.UUID) (*sealer, error) {
	key, err := DeriveKey(c.master, keyInfoPrefix+tenantID.String())
	if err != nil {
		return nil, err
	}
	return newSealer(key)
}

// Encrypt returns "v1:" followed by the sealed JSON form of cfg.
func (c *TenantConfigCipher) Encrypt(tenantID uuid.UUID, cfg models.ConnectionConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("encrypt config: config is nil")
	}

	plaintext, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	s, err := c.sealerFor(tenantID)
	if err != nil {
		return "", err
	}
	sealed, err := s.seal(plaintext, tenantID[:])
	if err != nil {
		return "", err
	}
	return cipherVersion + ":" + sealed, nil
}

// Decrypt reverses Encrypt and decodes the result into the variant for connType.
func (c *TenantConfigCipher) Decrypt(tenantID uuid.UUID, connType models.ConnectionType, blob string) (models.ConnectionConfig, error) {
	version, sealed, ok := strings.Cut(blob, ":")
	if !ok || version != cipherVersion {
		return nil, fmt.Errorf("%w: unknown envelope version", ErrDecryptionFailed)
	}

	s, err := c.sealerFor(tenantID)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.open(sealed, tenantID[:])
	if err != nil {
		return nil, err
	}
	return models.DecodeConfig(connType, plaintext)
}

// PassthroughConfigCipher stores configs as plain JSON. Local development only.
type PassthroughConfigCipher struct{}

func (PassthroughConfigCipher) Encrypt(_ uuid.UUID, cfg models.ConnectionConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func (PassthroughConfigCipher) Decrypt(_ uuid.UUID, connType models.ConnectionType, blob string) (models.ConnectionConfig, error) {
	return models.DecodeConfig(connType, []byte(blob))
}
