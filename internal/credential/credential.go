// Package credential holds the per-tenant DIAN secrets and signing certificate.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/document"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

var ErrNotFound = errors.New("credential not found")

// Secrets are the values DIAN issues when the tenant registers its invoicing software.
type Secrets struct {
	TechnicalKey string
	SoftwareID   string
	SoftwarePIN  string
	TestSetID    string
}

type Credential struct {
	TenantID    uuid.UUID
	Environment cufe.Environment
	ProviderNIT string
	Secrets     Secrets
	Format      signer.Format
	Certificate []byte
	PrivateKey  []byte
	Passphrase  []byte
	RotatedAt   time.Time
}

// LogValue keeps key material, passphrases and DIAN secrets out of logs.
func (c *Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tenant_id", c.TenantID.String()),
		slog.String("environment", string(c.Environment)),
		slog.String("format", string(c.Format)),
		slog.Time("rotated_at", c.RotatedAt),
	)
}

// Material returns a private copy of the signing material; the caller zeroes it after use.
func (c *Credential) Material() signer.Material {
	return signer.Material{
		Format:      c.Format,
		Certificate: slices.Clone(c.Certificate),
		Key:         slices.Clone(c.PrivateKey),
		Passphrase:  slices.Clone(c.Passphrase),
	}
}

func (c *Credential) Keys() cufe.Keys {
	return cufe.Keys{TechnicalKey: c.Secrets.TechnicalKey, SoftwarePIN: c.Secrets.SoftwarePIN}
}

func (c *Credential) Software() document.Software {
	return document.Software{ID: c.Secrets.SoftwareID, PIN: c.Secrets.SoftwarePIN, ProviderNIT: c.ProviderNIT}
}

// Validate checks that the credential carries everything the pipeline needs.
func (c *Credential) Validate() error {
	var errs []error

	fail := func(field, msg string) {
		errs = append(errs, invoice.FieldError{Field: field, Message: msg})
	}

	if !c.Environment.Valid() {
		fail("environment", "must be 1 (production) or 2 (testing)")
	}

	if c.ProviderNIT != "" {
		if _, err := invoice.CheckDigit(c.ProviderNIT); err != nil {
			fail("provider_nit", err.Error())
		}
	}

	if c.Secrets.TechnicalKey == "" {
		fail("technical_key", "is required")
	}

	if c.Secrets.SoftwareID == "" {
		fail("software_id", "is required")
	}

	if c.Secrets.SoftwarePIN == "" {
		fail("software_pin", "is required")
	}

	if c.Environment == cufe.Production && c.Secrets.TestSetID != "" {
		fail("test_set_id", "must be cleared once the software is enabled for production")
	}

	switch c.Format {
	case signer.FormatPEM:
		if len(c.Certificate) == 0 {
			fail("certificate", "is required for PEM material")
		}
	case signer.FormatPKCS12:
	default:
		fail("format", "must be pem or pkcs12")
	}

	if len(c.PrivateKey) == 0 {
		fail("private_key", "is required")
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", invoice.ErrInvalidInput, errors.Join(errs...))
}

//go:generate mockgen -source=credential.go -destination=source_mock.go -package=credential

// Source loads the current credential of a tenant.
type Source interface {
	Fetch(ctx context.Context, tenantID uuid.UUID) (*Credential, error)
}

// Cache keeps decrypted credentials in memory until they are invalidated on rotation.
// Concurrent misses for the same tenant share one fetch.
type Cache struct {
	source Source
	group  singleflight.Group

	mu          sync.RWMutex
	entries     map[uuid.UUID]*Credential
	generations map[uuid.UUID]uint64
}

func NewCache(source Source) *Cache {
	return &Cache{
		source:      source,
		entries:     make(map[uuid.UUID]*Credential),
		generations: make(map[uuid.UUID]uint64),
	}
}

func (c *Cache) Get(ctx context.Context, tenantID uuid.UUID) (*Credential, error) {
	c.mu.RLock()
	cred, ok := c.entries[tenantID]
	gen := c.generations[tenantID]
	c.mu.RUnlock()

	if ok {
		return cred, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%s/%d", tenantID, gen), func() (any, error) {
		cred, err := c.source.Fetch(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.generations[tenantID] == gen {
			c.entries[tenantID] = cred
		}
		c.mu.Unlock()

		return cred, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching credential: %w", err)
	}

	return v.(*Credential), nil
}

// Invalidate drops the cached credential; a fetch already in flight is not stored.
func (c *Cache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.generations[tenantID]++
	c.mu.Unlock()
}
