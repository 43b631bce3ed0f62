package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/credential"
	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Fetch(ctx context.Context, tenantID uuid.UUID) (*credential.Credential, error) {
	query := `
		SELECT tenant_id, environment, provider_nit, technical_key, software_id, software_pin,
		       test_set_id, key_format, certificate, private_key, passphrase, rotated_at
		FROM tenant_credentials
		WHERE tenant_id = $1`

	var (
		c           credential.Credential
		env, format string
		providerNIT sql.NullString
		testSetID   sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&c.TenantID, &env, &providerNIT, &c.Secrets.TechnicalKey, &c.Secrets.SoftwareID, &c.Secrets.SoftwarePIN,
		&testSetID, &format, &c.Certificate, &c.PrivateKey, &c.Passphrase, &c.RotatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credential.ErrNotFound
		}

		return nil, fmt.Errorf("fetching credential: %w", err)
	}

	c.Environment = cufe.Environment(env)
	c.Format = signer.Format(format)
	c.ProviderNIT = providerNIT.String
	c.Secrets.TestSetID = testSetID.String

	return &c, nil
}

// Rotate replaces the tenant's credential and stamps the rotation time on c.
func (s *Store) Rotate(ctx context.Context, c *credential.Credential) error {
	query := `
		INSERT INTO tenant_credentials (
			tenant_id, environment, provider_nit, technical_key, software_id, software_pin,
			test_set_id, key_format, certificate, private_key, passphrase, rotated_at
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			environment = EXCLUDED.environment,
			provider_nit = EXCLUDED.provider_nit,
			technical_key = EXCLUDED.technical_key,
			software_id = EXCLUDED.software_id,
			software_pin = EXCLUDED.software_pin,
			test_set_id = EXCLUDED.test_set_id,
			key_format = EXCLUDED.key_format,
			certificate = EXCLUDED.certificate,
			private_key = EXCLUDED.private_key,
			passphrase = EXCLUDED.passphrase,
			rotated_at = EXCLUDED.rotated_at
		RETURNING rotated_at`

	err := s.db.QueryRowContext(ctx, query,
		c.TenantID,
		string(c.Environment),
		c.ProviderNIT,
		c.Secrets.TechnicalKey,
		c.Secrets.SoftwareID,
		c.Secrets.SoftwarePIN,
		c.Secrets.TestSetID,
		string(c.Format),
		c.Certificate,
		c.PrivateKey,
		c.Passphrase,
	).Scan(&c.RotatedAt)
	if err != nil {
		return fmt.Errorf("rotating credential: %w", err)
	}

	return nil
}
