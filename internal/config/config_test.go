package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://postgres:@localhost:5432/factura?sslmode=disable", cfg.ConnectionString())
	assert.Equal(t, "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc", cfg.AuthorityURL())
	assert.Equal(t, 4, cfg.RetryPolicy().MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.RetryPolicy().AttemptTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.Origins)
	assert.True(t, cfg.Render.Enabled)

	limits, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, "1000000", limits.MaxQuantity.String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("DIAN_ENVIRONMENT", "1")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.co,https://b.example.co")
	t.Setenv("RETRY_MAX_ATTEMPTS", "6")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc", cfg.AuthorityURL())
	assert.Equal(t, []string{"https://a.example.co", "https://b.example.co"}, cfg.CORS.Origins)
	assert.Equal(t, 6, cfg.RetryPolicy().MaxAttempts)

	t.Setenv("DIAN_URL", "http://localhost:9999/dian")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/dian", cfg.AuthorityURL())
}

func TestLoad_Invalid(t *testing.T) {
	type testCase struct {
		name string
		env  map[string]string
	}

	tests := []testCase{
		{name: "MissingSecret", env: map[string]string{"AUTH_JWT_SECRET": ""}},
		{name: "UnknownEnvironment", env: map[string]string{"DIAN_ENVIRONMENT": "3"}},
		{name: "ZeroAttempts", env: map[string]string{"RETRY_MAX_ATTEMPTS": "0"}},
		{name: "BadQuantity", env: map[string]string{"INVOICE_MAX_QUANTITY": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "s3cret")

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
