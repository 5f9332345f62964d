package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuntimeConfigIsValid(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 100_000, cfg.ContextThreshold)
	assert.Equal(t, 150_000, cfg.MaxContextTokens)
	assert.Equal(t, "haiku", cfg.SummaryModel)
	assert.Equal(t, "directory", cfg.SyncTransport.Kind)
}

func TestValidateRejectsThresholdNotBelowMax(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.ContextThreshold = cfg.MaxContextTokens
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveThresholds(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.ContextThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultRuntimeConfig()
	cfg.MaxContextTokens = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownSummaryModel(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.SummaryModel = "gpt-5"
	assert.Error(t, cfg.Validate())
}

func TestValidateCloudSyncRequiresAPIKeyAndEndpoint(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.CloudSync.Enabled = true
	assert.Error(t, cfg.Validate(), "missing api key and endpoint")

	cfg.CloudSync.APIKey = Secret("secret-token")
	assert.Error(t, cfg.Validate(), "missing endpoint")

	cfg.CloudSync.Endpoint = "ftp://example.com"
	assert.Error(t, cfg.Validate(), "disallowed scheme")

	cfg.CloudSync.Endpoint = "https://sync.example.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCleanupRequiresPositiveValues(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Cleanup.MaxSessionAgeDays = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultRuntimeConfig()
	cfg.Cleanup.MaxStorageSizeMB = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateStorageRequiresBaseDir(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Storage.BaseDir = ""
	assert.Error(t, cfg.Validate())

	cfg.Storage.BaseDir = "../../etc/passwd"
	assert.Error(t, cfg.Validate())
}

func TestValidateObservabilityRequiresServiceNameWhenTelemetryEnabled(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Observability.EnableTelemetry = true
	cfg.Observability.ServiceName = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownSyncTransportKind(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.SyncTransport.Kind = "webhook"
	assert.Error(t, cfg.Validate())
}

func TestSecretNeverLeaksThroughMarshalling(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.CloudSync.APIKey = Secret("super-secret-value")
	assert.Equal(t, "[REDACTED]", cfg.CloudSync.APIKey.String())
	assert.Equal(t, "super-secret-value", cfg.CloudSync.APIKey.Value())
}
