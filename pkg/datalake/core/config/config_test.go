package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
)

const testYAML = `
datalake:
  system:
    logging:
      level: DEBUG
  environments:
    dev:
      base_url: https://dev.example.test/api
      account: dev-user
      password: ${DATALAKE_TEST_DEV_PASSWORD}
    PROD:
      base_url: https://prod.example.test/api
      account: prod-user
  export:
    product: Renewable Power
    chunk_retry:
      max_attempts: 6
`

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

// TestNewConfig_Defaults verifies the defaults of the export pipeline.
func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()
	e := cfg.Datalake.Export

	assert.Equal(t, "UTC", cfg.Datalake.System.Timezone)
	assert.Equal(t, "INFO", cfg.Datalake.System.Logging.Level)
	assert.Equal(t, 900, e.ChunkSize)
	assert.Equal(t, 3, e.MaxConcurrency)
	assert.Equal(t, 10, e.MaxVersionAttempts)
	assert.Equal(t, 4, e.ChunkRetry.MaxAttempts)
	assert.Equal(t, 2*time.Second, e.ChunkRetry.Interval())
	assert.Equal(t, 5, e.RunRetry.MaxAttempts)
	assert.Equal(t, 30*time.Second, e.RunRetry.Interval())
	assert.Equal(t, 5*time.Second, e.StopDelay())
	assert.Equal(t, 100*time.Second, e.HTTPTimeout())
	assert.Equal(t, "inmemory", cfg.Datalake.Repository.Type)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	t.Setenv("DATALAKE_TEST_DEV_PASSWORD", "s3cret")

	cfg, err := config.LoadConfig(missingEnvFile(t), config.EmbeddedConfig(testYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Datalake.System.Logging.Level)
	assert.Equal(t, "UTC", cfg.Datalake.System.Timezone, "values absent from YAML keep their default")
	assert.Equal(t, "Renewable Power", cfg.Datalake.Export.Product)
	assert.Equal(t, 6, cfg.Datalake.Export.ChunkRetry.MaxAttempts)
	assert.Equal(t, 2000, cfg.Datalake.Export.ChunkRetry.InitialInterval)

	dev, err := cfg.Environment(" DEV ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", dev.Password)
	assert.Equal(t, "dev", dev.Env)

	_, err = cfg.Environment("prod")
	assert.NoError(t, err, "environment keys are case-insensitive")
}

func TestLoadConfig_EnvironmentVariableOverrides(t *testing.T) {
	t.Setenv("DATALAKE_EXPORT_CHUNK_SIZE", "500")
	t.Setenv("DATALAKE_EXPORT_RUN_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("DATALAKE_ENVIRONMENTS_PROD_PASSWORD", "from-env")
	t.Setenv("DATALAKE_ENVIRONMENTS_UAT_BASE_URL", "https://uat.example.test")
	t.Setenv("DATALAKE_SECURITY_MASKED_KEYS", "password, account")

	cfg, err := config.LoadConfig(missingEnvFile(t), config.EmbeddedConfig(testYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Datalake.Export.ChunkSize)
	assert.Equal(t, 2, cfg.Datalake.Export.RunRetry.MaxAttempts)

	prod, err := cfg.Environment("prod")
	require.NoError(t, err)
	assert.Equal(t, "from-env", prod.Password)
	assert.Equal(t, "prod-user", prod.Account, "env override keeps the other YAML fields")

	uat, err := cfg.Environment("uat")
	require.NoError(t, err)
	assert.Equal(t, "https://uat.example.test", uat.BaseURL)

	assert.Equal(t, []string{"password", "account"}, cfg.Datalake.Security.MaskedKeys)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("chunk size above service limit", func(t *testing.T) {
		t.Setenv("DATALAKE_EXPORT_CHUNK_SIZE", "1001")
		_, err := config.LoadConfig(missingEnvFile(t), config.EmbeddedConfig(testYAML), nil)
		assert.ErrorContains(t, err, "chunk_size")
	})
	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.LoadConfig(missingEnvFile(t), config.EmbeddedConfig("datalake: ["), nil)
		assert.Error(t, err)
	})
	t.Run("non numeric override", func(t *testing.T) {
		t.Setenv("DATALAKE_EXPORT_MAX_CONCURRENCY", "three")
		_, err := config.LoadConfig(missingEnvFile(t), config.EmbeddedConfig(testYAML), nil)
		assert.Error(t, err)
	})
}

func TestEnvironment_Unknown(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Datalake.Environments["dev"] = config.EnvironmentConfig{BaseURL: "http://x"}

	_, err := cfg.Environment("qa")
	assert.ErrorContains(t, err, "unknown environment 'qa'")
	assert.ErrorContains(t, err, "dev")
}

func TestMaskedEnvironment(t *testing.T) {
	cfg := config.NewConfig()
	masked := cfg.MaskedEnvironment(config.EnvironmentConfig{Env: "prod", BaseURL: "http://x", Account: "me", Password: "pw"})

	assert.Equal(t, "********", masked["password"])
	assert.Equal(t, "********", masked["account"])
	assert.Equal(t, "http://x", masked["base_url"])
}

func TestOsEnvironmentExpander_Defaults(t *testing.T) {
	t.Setenv("DATALAKE_TEST_SET", "value")
	t.Setenv("DATALAKE_TEST_EMPTY", "")

	out, err := config.NewOsEnvironmentExpander().Expand([]byte(
		"a: ${DATALAKE_TEST_SET:-x}\nb: ${DATALAKE_TEST_UNSET:-fallback}\nc: ${DATALAKE_TEST_EMPTY:-fallback}\nd: ${DATALAKE_TEST_EMPTY}\ne: $DATALAKE_TEST_SET\nf: ${DATALAKE_TEST_UNSET:-}\n"))
	require.NoError(t, err)
	assert.Equal(t, "a: value\nb: fallback\nc: fallback\nd: \ne: value\nf: \n", string(out))
}
