package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banzaicloud/ess-billing-exporter/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("billing_api_key", "legacy-key")
	t.Setenv("billing_es_id", "deployment:abc")
	t.Setenv("billing_es_api", "es-key")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.Billing.APIKey)
	assert.Equal(t, "deployment:abc", cfg.Sink.Elasticsearch.CloudID)
	assert.Equal(t, "es-key", cfg.Sink.Elasticsearch.APIKey)
	assert.Equal(t, config.SinkElasticsearch, cfg.Sink.Type)
	assert.Equal(t, 60*time.Second, cfg.Poll.Itemized)
	assert.Equal(t, "ess.billing.deployment.charts", cfg.Indices.Charts)
	assert.Equal(t, 2, cfg.Billing.LookbackFromDays)
}

func TestLoad_UpperCaseEnvWins(t *testing.T) {
	t.Setenv("BILLING_API_KEY", "new-key")
	t.Setenv("billing_api_key", "legacy-key")
	t.Setenv("BILLING_ES_ADDRESSES", "http://es-1:9200, http://es-2:9200,")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "new-key", cfg.Billing.APIKey)
	assert.Equal(t, []string{"http://es-1:9200", "http://es-2:9200"}, cfg.Sink.Elasticsearch.Addresses)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
billing:
  api_key: file-key
  org_id: "2185109087"
poll:
  tick: 500ms
  organization: 1h
  deployments: 10m
  itemized: 30m
  charts: 15m
indices:
  organization: billing-org
  deployments: billing-deployments
  itemized: billing-items
  charts: billing-charts
sink:
  type: postgres
  postgres:
    database_url: postgres://localhost:5432/billing
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-key", cfg.Billing.APIKey)
	assert.Equal(t, "2185109087", cfg.Billing.OrgID)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Tick)
	assert.Equal(t, time.Hour, cfg.Poll.Organization)
	assert.Equal(t, "billing-items", cfg.Indices.Itemized)
	assert.Equal(t, config.SinkPostgres, cfg.Sink.Type)
	assert.Equal(t, "billing_documents", cfg.Sink.Postgres.Table)
	assert.Equal(t, "https://api.elastic-cloud.com", cfg.Billing.URL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
billing:
  api_key: file-key
sink:
  type: stdout
`)
	t.Setenv("BILLING_API_KEY", "env-key")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Billing.APIKey)
	assert.Equal(t, config.SinkStdout, cfg.Sink.Type)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing api key",
			content: "sink:\n  type: stdout\n",
			wantErr: "APIKey",
		},
		{
			name:    "unknown sink",
			content: "billing:\n  api_key: k\nsink:\n  type: kafka\n",
			wantErr: "Type",
		},
		{
			name:    "elasticsearch without target",
			content: "billing:\n  api_key: k\n",
			wantErr: "cloud_id",
		},
		{
			name:    "postgres without url",
			content: "billing:\n  api_key: k\nsink:\n  type: postgres\n",
			wantErr: "database_url",
		},
		{
			name:    "postgres bad table",
			content: "billing:\n  api_key: k\nsink:\n  type: postgres\n  postgres:\n    database_url: postgres://x\n    table: \"docs; drop\"\n",
			wantErr: "not a valid identifier",
		},
		{
			name:    "s3 without bucket",
			content: "billing:\n  api_key: k\nsink:\n  type: s3\n",
			wantErr: "bucket",
		},
		{
			name:    "zero interval",
			content: "billing:\n  api_key: k\npoll:\n  charts: 0s\nsink:\n  type: stdout\n",
			wantErr: "Charts",
		},
		{
			name:    "window ends before it starts",
			content: "billing:\n  api_key: k\n  lookback_from_days: 1\n  lookback_to_days: 3\nsink:\n  type: stdout\n",
			wantErr: "LookbackFromDays",
		},
		{
			name:    "bad yaml",
			content: "billing: [",
			wantErr: "parse config YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BILLING_API_KEY", "secret")
	t.Setenv("BILLING_SINK", "postgres")

	_, err := config.Load("")
	require.Error(t, err)

	cfg, err := config.Load("", func(c *config.Config) { c.Sink.Type = config.SinkStdout })
	require.NoError(t, err)
	assert.Equal(t, config.SinkStdout, cfg.Sink.Type)
}
