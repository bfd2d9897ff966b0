package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile_Defaults(t *testing.T) {
	t.Setenv("RUNNING_IN_CONTAINER", "")
	t.Setenv("DYNAMODB_ENDPOINT", "")
	t.Setenv("OPENSEARCH_ENDPOINT", "")

	cfg, err := LoadConfigFile("")

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", cfg.DynamoDBEndpoint)
	assert.Equal(t, "http://localhost:4566", cfg.OpenSearchEndpoint)
	assert.Equal(t, 10*time.Second, cfg.SearchRequestTimeout)
	assert.Equal(t, 10000, cfg.MaxIndexDocuments)
	assert.False(t, cfg.RunLockEnabled)
}

func TestLoadConfigFile_ContainerHost(t *testing.T) {
	t.Setenv("RUNNING_IN_CONTAINER", "true")
	t.Setenv("S3_ENDPOINT", "")

	cfg, err := LoadConfigFile("")

	require.NoError(t, err)
	assert.Equal(t, "http://localstack:4566", cfg.S3Endpoint)
}

func TestLoadConfigFile_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dynamodb_table: from-yaml\nopensearch_index: yaml-index\nmax_index_documents: 500\n"), 0o644))
	t.Setenv("DYNAMODB_TABLE", "from-env")
	t.Setenv("OPENSEARCH_INDEX", "")
	t.Setenv("MAX_INDEX_DOCUMENTS", "")

	cfg, err := LoadConfigFile(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DynamoDBTable)
	assert.Equal(t, "yaml-index", cfg.OpenSearchIndex)
	assert.Equal(t, 500, cfg.MaxIndexDocuments)
}

func TestLoadConfigFile_Durations(t *testing.T) {
	t.Setenv("SEARCH_REQUEST_TIMEOUT", "2500")
	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.SearchRequestTimeout)

	t.Setenv("SEARCH_REQUEST_TIMEOUT", "3s")
	cfg, err = LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.SearchRequestTimeout)
}

func TestLoadConfigFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "events without bus", env: map[string]string{"ENABLE_EVENTS": "true", "EVENT_BUS_NAME": ""}},
		{name: "production without jwt secret", env: map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": ""}},
		{name: "non-positive max documents", env: map[string]string{"MAX_INDEX_DOCUMENTS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfigFile("")
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
