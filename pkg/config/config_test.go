package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anuj67851/genai-workflow-maker/pkg/vector"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "workflows.db", cfg.Database.DSN)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, vector.ProviderChromem, cfg.Vector.Type)
	assert.Equal(t, 25, cfg.Uploads.MaxFileSizeMB)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_KEY", "sk-from-env")
	t.Setenv("DB_HOST", "db.internal")

	path := writeConfig(t, `
llm:
  api_key: ${TEST_KEY}
  model: gpt-4o-mini
  timeout: 45s
database:
  driver: postgres
  dsn: postgres://user:pass@${DB_HOST}:5432/workflows
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Contains(t, cfg.Database.DSN, "db.internal")
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadDefaultValueSyntax(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	os.Unsetenv("UNSET_PORT_VAR")

	path := writeConfig(t, `
server:
  host: ${UNSET_PORT_VAR:-127.0.0.1}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Load("")
	assert.ErrorContains(t, err, "llm.api_key")
}

func TestValidateRejectsBadDriver(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{APIKey: "k"}, Database: DatabaseConfig{Driver: "oracle"}}
	cfg.SetDefaults()
	assert.ErrorContains(t, cfg.Validate(), "database.driver")
}

func TestValidateRerankNeedsBaseURL(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{APIKey: "k"}, Rerank: RerankerConfig{Enabled: true}}
	cfg.SetDefaults()
	assert.ErrorContains(t, cfg.Validate(), "rerank.base_url")
}

func TestVectorSection(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := writeConfig(t, `
vector:
  type: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, vector.ProviderQdrant, cfg.Vector.Type)
	require.NotNil(t, cfg.Vector.Qdrant)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Qdrant.Host)
}

func TestOpenAIMapping(t *testing.T) {
	llm := LLMConfig{APIKey: "k", Model: "gpt-4o", Timeout: 10 * time.Second}
	mc := llm.OpenAI()
	assert.Equal(t, "k", mc.APIKey)
	assert.Equal(t, "gpt-4o", mc.Model)
	assert.Equal(t, 10*time.Second, mc.Timeout)
}
