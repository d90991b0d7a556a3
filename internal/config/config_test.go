package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
providers:
  - provider: openai
    name: azure-east
    base_url: https://east.example.com/v1
    api_key: sk-east
    model:
      - gpt-4o
      - gpt-4o-mini: gpt-4o-lite
    balance:
      - gpt-4o: 3
      - gpt-4o-lite: 0
  - provider: gemini
    name: gcp
    api_key: gm-key
    PROJECT_ID: my-project
    model:
      - gemini-1.5-pro

tokens:
  - api_key: sk-user-1
    model:
      - gpt-4o
      - gemini*
  - api_key: sk-admin
    model:
      - all

server:
  port: "9100"
  default_model: gpt-4o
  debug: true
`

func TestParseExpandsProviders(t *testing.T) {
	cfg, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 3)

	plain := cfg.Providers[0]
	assert.Equal(t, "openai", plain.Type)
	assert.Equal(t, "azure-east", plain.Name)
	assert.Equal(t, "gpt-4o", plain.MappedModel)
	assert.Equal(t, "gpt-4o", plain.OriginalModel)
	assert.Equal(t, "https://east.example.com/v1", plain.BaseURL)
	assert.Equal(t, 3, plain.Weight)

	aliased := cfg.Providers[1]
	assert.Equal(t, "gpt-4o-mini", aliased.MappedModel)
	assert.Equal(t, "gpt-4o-lite", aliased.OriginalModel)
	assert.Equal(t, 0, aliased.Weight, "explicit zero weight survives expansion")

	gem := cfg.Providers[2]
	assert.Equal(t, 1, gem.Weight, "weight defaults to 1 without a balance entry")
	assert.Equal(t, "my-project", gem.Extra["project_id"])
	assert.NotContains(t, gem.Extra, "api_key")
}

func TestParseServerSection(t *testing.T) {
	cfg, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.Server.DefaultModel)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, float64(50), cfg.RateLimit.RequestsPerSecond)
}

func TestParseTokens(t *testing.T) {
	cfg, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, "sk-user-1", cfg.Tokens[0].APIKey)
	assert.Equal(t, []string{"gpt-4o", "gemini*"}, cfg.Tokens[0].Models)
}

func TestParseRejectsIncompleteManifests(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"no providers", "tokens:\n  - api_key: sk\nserver:\n  port: \"1\"\n"},
		{"no tokens", "providers:\n  - provider: openai\n    model: [m]\nserver:\n  port: \"1\"\n"},
		{"no server", "providers:\n  - provider: openai\n    model: [m]\ntokens:\n  - api_key: sk\n"},
		{"provider without type", "providers:\n  - name: x\n    model: [m]\ntokens:\n  - api_key: sk\nserver:\n  port: \"1\"\n"},
		{"provider without models", "providers:\n  - provider: openai\ntokens:\n  - api_key: sk\nserver:\n  port: \"1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.manifest))
			assert.Error(t, err)
		})
	}
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("UPSTREAM_KEY", "sk-from-env")
	assert.Equal(t, "sk-from-env", resolveEnvRef("ENV:UPSTREAM_KEY"))
	assert.Equal(t, "sk-literal", resolveEnvRef("sk-literal"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := Encrypt([]byte(sampleManifest), "shared-secret")
	require.NoError(t, err)

	plain, err := Decrypt(sealed, "shared-secret")
	require.NoError(t, err)
	assert.Equal(t, sampleManifest, string(plain))

	_, err = Decrypt(sealed, "wrong-secret")
	assert.Error(t, err)
}
