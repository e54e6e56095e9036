package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Load_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLMBaseURL)
	assert.Equal(t, 3, cfg.LLMMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.LLMRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 500, cfg.LLMMaxTokens)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 60*time.Second, cfg.CredentialCooldown)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 15, cfg.HistoryFetchWindow)
	assert.True(t, cfg.AlwaysRespondInFixedChannel())
	assert.Empty(t, cfg.Credentials())
}

func TestConfig_Load_CustomValues(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LLM_API_KEYS", "sk-a,sk-b")
	t.Setenv("LLM_API_KEY", "sk-single")
	t.Setenv("LLM_MAX_RETRIES", "5")
	t.Setenv("LLM_RETRY_DELAY", "500ms")
	t.Setenv("FIXED_CHANNEL_ID", "1444296327704875049")
	t.Setenv("FIXED_CHANNEL_RESPONSE_MODE", "mention")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.False(t, cfg.IsDev())
	assert.Equal(t, []string{"sk-a", "sk-b", "sk-single"}, cfg.Credentials())
	assert.Equal(t, 5, cfg.LLMMaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.GetRetryDelay())
	assert.Equal(t, "1444296327704875049", cfg.FixedChannelID)
	assert.False(t, cfg.AlwaysRespondInFixedChannel())
}

func TestConfig_Load_ErrorCases(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "LLM_RETRY_DELAY", "soon"},
		{"bad int", "LLM_MAX_RETRIES", "three"},
		{"zero retries", "LLM_MAX_RETRIES", "0"},
		{"unknown response mode", "FIXED_CHANNEL_RESPONSE_MODE", "sometimes"},
		{"bad base url", "LLM_BASE_URL", "not a url"},
		{"window below limit", "HISTORY_FETCH_WINDOW", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "op=config.Load")
		})
	}
}

func TestConfig_GetRetryDelay_TestEnv(t *testing.T) {
	cfg := Config{AppEnv: "test", LLMRetryDelay: 2 * time.Second}
	assert.True(t, cfg.IsTest())
	assert.Equal(t, 10*time.Millisecond, cfg.GetRetryDelay())
}
