package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-chat-relay/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	require.NotNil(t, lg)
	assert.True(t, lg.Enabled(context.Background(), slog.LevelDebug))

	lg2 := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	require.NotNil(t, lg2)
	assert.False(t, lg2.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewLogger_EmitsEnvironmentFields(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, config.Config{AppEnv: "prod", OTELServiceName: "svc", BotName: "Digambar GPT"})
	lg.Info("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "prod", rec["env"])
	assert.Equal(t, "Digambar GPT", rec["bot"])
	assert.Equal(t, "hello", rec["msg"])
}
