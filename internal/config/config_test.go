package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(values map[string]string) *viper.Viper {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(newTestSource(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, EnvDevelopment, cfg.Server.Env)
	assert.True(t, cfg.Server.Debug)
	assert.False(t, cfg.Server.SecurityHeaders)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 1000, cfg.Server.MaxMessageLength)
	assert.Equal(t, 1, cfg.Server.MinMessageLength)
	assert.Equal(t, "apt_session", cfg.Server.CookieName)

	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "gpt-3.5-turbo", cfg.AI.Model)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 3, cfg.AI.MaxRetries)
	assert.False(t, cfg.AI.Enabled())

	assert.Equal(t, "logs/session_logs", cfg.Storage.SessionDir)
	assert.Equal(t, "logs/conversations.log", cfg.Storage.FlatLogPath)
	assert.Equal(t, 2*time.Second, cfg.Storage.LockTimeout)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "admin", cfg.Auth.Username)
	assert.True(t, cfg.Features.Assessment)
	assert.True(t, cfg.Features.SessionExport)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(newTestSource(map[string]string{
		"PORT":                 "127.0.0.1:9000",
		"APP_ENV":              "Testing",
		"CORS_ORIGINS":         "https://a.example, https://b.example ,",
		"MAX_MESSAGE_LENGTH":   "500",
		"MIN_MESSAGE_LENGTH":   "3",
		"OPENAI_API_KEY":       "sk-test",
		"OPENAI_TEMPERATURE":   "0.2",
		"OPENAI_TIMEOUT":       "5",
		"OPENAI_MAX_RETRIES":   "0",
		"LOG_DIR":              "/var/log/apt",
		"SESSION_LOCK_TIMEOUT": "4",
		"FEATURE_ASSESSMENT":   "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, EnvTesting, cfg.Server.Env)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 500, cfg.Server.MaxMessageLength)
	assert.Equal(t, 3, cfg.Server.MinMessageLength)
	assert.True(t, cfg.AI.Enabled())
	assert.InDelta(t, 0.2, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 0, cfg.AI.MaxRetries)
	assert.Equal(t, "/var/log/apt/session_logs", cfg.Storage.SessionDir)
	assert.Equal(t, 4*time.Second, cfg.Storage.LockTimeout)
	// testing 环境默认关闭管理端鉴权
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Features.Assessment)
}

func TestLoadArkProvider(t *testing.T) {
	cfg, err := LoadFrom(newTestSource(map[string]string{
		"AI_PROVIDER":    "ark",
		"ARK_ACCESS_KEY": "ak",
		"ARK_SECRET_KEY": "sk",
		"ARK_MODEL":      "ep-123",
	}))
	require.NoError(t, err)
	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	assert.Equal(t, "cn-beijing", cfg.AI.Region)
	assert.True(t, cfg.AI.Enabled())

	cfg.AI.SecretKey = ""
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"env":          {"APP_ENV": "staging"},
		"port":         {"PORT": "80 80"},
		"debug":        {"DEBUG": "maybe"},
		"max length":   {"MAX_MESSAGE_LENGTH": "0"},
		"temperature":  {"OPENAI_TEMPERATURE": "hot"},
		"retries":      {"OPENAI_MAX_RETRIES": "-1"},
		"provider":     {"AI_PROVIDER": "llama"},
		"lock timeout": {"SESSION_LOCK_TIMEOUT": "0"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(newTestSource(values))
			assert.Error(t, err)
		})
	}
}

func TestValidateProduction(t *testing.T) {
	cfg, err := LoadFrom(newTestSource(map[string]string{
		"APP_ENV":      "production",
		"CORS_ORIGINS": "http://localhost:3000",
	}))
	require.NoError(t, err)
	assert.False(t, cfg.Server.Debug)
	assert.True(t, cfg.Server.SecurityHeaders)
	assert.True(t, cfg.Server.CookieSecure)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model credentials")
	assert.Contains(t, err.Error(), "default admin credentials")
	assert.Contains(t, err.Error(), "localhost")

	cfg.AI.APIKey = "sk-live"
	cfg.Auth.Username = "ops"
	cfg.Auth.Password = "$2a$10$abcdefghijklmnopqrstuv"
	cfg.Server.CORSOrigins = []string{"https://apt.example"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateSkipsDevelopment(t *testing.T) {
	cfg, err := LoadFrom(newTestSource(nil))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}
