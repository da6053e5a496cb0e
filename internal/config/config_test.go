package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// completeConfig returns a configuration with every required field populated.
func completeConfig() *Config {
	return &Config{
		BaseURL:  "http://192.168.1.50",
		Username: "operator",
		Password: "secret",
		BotToken: "123:abc",
		ChatID:   "-100200300",
	}
}

// TestValidate_MissingFields checks that every absent required field is named.
func TestValidate_MissingFields(t *testing.T) {
	t.Parallel()

	err := Validate(new(Config))
	require.Error(t, err)
	require.Contains(t, err.Error(), "PLC_BASE_URL")
	require.Contains(t, err.Error(), "NOTIFY_CHAT_ID")

	cfg := completeConfig()
	cfg.Password = ""

	err = Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PLC_PASSWORD")
	require.NotContains(t, err.Error(), "PLC_USERNAME")
}

// TestValidate_Defaults ensures optional fields get their documented defaults.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := completeConfig()
	cfg.BaseURL = "http://192.168.1.50/"

	require.NoError(t, Validate(cfg))
	require.Equal(t, "http://192.168.1.50", cfg.BaseURL)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	require.Zero(t, cfg.PruneGrace)
	require.Equal(t, DefaultStateFilename, cfg.StateFile)
	require.Equal(t, DefaultAlarmLogFilename, cfg.AlarmLog)
	require.Equal(t, DefaultMaxNotificationsPerCycle, cfg.MaxNotificationsPerCycle)
	require.False(t, cfg.NotifyOnFirstRun)
	require.Empty(t, cfg.SignalsPath)
}

// TestValidate_BadBaseURL rejects URLs the adapter could not use.
func TestValidate_BadBaseURL(t *testing.T) {
	t.Parallel()

	cfg := completeConfig()
	cfg.BaseURL = "not a url"

	require.Error(t, Validate(cfg))
}

// TestLoad_FileWithEnvOverride ensures the environment wins over the YAML file.
func TestLoad_FileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := `
plc_base_url: http://10.0.0.2
plc_username: operator
plc_password: from-file
bot_token: 123:abc
chat_id: "42"
poll_interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("PLC_PASSWORD", "from-env")
	t.Setenv("POLL_INTERVAL", "900")
	t.Setenv("NOTIFY_ON_FIRST_RUN", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Password)
	require.Equal(t, 900*time.Second, cfg.PollInterval)
	require.True(t, cfg.NotifyOnFirstRun)
	require.Equal(t, "http://10.0.0.2", cfg.BaseURL)
}

// TestLoad_MissingFileEnvOnly verifies a missing settings file is fine when
// the environment provides everything.
func TestLoad_MissingFileEnvOnly(t *testing.T) {
	t.Setenv("PLC_BASE_URL", "http://10.0.0.3")
	t.Setenv("PLC_USERNAME", "operator")
	t.Setenv("PLC_PASSWORD", "secret")
	t.Setenv("NOTIFY_BOT_TOKEN", "123:abc")
	t.Setenv("NOTIFY_CHAT_ID", "42")
	t.Setenv("PRUNE_GRACE", "5m")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.3", cfg.BaseURL)
	require.Equal(t, 5*time.Minute, cfg.PruneGrace)
}

// TestLoad_BadEnvValue surfaces unparseable environment values at launch.
func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("PLC_BASE_URL", "http://10.0.0.3")
	t.Setenv("PLC_USERNAME", "operator")
	t.Setenv("PLC_PASSWORD", "secret")
	t.Setenv("NOTIFY_BOT_TOKEN", "123:abc")
	t.Setenv("NOTIFY_CHAT_ID", "42")
	t.Setenv("POLL_INTERVAL", "soon")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "POLL_INTERVAL")
}
