package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the watcher process.
type Config struct {
	// BaseURL is the root URL of the PLC web interface, without trailing slash.
	BaseURL string `yaml:"plc_base_url"`
	// Username is the PLC web session user.
	Username string `yaml:"plc_username"`
	// Password is the PLC web session password.
	Password string `yaml:"plc_password"`
	// BotToken is the Telegram bot token used for notifications.
	BotToken string `yaml:"bot_token"`
	// ChatID is the Telegram chat receiving notifications.
	ChatID string `yaml:"chat_id"`
	// PollInterval is the delay between successful poll cycles.
	PollInterval time.Duration `yaml:"poll_interval"`
	// RequestTimeout bounds every HTTP request to the PLC and to Telegram.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// PruneGrace is how long an alarm key absent from a snapshot is retained
	// in the seen set before it becomes eligible to re-fire. Zero prunes
	// immediately on absence.
	PruneGrace time.Duration `yaml:"prune_grace"`
	// StateFile is the path to the JSON file storing the seen set.
	StateFile string `yaml:"state_file"`
	// AlarmLog is the path to the append-only CSV journal of detected alarms.
	AlarmLog string `yaml:"alarm_log"`
	// SubjectPrefix is prepended to every notification header.
	SubjectPrefix string `yaml:"subject_prefix"`
	// MaxNotificationsPerCycle caps Telegram sends in a single cycle.
	// Alarms beyond the cap are journaled and committed without a message.
	MaxNotificationsPerCycle int `yaml:"max_notifications_per_cycle"`
	// NotifyOnFirstRun notifies every alarm present on the very first
	// successful fetch instead of silently seeding the seen set.
	NotifyOnFirstRun bool `yaml:"notify_on_first_run"`
	// SignalsPath is the path of the PLC sensors page. Empty disables
	// signals snapshot logging.
	SignalsPath string `yaml:"signals_path"`
	// SignalsLog is the path to the signals snapshot CSV.
	SignalsLog string `yaml:"signals_log"`
	// MetricsAddress is the listen address for the Prometheus endpoint.
	// Empty disables the listener.
	MetricsAddress string `yaml:"metrics_addr"`
}

const (
	// DefaultConfigFilename is the default filename for watcher settings.
	DefaultConfigFilename = "alarm-watcher-settings.yaml"

	// DefaultStateFilename is the default filename for the seen-set JSON.
	DefaultStateFilename = "alarm-watcher-state.json"

	// DefaultAlarmLogFilename is the default filename for the alarm journal.
	DefaultAlarmLogFilename = "alarms_log.csv"

	// DefaultSignalsLogFilename is the default filename for signals snapshots.
	DefaultSignalsLogFilename = "signals_log.csv"

	// DefaultPollInterval is the default delay between poll cycles.
	DefaultPollInterval = 60 * time.Second

	// DefaultRequestTimeout is the default bound on HTTP requests.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultSubjectPrefix matches the boiler installation this watcher ships for.
	DefaultSubjectPrefix = "[Caldera Pellet]"

	// DefaultMaxNotificationsPerCycle caps Telegram sends per cycle.
	DefaultMaxNotificationsPerCycle = 10

	// DefaultFilePermissions is the default file permission for state files.
	DefaultFilePermissions = 0o600
)

// envOverrides maps environment variables onto Config fields. The environment
// always wins over the YAML file so secrets can stay out of it.
var envOverrides = map[string]func(*Config, string) error{
	"PLC_BASE_URL":                setString(func(c *Config) *string { return &c.BaseURL }),
	"PLC_USERNAME":                setString(func(c *Config) *string { return &c.Username }),
	"PLC_PASSWORD":                setString(func(c *Config) *string { return &c.Password }),
	"NOTIFY_BOT_TOKEN":            setString(func(c *Config) *string { return &c.BotToken }),
	"NOTIFY_CHAT_ID":              setString(func(c *Config) *string { return &c.ChatID }),
	"POLL_INTERVAL":               setDuration(func(c *Config) *time.Duration { return &c.PollInterval }),
	"REQUEST_TIMEOUT":             setDuration(func(c *Config) *time.Duration { return &c.RequestTimeout }),
	"PRUNE_GRACE":                 setDuration(func(c *Config) *time.Duration { return &c.PruneGrace }),
	"STATE_FILE":                  setString(func(c *Config) *string { return &c.StateFile }),
	"ALARM_LOG_CSV":               setString(func(c *Config) *string { return &c.AlarmLog }),
	"SUBJECT_PREFIX":              setString(func(c *Config) *string { return &c.SubjectPrefix }),
	"MAX_NOTIFICATIONS_PER_CYCLE": setInt(func(c *Config) *int { return &c.MaxNotificationsPerCycle }),
	"NOTIFY_ON_FIRST_RUN":         setBool(func(c *Config) *bool { return &c.NotifyOnFirstRun }),
	"SIGNALS_PATH":                setString(func(c *Config) *string { return &c.SignalsPath }),
	"SIGNALS_LOG_CSV":             setString(func(c *Config) *string { return &c.SignalsLog }),
	"METRICS_ADDR":                setString(func(c *Config) *string { return &c.MetricsAddress }),
}

// Load reads configuration from the YAML file at path, applies environment
// overrides and validates the result. A missing file is not an error: the
// watcher can be configured from the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields, applies defaults and normalizes the base URL.
func Validate(cfg *Config) error {
	var missing []string

	for name, value := range map[string]string{
		"PLC_BASE_URL":     cfg.BaseURL,
		"PLC_USERNAME":     cfg.Username,
		"PLC_PASSWORD":     cfg.Password,
		"NOTIFY_BOT_TOKEN": cfg.BotToken,
		"NOTIFY_CHAT_ID":   cfg.ChatID,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)

		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid PLC base URL: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.PruneGrace < 0 {
		cfg.PruneGrace = 0
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.AlarmLog == "" {
		cfg.AlarmLog = DefaultAlarmLogFilename
	}

	if cfg.SignalsLog == "" {
		cfg.SignalsLog = DefaultSignalsLogFilename
	}

	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}

	if cfg.MaxNotificationsPerCycle <= 0 {
		cfg.MaxNotificationsPerCycle = DefaultMaxNotificationsPerCycle
	}

	return nil
}

// applyEnv overlays environment variables onto the configuration.
func applyEnv(cfg *Config) error {
	for name, apply := range envOverrides {
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}

		if err := apply(cfg, value); err != nil {
			return fmt.Errorf("environment variable %s: %w", name, err)
		}
	}

	return nil
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*field(cfg) = value

		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse integer: %w", err)
		}

		*field(cfg) = parsed

		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y":
			*field(cfg) = true
		case "0", "false", "no", "n":
			*field(cfg) = false
		default:
			return fmt.Errorf("unrecognized boolean %q", value)
		}

		return nil
	}
}

// setDuration accepts Go duration syntax and, for compatibility with the
// previous deployment of this watcher, bare integers meaning seconds.
func setDuration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		value = strings.TrimSpace(value)

		parsed, err := time.ParseDuration(value)
		if err != nil {
			seconds, convErr := strconv.Atoi(value)
			if convErr != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			parsed = time.Duration(seconds) * time.Second
		}

		*field(cfg) = parsed

		return nil
	}
}
