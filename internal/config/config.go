// Package config loads server/client settings from a settings module (a
// single YAML or JSON file) named either on the command line or,
// per spec, via a single environment variable when no explicit argument
// is given.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SettingsModuleEnvVar is the single environment variable that names the
// settings module when no --settings flag is passed.
const SettingsModuleEnvVar = "BROKERPC_SETTINGS"

// envDefaults is populated by envconfig and used only to resolve
// SettingsModuleEnvVar without requiring callers to know its name.
type envDefaults struct {
	Settings string `envconfig:"settings"`
}

// ResolveSettingsPath returns explicit if non-empty, otherwise the value
// of SettingsModuleEnvVar, otherwise an error.
func ResolveSettingsPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	var e envDefaults
	if err := envconfig.Process("brokerpc", &e); err != nil {
		return "", fmt.Errorf("resolving settings module from environment: %w", err)
	}
	if e.Settings != "" {
		return e.Settings, nil
	}
	return "", fmt.Errorf("no settings module given: pass --settings or set %s", SettingsModuleEnvVar)
}

// Settings is the top-level configuration shape shared by client and
// server processes. Unknown keys are preserved in Extra for
// service-specific extensions.
type Settings struct {
	ServiceName string                 `mapstructure:"service_name"`
	Transport   TransportSettings      `mapstructure:"transport"`
	Logging     LoggingSettings        `mapstructure:"logging"`
	Server      ServerSettings         `mapstructure:"server"`
	Client      ClientSettings         `mapstructure:"client"`
	Extra       map[string]interface{} `mapstructure:",remain"`
}

type TransportSettings struct {
	Type              string   `mapstructure:"type"` // "redis" or "inmem"
	Hosts             []string `mapstructure:"hosts"`
	SentinelName      string   `mapstructure:"sentinel_name"`
	Username          string   `mapstructure:"username"`
	Password          string   `mapstructure:"password"`
	TLS               bool     `mapstructure:"tls"`
	QueueCapacity     int      `mapstructure:"queue_capacity"`
	QueueFullRetries  int      `mapstructure:"queue_full_retries"`
	MaxMessageBytes   int      `mapstructure:"maximum_message_size_in_bytes"`
	ChunkThreshold    int      `mapstructure:"chunk_messages_larger_than_bytes"`
	WarnLargerThan    int      `mapstructure:"log_messages_larger_than_bytes"`
	ReceiveTimeoutSec float64  `mapstructure:"receive_timeout_seconds"`
}

type LoggingSettings struct {
	Level           string   `mapstructure:"level"`
	CensoredFields  []string `mapstructure:"censored_fields"`
	TracebackLength int      `mapstructure:"traceback_length"`
}

type ServerSettings struct {
	Fork             int    `mapstructure:"fork"`
	NoRespawn        bool   `mapstructure:"no_respawn"`
	HeartbeatPath    string `mapstructure:"heartbeat_file"`
	HarakiriTimeout  float64 `mapstructure:"harakiri_timeout_seconds"`
	ShutdownGraceSec float64 `mapstructure:"shutdown_grace_seconds"`
	WatchPaths       []string `mapstructure:"use_file_watcher"`
}

type ClientSettings struct {
	DefaultTimeoutSec  float64 `mapstructure:"default_timeout_seconds"`
	RaiseJobErrors     bool    `mapstructure:"raise_job_errors"`
	RaiseActionErrors  bool    `mapstructure:"raise_action_errors"`
	CatchTransportErrs bool    `mapstructure:"catch_transport_errors"`
}

// Default returns Settings with the spec's documented defaults applied.
func Default() Settings {
	return Settings{
		Transport: TransportSettings{
			Type:              "redis",
			QueueCapacity:     10000,
			QueueFullRetries:  3,
			MaxMessageBytes:   100 * 1024,
			ChunkThreshold:    100 * 1024,
			WarnLargerThan:    64 * 1024,
			ReceiveTimeoutSec: 5,
		},
		Logging: LoggingSettings{
			Level:           "info",
			TracebackLength: 4096,
		},
		Server: ServerSettings{
			Fork:             1,
			HarakiriTimeout:  30,
			ShutdownGraceSec: 10,
		},
		Client: ClientSettings{
			DefaultTimeoutSec:  5,
			RaiseJobErrors:     true,
			RaiseActionErrors:  true,
			CatchTransportErrs: false,
		},
	}
}

// Load reads the single settings file at path (JSON for a .json path,
// YAML otherwise) into a Settings value seeded with Default(). A directory
// is not read or merged.
func Load(path string) (Settings, error) {
	s := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configTypeFromPath(path))
	if err := v.ReadInConfig(); err != nil {
		return s, fmt.Errorf("reading settings module %q: %w", path, err)
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decoding settings module %q: %w", path, err)
	}
	return s, nil
}

// Dump renders s back to YAML, independent of viper, for --print-config
// style diagnostics: an operator should see exactly the merged settings
// a process resolved without guessing at defaulting behavior.
func (s Settings) Dump() (string, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("rendering settings: %w", err)
	}
	return string(b), nil
}

func configTypeFromPath(path string) string {
	if strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml") {
		return "yaml"
	}
	if strings.HasSuffix(path, ".json") {
		return "json"
	}
	return "yaml"
}
