package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Click speed profile names accepted by options.click_speed_long and
// options.click_speed_double.
const (
	ClickSpeedQuick    = "quick"
	ClickSpeedDefault  = "default"
	ClickSpeedRelaxed  = "relaxed"
	ClickSpeedDisabled = "disabled"
)

// envPrefix is prepended to every environment override.
const envPrefix = "CASETABRIDGE_"

// pinPattern matches a HomeKit setup code (8 digits, no separators).
var pinPattern = regexp.MustCompile(`^[0-9]{8}$`)

// Config is the root configuration structure for Caseta Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	HomeKit   HomeKitConfig   `yaml:"homekit"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Relay     RelayConfig     `yaml:"relay"`
	Hubs      []HubConfig     `yaml:"hubs"`
	Options   OptionsConfig   `yaml:"options"`
}

// BridgeConfig identifies this bridge to the accessory framework.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HomeKitConfig contains settings for the HAP server that exposes accessories.
type HomeKitConfig struct {
	// StoragePath is the directory holding HAP pairing keys.
	StoragePath string `yaml:"storage_path"`

	// Pin is the 8-digit setup code shown to the pairing controller.
	Pin string `yaml:"pin"`

	// Address is the listen address for the HAP server. Empty picks a free port.
	Address string `yaml:"address"`

	// RestartDelay coalesces accessory set changes into one server restart.
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// DiscoveryConfig contains mDNS hub discovery settings.
type DiscoveryConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Service    string   `yaml:"service"`
	Domain     string   `yaml:"domain"`
	Interfaces []string `yaml:"interfaces"`
}

// RelayConfig contains settings for the external LEAP relay daemon.
type RelayConfig struct {
	// TopicPrefix is the root of every MQTT topic used by the bridge.
	TopicPrefix string `yaml:"topic_prefix"`

	// RequestTimeout bounds each request/response exchange with the relay.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Managed indicates whether the bridge starts and supervises the relay.
	// If false, the relay is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the relay executable.
	Binary string `yaml:"binary"`

	// Args are passed to the relay executable.
	Args []string `yaml:"args"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int  `yaml:"max_restart_attempts"`
}

// HubConfig holds the credential set produced by pairing with one hub.
type HubConfig struct {
	// ID is the hub identity as announced over mDNS (e.g. "032E7E88").
	ID string `yaml:"id"`

	// Address is an optional static address. When set, the hub is connected
	// without waiting for discovery.
	Address string `yaml:"address"`

	CAFile   string `yaml:"ca_file"`
	KeyFile  string `yaml:"key_file"`
	CertFile string `yaml:"cert_file"`
}

// HubSecrets is the PEM material read from a HubConfig's files.
type HubSecrets struct {
	CA   []byte
	Key  []byte
	Cert []byte
}

// OptionsConfig contains the options consumed by device reconciliation.
type OptionsConfig struct {
	// FilterPico skips remotes already associated with hub-side zones.
	FilterPico bool `yaml:"filter_pico"`

	// FilterBlinds skips tilt-only blinds entirely.
	FilterBlinds bool `yaml:"filter_blinds"`

	ClickSpeedLong   string `yaml:"click_speed_long"`
	ClickSpeedDouble string `yaml:"click_speed_double"`

	// UpDownExtraDwell is added to the double-press dwell of raise/lower
	// buttons, whose edges reach the hub later than other buttons'.
	UpDownExtraDwell time.Duration `yaml:"up_down_extra_dwell"`

	// HandleTimeout bounds how long a consumer waits for a hub session.
	HandleTimeout time.Duration `yaml:"handle_timeout"`

	// DeviceHeardDelay is the debounce before re-reading a hub's device list
	// after it reports hearing a new device.
	DeviceHeardDelay time.Duration `yaml:"device_heard_delay"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CASETABRIDGE_SECTION_KEY
// For example: CASETABRIDGE_DATABASE_PATH, CASETABRIDGE_HOMEKIT_PIN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:   "caseta-bridge",
			Name: "Caseta Bridge",
		},
		Database: DatabaseConfig{
			Path:        "./data/casetabridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "caseta-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HomeKit: HomeKitConfig{
			StoragePath:  "./data/hap",
			Pin:          "00102003",
			RestartDelay: 2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
			Service: "_lutron._tcp",
			Domain:  "local.",
		},
		Relay: RelayConfig{
			TopicPrefix:         "casetabridge",
			RequestTimeout:      10 * time.Second,
			Binary:              "/usr/local/bin/leap-relay",
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
		},
		Options: OptionsConfig{
			ClickSpeedLong:   ClickSpeedDefault,
			ClickSpeedDouble: ClickSpeedDefault,
			UpDownExtraDwell: 250 * time.Millisecond,
			HandleTimeout:    5 * time.Second,
			DeviceHeardDelay: 30 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets belong here rather than in the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv(envPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv(envPrefix + "HOMEKIT_PIN"); v != "" {
		cfg.HomeKit.Pin = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if !pinPattern.MatchString(c.HomeKit.Pin) {
		errs = append(errs, "homekit.pin must be exactly 8 digits")
	}
	if c.HomeKit.StoragePath == "" {
		errs = append(errs, "homekit.storage_path is required")
	}

	if c.Relay.TopicPrefix == "" || strings.ContainsAny(c.Relay.TopicPrefix, "+#") {
		errs = append(errs, "relay.topic_prefix is required and must not contain wildcards")
	}
	if c.Relay.RequestTimeout <= 0 {
		errs = append(errs, "relay.request_timeout must be positive")
	}
	if c.Relay.Managed && c.Relay.Binary == "" {
		errs = append(errs, "relay.binary is required when relay.managed is true")
	}

	seen := make(map[string]bool, len(c.Hubs))
	for i, hub := range c.Hubs {
		if hub.ID == "" {
			errs = append(errs, fmt.Sprintf("hubs[%d].id is required", i))
			continue
		}
		if seen[hub.ID] {
			errs = append(errs, fmt.Sprintf("hubs[%d].id %q is duplicated", i, hub.ID))
		}
		seen[hub.ID] = true
		if hub.CAFile == "" || hub.KeyFile == "" || hub.CertFile == "" {
			errs = append(errs, fmt.Sprintf("hubs[%d] requires ca_file, key_file and cert_file", i))
		}
	}

	if !validClickSpeed(c.Options.ClickSpeedLong) {
		errs = append(errs, fmt.Sprintf("options.click_speed_long %q is not a known speed", c.Options.ClickSpeedLong))
	}
	if !validClickSpeed(c.Options.ClickSpeedDouble) {
		errs = append(errs, fmt.Sprintf("options.click_speed_double %q is not a known speed", c.Options.ClickSpeedDouble))
	}
	if c.Options.UpDownExtraDwell < 0 {
		errs = append(errs, "options.up_down_extra_dwell must not be negative")
	}
	if c.Options.HandleTimeout <= 0 {
		errs = append(errs, "options.handle_timeout must be positive")
	}
	if c.Options.DeviceHeardDelay <= 0 {
		errs = append(errs, "options.device_heard_delay must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validClickSpeed(s string) bool {
	switch s {
	case ClickSpeedQuick, ClickSpeedDefault, ClickSpeedRelaxed, ClickSpeedDisabled:
		return true
	}
	return false
}

// Hub returns the credential configuration for hubID.
func (c *Config) Hub(hubID string) (HubConfig, bool) {
	for _, hub := range c.Hubs {
		if strings.EqualFold(hub.ID, hubID) {
			return hub, true
		}
	}
	return HubConfig{}, false
}

// ReadSecrets loads the PEM files named by the hub configuration.
//
// Returns:
//   - HubSecrets: CA, private key and certificate bytes
//   - error: If any file cannot be read
func (h HubConfig) ReadSecrets() (HubSecrets, error) {
	var s HubSecrets
	var err error
	if s.CA, err = os.ReadFile(h.CAFile); err != nil {
		return HubSecrets{}, fmt.Errorf("reading CA for hub %s: %w", h.ID, err)
	}
	if s.Key, err = os.ReadFile(h.KeyFile); err != nil {
		return HubSecrets{}, fmt.Errorf("reading key for hub %s: %w", h.ID, err)
	}
	if s.Cert, err = os.ReadFile(h.CertFile); err != nil {
		return HubSecrets{}, fmt.Errorf("reading certificate for hub %s: %w", h.ID, err)
	}
	return s, nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
