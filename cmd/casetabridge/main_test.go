package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/api"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/config"
	"github.com/nerrad567/caseta-bridge/internal/leap"
	"github.com/nerrad567/caseta-bridge/internal/leap/leaptest"
)

const baseConfig = `
bridge:
  id: test-bridge
  name: Test Bridge

mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 5

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18080

relay:
  topic_prefix: casetabridge-test
  request_timeout: 2s
`

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(baseConfig+extra), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnvVar, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies validation rejects an empty database path.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv(configEnvVar, writeConfig(t, `
database:
  path: ""
homekit:
  storage_path: "`+t.TempDir()+`"
  pin: "00102003"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_BrokerUnavailable starts against a port with no MQTT broker.
// Startup either fails at the MQTT connect or shuts down cleanly when the
// context expires, depending on the client's connect behaviour.
func TestRun_BrokerUnavailable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configEnvVar, writeConfig(t, `
database:
  path: "`+filepath.Join(dir, "bridge.db")+`"
  wal_mode: true
  busy_timeout: 5
homekit:
  storage_path: "`+filepath.Join(dir, "hap")+`"
  pin: "00102003"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error (expected without a broker): %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv(configEnvVar, "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv(configEnvVar, expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestCredentialSource(t *testing.T) {
	dir := t.TempDir()
	creds := leaptest.Credentials(t)
	files := map[string][]byte{"ca.pem": creds.CA, "key.pem": creds.Key, "cert.pem": creds.Cert}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	cfg := &config.Config{Hubs: []config.HubConfig{
		{
			ID:       "032E7E88",
			CAFile:   filepath.Join(dir, "ca.pem"),
			KeyFile:  filepath.Join(dir, "key.pem"),
			CertFile: filepath.Join(dir, "cert.pem"),
		},
		{
			ID:       "0A1B2C3D",
			CAFile:   filepath.Join(dir, "missing.pem"),
			KeyFile:  filepath.Join(dir, "key.pem"),
			CertFile: filepath.Join(dir, "cert.pem"),
		},
	}}
	source := credentialSource(cfg)

	got, err := source("032e7e88")
	if err != nil {
		t.Fatalf("source() error: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("loaded credentials do not validate: %v", err)
	}

	if _, err := source("FFFFFFFF"); !errors.Is(err, leap.ErrInvalidCredentials) {
		t.Errorf("unknown hub error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := source("0A1B2C3D"); err == nil {
		t.Error("missing CA file should fail")
	}
}

func TestHealthCheck_ReportsFirstFailureByName(t *testing.T) {
	checks := map[string]api.HealthCheck{
		"database": func(context.Context) error { return nil },
		"mqtt":     func(context.Context) error { return errors.New("not connected") },
		"influxdb": func(context.Context) error { return errors.New("unreachable") },
	}

	err := healthCheck(context.Background(), checks)
	if err == nil || err.Error() != "influxdb: unreachable" {
		t.Errorf("healthCheck() = %v, want influxdb failure", err)
	}

	delete(checks, "mqtt")
	delete(checks, "influxdb")
	if err := healthCheck(context.Background(), checks); err != nil {
		t.Errorf("healthCheck() = %v, want nil", err)
	}
}
