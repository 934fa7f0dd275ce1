package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
voc:
  username: user@example.com
  password: hunter2
mqtt:
  broker: tcp://localhost:1883
bridge:
  topic_prefix: car
  poll_interval_seconds: 60
logging:
  level: debug
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.VOC.Username)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "car", cfg.Bridge.TopicPrefix)
	assert.Equal(t, 60, cfg.Bridge.PollIntervalSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "voc": {"username": "user@example.com", "password": "hunter2"},
  "mqtt": {"broker": "tcp://localhost:1883"}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", cfg.VOC.Username)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
voc:
  username: user@example.com
  password: hunter2
mqtt:
  broker: tcp://localhost:1883
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "homeassistant", cfg.Bridge.DiscoveryPrefix)
	assert.Equal(t, "volvo", cfg.Bridge.TopicPrefix)
	assert.Equal(t, "owntracks", cfg.Bridge.LocationPrefix)
	assert.Equal(t, 300, cfg.Bridge.PollIntervalSeconds)
	assert.Equal(t, "CablePluggedInCar_Charging", cfg.Bridge.Instrument.ChargingStateToken)
	assert.Equal(t, "engineRunning", cfg.Bridge.Instrument.EngineRunningAttr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.VOC.TimeoutSeconds)
	assert.Equal(t, ":9198", cfg.Metrics.PrometheusAddr)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VOC2MQTT_BRIDGE__TOPIC_PREFIX", "fleet")
	t.Setenv("VOC2MQTT_VOC__PASSWORD", "fromenv")

	path := writeConfig(t, "config.yaml", validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fleet", cfg.Bridge.TopicPrefix)
	assert.Equal(t, "fromenv", cfg.VOC.Password)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", "broker = 1")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
mqtt:
  broker: tcp://localhost:1883
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
voc:
  username: user@example.com
  password: hunter2
logging:
  level: shouting
`)
	_, err := Load(path)
	assert.Error(t, err)
}
