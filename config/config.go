// Package config loads the service configuration from file and
// environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/evbridge/voc2mqtt/core/bridge"
	"github.com/evbridge/voc2mqtt/infra/metrics"
	"github.com/evbridge/voc2mqtt/infra/mqtt"
	"github.com/evbridge/voc2mqtt/infra/voc"
)

type Config struct {
	VOC     voc.Config     `json:"voc"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Bridge  bridge.Config  `json:"bridge"`
	Metrics metrics.Config `json:"metrics"`
	Logging LoggingConfig  `json:"logging"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides. The callback rewrites the var name
	// to a dotted path, so the provider must unflatten on ".".
	if err := k.Load(env.Provider("VOC2MQTT_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "voc2mqtt_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.VOC.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.Bridge.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.VOC.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Bridge.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
