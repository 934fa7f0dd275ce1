// Package app wires the configured adapters into the bridge runtime.
package app

import (
	"context"
	"fmt"

	"github.com/evbridge/voc2mqtt/config"
	"github.com/evbridge/voc2mqtt/core/bridge"
	"github.com/evbridge/voc2mqtt/infra/logger"
	"github.com/evbridge/voc2mqtt/infra/metrics"
	"github.com/evbridge/voc2mqtt/infra/mqtt"
	"github.com/evbridge/voc2mqtt/infra/voc"
)

// Service orchestrates the VOC poller, the MQTT bus and the bridge
// runtime.
type Service struct {
	runtime *bridge.Runtime
	client  *mqtt.Client
	log     logger.Logger

	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration. An unreachable broker
// or missing credentials fail here; everything later is retried.
func New(cfg *config.Config) (*Service, error) {
	cfg.Logging.Apply()
	logg := logger.New("service")

	source, err := voc.NewClient(cfg.VOC, logger.New("voc_client"))
	if err != nil {
		return nil, fmt.Errorf("voc client: %w", err)
	}

	mqttCfg := cfg.MQTT
	mqttCfg.Logger = logger.New("mqtt_client")
	client, err := mqtt.NewClient(mqttCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	var sinks []bridge.StateSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink bridge.StateSink = metrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	runtime := bridge.NewRuntime(client, source, cfg.Bridge, sink, logger.New("bridge"))

	return &Service{
		runtime:     runtime,
		client:      client,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.runtime.Run(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.client.Close()
	return nil
}
