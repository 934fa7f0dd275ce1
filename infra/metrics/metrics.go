// Package metrics exports per-poll vehicle state to Prometheus and
// InfluxDB.
package metrics

import (
	"github.com/evbridge/voc2mqtt/core/attr"
	"github.com/evbridge/voc2mqtt/core/bridge"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Config selects and configures the metric sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults fills the Prometheus listen address.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9198"
	}
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordVehicleState([]*vehicle.Vehicle) error { return nil }

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []bridge.StateSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...bridge.StateSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordVehicleState forwards the record to all sinks, returning the
// first error encountered.
func (m *MultiSink) RecordVehicleState(vehicles []*vehicle.Vehicle) error {
	for _, s := range m.Sinks {
		if err := s.RecordVehicleState(vehicles); err != nil {
			return err
		}
	}
	return nil
}

// gaugeSpec names one numeric attribute worth exporting.
type gaugeSpec struct {
	name string
	attr string
	help string
}

// exported is the closed list of numeric vehicle gauges.
var exported = []gaugeSpec{
	{"voc_odometer_meters", "odometer", "Vehicle main odometer in meters"},
	{"voc_trip_meter1_meters", "tripMeter1", "Trip meter 1 in meters"},
	{"voc_trip_meter2_meters", "tripMeter2", "Trip meter 2 in meters"},
	{"voc_fuel_amount_liters", "fuelAmount", "Fuel in tank in liters"},
	{"voc_fuel_level_percent", "fuelAmountLevel", "Tank level in percent"},
	{"voc_distance_to_empty_km", "distanceToEmpty", "Range on remaining fuel in km"},
	{"voc_average_fuel_consumption", "averageFuelConsumption", "Average consumption in L/1000km"},
	{"voc_average_speed", "averageSpeed", "Average speed in km/h"},
	{"voc_battery_level_percent", "hvBattery.hvBatteryLevel", "High-voltage battery level in percent"},
	{"voc_engine_running", "engineRunning", "1 while the engine is running"},
	{"voc_car_locked", "carLocked", "1 while the car is locked"},
}

// numericAttr flattens a gauge attribute to a float: booleans become
// 0/1, everything non-numeric is skipped.
func numericAttr(v *vehicle.Vehicle, path string) (float64, bool) {
	raw, err := attr.Resolve(v.Attrs(), path)
	if err != nil {
		return 0, false
	}
	switch n := raw.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
