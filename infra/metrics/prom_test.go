package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evbridge/voc2mqtt/core/attr"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

type staticSource struct{ attrs attr.Tree }

func (s staticSource) FetchAttributes(context.Context, string) (attr.Tree, error) {
	return s.attrs, nil
}

func (s staticSource) InvokeCommand(context.Context, string, string, map[string]any) error {
	return nil
}

func metricsVehicle() *vehicle.Vehicle {
	attrs := attr.Tree{
		"VIN":                "YV1TEST",
		"registrationNumber": "ABC123",
		"odometer":           50000.0,
		"fuelAmount":         30.0,
		"carLocked":          true,
		"hvBattery":          map[string]any{"hvBatteryLevel": 80.0},
	}
	return vehicle.New(staticSource{attrs: attrs}, attrs)
}

func TestPromSinkRecordsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordVehicleState([]*vehicle.Vehicle{metricsVehicle()}))

	expected := `
# HELP voc_odometer_meters Vehicle main odometer in meters
# TYPE voc_odometer_meters gauge
voc_odometer_meters{registration="ABC123",vin="YV1TEST"} 50000
# HELP voc_car_locked 1 while the car is locked
# TYPE voc_car_locked gauge
voc_car_locked{registration="ABC123",vin="YV1TEST"} 1
# HELP voc_battery_level_percent High-voltage battery level in percent
# TYPE voc_battery_level_percent gauge
voc_battery_level_percent{registration="ABC123",vin="YV1TEST"} 80
`
	require.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected),
		"voc_odometer_meters", "voc_car_locked", "voc_battery_level_percent"))
}

func TestPromSinkSkipsAbsentAttributes(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordVehicleState([]*vehicle.Vehicle{metricsVehicle()}))
	assert.Zero(t, testutil.CollectAndCount(reg, "voc_trip_meter1_meters"))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPromSink(reg)
	require.NoError(t, err)
	_, err = NewPromSink(reg)
	require.NoError(t, err)
}

type countingSink struct {
	calls int
	err   error
}

func (c *countingSink) RecordVehicleState([]*vehicle.Vehicle) error {
	c.calls++
	return c.err
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := NewMultiSink(a, b)

	require.NoError(t, m.RecordVehicleState(nil))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	a := &countingSink{err: errors.New("sink down")}
	b := &countingSink{}
	m := NewMultiSink(a, b)

	assert.Error(t, m.RecordVehicleState(nil))
	assert.Zero(t, b.calls)
}

func TestNumericAttr(t *testing.T) {
	v := metricsVehicle()

	val, ok := numericAttr(v, "odometer")
	require.True(t, ok)
	assert.Equal(t, 50000.0, val)

	val, ok = numericAttr(v, "carLocked")
	require.True(t, ok)
	assert.Equal(t, 1.0, val)

	_, ok = numericAttr(v, "registrationNumber")
	assert.False(t, ok)

	_, ok = numericAttr(v, "tripMeter1")
	assert.False(t, ok)
}
