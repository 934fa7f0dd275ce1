package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/evbridge/voc2mqtt/core/attr"
	"github.com/evbridge/voc2mqtt/core/instrument"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

type fakeSource struct {
	mu       sync.Mutex
	attrs    attr.Tree
	updates  int
	updErr   error
	failVIN  string
	vehicles []*vehicle.Vehicle
	commands []string
}

func (f *fakeSource) FetchAttributes(_ context.Context, _ string) (attr.Tree, error) {
	return f.attrs, nil
}

func (f *fakeSource) InvokeCommand(_ context.Context, _ string, command string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeSource) Update(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updErr != nil {
		return f.updErr
	}
	for _, v := range f.vehicles {
		v.SetAvailable(v.VIN() != f.failVIN)
	}
	return nil
}

func (f *fakeSource) Vehicles() []*vehicle.Vehicle { return f.vehicles }

func (f *fakeSource) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newTestVehicle(attrs attr.Tree) (*vehicle.Vehicle, *fakeSource) {
	src := &fakeSource{attrs: attrs}
	v := vehicle.New(src, attrs)
	src.vehicles = []*vehicle.Vehicle{v}
	return v, src
}

func setupEntity(t *testing.T, inst instrument.Instrument, v *vehicle.Vehicle, cfg Config) *Entity {
	t.Helper()
	cfg.SetDefaults()
	require.True(t, inst.Setup(v, cfg.Instrument))
	return NewEntity(inst, cfg, nil)
}

func TestEntityTopics(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{"VIN": "YV1TEST", "odometer": 50000.0})
	e := setupEntity(t, instrument.NewOdometer("odometer", "Odometer"), v, Config{})

	assert.Equal(t, "homeassistant/sensor/volvo_yv1test/odometer/config", e.DiscoveryTopic())
	assert.Equal(t, "volvo/yv1test/odometer/state", e.StateTopic())
	assert.Equal(t, "volvo/yv1test/odometer/avail", e.AvailabilityTopic())
	assert.Equal(t, "volvo/yv1test/odometer/cmd", e.CommandTopic())
}

func TestEntityNestedAttributeTopic(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN":       "YV1TEST",
		"hvBattery": map[string]any{"hvBatteryLevel": 80.0},
	})
	e := setupEntity(t, instrument.NewSensor(
		"hvBattery.hvBatteryLevel", "Battery level", "mdi:battery", "%"), v, Config{})

	// The dot in the slug is not a valid topic rune and gets substituted.
	assert.Equal(t, "volvo/yv1test/hv_battery_hv_battery_level/state", e.StateTopic())
}

func TestPositionStateTopic(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN":      "YV1TEST",
		"position": map[string]any{"latitude": 57.7, "longitude": 11.9},
	})
	e := setupEntity(t, instrument.NewPosition(), v, Config{})

	assert.True(t, e.IsPosition())
	assert.Equal(t, "owntracks/volvo/yv1test", e.StateTopic())
}

func TestDiscoveryPayloadSensor(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN": "YV1TEST", "registrationNumber": "ABC123", "fuelAmount": 30.0,
	})
	e := setupEntity(t, instrument.NewSensor("fuelAmount", "Fuel amount", "mdi:gas-station", "L"), v, Config{})

	raw, err := e.DiscoveryPayload()
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(raw, &p))

	assert.Equal(t, "ABC123 Fuel amount", p["name"])
	assert.Equal(t, "volvo/yv1test/fuel_amount/state", p["state_topic"])
	assert.Equal(t, "volvo/yv1test/fuel_amount/avail", p["availability_topic"])
	assert.Equal(t, "L", p["unit_of_measurement"])
	assert.Equal(t, "mdi:gas-station", p["icon"])
	assert.NotContains(t, p, "command_topic")
}

func TestDiscoveryPayloadLock(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN": "YV1TEST", "lock": map[string]any{}, "lockSupported": true, "carLocked": true,
	})
	e := setupEntity(t, instrument.NewLock(), v, Config{})

	raw, err := e.DiscoveryPayload()
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(raw, &p))

	assert.Equal(t, "volvo/yv1test/lock/cmd", p["command_topic"])
	assert.Equal(t, StateLock, p["payload_lock"])
	assert.Equal(t, StateUnlock, p["payload_unlock"])
	assert.Equal(t, true, p["optimistic"])
}

func TestDiscoveryPayloadOpening(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN":   "YV1TEST",
		"doors": map[string]any{"frontLeftDoorOpen": true},
	})
	e := setupEntity(t, instrument.NewBinarySensor(
		"doors.frontLeftDoorOpen", "Front left door", "door"), v, Config{})

	raw, err := e.DiscoveryPayload()
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(raw, &p))

	assert.Equal(t, StateOpen, p["payload_on"])
	assert.Equal(t, StateClose, p["payload_off"])
	assert.Equal(t, "door", p["device_class"])
}

func TestStatePayloadTokens(t *testing.T) {
	attrs := attr.Tree{
		"VIN":              "YV1TEST",
		"lock":             map[string]any{},
		"lockSupported":    true,
		"carLocked":        true,
		"doors":            map[string]any{"frontLeftDoorOpen": true},
		"washerFluidLevel": "VeryLow",
		"tyrePressure":     map[string]any{"frontLeftTyrePressure": "LowPressure"},
		"odometer":         50000.0,
	}
	v, _ := newTestVehicle(attrs)

	tests := []struct {
		name string
		inst instrument.Instrument
		want string
	}{
		{"lock", instrument.NewLock(), StateLock},
		{"opening", instrument.NewBinarySensor("doors.frontLeftDoorOpen", "Front left door", "door"), StateOpen},
		{"safety", instrument.NewBinarySensor("washerFluidLevel", "Washer fluid", "safety"), StateUnsafe},
		{"warning", instrument.NewBinarySensor("tyrePressure.frontLeftTyrePressure", "Front left tyre", "warning"), StateOn},
		{"sensor", instrument.NewOdometer("odometer", "Odometer"), "50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupEntity(t, tt.inst, v, Config{})
			payload, ok, err := e.StatePayload()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, string(payload))
		})
	}
}

func TestStatePayloadNoValue(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{"VIN": "YV1TEST", "fuelAmount": 30.0})
	e := setupEntity(t, instrument.NewSensor("fuelAmount", "Fuel amount", "mdi:gas-station", "L"), v, Config{})

	v.SetAttrs(attr.Tree{"VIN": "YV1TEST"})
	_, ok, err := e.StatePayload()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocationPayloadPlain(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN": "YV1TEST",
		"position": map[string]any{
			"latitude":  57.7,
			"longitude": 11.9,
			"timestamp": "2024-05-01T08:00:00Z",
			"speed":     50.0,
		},
	})
	e := setupEntity(t, instrument.NewPosition(), v, Config{})

	payload, ok, err := e.StatePayload()
	require.NoError(t, err)
	require.True(t, ok)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(payload, &rec))
	assert.Equal(t, "location", rec["_type"])
	assert.Equal(t, 57.7, rec["lat"])
	assert.Equal(t, 11.9, rec["lon"])
	assert.Equal(t, float64(1714550400), rec["tst"])
	assert.Equal(t, 50.0, rec["speed"])
}

func TestLocationPayloadEncrypted(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{
		"VIN":      "YV1TEST",
		"position": map[string]any{"latitude": 57.7, "longitude": 11.9},
	})
	const key = "s3cretsharedkey"
	e := setupEntity(t, instrument.NewPosition(), v, Config{LocationKey: key})

	payload, ok, err := e.StatePayload()
	require.NoError(t, err)
	require.True(t, ok)

	var rec struct {
		Type string `json:"_type"`
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &rec))
	assert.Equal(t, "encrypted", rec.Type)

	sealed, err := base64.StdEncoding.DecodeString(rec.Data)
	require.NoError(t, err)
	require.Greater(t, len(sealed), 24)

	var boxKey [32]byte
	copy(boxKey[:], key)
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, opened := secretbox.Open(nil, sealed[24:], &nonce, &boxKey)
	require.True(t, opened)

	var inner map[string]any
	require.NoError(t, json.Unmarshal(plain, &inner))
	assert.Equal(t, "location", inner["_type"])
	assert.Equal(t, 57.7, inner["lat"])
}

func TestAvailabilityPayload(t *testing.T) {
	v, _ := newTestVehicle(attr.Tree{"VIN": "YV1TEST", "fuelAmount": 30.0})
	e := setupEntity(t, instrument.NewSensor("fuelAmount", "Fuel amount", "mdi:gas-station", "L"), v, Config{})

	assert.Equal(t, StateOnline, string(e.AvailabilityPayload(true)))
	assert.Equal(t, StateOffline, string(e.AvailabilityPayload(false)))

	v.SetAttrs(attr.Tree{"VIN": "YV1TEST"})
	assert.Equal(t, StateOffline, string(e.AvailabilityPayload(true)))
}

func TestHandleCommandLock(t *testing.T) {
	v, src := newTestVehicle(attr.Tree{
		"VIN": "YV1TEST", "lock": map[string]any{}, "lockSupported": true, "carLocked": true,
	})
	e := setupEntity(t, instrument.NewLock(), v, Config{})

	e.HandleCommand(context.Background(), []byte(StateUnlock))
	assert.Equal(t, []string{vehicle.CommandUnlock}, src.recorded())
}

func TestHandleCommandUnknownToken(t *testing.T) {
	v, src := newTestVehicle(attr.Tree{
		"VIN": "YV1TEST", "lock": map[string]any{}, "lockSupported": true, "carLocked": true,
	})
	e := setupEntity(t, instrument.NewLock(), v, Config{})

	e.HandleCommand(context.Background(), []byte("explode"))
	assert.Empty(t, src.recorded())
}
