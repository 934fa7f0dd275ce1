// Package instrument maps vehicle attributes onto typed, unit-aware
// home-automation entities: sensors, binary sensors, locks, switches and
// a position tracker.
package instrument

import (
	"fmt"

	"github.com/evbridge/voc2mqtt/core/attr"
	"github.com/evbridge/voc2mqtt/core/logger"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Component is the home-automation platform component an instrument maps to.
type Component string

const (
	ComponentNone          Component = ""
	ComponentSensor        Component = "sensor"
	ComponentBinarySensor  Component = "binary_sensor"
	ComponentLock          Component = "lock"
	ComponentSwitch        Component = "switch"
	ComponentDeviceTracker Component = "device_tracker"
)

// Config carries the instrument-local options applied at setup time.
type Config struct {
	// ScandinavianMiles converts km-denominated sensors to mil (1 mil = 10 km).
	ScandinavianMiles bool `json:"scandinavian_miles"`

	// ChargingStateToken is the charge-status value meaning "currently
	// charging". The exact token drifts across vendor API versions.
	ChargingStateToken string `json:"charging_state_token"`

	// EngineRunningAttr is the attribute holding the engine-running flag.
	// Its name also drifts across vendor API versions.
	EngineRunningAttr string `json:"engine_running_attr"`

	Logger logger.Logger `json:"-"`
}

// SetDefaults fills the API-version constants with their most recent
// known values.
func (c *Config) SetDefaults() {
	if c.ChargingStateToken == "" {
		c.ChargingStateToken = "CablePluggedInCar_Charging"
	}
	if c.EngineRunningAttr == "" {
		c.EngineRunningAttr = "engineRunning"
	}
	if c.Logger == nil {
		c.Logger = logger.Nop{}
	}
}

// Instrument is one user-facing projection of a vehicle attribute.
// State is recomputed from the live attribute tree on every call; the
// tree mutates in place on each poll.
type Instrument interface {
	// Setup binds the vehicle, applies configuration and reports whether
	// the vehicle supports this instrument. Called once per dashboard.
	Setup(v *vehicle.Vehicle, cfg Config) bool

	Component() Component
	Attribute() string
	Name() string
	FullName() string
	Vehicle() *vehicle.Vehicle

	// State returns the typed current value. ok is false when the
	// underlying data is absent, so callers can skip publishing.
	State() (val any, ok bool)

	// DisplayState renders the state for humans.
	DisplayState() string
}

// base carries the fields and support probing shared by all variants.
type base struct {
	component   Component
	attr        string
	name        string
	supportFlag string

	veh *vehicle.Vehicle
	cfg Config
}

func (b *base) Setup(v *vehicle.Vehicle, cfg Config) bool {
	b.bind(v, cfg)
	return b.supported()
}

func (b *base) bind(v *vehicle.Vehicle, cfg Config) {
	cfg.SetDefaults()
	b.veh = v
	b.cfg = cfg
}

// supported runs the ordered capability probe: a named support flag when
// the vehicle exposes one, then direct attribute presence, then
// dotted-path resolvability. The first applicable rule decides.
func (b *base) supported() bool {
	if b.supportFlag != "" {
		if val, ok := b.veh.BoolAttr(b.supportFlag); ok {
			return val
		}
	}
	if b.veh.Has(b.attr) {
		return true
	}
	return attr.IsResolvable(b.veh.Attrs(), b.attr)
}

func (b *base) Component() Component      { return b.component }
func (b *base) Attribute() string         { return b.attr }
func (b *base) Name() string              { return b.name }
func (b *base) Vehicle() *vehicle.Vehicle { return b.veh }

func (b *base) FullName() string {
	return fmt.Sprintf("%s %s", b.veh.Identifier(), b.name)
}

// rawState resolves the attribute path in the live tree. A missing path
// or an explicit null both mean "no value".
func (b *base) rawState() (any, bool) {
	val, err := attr.Resolve(b.veh.Attrs(), b.attr)
	if err != nil || val == nil {
		return nil, false
	}
	return val, true
}

// asFloat coerces the numeric types a JSON decoder may hand us.
func asFloat(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
