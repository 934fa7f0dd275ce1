package instrument

import (
	"context"
	"fmt"

	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Lock mirrors the central locking state and dispatches lock/unlock
// commands.
type Lock struct {
	base
}

func NewLock() *Lock {
	return &Lock{base: base{
		component:   ComponentLock,
		attr:        "lock",
		name:        "Door lock",
		supportFlag: "lockSupported",
	}}
}

func (l *Lock) BoolState() (val, ok bool) {
	return l.veh.BoolAttr("carLocked")
}

func (l *Lock) State() (any, bool) {
	val, ok := l.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (l *Lock) DisplayState() string {
	val, ok := l.BoolState()
	if !ok {
		return "unknown"
	}
	if val {
		return "Locked"
	}
	return "Unlocked"
}

// Lock locks the car and refreshes the attribute tree; command
// completion does not mean the cached state already reflects it.
func (l *Lock) Lock(ctx context.Context) error {
	if err := l.veh.Call(ctx, vehicle.CommandLock); err != nil {
		return err
	}
	return l.veh.Update(ctx)
}

func (l *Lock) Unlock(ctx context.Context) error {
	if err := l.veh.Call(ctx, vehicle.CommandUnlock); err != nil {
		return err
	}
	return l.veh.Update(ctx)
}

// Switch is an on/off toggle backed by a vehicle capability.
type Switch struct {
	base
	icon string
}

func NewSwitch(attrPath, name, icon string) *Switch {
	return &Switch{
		base: base{component: ComponentSwitch, attr: attrPath, name: name},
		icon: icon,
	}
}

func (s *Switch) Icon() string { return s.icon }

func (s *Switch) BoolState() (val, ok bool) {
	raw, found := s.rawState()
	if !found {
		return false, false
	}
	return truthy(raw), true
}

func (s *Switch) State() (any, bool) {
	val, ok := s.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (s *Switch) DisplayState() string {
	val, ok := s.BoolState()
	if !ok {
		return "unknown"
	}
	if val {
		return "On"
	}
	return "Off"
}

func (s *Switch) TurnOn(ctx context.Context) error {
	return fmt.Errorf("switch %s: no remote command", s.name)
}

func (s *Switch) TurnOff(ctx context.Context) error {
	return fmt.Errorf("switch %s: no remote command", s.name)
}

// Heater controls the parking heater, falling back to the
// preclimatization service on cars without direct heater control.
type Heater struct {
	Switch
}

func NewHeater() *Heater {
	h := &Heater{Switch: *NewSwitch("heater", "Heater", "mdi:radiator")}
	h.supportFlag = "remoteHeaterSupported"
	return h
}

// Setup accepts either the heater or the preclimatization capability
// before falling back to the generic attribute probe.
func (h *Heater) Setup(v *vehicle.Vehicle, cfg Config) bool {
	h.bind(v, cfg)
	if direct, ok := v.BoolAttr("remoteHeaterSupported"); ok && direct {
		return true
	}
	if pre, ok := v.BoolAttr("preclimatizationSupported"); ok && pre {
		return true
	}
	return h.supported()
}

func (h *Heater) BoolState() (val, ok bool) {
	if !h.veh.Has("heater") {
		return false, false
	}
	return h.veh.IsHeaterOn(), true
}

func (h *Heater) State() (any, bool) {
	val, ok := h.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (h *Heater) DisplayState() string {
	val, ok := h.BoolState()
	if !ok {
		return "unknown"
	}
	if val {
		return "On"
	}
	return "Off"
}

func (h *Heater) TurnOn(ctx context.Context) error {
	if err := h.veh.Call(ctx, h.command(vehicle.CommandHeaterStart, vehicle.CommandPreclimatizationStart)); err != nil {
		return err
	}
	return h.veh.Update(ctx)
}

func (h *Heater) TurnOff(ctx context.Context) error {
	if err := h.veh.Call(ctx, h.command(vehicle.CommandHeaterStop, vehicle.CommandPreclimatizationStop)); err != nil {
		return err
	}
	return h.veh.Update(ctx)
}

func (h *Heater) command(direct, fallback string) string {
	if supported, ok := h.veh.BoolAttr("remoteHeaterSupported"); ok && supported {
		return direct
	}
	return fallback
}

// EngineStart controls remote engine start. Support is gated on the
// dedicated capability flag alone; attribute presence does not qualify.
type EngineStart struct {
	Switch
}

func NewEngineStart() *EngineStart {
	e := &EngineStart{Switch: *NewSwitch("engineRunning", "Engine", "mdi:engine")}
	e.supportFlag = "engineStartSupported"
	return e
}

func (e *EngineStart) Setup(v *vehicle.Vehicle, cfg Config) bool {
	e.bind(v, cfg)
	e.attr = e.cfg.EngineRunningAttr
	supported, ok := v.BoolAttr("engineStartSupported")
	return ok && supported
}

func (e *EngineStart) BoolState() (val, ok bool) {
	return e.veh.BoolAttr(e.cfg.EngineRunningAttr)
}

func (e *EngineStart) State() (any, bool) {
	val, ok := e.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (e *EngineStart) DisplayState() string {
	val, ok := e.BoolState()
	if !ok {
		return "unknown"
	}
	if val {
		return "On"
	}
	return "Off"
}

func (e *EngineStart) TurnOn(ctx context.Context) error {
	if err := e.veh.Call(ctx, vehicle.CommandEngineStart); err != nil {
		return err
	}
	return e.veh.Update(ctx)
}

func (e *EngineStart) TurnOff(ctx context.Context) error {
	if err := e.veh.Call(ctx, vehicle.CommandEngineStop); err != nil {
		return err
	}
	return e.veh.Update(ctx)
}
