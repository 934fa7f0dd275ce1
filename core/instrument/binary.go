package instrument

import "strings"

// BinarySensor projects a loosely typed attribute onto an on/off state.
type BinarySensor struct {
	base
	deviceClass string
}

func NewBinarySensor(attrPath, name, deviceClass string) *BinarySensor {
	return &BinarySensor{
		base:        base{component: ComponentBinarySensor, attr: attrPath, name: name},
		deviceClass: deviceClass,
	}
}

func (b *BinarySensor) DeviceClass() string { return b.deviceClass }

// BoolState encodes the raw value: a list is on iff non-empty (an empty
// bulb-failure list means no problem), a string is on unless it is
// exactly "Normal", booleans pass through. Other types are an encoding
// error: logged, no value.
func (b *BinarySensor) BoolState() (val, ok bool) {
	raw, ok := b.rawState()
	if !ok {
		return false, false
	}
	switch v := raw.(type) {
	case bool:
		return v, true
	case []any:
		return len(v) > 0, true
	case string:
		return v != "Normal", true
	default:
		b.cfg.Logger.Errorf("cannot encode state for %s: %v (%T)", b.attr, raw, raw)
		return false, false
	}
}

func (b *BinarySensor) State() (any, bool) {
	val, ok := b.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (b *BinarySensor) DisplayState() string {
	val, ok := b.BoolState()
	return displayBool(b.deviceClass, val, ok)
}

// AnyOpen aggregates a mapping of openable parts (doors, windows): on
// iff any key containing "Open" holds a truthy value.
type AnyOpen struct {
	BinarySensor
}

func NewAnyOpen(attrPath, name, deviceClass string) *AnyOpen {
	return &AnyOpen{BinarySensor: *NewBinarySensor(attrPath, name, deviceClass)}
}

func (a *AnyOpen) BoolState() (val, ok bool) {
	raw, found := a.rawState()
	if !found {
		return false, false
	}
	group, isMap := raw.(map[string]any)
	if !isMap {
		a.cfg.Logger.Errorf("cannot encode state for %s: %v (%T)", a.attr, raw, raw)
		return false, false
	}
	for key, sub := range group {
		if strings.Contains(key, "Open") && truthy(sub) {
			return true, true
		}
	}
	return false, true
}

func (a *AnyOpen) State() (any, bool) {
	val, ok := a.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (a *AnyOpen) DisplayState() string {
	val, ok := a.BoolState()
	return displayBool(a.deviceClass, val, ok)
}

// BatteryChargeStatus is on while the high-voltage battery is charging.
// The "currently charging" token is an API-version constant, matched by
// equality and never by substring.
type BatteryChargeStatus struct {
	BinarySensor
}

func NewBatteryChargeStatus() *BatteryChargeStatus {
	return &BatteryChargeStatus{BinarySensor: *NewBinarySensor(
		"hvBattery.hvBatteryChargeStatus", "Battery charging", "plug")}
}

func (b *BatteryChargeStatus) BoolState() (val, ok bool) {
	raw, found := b.rawState()
	if !found {
		return false, false
	}
	status, isStr := raw.(string)
	if !isStr {
		b.cfg.Logger.Errorf("cannot encode state for %s: %v (%T)", b.attr, raw, raw)
		return false, false
	}
	return status == b.cfg.ChargingStateToken, true
}

func (b *BatteryChargeStatus) State() (any, bool) {
	val, ok := b.BoolState()
	if !ok {
		return nil, false
	}
	return val, true
}

func (b *BatteryChargeStatus) DisplayState() string {
	val, ok := b.BoolState()
	return displayBool(b.deviceClass, val, ok)
}

// displayBool maps a binary state onto the vocabulary of its device
// class.
func displayBool(deviceClass string, val, ok bool) string {
	if !ok {
		return "unknown"
	}
	switch deviceClass {
	case "door", "window":
		if val {
			return "Open"
		}
		return "Closed"
	case "safety", "warning":
		if val {
			return "Warning!"
		}
		return "OK"
	case "plug":
		if val {
			return "Charging"
		}
		return "Plug removed"
	default:
		if val {
			return "On"
		}
		return "Off"
	}
}

func truthy(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	default:
		f, ok := asFloat(val)
		return ok && f != 0
	}
}
