package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evbridge/voc2mqtt/core/instrument"
	"github.com/evbridge/voc2mqtt/core/logger"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Wire tokens understood by the automation platform.
const (
	StateOn      = "on"
	StateOff     = "off"
	StateOnline  = "online"
	StateOffline = "offline"
	StateLock    = "lock"
	StateUnlock  = "unlock"
	StateOpen    = "open"
	StateClose   = "close"
	StateSafe    = "safe"
	StateUnsafe  = "unsafe"
)

// commandTimeout bounds a remote command triggered from the bus,
// including the follow-up state refresh.
const commandTimeout = 30 * time.Second

type binaryInstrument interface {
	BoolState() (bool, bool)
	DeviceClass() string
}

type measurement interface {
	Unit() string
	Icon() string
}

type locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

type toggler interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// Entity exposes one instrument on the message bus: topic derivation,
// discovery payload, state encoding and inbound command dispatch. It is
// stateless beyond the instrument and config references.
type Entity struct {
	inst instrument.Instrument
	cfg  Config
	log  logger.Logger
}

// NewEntity wraps an instrument for bus exposure.
func NewEntity(inst instrument.Instrument, cfg Config, log logger.Logger) *Entity {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &Entity{inst: inst, cfg: cfg, log: log}
}

// Instrument returns the wrapped instrument.
func (e *Entity) Instrument() instrument.Instrument { return e.inst }

func (e *Entity) Name() string { return e.inst.FullName() }

func (e *Entity) vehicle() *vehicle.Vehicle { return e.inst.Vehicle() }

func (e *Entity) String() string { return e.Name() }

// Kind predicates, decided by the component the instrument maps to.

func (e *Entity) isSensor() bool   { return e.inst.Component() == instrument.ComponentSensor }
func (e *Entity) isLock() bool     { return e.inst.Component() == instrument.ComponentLock }
func (e *Entity) isSwitch() bool   { return e.inst.Component() == instrument.ComponentSwitch }
func (e *Entity) isPosition() bool { return e.inst.Component() == instrument.ComponentDeviceTracker }

func (e *Entity) isBinarySensor() bool {
	return e.inst.Component() == instrument.ComponentBinarySensor
}

func (e *Entity) deviceClass() string {
	if b, ok := e.inst.(binaryInstrument); ok {
		return b.DeviceClass()
	}
	return ""
}

func (e *Entity) isOpening() bool {
	cls := e.deviceClass()
	return e.isBinarySensor() && (cls == "door" || cls == "window")
}

func (e *Entity) isSafety() bool {
	return e.isBinarySensor() && e.deviceClass() == "safety"
}

// IsMutable reports whether the entity accepts inbound commands.
func (e *Entity) IsMutable() bool { return e.isLock() || e.isSwitch() }

// IsPosition reports whether the entity publishes on the location side
// channel only.
func (e *Entity) IsPosition() bool { return e.isPosition() }

// Topic derivation. All names pass through the single-level whitelist so
// vendor attribute paths cannot inject topic separators.

func (e *Entity) nodeID() string {
	return SingleLevel(joinTopic(e.cfg.TopicPrefix, e.vehicle().UniqueID()))
}

func (e *Entity) objectID() string {
	return SingleLevel(camelToSlug(e.inst.Attribute()))
}

// DiscoveryTopic is {discoveryPrefix}/{component}/{nodeId}/{objectId}/config.
func (e *Entity) DiscoveryTopic() string {
	return joinTopic(e.cfg.DiscoveryPrefix, string(e.inst.Component()), e.nodeID(), e.objectID(), "config")
}

func (e *Entity) baseTopic() string {
	return joinTopic(e.cfg.TopicPrefix, e.vehicle().UniqueID(), e.objectID())
}

// StateTopic is the per-entity state topic, except for position
// entities which publish on {locationPrefix}/{topicPrefix}/{uniqueId}.
func (e *Entity) StateTopic() string {
	if e.isPosition() {
		return joinTopic(e.cfg.LocationPrefix, e.cfg.TopicPrefix, e.vehicle().UniqueID())
	}
	return joinTopic(e.baseTopic(), "state")
}

func (e *Entity) AvailabilityTopic() string {
	return joinTopic(e.baseTopic(), "avail")
}

func (e *Entity) CommandTopic() string {
	return joinTopic(e.baseTopic(), "cmd")
}

// discoveryPayload is the retained registration descriptor.
type discoveryPayload struct {
	Name                string `json:"name"`
	StateTopic          string `json:"state_topic"`
	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
	CommandTopic        string `json:"command_topic,omitempty"`
	Icon                string `json:"icon,omitempty"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	DeviceClass         string `json:"device_class,omitempty"`
	PayloadOn           string `json:"payload_on,omitempty"`
	PayloadOff          string `json:"payload_off,omitempty"`
	PayloadLock         string `json:"payload_lock,omitempty"`
	PayloadUnlock       string `json:"payload_unlock,omitempty"`
	Optimistic          bool   `json:"optimistic,omitempty"`
}

// DiscoveryPayload renders the platform registration for this entity.
// An instrument kind with no defined encoding is a misconfiguration and
// fails only this entity.
func (e *Entity) DiscoveryPayload() ([]byte, error) {
	p := discoveryPayload{
		Name:                e.Name(),
		StateTopic:          e.StateTopic(),
		AvailabilityTopic:   e.AvailabilityTopic(),
		PayloadAvailable:    StateOnline,
		PayloadNotAvailable: StateOffline,
	}
	if e.IsMutable() {
		p.CommandTopic = e.CommandTopic()
	}

	switch {
	case e.isSensor():
		if m, ok := e.inst.(measurement); ok {
			p.Icon = m.Icon()
			p.UnitOfMeasurement = m.Unit()
		}
	case e.isOpening():
		p.PayloadOn = StateOpen
		p.PayloadOff = StateClose
		p.DeviceClass = e.deviceClass()
	case e.isSafety():
		p.PayloadOn = StateUnsafe
		p.PayloadOff = StateSafe
		p.DeviceClass = e.deviceClass()
	case e.isBinarySensor():
		p.PayloadOn = StateOn
		p.PayloadOff = StateOff
		p.DeviceClass = e.deviceClass()
	case e.isLock():
		p.PayloadLock = StateLock
		p.PayloadUnlock = StateUnlock
		p.Optimistic = true
	case e.isSwitch():
		if m, ok := e.inst.(measurement); ok {
			p.Icon = m.Icon()
		}
		p.PayloadOn = StateOn
		p.PayloadOff = StateOff
		p.Optimistic = true
	default:
		return nil, fmt.Errorf("no discovery encoding for %s (%s)", e.Name(), e.inst.Component())
	}
	return json.Marshal(p)
}

// locationRecord is the OwnTracks wire format for a position fix.
type locationRecord struct {
	Type    string `json:"_type"`
	TID     string `json:"tid"`
	T       string `json:"t"`
	Lat     any    `json:"lat"`
	Lon     any    `json:"lon"`
	Acc     int    `json:"acc"`
	Tst     int64  `json:"tst"`
	TstISO  string `json:"tst_iso,omitempty"`
	Speed   any    `json:"speed,omitempty"`
	Heading any    `json:"heading,omitempty"`
}

type encryptedRecord struct {
	Type string `json:"_type"`
	Data string `json:"data"`
}

// StatePayload encodes the current state for the wire. ok is false when
// the instrument has no value and nothing should be published.
func (e *Entity) StatePayload() (payload []byte, ok bool, err error) {
	val, ok := e.inst.State()
	if !ok {
		return nil, false, nil
	}

	switch {
	case e.isLock():
		return []byte(pickToken(val, StateLock, StateUnlock)), true, nil
	case e.isSwitch():
		return []byte(pickToken(val, StateOn, StateOff)), true, nil
	case e.isOpening():
		return []byte(pickToken(val, StateOpen, StateClose)), true, nil
	case e.isSafety():
		return []byte(pickToken(val, StateUnsafe, StateSafe)), true, nil
	case e.isBinarySensor():
		return []byte(pickToken(val, StateOn, StateOff)), true, nil
	case e.isPosition():
		loc, isLoc := val.(instrument.Location)
		if !isLoc {
			return nil, false, fmt.Errorf("position state is %T, not a location", val)
		}
		return e.locationPayload(loc)
	default:
		return []byte(fmt.Sprint(val)), true, nil
	}
}

func (e *Entity) locationPayload(loc instrument.Location) ([]byte, bool, error) {
	rec := locationRecord{
		Type: "location",
		TID:  e.cfg.TopicPrefix,
		T:    "p",
		Lat:  loc.Latitude,
		Lon:  loc.Longitude,
		Acc:  1,
		Tst:  time.Now().Unix(),
	}
	if loc.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, loc.Timestamp); err == nil {
			rec.Tst = ts.Unix()
			rec.TstISO = ts.Format(time.RFC3339)
		}
	}
	rec.Speed = loc.Speed
	rec.Heading = loc.Heading

	plain, err := json.Marshal(rec)
	if err != nil {
		return nil, false, err
	}
	if e.cfg.LocationKey == "" {
		return plain, true, nil
	}
	data, err := encryptLocation(plain, e.cfg.LocationKey)
	if err != nil {
		return nil, false, err
	}
	enc, err := json.Marshal(encryptedRecord{Type: "encrypted", Data: data})
	if err != nil {
		return nil, false, err
	}
	return enc, true, nil
}

// AvailabilityPayload is online iff the poll succeeded and the
// instrument currently has a value.
func (e *Entity) AvailabilityPayload(pollOK bool) []byte {
	if pollOK {
		if _, ok := e.inst.State(); ok {
			return []byte(StateOnline)
		}
	}
	return []byte(StateOffline)
}

// HandleCommand decodes an inbound payload token and invokes the
// matching instrument method. Unrecognized tokens are logged and
// dropped.
func (e *Entity) HandleCommand(ctx context.Context, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	token := string(payload)
	switch {
	case e.isLock():
		l, ok := e.inst.(locker)
		if !ok {
			e.log.Errorf("lock entity %s has no lock commands", e.Name())
			return
		}
		switch token {
		case StateLock:
			e.run(ctx, "lock", l.Lock)
		case StateUnlock:
			e.run(ctx, "unlock", l.Unlock)
		default:
			e.log.Infof("skipping unknown payload %q for %s", token, e.Name())
		}
	case e.isSwitch():
		t, ok := e.inst.(toggler)
		if !ok {
			e.log.Errorf("switch entity %s has no toggle commands", e.Name())
			return
		}
		switch token {
		case StateOn:
			e.run(ctx, "turn on", t.TurnOn)
		case StateOff:
			e.run(ctx, "turn off", t.TurnOff)
		default:
			e.log.Infof("skipping unknown payload %q for %s", token, e.Name())
		}
	default:
		e.log.Warnf("no command to execute for %s: %q", e.Name(), token)
	}
}

func (e *Entity) run(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		e.log.Errorf("%s %s: %v", op, e.Name(), err)
		return
	}
	e.log.Infof("%s %s done", op, e.Name())
}

func pickToken(val any, onTrue, onFalse string) string {
	if b, ok := val.(bool); ok && b {
		return onTrue
	}
	return onFalse
}
