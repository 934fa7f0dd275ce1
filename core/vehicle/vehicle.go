// Package vehicle models one car known to the telematics account: its
// live attribute tree, identity and remote command dispatch.
package vehicle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/evbridge/voc2mqtt/core/attr"
)

// Remote command names understood by the vendor API.
const (
	CommandLock                  = "lock"
	CommandUnlock                = "unlock"
	CommandHeaterStart           = "heater/start"
	CommandHeaterStop            = "heater/stop"
	CommandPreclimatizationStart = "preclimatization/start"
	CommandPreclimatizationStop  = "preclimatization/stop"
	CommandEngineStart           = "engine/start"
	CommandEngineStop            = "engine/stop"
)

// DataSource is the vendor API capability the core depends on. The HTTP
// client behind it owns retries, auth and timeouts.
type DataSource interface {
	// FetchAttributes returns the current attribute tree for the vehicle.
	FetchAttributes(ctx context.Context, vin string) (attr.Tree, error)

	// InvokeCommand runs a remote command against the vehicle.
	InvokeCommand(ctx context.Context, vin string, command string, params map[string]any) error
}

// Vehicle wraps the attribute tree returned by the server. The tree is
// replaced in place on every poll; readers always see the latest state.
type Vehicle struct {
	src DataSource

	mu        sync.RWMutex
	attrs     attr.Tree
	available bool
}

// New binds an attribute tree to a data source.
func New(src DataSource, attrs attr.Tree) *Vehicle {
	if attrs == nil {
		attrs = attr.Tree{}
	}
	return &Vehicle{src: src, attrs: attrs, available: true}
}

// Attrs returns the live attribute tree.
func (v *Vehicle) Attrs() attr.Tree {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.attrs
}

// SetAttrs swaps in a freshly polled attribute tree.
func (v *Vehicle) SetAttrs(attrs attr.Tree) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attrs = attrs
}

// Update refetches the attribute tree from the data source. Commands do
// not guarantee attribute consistency until this has run.
func (v *Vehicle) Update(ctx context.Context) error {
	attrs, err := v.src.FetchAttributes(ctx, v.VIN())
	if err != nil {
		return fmt.Errorf("update %s: %w", v.UniqueID(), err)
	}
	v.SetAttrs(attrs)
	return nil
}

// Available reports whether the last poll refreshed this vehicle. A
// vehicle whose refresh failed keeps its stale tree but is reported
// unavailable until the next successful poll.
func (v *Vehicle) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.available
}

// SetAvailable records the outcome of the last poll for this vehicle.
func (v *Vehicle) SetAvailable(ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.available = ok
}

// VIN returns the vehicle identification number.
func (v *Vehicle) VIN() string { return v.StringAttr("VIN") }

// RegistrationNumber returns the plate number, if the account exposes it.
func (v *Vehicle) RegistrationNumber() string { return v.StringAttr("registrationNumber") }

// UniqueID is the stable lowercase identifier used in topic names.
func (v *Vehicle) UniqueID() string { return strings.ToLower(v.VIN()) }

// Identifier is the human-facing name: registration number when present,
// else the VIN.
func (v *Vehicle) Identifier() string {
	if reg := v.RegistrationNumber(); reg != "" {
		return reg
	}
	return v.VIN()
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("%s (%s)", v.Identifier(), v.UniqueID())
}

// StringAttr returns a top-level string attribute or "".
func (v *Vehicle) StringAttr(name string) string {
	s, _ := v.lookup(name).(string)
	return s
}

// BoolAttr returns a top-level boolean attribute. ok is false when the
// key is absent or not a boolean.
func (v *Vehicle) BoolAttr(name string) (val, ok bool) {
	val, ok = v.lookup(name).(bool)
	return val, ok
}

// Has reports whether name exists as a direct top-level attribute.
func (v *Vehicle) Has(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.attrs[name]
	return ok
}

// IsLocked mirrors the carLocked flag.
func (v *Vehicle) IsLocked() bool {
	locked, _ := v.BoolAttr("carLocked")
	return locked
}

// IsHeaterOn reports whether the parking heater is running.
func (v *Vehicle) IsHeaterOn() bool {
	status, err := attr.Resolve(v.Attrs(), "heater.status")
	if err != nil {
		return false
	}
	s, ok := status.(string)
	return ok && s != "off"
}

// Call dispatches a remote command by name.
func (v *Vehicle) Call(ctx context.Context, command string) error {
	if err := v.src.InvokeCommand(ctx, v.VIN(), command, nil); err != nil {
		return fmt.Errorf("command %s on %s: %w", command, v.UniqueID(), err)
	}
	return nil
}

func (v *Vehicle) lookup(name string) any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.attrs[name]
}
