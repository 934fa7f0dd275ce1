package instrument

import (
	"fmt"

	"github.com/evbridge/voc2mqtt/core/attr"
)

// UnknownCoordinate marks a missing axis in a position fix. One absent
// sub-field does not fail the whole instrument.
const UnknownCoordinate = "unknown"

// Location is a single position fix. Latitude and Longitude are float64
// or UnknownCoordinate.
type Location struct {
	Latitude  any
	Longitude any
	Timestamp string
	Speed     any
	Heading   any
}

// Position tracks the car's location. It publishes on a side channel and
// never takes part in discovery or availability.
type Position struct {
	base
}

func NewPosition() *Position {
	return &Position{base: base{
		component: ComponentDeviceTracker,
		attr:      "position",
		name:      "Position",
	}}
}

// Location extracts the fix from the nested position attribute.
func (p *Position) Location() (Location, bool) {
	raw, err := attr.Resolve(p.veh.Attrs(), p.attr)
	if err != nil {
		return Location{}, false
	}
	pos, ok := raw.(map[string]any)
	if !ok {
		return Location{}, false
	}
	loc := Location{Latitude: UnknownCoordinate, Longitude: UnknownCoordinate}
	if lat, ok := asFloat(pos["latitude"]); ok {
		loc.Latitude = lat
	}
	if lon, ok := asFloat(pos["longitude"]); ok {
		loc.Longitude = lon
	}
	if ts, ok := pos["timestamp"].(string); ok {
		loc.Timestamp = ts
	}
	if speed, ok := asFloat(pos["speed"]); ok {
		loc.Speed = speed
	}
	if heading, ok := asFloat(pos["heading"]); ok {
		loc.Heading = heading
	}
	return loc, true
}

func (p *Position) State() (any, bool) {
	loc, ok := p.Location()
	if !ok {
		return nil, false
	}
	return loc, true
}

func (p *Position) DisplayState() string {
	loc, ok := p.Location()
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%v, %v", loc.Latitude, loc.Longitude)
}
