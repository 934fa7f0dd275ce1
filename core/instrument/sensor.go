package instrument

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/evbridge/voc2mqtt/core/attr"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Sensor wraps a numeric or string measurement with a unit.
type Sensor struct {
	base
	icon string
	unit string
}

// NewSensor builds a plain measurement sensor.
func NewSensor(attrPath, name, icon, unit string) *Sensor {
	return &Sensor{
		base: base{component: ComponentSensor, attr: attrPath, name: name},
		icon: icon,
		unit: unit,
	}
}

func (s *Sensor) Icon() string { return s.icon }
func (s *Sensor) Unit() string { return s.unit }

// Setup converts km-denominated units to Scandinavian miles when
// configured. The swap is idempotent: once converted no "km" remains.
func (s *Sensor) Setup(v *vehicle.Vehicle, cfg Config) bool {
	s.bind(v, cfg)
	if cfg.ScandinavianMiles && strings.Contains(s.unit, "km") {
		s.unit = strings.ReplaceAll(s.unit, "km", "mil")
	}
	return s.supported()
}

// State returns the raw measurement, divided by 10 when the unit has
// been converted to miles.
func (s *Sensor) State() (any, bool) {
	raw, ok := s.rawState()
	if !ok {
		return nil, false
	}
	if strings.Contains(s.unit, "mil") {
		if f, isNum := asFloat(raw); isNum && f != 0 {
			return f / 10, true
		}
	}
	return raw, true
}

func (s *Sensor) DisplayState() string {
	val, ok := s.State()
	if !ok {
		return "unknown"
	}
	if s.unit == "" {
		return fmt.Sprint(val)
	}
	return fmt.Sprintf("%v %s", val, s.unit)
}

// FuelConsumption reports average consumption. The vendor attribute is
// liters per 1000 km, scaled here to L/100 km (or L/mil).
type FuelConsumption struct {
	Sensor
}

func NewFuelConsumption() *FuelConsumption {
	return &FuelConsumption{Sensor: *NewSensor(
		"averageFuelConsumption", "Fuel consumption", "mdi:gas-station", "L/100 km")}
}

// Setup swaps the unit to the mil-denominated form directly; the generic
// km substitution does not apply to a per-distance unit.
func (f *FuelConsumption) Setup(v *vehicle.Vehicle, cfg Config) bool {
	f.bind(v, cfg)
	if cfg.ScandinavianMiles {
		f.unit = "L/mil"
	}
	return f.supported()
}

// State scales the sensor value by 10 and rounds to one decimal, or two
// when the mil unit is active and the value was already divided once.
func (f *FuelConsumption) State() (any, bool) {
	val, ok := f.Sensor.State()
	if !ok {
		return nil, false
	}
	n, isNum := asFloat(val)
	if !isNum || n == 0 {
		return nil, false
	}
	decimals := 1
	if strings.Contains(f.unit, "mil") {
		decimals = 2
	}
	return roundTo(n/10, decimals), true
}

func (f *FuelConsumption) DisplayState() string {
	val, ok := f.State()
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%v %s", val, f.unit)
}

// Odometer reports a distance counter. The vendor value is meters.
type Odometer struct {
	Sensor
}

func NewOdometer(attrPath, name string) *Odometer {
	return &Odometer{Sensor: *NewSensor(attrPath, name, "mdi:speedometer", "km")}
}

// State truncates to whole kilometers. An absent value reads as 0, not
// as "no value"; trip meters reset to zero and a fresh counter is a
// meaningful state.
func (o *Odometer) State() (any, bool) {
	val, ok := o.Sensor.State()
	if !ok {
		return 0, true
	}
	n, isNum := asFloat(val)
	if !isNum {
		return 0, true
	}
	return int(math.Round(n / 1000)), true
}

func (o *Odometer) DisplayState() string {
	val, _ := o.State()
	return fmt.Sprintf("%v %s", val, o.unit)
}

// JournalLastTrip exposes the most recent trip from the driving journal.
type JournalLastTrip struct {
	Sensor
}

func NewJournalLastTrip() *JournalLastTrip {
	j := &JournalLastTrip{Sensor: *NewSensor("trips", "Last trip", "mdi:book-open", "")}
	j.supportFlag = "journalLogSupported"
	return j
}

// Setup requires the journal to be both supported and enabled on the
// account; attribute presence alone does not qualify.
func (j *JournalLastTrip) Setup(v *vehicle.Vehicle, cfg Config) bool {
	j.bind(v, cfg)
	supported, ok := v.BoolAttr("journalLogSupported")
	if !ok || !supported {
		return false
	}
	enabled, ok := v.BoolAttr("journalLogEnabled")
	return ok && enabled
}

// State is the end time of the most recent trip.
func (j *JournalLastTrip) State() (any, bool) {
	trip, ok := j.lastTrip()
	if !ok {
		return nil, false
	}
	end, ok := trip["endTime"].(string)
	if !ok {
		return nil, false
	}
	return end, true
}

func (j *JournalLastTrip) DisplayState() string {
	val, ok := j.State()
	if !ok {
		return "unknown"
	}
	return fmt.Sprint(val)
}

// Attributes returns the trip metadata published alongside the state.
func (j *JournalLastTrip) Attributes() map[string]any {
	trip, ok := j.lastTrip()
	if !ok {
		return nil
	}
	out := map[string]any{}
	if v, ok := trip["startTime"].(string); ok {
		out["start_time"] = v
	}
	if v, ok := trip["endTime"].(string); ok {
		out["end_time"] = v
	}
	if addr := tripAddress(trip, "startPosition"); addr != "" {
		out["start_address"] = addr
	}
	if addr := tripAddress(trip, "endPosition"); addr != "" {
		out["end_address"] = addr
	}
	if start, sok := out["start_time"].(string); sok {
		if end, eok := out["end_time"].(string); eok {
			if d, err := tripDuration(start, end); err == nil {
				out["duration_minutes"] = d
			}
		}
	}
	return out
}

// lastTrip digs out the newest trip detail record. The journal endpoint
// returns trips newest first.
func (j *JournalLastTrip) lastTrip() (map[string]any, bool) {
	raw, err := attr.Resolve(j.veh.Attrs(), "trips")
	if err != nil {
		return nil, false
	}
	trips, ok := raw.([]any)
	if !ok || len(trips) == 0 {
		return nil, false
	}
	trip, ok := trips[0].(map[string]any)
	if !ok {
		return nil, false
	}
	if details, ok := trip["tripDetails"].([]any); ok && len(details) > 0 {
		if detail, ok := details[0].(map[string]any); ok {
			return detail, true
		}
	}
	return trip, true
}

func tripAddress(trip map[string]any, key string) string {
	pos, ok := trip[key].(map[string]any)
	if !ok {
		return ""
	}
	street, _ := pos["streetAddress"].(string)
	city, _ := pos["city"].(string)
	switch {
	case street != "" && city != "":
		return street + ", " + city
	case street != "":
		return street
	default:
		return city
	}
}

func tripDuration(start, end string) (int, error) {
	st, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0, err
	}
	et, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return 0, err
	}
	return int(et.Sub(st).Minutes()), nil
}

func roundTo(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
