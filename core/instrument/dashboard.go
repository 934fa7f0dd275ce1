package instrument

import (
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Dashboard is the ordered set of instruments one vehicle supports.
// Built once per vehicle; later polls only mutate the attribute tree
// underneath it.
type Dashboard struct {
	Vehicle     *vehicle.Vehicle
	Instruments []Instrument
}

// NewDashboard instantiates the full catalog, runs Setup on every
// instrument and keeps the supported ones in catalog order.
func NewDashboard(v *vehicle.Vehicle, cfg Config) *Dashboard {
	cfg.SetDefaults()
	d := &Dashboard{Vehicle: v}
	for _, inst := range catalog(cfg) {
		if inst.Setup(v, cfg) {
			d.Instruments = append(d.Instruments, inst)
		} else {
			cfg.Logger.Debugf("instrument %s not supported by %s", inst.Name(), v.UniqueID())
		}
	}
	return d
}

// catalog returns the fixed instrument list. Engine running appears
// twice on purpose: as a switch and as a plain binary sensor, each with
// its own support check.
func catalog(cfg Config) []Instrument {
	return []Instrument{
		NewPosition(),
		NewLock(),
		NewHeater(),
		NewOdometer("odometer", "Odometer"),
		NewOdometer("tripMeter1", "Trip meter 1"),
		NewOdometer("tripMeter2", "Trip meter 2"),
		NewSensor("fuelAmount", "Fuel amount", "mdi:gas-station", "L"),
		NewSensor("fuelAmountLevel", "Fuel level", "mdi:water-percent", "%"),
		NewFuelConsumption(),
		NewSensor("distanceToEmpty", "Range", "mdi:ruler", "km"),
		NewSensor("hvBattery.distanceToHVBatteryEmpty", "Battery range", "mdi:ruler", "km"),
		NewSensor("hvBattery.hvBatteryLevel", "Battery level", "mdi:battery", "%"),
		NewSensor("hvBattery.timeToHVBatteryFullyCharged", "Battery time to charge", "mdi:clock", "minutes"),
		NewBatteryChargeStatus(),
		NewEngineStart(),
		NewJournalLastTrip(),
		NewBinarySensor(cfg.EngineRunningAttr, "Engine running", "power"),
		NewBinarySensor("doors.hoodOpen", "Hood", "door"),
		NewBinarySensor("doors.frontLeftDoorOpen", "Front left door", "door"),
		NewBinarySensor("doors.frontRightDoorOpen", "Front right door", "door"),
		NewBinarySensor("doors.rearLeftDoorOpen", "Rear left door", "door"),
		NewBinarySensor("doors.rearRightDoorOpen", "Rear right door", "door"),
		NewBinarySensor("windows.frontLeftWindowOpen", "Front left window", "window"),
		NewBinarySensor("windows.frontRightWindowOpen", "Front right window", "window"),
		NewBinarySensor("windows.rearLeftWindowOpen", "Rear left window", "window"),
		NewBinarySensor("windows.rearRightWindowOpen", "Rear right window", "window"),
		NewBinarySensor("tyrePressure.frontLeftTyrePressure", "Front left tyre", "warning"),
		NewBinarySensor("tyrePressure.frontRightTyrePressure", "Front right tyre", "warning"),
		NewBinarySensor("tyrePressure.rearLeftTyrePressure", "Rear left tyre", "warning"),
		NewBinarySensor("tyrePressure.rearRightTyrePressure", "Rear right tyre", "warning"),
		NewBinarySensor("washerFluidLevel", "Washer fluid", "safety"),
		NewBinarySensor("brakeFluid", "Brake fluid", "safety"),
		NewBinarySensor("serviceWarningStatus", "Service", "safety"),
		NewBinarySensor("bulbFailures", "Bulbs", "safety"),
		NewAnyOpen("doors", "Doors", "door"),
		NewAnyOpen("windows", "Windows", "window"),
	}
}
