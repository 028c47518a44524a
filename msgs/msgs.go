// Package msgs defines the typed message catalog exchanged over the bus.
package msgs

import "github.com/rs/xid"

// AddressAny is the broadcast system address.
const AddressAny uint16 = 0xFFFF

// EntityAny is the broadcast entity address.
const EntityAny uint8 = 0xFF

// A Msg is a piece of information that is transferred between tasks.
type Msg interface {
	MsgID() uint16
	Meta() *MsgMeta
	Clone() Msg
}

// MsgMeta contains the meta data that is attached to every message.
type MsgMeta struct {
	UID       string
	Src       uint16
	SrcEntity uint8
	Dst       uint16
	DstEntity uint8
	Time      float64
}

// NewUID generates a unique message identifier.
func NewUID() string {
	return xid.New().String()
}

// Operation mode of the vehicle.
type OpMode uint8

// Operation modes reported in VehicleState.
const (
	OpModeService OpMode = iota
	OpModeCalibration
	OpModeError
	OpModeManeuver
	OpModeExternal
)

func (m OpMode) String() string {
	switch m {
	case OpModeService:
		return "SERVICE"
	case OpModeCalibration:
		return "CALIBRATION"
	case OpModeError:
		return "ERROR"
	case OpModeManeuver:
		return "MANEUVER"
	case OpModeExternal:
		return "EXTERNAL CONTROL"
	}
	return "UNKNOWN"
}

// ZUnits identifies the vertical reference of a Z value.
type ZUnits uint8

// Vertical reference units.
const (
	ZNone ZUnits = iota
	ZDepth
	ZAltitude
	ZHeight
)

// SpeedUnits identifies the unit of a speed reference.
type SpeedUnits uint8

// Speed reference units.
const (
	SpeedMPS SpeedUnits = iota
	SpeedRPM
	SpeedPercent
)

// Control loop mask bits. Exactly one component may own each bit at a time.
const (
	CLNone          uint32 = 0x00000000
	CLPath          uint32 = 0x00000001
	CLTeleoperation uint32 = 0x00000002
	CLYaw           uint32 = 0x00000004
	CLYawRate       uint32 = 0x00000008
	CLDepth         uint32 = 0x00000010
	CLAltitude      uint32 = 0x00000020
	CLSpeed         uint32 = 0x00000040
	CLPitch         uint32 = 0x00000080
	CLNoOverride    uint32 = 0x80000000
	CLAll           uint32 = 0xFFFFFFFF
)

// Entity health states.
type EntityHealth uint8

// Entity health values carried by EntityState.
const (
	HealthBoot EntityHealth = iota
	HealthNormal
	HealthFault
	HealthError
	HealthFailure
)

func (h EntityHealth) String() string {
	switch h {
	case HealthBoot:
		return "BOOT"
	case HealthNormal:
		return "NORMAL"
	case HealthFault:
		return "FAULT"
	case HealthError:
		return "ERROR"
	case HealthFailure:
		return "FAILURE"
	}
	return "UNKNOWN"
}
