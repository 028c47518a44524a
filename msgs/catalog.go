package msgs

// Stable 16-bit message type identifiers.
const (
	IDRestartSystem         uint16 = 9
	IDEntityState           uint16 = 1
	IDHeartbeat             uint16 = 150
	IDGpsFix                uint16 = 253
	IDDistance              uint16 = 262
	IDEstimatedState        uint16 = 350
	IDNavigationUncertainty uint16 = 354
	IDDesiredHeading        uint16 = 400
	IDDesiredZ              uint16 = 401
	IDDesiredSpeed          uint16 = 402
	IDDesiredPath           uint16 = 406
	IDPathControlState      uint16 = 410
	IDBrake                 uint16 = 413
	IDGoto                  uint16 = 450
	IDTeleoperation         uint16 = 452
	IDLoiter                uint16 = 453
	IDStationKeeping        uint16 = 461
	IDStopManeuver          uint16 = 468
	IDManeuverControlState  uint16 = 470
	IDIdleManeuver          uint16 = 474
	IDVehicleState          uint16 = 500
	IDVehicleCommand        uint16 = 501
	IDEntityMonitoringState uint16 = 503
	IDCalibration           uint16 = 506
	IDControlLoops          uint16 = 507
	IDControlParcel         uint16 = 412
	IDAbort                 uint16 = 550
	IDPlanControl           uint16 = 559
)

// EstimatedState is the 9-DOF navigation estimate in a local frame anchored
// at (Lat, Lon, Height).
type EstimatedState struct {
	MsgMeta

	Lat, Lon, Height float64
	X, Y, Z          float64
	Phi, Theta, Psi  float64
	U, V, W          float64
	P, Q, R          float64
	Vx, Vy, Vz       float64
	Depth, Alt       float64
}

func (m *EstimatedState) MsgID() uint16  { return IDEstimatedState }
func (m *EstimatedState) Meta() *MsgMeta { return &m.MsgMeta }
func (m *EstimatedState) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// GpsFix is a raw GPS position fix.
type GpsFix struct {
	MsgMeta

	Lat, Lon, HeightAboveEllipsoid float64
	Satellites                     uint8
	Validity                       uint16
}

func (m *GpsFix) MsgID() uint16  { return IDGpsFix }
func (m *GpsFix) Meta() *MsgMeta { return &m.MsgMeta }
func (m *GpsFix) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Distance validity values.
const (
	DistInvalid uint8 = iota
	DistValid
)

// Distance is a single range measurement, e.g. a forward-looking echo
// sounder sample.
type Distance struct {
	MsgMeta

	Value    float64
	Validity uint8
}

func (m *Distance) MsgID() uint16  { return IDDistance }
func (m *Distance) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Distance) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// NavigationUncertainty carries position estimate variances.
type NavigationUncertainty struct {
	MsgMeta

	X, Y, Z float64
}

func (m *NavigationUncertainty) MsgID() uint16  { return IDNavigationUncertainty }
func (m *NavigationUncertainty) Meta() *MsgMeta { return &m.MsgMeta }
func (m *NavigationUncertainty) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// DesiredPath flags.
const (
	FlagStart      uint8 = 0x01
	FlagDirect     uint8 = 0x02
	FlagNoZ        uint8 = 0x04
	FlagCClockwise uint8 = 0x08
	FlagLoiterCurr uint8 = 0x10
)

// DesiredPath requests the path controller to track a straight segment or
// loiter circle between two geodetic points.
type DesiredPath struct {
	MsgMeta

	StartLat, StartLon float64
	StartZ             float64
	StartZUnits        ZUnits
	EndLat, EndLon     float64
	EndZ               float64
	EndZUnits          ZUnits
	Speed              float64
	SpeedUnits         SpeedUnits
	LRadius            float64
	Flags              uint8
}

func (m *DesiredPath) MsgID() uint16  { return IDDesiredPath }
func (m *DesiredPath) Meta() *MsgMeta { return &m.MsgMeta }
func (m *DesiredPath) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// PathControlState flags.
const (
	PCSFlagNear      uint8 = 0x01
	PCSFlagLoitering uint8 = 0x02
	PCSFlagNoZ       uint8 = 0x04
)

// PathControlState reports the tracking state of the path controller.
type PathControlState struct {
	MsgMeta

	StartLat, StartLon float64
	StartZ             float64
	StartZUnits        ZUnits
	EndLat, EndLon     float64
	EndZ               float64
	EndZUnits          ZUnits
	X, Y, Z            float64
	Vx, Vy, Vz         float64
	CourseError        float64
	ETA                uint16
	LRadius            float64
	Flags              uint8
}

func (m *PathControlState) MsgID() uint16  { return IDPathControlState }
func (m *PathControlState) Meta() *MsgMeta { return &m.MsgMeta }
func (m *PathControlState) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// DesiredZ is a vertical reference.
type DesiredZ struct {
	MsgMeta

	Value  float64
	ZUnits ZUnits
}

func (m *DesiredZ) MsgID() uint16  { return IDDesiredZ }
func (m *DesiredZ) Meta() *MsgMeta { return &m.MsgMeta }
func (m *DesiredZ) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// DesiredSpeed is a speed reference.
type DesiredSpeed struct {
	MsgMeta

	Value      float64
	SpeedUnits SpeedUnits
}

func (m *DesiredSpeed) MsgID() uint16  { return IDDesiredSpeed }
func (m *DesiredSpeed) Meta() *MsgMeta { return &m.MsgMeta }
func (m *DesiredSpeed) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// DesiredHeading is a heading reference in radians.
type DesiredHeading struct {
	MsgMeta

	Value float64
}

func (m *DesiredHeading) MsgID() uint16  { return IDDesiredHeading }
func (m *DesiredHeading) Meta() *MsgMeta { return &m.MsgMeta }
func (m *DesiredHeading) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// ControlLoops enable values.
const (
	CLDisable uint8 = 0
	CLEnable  uint8 = 1
)

// ControlLoops grants or revokes control loop ownership.
type ControlLoops struct {
	MsgMeta

	Enable   uint8
	Mask     uint32
	ScopeRef uint32
}

func (m *ControlLoops) MsgID() uint16  { return IDControlLoops }
func (m *ControlLoops) Meta() *MsgMeta { return &m.MsgMeta }
func (m *ControlLoops) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// VehicleCommand types.
const (
	VCRequest uint8 = iota
	VCSuccess
	VCFailure
)

// VehicleCommand commands.
const (
	VCExecManeuver uint8 = iota
	VCStopManeuver
	VCStartCalibration
	VCStopCalibration
)

// VehicleCommand requests a vehicle-level operation; the supervisor always
// produces exactly one SUCCESS or FAILURE reply per request.
type VehicleCommand struct {
	MsgMeta

	Type           uint8
	Command        uint8
	RequestID      uint16
	ManeuverInline Msg
	CalibTime      uint16
	Info           string
}

func (m *VehicleCommand) MsgID() uint16  { return IDVehicleCommand }
func (m *VehicleCommand) Meta() *MsgMeta { return &m.MsgMeta }
func (m *VehicleCommand) Clone() Msg {
	c := *m
	c.UID = NewUID()
	if m.ManeuverInline != nil {
		c.ManeuverInline = m.ManeuverInline.Clone()
	}
	return &c
}

// VehicleState flags.
const (
	VFlagManeuverDone uint8 = 0x01
)

// VehicleState is the supervisor's periodic report.
type VehicleState struct {
	MsgMeta

	OpMode        OpMode
	Flags         uint8
	ManeuverType  uint16
	ManeuverSTime float64
	ManeuverETA   uint16
	ControlLoops  uint32
	LastError     string
	LastErrorTime float64
	ErrorCount    uint8
	ErrorEnts     string
}

func (m *VehicleState) MsgID() uint16  { return IDVehicleState }
func (m *VehicleState) Meta() *MsgMeta { return &m.MsgMeta }
func (m *VehicleState) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// ManeuverControlState states.
const (
	MCSExecuting uint8 = iota
	MCSDone
	MCSError
)

// ManeuverControlState reports maneuver execution progress.
type ManeuverControlState struct {
	MsgMeta

	State uint8
	ETA   uint16
	Info  string
}

func (m *ManeuverControlState) MsgID() uint16  { return IDManeuverControlState }
func (m *ManeuverControlState) Meta() *MsgMeta { return &m.MsgMeta }
func (m *ManeuverControlState) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// PlanControl types and operations.
const (
	PCRequest uint8 = iota
	PCSuccess
	PCFailure
	PCInProgress
)

// PlanControl operations.
const (
	PCStart uint8 = iota
	PCStop
	PCLoad
	PCGet
)

// PlanControl flags.
const (
	PCFlagIgnoreErrors uint16 = 0x01
)

// PlanControl starts or stops plan execution.
type PlanControl struct {
	MsgMeta

	Type      uint8
	Op        uint8
	RequestID uint16
	PlanID    string
	Flags     uint16
	Arg       string
}

func (m *PlanControl) MsgID() uint16  { return IDPlanControl }
func (m *PlanControl) Meta() *MsgMeta { return &m.MsgMeta }
func (m *PlanControl) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// EntityMonitoringState aggregates the health of all monitored entities.
type EntityMonitoringState struct {
	MsgMeta

	MCount        uint8
	MNames        string
	CCount        uint8
	CNames        string
	ECount        uint8
	ENames        string
	LastError     string
	LastErrorTime float64
}

func (m *EntityMonitoringState) MsgID() uint16  { return IDEntityMonitoringState }
func (m *EntityMonitoringState) Meta() *MsgMeta { return &m.MsgMeta }
func (m *EntityMonitoringState) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// EntityState reports the health of a single entity.
type EntityState struct {
	MsgMeta

	State       EntityHealth
	Description string
}

func (m *EntityState) MsgID() uint16  { return IDEntityState }
func (m *EntityState) Meta() *MsgMeta { return &m.MsgMeta }
func (m *EntityState) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Abort requests an immediate stop of all activity.
type Abort struct {
	MsgMeta
}

func (m *Abort) MsgID() uint16  { return IDAbort }
func (m *Abort) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Abort) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Brake operations.
const (
	BrakeStart uint8 = iota
	BrakeStop
)

// Brake starts or stops braking.
type Brake struct {
	MsgMeta

	Op uint8
}

func (m *Brake) MsgID() uint16  { return IDBrake }
func (m *Brake) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Brake) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// StopManeuver deactivates the active maneuver, if any.
type StopManeuver struct {
	MsgMeta
}

func (m *StopManeuver) MsgID() uint16  { return IDStopManeuver }
func (m *StopManeuver) Meta() *MsgMeta { return &m.MsgMeta }
func (m *StopManeuver) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// IdleManeuver keeps the vehicle passive for a duration (0 = unbounded).
type IdleManeuver struct {
	MsgMeta

	Duration uint16
}

func (m *IdleManeuver) MsgID() uint16  { return IDIdleManeuver }
func (m *IdleManeuver) Meta() *MsgMeta { return &m.MsgMeta }
func (m *IdleManeuver) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Calibration requests sensor calibration for a duration.
type Calibration struct {
	MsgMeta

	Duration uint16
}

func (m *Calibration) MsgID() uint16  { return IDCalibration }
func (m *Calibration) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Calibration) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Loiter directions.
const (
	LDVehicleDependent uint8 = iota
	LDClockwise
	LDCClockwise
	LDIntoWind
)

// Loiter is a maneuver: sustained circular motion around a point.
type Loiter struct {
	MsgMeta

	Lat, Lon   float64
	Z          float64
	ZUnits     ZUnits
	Duration   uint16
	Speed      float64
	SpeedUnits SpeedUnits
	Radius     float64
	Direction  uint8
}

func (m *Loiter) MsgID() uint16  { return IDLoiter }
func (m *Loiter) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Loiter) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Goto is a maneuver: transit to a single waypoint.
type Goto struct {
	MsgMeta

	Lat, Lon   float64
	Z          float64
	ZUnits     ZUnits
	Speed      float64
	SpeedUnits SpeedUnits
	Timeout    uint16
}

func (m *Goto) MsgID() uint16  { return IDGoto }
func (m *Goto) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Goto) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// StationKeeping is a maneuver: stay within a radius of a point.
type StationKeeping struct {
	MsgMeta

	Lat, Lon   float64
	Z          float64
	ZUnits     ZUnits
	Radius     float64
	Duration   uint16
	Speed      float64
	SpeedUnits SpeedUnits
}

func (m *StationKeeping) MsgID() uint16  { return IDStationKeeping }
func (m *StationKeeping) Meta() *MsgMeta { return &m.MsgMeta }
func (m *StationKeeping) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Teleoperation is a maneuver: direct external control of the vehicle.
type Teleoperation struct {
	MsgMeta

	Custom string
}

func (m *Teleoperation) MsgID() uint16  { return IDTeleoperation }
func (m *Teleoperation) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Teleoperation) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// Heartbeat announces liveness of a system.
type Heartbeat struct {
	MsgMeta
}

func (m *Heartbeat) MsgID() uint16  { return IDHeartbeat }
func (m *Heartbeat) Meta() *MsgMeta { return &m.MsgMeta }
func (m *Heartbeat) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// RestartSystem requests a full system restart.
type RestartSystem struct {
	MsgMeta
}

func (m *RestartSystem) MsgID() uint16  { return IDRestartSystem }
func (m *RestartSystem) Meta() *MsgMeta { return &m.MsgMeta }
func (m *RestartSystem) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}

// ControlParcel is a tuning sample published by inner control loops.
type ControlParcel struct {
	MsgMeta

	P, I, D, A float64
}

func (m *ControlParcel) MsgID() uint16  { return IDControlParcel }
func (m *ControlParcel) Meta() *MsgMeta { return &m.MsgMeta }
func (m *ControlParcel) Clone() Msg {
	c := *m
	c.UID = NewUID()
	return &c
}
