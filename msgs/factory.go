package msgs

import "fmt"

type catalogEntry struct {
	abbrev string
	build  func() Msg
}

var catalogByID = map[uint16]catalogEntry{
	IDEstimatedState:        {"EstimatedState", func() Msg { return &EstimatedState{} }},
	IDGpsFix:                {"GpsFix", func() Msg { return &GpsFix{} }},
	IDDistance:              {"Distance", func() Msg { return &Distance{} }},
	IDNavigationUncertainty: {"NavigationUncertainty", func() Msg { return &NavigationUncertainty{} }},
	IDDesiredPath:           {"DesiredPath", func() Msg { return &DesiredPath{} }},
	IDPathControlState:      {"PathControlState", func() Msg { return &PathControlState{} }},
	IDDesiredZ:              {"DesiredZ", func() Msg { return &DesiredZ{} }},
	IDDesiredSpeed:          {"DesiredSpeed", func() Msg { return &DesiredSpeed{} }},
	IDDesiredHeading:        {"DesiredHeading", func() Msg { return &DesiredHeading{} }},
	IDControlLoops:          {"ControlLoops", func() Msg { return &ControlLoops{} }},
	IDVehicleCommand:        {"VehicleCommand", func() Msg { return &VehicleCommand{} }},
	IDVehicleState:          {"VehicleState", func() Msg { return &VehicleState{} }},
	IDManeuverControlState:  {"ManeuverControlState", func() Msg { return &ManeuverControlState{} }},
	IDPlanControl:           {"PlanControl", func() Msg { return &PlanControl{} }},
	IDEntityMonitoringState: {"EntityMonitoringState", func() Msg { return &EntityMonitoringState{} }},
	IDEntityState:           {"EntityState", func() Msg { return &EntityState{} }},
	IDAbort:                 {"Abort", func() Msg { return &Abort{} }},
	IDBrake:                 {"Brake", func() Msg { return &Brake{} }},
	IDStopManeuver:          {"StopManeuver", func() Msg { return &StopManeuver{} }},
	IDIdleManeuver:          {"IdleManeuver", func() Msg { return &IdleManeuver{} }},
	IDCalibration:           {"Calibration", func() Msg { return &Calibration{} }},
	IDLoiter:                {"Loiter", func() Msg { return &Loiter{} }},
	IDStationKeeping:        {"StationKeeping", func() Msg { return &StationKeeping{} }},
	IDGoto:                  {"Goto", func() Msg { return &Goto{} }},
	IDTeleoperation:         {"Teleoperation", func() Msg { return &Teleoperation{} }},
	IDHeartbeat:             {"Heartbeat", func() Msg { return &Heartbeat{} }},
	IDRestartSystem:         {"RestartSystem", func() Msg { return &RestartSystem{} }},
	IDControlParcel:         {"ControlParcel", func() Msg { return &ControlParcel{} }},
}

var catalogByAbbrev = func() map[string]uint16 {
	m := make(map[string]uint16, len(catalogByID))
	for id, e := range catalogByID {
		m[e.abbrev] = id
	}
	return m
}()

// AbbrevFromID returns the short name of a message type.
func AbbrevFromID(id uint16) string {
	e, ok := catalogByID[id]
	if !ok {
		return fmt.Sprintf("Unknown(%d)", id)
	}
	return e.abbrev
}

// IDFromAbbrev resolves a short type name into its stable identifier.
func IDFromAbbrev(abbrev string) (uint16, error) {
	id, ok := catalogByAbbrev[abbrev]
	if !ok {
		return 0, fmt.Errorf("unknown message abbreviation %q", abbrev)
	}
	return id, nil
}

// New builds a zero-valued message of the given type.
func New(id uint16) (Msg, error) {
	e, ok := catalogByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown message id %d", id)
	}
	return e.build(), nil
}
