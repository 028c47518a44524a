package control

import "github.com/seaverlab/tethys/coords"

// LoiterState describes the loiter circle of the current path, if any.
type LoiterState struct {
	Center    coords.Point
	Radius    float64
	Clockwise bool
}

// TrackingState is the path controller's view of the current track frame
// and the vehicle's position in it.
type TrackingState struct {
	// Track endpoints in the local NED frame.
	Start coords.Point
	End   coords.Point

	TrackBearing float64
	TrackLength  float64

	// Position and velocity in the track frame: X along-track, Y
	// cross-track, Z vertical.
	TrackPos coords.Point
	TrackVel coords.Point

	Course      float64
	Speed       float64
	CourseError float64

	// LOS angle and range to the effective end point.
	LOSAngle float64
	Range    float64

	ETA float64

	// Nearby is asserted once the ETA reaches zero; EndTime latches the
	// instant of the edge.
	Nearby    bool
	Loitering bool

	Loiter LoiterState

	StartTime float64
	EndTime   float64
	Now       float64
	Delta     float64

	// CourseControl selects ground course over heading for the course
	// and speed sources.
	CourseControl bool

	// ZControl reports whether this controller owns the vertical loop for
	// the current path.
	ZControl bool
}
