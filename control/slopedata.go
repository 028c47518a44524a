package control

import (
	"math"

	"github.com/seaverlab/tethys/coords"
	"github.com/seaverlab/tethys/msgs"
)

type movingAverage struct {
	window []float64
	next   int
	filled bool
}

func newMovingAverage(size int) *movingAverage {
	if size < 1 {
		size = 1
	}
	return &movingAverage{window: make([]float64, size)}
}

func (a *movingAverage) update(v float64) float64 {
	a.window[a.next] = v
	a.next++
	if a.next == len(a.window) {
		a.next = 0
		a.filled = true
	}

	return a.mean()
}

func (a *movingAverage) mean() float64 {
	n := len(a.window)
	if !a.filled {
		n = a.next
	}
	if n == 0 {
		return 0
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a.window[i]
	}

	return sum / float64(n)
}

func (a *movingAverage) clear() {
	a.next = 0
	a.filled = false
}

// SlopeData maintains a sliding average of forward-range samples and the
// terrain slope angle derived from them, plus the position of the detected
// slope top.
type SlopeData struct {
	minRange  float64
	safePitch float64
	slopeHyst float64

	avg     *movingAverage
	samples int

	frange    float64
	prevRange float64
	slope     float64
	prevSlope float64

	// Steepness latches with hysteresis: once steep, the slope must fall
	// below safePitch - slopeHyst to be considered safe again.
	steep bool

	topValid bool
	topPos   coords.Point
	topDepth float64
}

// NewSlopeData creates the slope estimation window.
func NewSlopeData(fsamples int, minRange, safePitch, slopeHyst float64) *SlopeData {
	return &SlopeData{
		minRange:  minRange,
		safePitch: safePitch,
		slopeHyst: slopeHyst,
		avg:       newMovingAverage(fsamples),
	}
}

// Reset clears the window and the slope top.
func (s *SlopeData) Reset() {
	s.avg.clear()
	s.samples = 0
	s.frange = 0
	s.prevRange = 0
	s.slope = 0
	s.prevSlope = 0
	s.steep = false
	s.topValid = false
}

// OnDistance folds a forward-range sample into the window and updates the
// slope estimate. The control parcel is filled for tuning output.
func (s *SlopeData) OnDistance(
	m *msgs.Distance,
	es *msgs.EstimatedState,
	parcel *msgs.ControlParcel,
) {
	if m.Validity != msgs.DistValid {
		return
	}

	s.prevRange = s.frange
	s.frange = s.avg.update(m.Value)
	s.samples++

	if s.samples >= 2 {
		s.prevSlope = s.slope
		s.slope = es.Theta + math.Atan2(s.prevRange-s.frange,
			math.Max(1.0, s.frange))
	}

	parcel.P = s.frange
	parcel.I = s.slope

	if s.steep && s.slope < s.safePitch-s.slopeHyst {
		s.steep = false
	} else if !s.steep && s.slope >= s.safePitch {
		s.steep = true
	}
}

// HaveData reports whether the window holds enough samples for a slope
// estimate.
func (s *SlopeData) HaveData() bool {
	return s.samples >= 2
}

// FRange returns the averaged forward range.
func (s *SlopeData) FRange() float64 {
	return s.frange
}

// Slope returns the current slope estimate.
func (s *SlopeData) Slope() float64 {
	return s.slope
}

// IsRangeLow reports a dangerously short forward range.
func (s *SlopeData) IsRangeLow() bool {
	return s.samples > 0 && s.frange < s.minRange
}

// IsTooSteep reports whether the slope exceeds the safe pitch. Recovery
// requires the slope to fall below the hysteresis band.
func (s *SlopeData) IsTooSteep() bool {
	if !s.HaveData() {
		return false
	}
	return s.steep
}

// IsSlopeIncreasing reports whether the slope estimate grew since the last
// sample.
func (s *SlopeData) IsSlopeIncreasing() bool {
	return s.HaveData() && s.slope > s.prevSlope
}

// IsSurface reports whether the echo may be the sea surface rather than
// terrain: the vehicle is pitched up and the range reaches the surface
// distance along the beam.
func (s *SlopeData) IsSurface(es *msgs.EstimatedState) bool {
	if s.samples == 0 || es.Theta < 0.1 {
		return false
	}

	return s.frange >= es.Depth/math.Sin(es.Theta)
}

// UpdateSlopeTop records the estimated position and depth of the slope
// top and returns the horizontal distance to it. The top is a fixed
// terrain feature: once recorded it is only re-captured while the slope
// estimate keeps growing.
func (s *SlopeData) UpdateSlopeTop(es *msgs.EstimatedState) float64 {
	if !s.topValid || s.IsSlopeIncreasing() {
		d := s.frange * math.Cos(es.Theta)

		s.topPos = coords.Point{
			X: es.X + d*math.Cos(es.Psi),
			Y: es.Y + d*math.Sin(es.Psi),
		}
		s.topDepth = es.Depth - s.frange*math.Sin(es.Theta)
		s.topValid = true
	}

	return s.DistanceToSlope(es)
}

// TopDepth returns the depth of the recorded slope top.
func (s *SlopeData) TopDepth() float64 {
	return s.topDepth
}

// DistanceToSlope returns the along-heading distance to the recorded slope
// top. Negative values mean the top is behind the vehicle.
func (s *SlopeData) DistanceToSlope(es *msgs.EstimatedState) float64 {
	if !s.topValid {
		return math.Inf(1)
	}

	dx := s.topPos.X - es.X
	dy := s.topPos.Y - es.Y

	return dx*math.Cos(es.Psi) + dy*math.Sin(es.Psi)
}

// IsTopCleared reports whether the slope top is no longer an issue: not
// recorded, or closer along the heading than the minimum forward range.
func (s *SlopeData) IsTopCleared(es *msgs.EstimatedState) bool {
	if !s.topValid {
		return true
	}

	return s.DistanceToSlope(es) < s.minRange
}

// RenderSlopeInvalid discards the recorded slope top.
func (s *SlopeData) RenderSlopeInvalid() {
	s.topValid = false
}
