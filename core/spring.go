package core

import (
	"math"
	"time"
)

// spring is a critically damped spring integrated in closed form, so the
// result does not depend on how the caller slices time.
type spring struct {
	position float64
	velocity float64
	target   float64
	// omega is the natural angular frequency in rad/s.
	omega float64
}

const (
	defaultSpringOmega = 18.0
	springRestDelta    = 0.5
	springRestVelocity = 1.0
)

func newSpring(value float64) *spring {
	return &spring{position: value, target: value, omega: defaultSpringOmega}
}

func (s *spring) retarget(target float64) {
	s.target = target
}

func (s *spring) step(dt time.Duration) float64 {
	if dt <= 0 {
		return s.position
	}
	t := dt.Seconds()
	x0 := s.position - s.target
	v0 := s.velocity
	decay := math.Exp(-s.omega * t)
	c := v0 + s.omega*x0
	x := (x0 + c*t) * decay
	v := (c - s.omega*(x0+c*t)) * decay
	s.position = s.target + x
	s.velocity = v
	if s.atRest() {
		s.position = s.target
		s.velocity = 0
	}
	return s.position
}

func (s *spring) atRest() bool {
	return math.Abs(s.position-s.target) < springRestDelta && math.Abs(s.velocity) < springRestVelocity
}
