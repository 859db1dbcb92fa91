package status

import (
	"time"

	"github.com/charmbracelet/harmonica"
)

// PulseFPS is the animation rate of the counter pulse.
const PulseFPS = 60

// FrameInterval is the delay between pulse animation frames.
const FrameInterval = time.Second / PulseFPS

const restThreshold = 0.01

// Pulse is a damped spring that flashes the counter badge when a new
// notification is counted. Position 1 is fully lit, 0 is at rest.
type Pulse struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
}

func NewPulse() Pulse {
	return Pulse{spring: harmonica.NewSpring(harmonica.FPS(PulseFPS), 8.0, 0.6)}
}

// Kick lights the badge fully.
func (p *Pulse) Kick() {
	p.pos = 1
	p.vel = 0
}

// Step advances one frame and reports whether the pulse is still moving.
func (p *Pulse) Step() bool {
	p.pos, p.vel = p.spring.Update(p.pos, p.vel, 0)
	if p.pos < restThreshold && p.pos > -restThreshold && p.vel < restThreshold && p.vel > -restThreshold {
		p.pos, p.vel = 0, 0
		return false
	}
	return true
}

// Lit reports whether the badge should be drawn highlighted.
func (p Pulse) Lit() bool {
	return p.pos > 0.2
}

// Active reports whether the pulse has not yet settled.
func (p Pulse) Active() bool {
	return p.pos != 0 || p.vel != 0
}
