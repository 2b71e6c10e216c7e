// Package perception turns simulator perceptor text into visual entities.
package perception

import "math"

type Kind int

const (
	KindUnknown Kind = iota
	KindBall
	KindLandmark
	KindGoalPost
	KindFieldLine
)

func (k Kind) String() string {
	switch k {
	case KindBall:
		return "ball"
	case KindLandmark:
		return "landmark"
	case KindGoalPost:
		return "goalpost"
	case KindFieldLine:
		return "line"
	default:
		return "unknown"
	}
}

func kindForTag(tag byte) Kind {
	switch tag {
	case 'B':
		return KindBall
	case 'F':
		return KindLandmark
	case 'G':
		return KindGoalPost
	case 'L':
		return KindFieldLine
	default:
		return KindUnknown
	}
}

// Polar is a sensor-relative position: distance in meters, angles in degrees.
type Polar struct {
	Distance   float64
	Horizontal float64
	Vertical   float64
}

// Cartesian converts p to sensor-frame coordinates with +x forward.
func (p Polar) Cartesian() (x, y, z float64) {
	h := p.Horizontal * math.Pi / 180
	v := p.Vertical * math.Pi / 180
	x = p.Distance * math.Cos(v) * math.Cos(h)
	y = p.Distance * math.Cos(v) * math.Sin(h)
	z = p.Distance * math.Sin(v)
	return x, y, z
}

// Entity is one visible object. End is only set for KindFieldLine.
type Entity struct {
	Kind  Kind
	Label string
	Pos   Polar
	End   Polar
}

// Frame is the parsed view of one server message.
type Frame struct {
	Visible  bool
	Block    string
	Entities []Entity
	Dropped  int
}
