package openimc

import (
	"fmt"
	"math"
)

// opposite edge lengths of a panorama may differ by at most this many
// micrometers before the recorded corners are considered corrupt
const panoramaDimTolerance = 0.001

// Panorama is a slide photograph taken before ablation, positioned on the
// slide by its four recorded corner coordinates.
type Panorama struct {
	// Slide is the slide this panorama belongs to
	Slide *Slide

	// ID is the panorama identifier, unique within the file
	ID int

	// Metadata holds the raw MCD-XML properties of the panorama element
	Metadata map[string]string

	// Acquisitions anchored to this panorama, sorted ascending by id
	Acquisitions []*Acquisition
}

// Description returns the user-provided panorama description
func (p *Panorama) Description() (string, bool) {
	return strFromMetadata(p.Metadata, "Description")
}

// PointsUm returns the four recorded corner positions of the panorama on
// the slide, in micrometers. All eight coordinates must be present.
func (p *Panorama) PointsUm() (*[4]Point, bool) {
	points := &[4]Point{}
	for i := 0; i < 4; i++ {
		x, okX := floatFromMetadata(p.Metadata, fmt.Sprintf("SlideX%dPosUm", i+1))
		y, okY := floatFromMetadata(p.Metadata, fmt.Sprintf("SlideY%dPosUm", i+1))
		if !okX || !okY {
			return nil, false
		}
		points[i] = Point{X: x, Y: y}
	}
	return points, true
}

// WidthUm returns the physical panorama width, in micrometers, as the
// mean of the two opposite edge lengths. An error is returned when the
// edges disagree beyond tolerance.
func (p *Panorama) WidthUm() (float64, bool, error) {
	points, found := p.PointsUm()
	if !found {
		return 0, false, nil
	}
	a := dist(points[0], points[1])
	b := dist(points[2], points[3])
	if math.Abs(a-b) > panoramaDimTolerance {
		return 0, false, CorruptMcdError("panorama %d: inconsistent image widths", p.ID)
	}
	return (a + b) / 2, true, nil
}

// HeightUm returns the physical panorama height, in micrometers, as the
// mean of the two opposite edge lengths. An error is returned when the
// edges disagree beyond tolerance.
func (p *Panorama) HeightUm() (float64, bool, error) {
	points, found := p.PointsUm()
	if !found {
		return 0, false, nil
	}
	a := dist(points[1], points[2])
	b := dist(points[0], points[3])
	if math.Abs(a-b) > panoramaDimTolerance {
		return 0, false, CorruptMcdError("panorama %d: inconsistent image heights", p.ID)
	}
	return (a + b) / 2, true, nil
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
