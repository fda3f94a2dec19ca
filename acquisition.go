package openimc

import (
	"fmt"
	"math"
)

// Acquisition is a single imaging-mass-cytometry raster: a rectangular
// region of the slide ablated spot by spot, with one float32 intensity
// per channel per spot stored in the .mcd data section.
type Acquisition struct {
	// Slide is the slide this acquisition belongs to
	Slide *Slide

	// Panorama is the panorama this acquisition is anchored to,
	// or nil when it was anchored to a virtual panorama
	Panorama *Panorama

	// ID is the acquisition identifier, unique within the file
	ID int

	// ROIPointsUm holds the four recorded ROI corner positions on the
	// slide, in micrometers, or nil when they were not fully recorded
	ROIPointsUm *[4]Point

	// Metadata holds the raw MCD-XML properties of the acquisition element
	Metadata map[string]string

	numChannels   int
	channelMetals []string
	channelMasses []int
	channelLabels []string
}

// Description returns the user-provided acquisition description
func (a *Acquisition) Description() (string, bool) {
	return strFromMetadata(a.Metadata, "Description")
}

// NumChannels returns the number of measurement channels
// (the X, Y, Z coordinate channels do not count)
func (a *Acquisition) NumChannels() int {
	return a.numChannels
}

// ChannelMetals returns the metal isotope symbols, in channel order
func (a *Acquisition) ChannelMetals() []string {
	return a.channelMetals
}

// ChannelMasses returns the metal isotope masses, in channel order
func (a *Acquisition) ChannelMasses() []int {
	return a.channelMasses
}

// ChannelLabels returns the user-provided channel labels, in channel order
func (a *Acquisition) ChannelLabels() []string {
	return a.channelLabels
}

// ChannelNames returns the channel names ("Ir191"-style), in channel order
func (a *Acquisition) ChannelNames() []string {
	names := make([]string, a.numChannels)
	for i := 0; i < a.numChannels; i++ {
		names[i] = fmt.Sprintf("%s%d", a.channelMetals[i], a.channelMasses[i])
	}
	return names
}

// WidthPx returns the declared acquisition width, in pixels
func (a *Acquisition) WidthPx() (int, bool) {
	return intFromMetadata(a.Metadata, "MaxX")
}

// HeightPx returns the declared acquisition height, in pixels
func (a *Acquisition) HeightPx() (int, bool) {
	return intFromMetadata(a.Metadata, "MaxY")
}

// PixelSizeXUm returns the horizontal pixel pitch, in micrometers
func (a *Acquisition) PixelSizeXUm() (float64, bool) {
	return floatFromMetadata(a.Metadata, "AblationDistanceBetweenShotsX")
}

// PixelSizeYUm returns the vertical pixel pitch, in micrometers
func (a *Acquisition) PixelSizeYUm() (float64, bool) {
	return floatFromMetadata(a.Metadata, "AblationDistanceBetweenShotsY")
}

// WidthUm returns the physical acquisition width, in micrometers
func (a *Acquisition) WidthUm() (float64, bool) {
	widthPx, okW := a.WidthPx()
	pixelSizeX, okP := a.PixelSizeXUm()
	if !okW || !okP {
		return 0, false
	}
	return float64(widthPx) * pixelSizeX, true
}

// HeightUm returns the physical acquisition height, in micrometers
func (a *Acquisition) HeightUm() (float64, bool) {
	heightPx, okH := a.HeightPx()
	pixelSizeY, okP := a.PixelSizeYUm()
	if !okH || !okP {
		return 0, false
	}
	return float64(heightPx) * pixelSizeY, true
}

// ROICoordsUm reconstructs the four physical corner positions of the
// acquisition rectangle on the slide, in micrometers.
//
// The recorded start/end coordinates cannot be used directly: the
// acquisition software stores the start of some files in millimeters
// rather than micrometers. A per-axis coordinate is divided by 1000
// exactly when that moves it closer to the end coordinate. The
// corrected diagonal endpoints are returned verbatim as corners 1 and 3;
// only the other two corners are regenerated, by rotating the
// metadata-derived half-dimensions about the diagonal's midpoint.
func (a *Acquisition) ROICoordsUm() (*[4]Point, bool) {
	x1Str, ok1 := strFromMetadata(a.Metadata, "ROIStartXPosUm")
	y1Str, ok2 := strFromMetadata(a.Metadata, "ROIStartYPosUm")
	x3Str, ok3 := strFromMetadata(a.Metadata, "ROIEndXPosUm")
	y3Str, ok4 := strFromMetadata(a.Metadata, "ROIEndYPosUm")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	if x1Str == x3Str || y1Str == y3Str {
		// degenerate diagonal, rotation is underdetermined
		return nil, false
	}
	x1, ok1 := floatFromMetadata(a.Metadata, "ROIStartXPosUm")
	y1, ok2 := floatFromMetadata(a.Metadata, "ROIStartYPosUm")
	x3, ok3 := floatFromMetadata(a.Metadata, "ROIEndXPosUm")
	y3, ok4 := floatFromMetadata(a.Metadata, "ROIEndYPosUm")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	widthUm, okW := a.WidthUm()
	heightUm, okH := a.HeightUm()
	if !okW || !okH || widthUm == 0 || heightUm == 0 {
		return nil, false
	}
	if math.Abs(x1/1000-x3) < math.Abs(x1-x3) {
		x1 /= 1000
	}
	if math.Abs(y1/1000-y3) < math.Abs(y1-y3) {
		y1 /= 1000
	}
	angle := math.Atan2(y1-y3, x1-x3) - math.Atan2(heightUm, -widthUm)
	sin, cos := math.Sincos(angle)
	centerX := (x1 + x3) / 2
	centerY := (y1 + y3) / 2
	rotated := func(x, y float64) Point {
		return Point{
			X: centerX + x*cos - y*sin,
			Y: centerY + x*sin + y*cos,
		}
	}
	return &[4]Point{
		{X: x1, Y: y1},
		rotated(widthUm/2, heightUm/2),
		{X: x3, Y: y3},
		rotated(-widthUm/2, -heightUm/2),
	}, true
}
