package openimc

import (
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPanorama(metadata map[string]string) *Panorama {
	return &Panorama{ID: 1, Metadata: metadata}
}

func axisAlignedPanoramaMetadata() map[string]string {
	return map[string]string{
		"SlideX1PosUm": "0", "SlideY1PosUm": "0",
		"SlideX2PosUm": "10", "SlideY2PosUm": "0",
		"SlideX3PosUm": "10", "SlideY3PosUm": "5",
		"SlideX4PosUm": "0", "SlideY4PosUm": "5",
	}
}

// TestPanoramaPointsUm ensures that the recorded corner positions are
// exposed only when all eight coordinates are present
func TestPanoramaPointsUm(t *testing.T) {
	t.Parallel()
	panorama := testPanorama(axisAlignedPanoramaMetadata())
	points, found := panorama.PointsUm()
	assert.True(t, found)
	assert.Equal(t, Point{X: 0, Y: 0}, points[0])
	assert.Equal(t, Point{X: 10, Y: 5}, points[2])

	metadata := axisAlignedPanoramaMetadata()
	delete(metadata, "SlideY3PosUm")
	_, found = testPanorama(metadata).PointsUm()
	assert.False(t, found)

	metadata = axisAlignedPanoramaMetadata()
	metadata["SlideX2PosUm"] = "not a number"
	_, found = testPanorama(metadata).PointsUm()
	assert.False(t, found)
}

// TestPanoramaDimensions ensures that width and height are the means of
// the opposite edge lengths
func TestPanoramaDimensions(t *testing.T) {
	t.Parallel()
	panorama := testPanorama(axisAlignedPanoramaMetadata())

	widthUm, found, err := panorama.WidthUm()
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 10.0, widthUm)

	heightUm, found, err := panorama.HeightUm()
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5.0, heightUm)
}

// TestPanoramaDimensionsRotated ensures that edge lengths are Euclidean
// distances, not axis deltas, on a rotated panorama
func TestPanoramaDimensionsRotated(t *testing.T) {
	t.Parallel()
	sin, cos := math.Sincos(math.Pi / 6)
	unrotated := [4]Point{{X: -5, Y: 2.5}, {X: 5, Y: 2.5}, {X: 5, Y: -2.5}, {X: -5, Y: -2.5}}
	metadata := map[string]string{}
	for i, p := range unrotated {
		// 10x5 um rectangle rotated about (100, 50) on the slide
		x := 100 + p.X*cos - p.Y*sin
		y := 50 + p.X*sin + p.Y*cos
		metadata[fmt.Sprintf("SlideX%dPosUm", i+1)] = strconv.FormatFloat(x, 'g', -1, 64)
		metadata[fmt.Sprintf("SlideY%dPosUm", i+1)] = strconv.FormatFloat(y, 'g', -1, 64)
	}
	panorama := testPanorama(metadata)

	widthUm, found, err := panorama.WidthUm()
	assert.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 10.0, widthUm, 1e-9)

	heightUm, found, err := panorama.HeightUm()
	assert.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 5.0, heightUm, 1e-9)
}

// TestPanoramaDimensionsInconsistent ensures that opposite edges
// disagreeing beyond tolerance are reported as corruption
func TestPanoramaDimensionsInconsistent(t *testing.T) {
	t.Parallel()
	metadata := axisAlignedPanoramaMetadata()
	metadata["SlideX3PosUm"] = "10.1"
	panorama := testPanorama(metadata)

	_, _, err := panorama.WidthUm()
	assert.Error(t, err)
	assert.IsType(t, &CorruptMcd{}, err)
	assert.Contains(t, err.Error(), "inconsistent image widths")

	_, _, err = panorama.HeightUm()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent image heights")
}

// TestPanoramaDimensionsMissingPoints ensures that missing corner
// positions yield no value and no error
func TestPanoramaDimensionsMissingPoints(t *testing.T) {
	t.Parallel()
	panorama := testPanorama(map[string]string{})
	_, found, err := panorama.WidthUm()
	assert.NoError(t, err)
	assert.False(t, found)
	_, found, err = panorama.HeightUm()
	assert.NoError(t, err)
	assert.False(t, found)
}
