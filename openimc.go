// Package openimc provides methods for working with Fluidigm IMC data:
// the .mcd binary container (embedded MCDSchema metadata graph, raw
// acquisition pixel data and embedded images) and its tabular .txt sibling.
package openimc

// ChannelInfo describes the channel surface shared by .mcd acquisitions
// and .txt files, so that callers can consume both polymorphically.
type ChannelInfo interface {
	NumChannels() int
	ChannelMetals() []string
	ChannelMasses() []int
	ChannelLabels() []string
	ChannelNames() []string
}

var (
	_ ChannelInfo = (*Acquisition)(nil)
	_ ChannelInfo = (*TxtFile)(nil)
)

// Point is a position on the slide, in micrometers.
type Point struct {
	X float64
	Y float64
}
