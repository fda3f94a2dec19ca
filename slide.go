package openimc

// Slide is the root entity of the .mcd metadata graph: the physical glass
// slide on which panoramas were photographed and acquisitions ablated.
type Slide struct {
	// ID is the slide identifier, unique within the file
	ID int

	// Metadata holds the raw MCD-XML properties of the slide element
	Metadata map[string]string

	// Panoramas on this slide, sorted ascending by id
	Panoramas []*Panorama

	// Acquisitions on this slide (including those anchored to virtual
	// panoramas), sorted ascending by id
	Acquisitions []*Acquisition
}

// Description returns the user-provided slide description
func (s *Slide) Description() (string, bool) {
	return strFromMetadata(s.Metadata, "Description")
}

// WidthUm returns the physical slide width, in micrometers
func (s *Slide) WidthUm() (float64, bool) {
	return floatFromMetadata(s.Metadata, "WidthUm")
}

// HeightUm returns the physical slide height, in micrometers
func (s *Slide) HeightUm() (float64, bool) {
	return floatFromMetadata(s.Metadata, "HeightUm")
}
