package openimc

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/beevik/etree"
)

/*
===============================================================================
    MCD-XML parsing
===============================================================================
*/

// ParserError represents an error whilst parsing the MCD-XML metadata
type ParserError struct {
	error
}

// ParserErrorf returns a `ParserError` with message according to `format` and `a`
func ParserErrorf(format string, a ...interface{}) *ParserError {
	return &ParserError{fmt.Errorf(format, a...)}
}

// acquisition channels past the three coordinate channels are named
// like "Ir(191)": metal symbol, then mass in parentheses
var channelNameRegex = regexp.MustCompile(`^([a-zA-Z]+)\(([0-9]+)\)$`)

// McdParser parses the MCD-XML metadata embedded in .mcd files into the
// Slide / Panorama / Acquisition entity graph.
type McdParser struct {
	schemaXML string
	doc       *etree.Document
	xmlns     string
}

// NewMcdParser returns an `McdParser` for the given MCD-XML document text
func NewMcdParser(schemaXML string) (*McdParser, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(schemaXML); err != nil {
		return nil, ParserErrorf("MCD-XML document cannot be parsed: %v", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ParserErrorf("MCD-XML document has no root element")
	}
	return &McdParser{
		schemaXML: schemaXML,
		doc:       doc,
		xmlns:     root.SelectAttrValue("xmlns", ""),
	}, nil
}

// SchemaXML returns the raw MCD-XML document text
func (p *McdParser) SchemaXML() string {
	return p.schemaXML
}

// Xmlns returns the XML namespace declared on the MCD-XML root element
func (p *McdParser) Xmlns() string {
	return p.xmlns
}

// ParseSlides parses all slides (with their panoramas and acquisitions)
// from the MCD-XML document, sorted ascending by slide id.
func (p *McdParser) ParseSlides() ([]*Slide, error) {
	slides := []*Slide{}
	for _, slideElem := range p.doc.FindElements("//Slide") {
		slide, err := p.parseSlide(slideElem)
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].ID < slides[j].ID })
	return slides, nil
}

func (p *McdParser) parseSlide(slideElem *etree.Element) (*Slide, error) {
	id, err := textAsInt(slideElem, "ID")
	if err != nil {
		return nil, err
	}
	slide := &Slide{
		ID:       id,
		Metadata: metadataDict(slideElem),
	}
	for _, panoramaElem := range p.doc.FindElements(fmt.Sprintf("//Panorama[SlideID='%d']", id)) {
		// panoramas of type "Default" are virtual anchors for acquisitions
		// that were positioned without a camera image; they carry no image
		// of their own and do not become entities
		var panorama *Panorama
		if typ, _ := textOrNone(panoramaElem, "Type"); typ != "Default" {
			panorama, err = p.parsePanorama(panoramaElem, slide)
			if err != nil {
				return nil, err
			}
			slide.Panoramas = append(slide.Panoramas, panorama)
		}
		panoramaID, err := textAsInt(panoramaElem, "ID")
		if err != nil {
			return nil, err
		}
		for _, roiElem := range p.doc.FindElements(fmt.Sprintf("//AcquisitionROI[PanoramaID='%d']", panoramaID)) {
			roiID, err := textAsInt(roiElem, "ID")
			if err != nil {
				return nil, err
			}
			roiPoints, err := p.parseROIPoints(roiID)
			if err != nil {
				return nil, err
			}
			for _, acqElem := range p.doc.FindElements(fmt.Sprintf("//Acquisition[AcquisitionROIID='%d']", roiID)) {
				acquisition, err := p.parseAcquisition(acqElem, slide, panorama, roiPoints)
				if err != nil {
					return nil, err
				}
				slide.Acquisitions = append(slide.Acquisitions, acquisition)
				if panorama != nil {
					panorama.Acquisitions = append(panorama.Acquisitions, acquisition)
				}
			}
		}
	}
	for _, panorama := range slide.Panoramas {
		sort.Slice(panorama.Acquisitions, func(i, j int) bool {
			return panorama.Acquisitions[i].ID < panorama.Acquisitions[j].ID
		})
	}
	sort.Slice(slide.Panoramas, func(i, j int) bool { return slide.Panoramas[i].ID < slide.Panoramas[j].ID })
	sort.Slice(slide.Acquisitions, func(i, j int) bool { return slide.Acquisitions[i].ID < slide.Acquisitions[j].ID })
	warnOverlappingData(slide)
	return slide, nil
}

func (p *McdParser) parsePanorama(panoramaElem *etree.Element, slide *Slide) (*Panorama, error) {
	id, err := textAsInt(panoramaElem, "ID")
	if err != nil {
		return nil, err
	}
	return &Panorama{
		Slide:    slide,
		ID:       id,
		Metadata: metadataDict(panoramaElem),
	}, nil
}

// parseROIPoints collects the four recorded corner positions of an
// acquisition ROI, ordered by their OrderNumber. ROIs whose point count
// is not exactly four yield nil; downstream geometry is then unavailable.
func (p *McdParser) parseROIPoints(roiID int) (*[4]Point, error) {
	pointElems := p.doc.FindElements(fmt.Sprintf("//ROIPoint[AcquisitionROIID='%d']", roiID))
	if len(pointElems) != 4 {
		return nil, nil
	}
	type orderedPoint struct {
		order int
		point Point
	}
	ordered := make([]orderedPoint, 4)
	for i, pointElem := range pointElems {
		order, err := textAsInt(pointElem, "OrderNumber")
		if err != nil {
			return nil, err
		}
		x, err := textAsFloat(pointElem, "SlideXPosUm")
		if err != nil {
			return nil, err
		}
		y, err := textAsFloat(pointElem, "SlideYPosUm")
		if err != nil {
			return nil, err
		}
		ordered[i] = orderedPoint{order: order, point: Point{X: x, Y: y}}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })
	points := &[4]Point{}
	for i, op := range ordered {
		points[i] = op.point
	}
	return points, nil
}

func (p *McdParser) parseAcquisition(acqElem *etree.Element, slide *Slide, panorama *Panorama, roiPoints *[4]Point) (*Acquisition, error) {
	id, err := textAsInt(acqElem, "ID")
	if err != nil {
		return nil, err
	}
	channelElems := p.doc.FindElements(fmt.Sprintf("//AcquisitionChannel[AcquisitionID='%d']", id))
	if len(channelElems) < 3 {
		return nil, ParserErrorf("acquisition %d should have at least 3 channels (X, Y, Z)", id)
	}
	type orderedChannel struct {
		order int
		elem  *etree.Element
	}
	ordered := make([]orderedChannel, len(channelElems))
	for i, channelElem := range channelElems {
		order, err := textAsInt(channelElem, "OrderNumber")
		if err != nil {
			return nil, err
		}
		ordered[i] = orderedChannel{order: order, elem: channelElem}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	acquisition := &Acquisition{
		Slide:       slide,
		Panorama:    panorama,
		ID:          id,
		ROIPointsUm: roiPoints,
		Metadata:    metadataDict(acqElem),
	}
	for i, oc := range ordered {
		name, err := text(oc.elem, "ChannelName")
		if err != nil {
			return nil, err
		}
		// the first three channels hold the pixel coordinates
		switch {
		case i == 0 && name != "X":
			return nil, ParserErrorf(`first channel %q of acquisition %d should be named "X"`, name, id)
		case i == 1 && name != "Y":
			return nil, ParserErrorf(`second channel %q of acquisition %d should be named "Y"`, name, id)
		case i == 2 && name != "Z":
			return nil, ParserErrorf(`third channel %q of acquisition %d should be named "Z"`, name, id)
		}
		if i < 3 {
			continue
		}
		m := channelNameRegex.FindStringSubmatch(name)
		if m == nil {
			return nil, ParserErrorf("cannot extract metal and mass from channel name %q of acquisition %d", name, id)
		}
		mass, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, ParserErrorf("cannot extract mass from channel name %q of acquisition %d", name, id)
		}
		label, found := textOrNone(oc.elem, "ChannelLabel")
		if !found {
			label = name
		}
		acquisition.numChannels++
		acquisition.channelMetals = append(acquisition.channelMetals, m[1])
		acquisition.channelMasses = append(acquisition.channelMasses, mass)
		acquisition.channelLabels = append(acquisition.channelLabels, label)
	}
	return acquisition, nil
}

// warnOverlappingData emits a warning for each pair of acquisitions on
// `slide` whose declared data byte ranges intersect; later reads from
// such a file will yield garbage for at least one of the pair.
func warnOverlappingData(slide *Slide) {
	type dataRange struct {
		id         int
		start, end int64
	}
	ranges := []dataRange{}
	for _, acquisition := range slide.Acquisitions {
		start, okStart := int64FromMetadata(acquisition.Metadata, "DataStartOffset")
		end, okEnd := int64FromMetadata(acquisition.Metadata, "DataEndOffset")
		if !okStart || !okEnd {
			continue
		}
		ranges = append(ranges, dataRange{id: acquisition.ID, start: start, end: end})
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if (b.start <= a.start && a.start < b.end) || (b.start < a.end && a.end <= b.end) ||
				(a.start <= b.start && b.start < a.end) || (a.start < b.end && b.end <= a.end) {
				Warnf("slide %d corrupted: overlapping memory blocks for acquisitions %d and %d", slide.ID, a.id, b.id)
			}
		}
	}
}

/*
===============================================================================
    XML element helpers
===============================================================================
*/

// textOrNone returns the text of the child element `tag` of `parent`,
// with `found` false when no such child exists.
func textOrNone(parent *etree.Element, tag string) (val string, found bool) {
	child := parent.SelectElement(tag)
	if child == nil {
		return "", false
	}
	return child.Text(), true
}

func text(parent *etree.Element, tag string) (string, error) {
	val, found := textOrNone(parent, tag)
	if !found {
		return "", ParserErrorf("XML tag %q not found for parent XML tag %q", tag, parent.Tag)
	}
	return val, nil
}

func textAsInt(parent *etree.Element, tag string) (int, error) {
	val, err := text(parent, tag)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, ParserErrorf("text %q of XML tag %q cannot be converted to int for parent XML tag %q", val, tag, parent.Tag)
	}
	return i, nil
}

func textAsFloat(parent *etree.Element, tag string) (float64, error) {
	val, err := text(parent, tag)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, ParserErrorf("text %q of XML tag %q cannot be converted to float for parent XML tag %q", val, tag, parent.Tag)
	}
	return f, nil
}

// metadataDict flattens the direct children of `elem` into a string map
func metadataDict(elem *etree.Element) map[string]string {
	metadata := map[string]string{}
	for _, child := range elem.ChildElements() {
		metadata[child.Tag] = child.Text()
	}
	return metadata
}
