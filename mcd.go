package openimc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/b71729/bin"
	"golang.org/x/exp/mmap"
)

/*
===============================================================================
    MCD file
===============================================================================
*/

// CorruptMcd is an error representing that the input is not valid MCD
type CorruptMcd struct {
	error
}

// CorruptMcdError returns a `CorruptMcd` with message according to `format` and `a`
func CorruptMcdError(format string, a ...interface{}) *CorruptMcd {
	return &CorruptMcd{fmt.Errorf(format, a...)}
}

// McdFile is an open (or openable) .mcd container: the embedded metadata
// graph plus random access to acquisition pixel data and image blobs.
//
// A session is single-threaded; callers wanting parallel reads should
// open independent `McdFile`s for the same path.
type McdFile struct {
	path      string
	mm        *mmap.ReaderAt
	schemaXML string
	xmlns     string
	slides    []*Slide
}

// NewMcdFile returns an `McdFile` for the given path. No I/O happens
// until `Open` is called.
func NewMcdFile(path string) *McdFile {
	return &McdFile{path: path}
}

// Open maps the file, locates and parses the embedded MCD-XML metadata,
// and builds the slide graph. A previously open session is closed first.
func (f *McdFile) Open() error {
	if f.mm != nil {
		if err := f.Close(); err != nil {
			return err
		}
	}
	mm, err := mmap.Open(f.path)
	if err != nil {
		return err
	}
	schemaXML, err := readSchemaXML(mm, int64(mm.Len()))
	if err != nil {
		mm.Close()
		return err
	}
	parser, err := NewMcdParser(schemaXML)
	if err != nil {
		mm.Close()
		return CorruptMcdError("the file %q is corrupt: error parsing slide information from MCD-XML: %v", f.path, err)
	}
	slides, err := parser.ParseSlides()
	if err != nil {
		mm.Close()
		return CorruptMcdError("the file %q is corrupt: error parsing slide information from MCD-XML: %v", f.path, err)
	}
	f.mm = mm
	f.schemaXML = schemaXML
	f.xmlns = parser.Xmlns()
	f.slides = slides
	return nil
}

// Close releases the file mapping. Closing a closed file is a no-op.
func (f *McdFile) Close() error {
	if f.mm == nil {
		return nil
	}
	err := f.mm.Close()
	f.mm = nil
	return err
}

// Path returns the file path this `McdFile` was created with
func (f *McdFile) Path() string {
	return f.path
}

// SchemaXML returns the raw MCD-XML metadata document text
func (f *McdFile) SchemaXML() string {
	return f.schemaXML
}

// Xmlns returns the XML namespace of the MCD-XML metadata document
func (f *McdFile) Xmlns() string {
	return f.xmlns
}

// Slides returns the parsed slide graph, sorted ascending by id
func (f *McdFile) Slides() []*Slide {
	return f.slides
}

func (f *McdFile) errNotOpen() error {
	return CorruptMcdError("MCD file %q has not been opened", f.path)
}

/*
===============================================================================
    Acquisition image data
===============================================================================
*/

// Region is a half-open pixel rectangle [XMin, XMax) x [YMin, YMax)
type Region struct {
	XMin int
	YMin int
	XMax int
	YMax int
}

// ReadOptions narrows and hardens `ReadAcquisition`.
// A nil `*ReadOptions` is equivalent to all channels, the full image,
// and `GetConfig().StrictMode`.
type ReadOptions struct {
	// Strict rejects inputs that the default mode would recover from
	// with a warning (misaligned data sizes, truncated records,
	// dimension/pixel-count mismatches)
	Strict bool

	// Channels selects a subset of channel indices to read (all if empty)
	Channels []int

	// Region selects a pixel rectangle to read (the full image if nil)
	Region *Region
}

// AcquisitionImage is a dense float32 image of shape
// (Channels, Height, Width), in row-major order.
type AcquisitionImage struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// At returns the intensity of channel `c` at row `y`, column `x`
func (img *AcquisitionImage) At(c, y, x int) float32 {
	return img.Data[(c*img.Height+y)*img.Width+x]
}

// recordField decodes field `off` of a pixel record as a little-endian
// float32. Fields wider than 4 bytes only use their first 4.
func recordField(record []byte, off int64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(record[off : off+4]))
}

// ReadAcquisition extracts the pixel data of `acquisition` into a dense
// float32 image. Each on-disk pixel record holds the X, Y, Z coordinate
// fields followed by one field per channel; records are scattered into
// the image at their own recorded coordinates, so sparse or partial
// acquisitions leave zero-filled gaps.
func (f *McdFile) ReadAcquisition(acquisition *Acquisition, opts *ReadOptions) (*AcquisitionImage, error) {
	if f.mm == nil {
		return nil, f.errNotOpen()
	}
	if acquisition == nil {
		return nil, CorruptMcdError("acquisition must be specified")
	}
	strict := GetConfig().StrictMode
	var channels []int
	var region *Region
	if opts != nil {
		strict = opts.Strict
		channels = opts.Channels
		region = opts.Region
	}

	dataStart, okStart := int64FromMetadata(acquisition.Metadata, "DataStartOffset")
	dataEnd, okEnd := int64FromMetadata(acquisition.Metadata, "DataEndOffset")
	if !okStart || !okEnd {
		return nil, CorruptMcdError("MCD file %q corrupted: cannot locate image data for acquisition %d", f.path, acquisition.ID)
	}
	if dataStart > dataEnd || dataStart < 0 {
		return nil, CorruptMcdError("MCD file %q corrupted: invalid image data offsets for acquisition %d", f.path, acquisition.ID)
	}
	valueBytes, okValue := int64FromMetadata(acquisition.Metadata, "ValueBytes")
	if !okValue || valueBytes < 4 {
		// fields are decoded as little-endian float32, so narrower
		// fields cannot hold one
		return nil, CorruptMcdError("MCD file %q corrupted: invalid value size for acquisition %d (pixel fields must hold at least 4 bytes)", f.path, acquisition.ID)
	}
	numChannels := acquisition.NumChannels()
	bytesPerPixel := (int64(numChannels) + 3) * valueBytes

	if dataStart == dataEnd {
		Warnf("MCD file %q contains empty acquisition image data for acquisition %d", f.path, acquisition.ID)
		width, okW := acquisition.WidthPx()
		height, okH := acquisition.HeightPx()
		if !okW || !okH {
			return nil, CorruptMcdError("MCD file %q corrupted: cannot determine image dimensions for empty acquisition %d", f.path, acquisition.ID)
		}
		return newAcquisitionImage(numChannels, height, width, channels, region)
	}

	dataSize := dataEnd - dataStart
	if dataSize%bytesPerPixel != 0 {
		// a single stray trailing byte is a known acquisition-software quirk
		dataSize++
	}
	if dataSize%bytesPerPixel != 0 {
		if strict {
			return nil, CorruptMcdError("MCD file %q corrupted: invalid image data size for acquisition %d", f.path, acquisition.ID)
		}
		Warnf("MCD file %q corrupted: invalid image data size for acquisition %d, truncating", f.path, acquisition.ID)
	}
	numPixels := dataSize / bytesPerPixel

	// first pass: coordinate fields only, to establish the true extents
	maxX, maxY := 0, 0
	coords := make([]byte, 2*valueBytes)
	for i := int64(0); i < numPixels; i++ {
		if _, err := f.mm.ReadAt(coords, dataStart+i*bytesPerPixel); err != nil {
			if strict {
				return nil, CorruptMcdError("MCD file %q corrupted: incomplete image data for acquisition %d", f.path, acquisition.ID)
			}
			Warnf("MCD file %q corrupted: incomplete image data for acquisition %d, truncating", f.path, acquisition.ID)
			numPixels = i
			break
		}
		x := int(recordField(coords, 0))
		y := int(recordField(coords, valueBytes))
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	if numPixels == 0 {
		return nil, CorruptMcdError("MCD file %q corrupted: no readable image data for acquisition %d", f.path, acquisition.ID)
	}

	width, okW := acquisition.WidthPx()
	height, okH := acquisition.HeightPx()
	if !okW || !okH || width <= maxX || height <= maxY {
		Warnf("MCD file %q: cannot read image dimensions from metadata for acquisition %d, recovering from data shape", f.path, acquisition.ID)
		width = maxX + 1
		height = maxY + 1
	}
	if int64(width)*int64(height) != numPixels {
		if strict {
			return nil, CorruptMcdError("MCD file %q corrupted: inconsistent image data size for acquisition %d", f.path, acquisition.ID)
		}
		Warnf("MCD file %q: inconsistent image data size for acquisition %d", f.path, acquisition.ID)
	}

	img, err := newAcquisitionImage(numChannels, height, width, channels, region)
	if err != nil {
		return nil, err
	}
	outChannels := channels
	if len(outChannels) == 0 {
		outChannels = make([]int, numChannels)
		for i := range outChannels {
			outChannels[i] = i
		}
	}
	xMin, yMin := 0, 0
	xMax, yMax := width, height
	if region != nil {
		xMin, yMin, xMax, yMax = region.XMin, region.YMin, region.XMax, region.YMax
	}

	// second pass: stream whole records and scatter into the image
	r := bin.NewReader(io.NewSectionReader(f.mm, dataStart, numPixels*bytesPerPixel), binary.LittleEndian)
	record := make([]byte, bytesPerPixel)
	for i := int64(0); i < numPixels; i++ {
		if err := r.ReadBytes(record); err != nil {
			if strict {
				return nil, CorruptMcdError("MCD file %q corrupted: incomplete image data for acquisition %d", f.path, acquisition.ID)
			}
			Warnf("MCD file %q corrupted: incomplete image data for acquisition %d, truncating", f.path, acquisition.ID)
			break
		}
		x := int(recordField(record, 0))
		y := int(recordField(record, valueBytes))
		if x < xMin || x >= xMax || y < yMin || y >= yMax {
			continue
		}
		col, row := x-xMin, y-yMin
		for j, c := range outChannels {
			img.Data[(j*img.Height+row)*img.Width+col] = recordField(record, (int64(c)+3)*valueBytes)
		}
	}
	return img, nil
}

// newAcquisitionImage validates the channel and region narrowing against
// the full image shape and allocates the zero-filled output image.
func newAcquisitionImage(numChannels, height, width int, channels []int, region *Region) (*AcquisitionImage, error) {
	outChannels := numChannels
	if len(channels) > 0 {
		for _, c := range channels {
			if c < 0 || c >= numChannels {
				return nil, CorruptMcdError("invalid channel indices: %v", channels)
			}
		}
		outChannels = len(channels)
	}
	outHeight, outWidth := height, width
	if region != nil {
		if region.XMin >= region.XMax || region.YMin >= region.YMax || region.XMin < 0 || region.YMin < 0 {
			return nil, CorruptMcdError("region must be (x_min, y_min, x_max, y_max) with x_min < x_max and y_min < y_max")
		}
		if region.XMax > width || region.YMax > height {
			return nil, CorruptMcdError("region is larger than the image")
		}
		outWidth = region.XMax - region.XMin
		outHeight = region.YMax - region.YMin
	}
	return &AcquisitionImage{
		Channels: outChannels,
		Height:   outHeight,
		Width:    outWidth,
		Data:     make([]float32, outChannels*outHeight*outWidth),
	}, nil
}
