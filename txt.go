package openimc

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

/*
===============================================================================
    TXT file
===============================================================================
*/

// CorruptTxt is an error representing that the input is not a valid
// acquisition .txt export
type CorruptTxt struct {
	error
}

// CorruptTxtError returns a `CorruptTxt` with message according to `format` and `a`
func CorruptTxtError(format string, a ...interface{}) *CorruptTxt {
	return &CorruptTxt{fmt.Errorf(format, a...)}
}

// .txt channel columns are headed like "CD45(Sm154Di)": free-form label,
// then metal and mass in parentheses with optional trailing suffix
var txtChannelRegex = regexp.MustCompile(`^(.*)\(([a-zA-Z]+)([0-9]+)[^0-9]*\)$`)

// the fixed leading columns of every acquisition .txt export
var txtLeadingColumns = []string{"Start_push", "End_push", "Pushes_duration", "X", "Y", "Z"}

// TxtFile is the tab-separated sibling export of a single acquisition:
// one row per ablated spot, the fixed push/coordinate columns first,
// then one intensity column per channel.
type TxtFile struct {
	path string

	numChannels   int
	channelMetals []string
	channelMasses []int
	channelLabels []string

	numCols int
	numRows int
	data    []float32 // row-major, numRows x numCols

	open bool
}

// NewTxtFile returns a `TxtFile` for the given path. No I/O happens
// until `Open` is called.
func NewTxtFile(path string) *TxtFile {
	return &TxtFile{path: path}
}

// Path returns the file path this `TxtFile` was created with
func (t *TxtFile) Path() string {
	return t.path
}

// Open reads and validates the whole file: the header row determines the
// channel surface, the data rows are parsed and held in memory.
// A previously open session is discarded first.
func (t *TxtFile) Open() error {
	if t.open {
		t.Close()
	}
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, GetConfig().ReadBufferSize), GetConfig().ReadBufferSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return CorruptTxtError("TXT file %q corrupted: file is empty", t.path)
	}
	if err := t.readChannels(scanner.Text()); err != nil {
		return err
	}

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) == 1 && fields[0] == "" {
			continue // trailing blank line
		}
		if len(fields) != t.numCols {
			t.reset()
			return CorruptTxtError("TXT file %q corrupted: %d columns on line %d, expected %d", t.path, len(fields), lineNo, t.numCols)
		}
		for _, field := range fields {
			val, err := strconv.ParseFloat(field, 32)
			if err != nil {
				t.reset()
				return CorruptTxtError("TXT file %q corrupted: value %q on line %d is not a number", t.path, field, lineNo)
			}
			t.data = append(t.data, float32(val))
		}
		t.numRows++
	}
	if err := scanner.Err(); err != nil {
		t.reset()
		return err
	}
	t.open = true
	return nil
}

// Close discards the in-memory data. Closing a closed file is a no-op.
func (t *TxtFile) Close() error {
	t.reset()
	return nil
}

func (t *TxtFile) reset() {
	t.numChannels = 0
	t.channelMetals = nil
	t.channelMasses = nil
	t.channelLabels = nil
	t.numCols = 0
	t.numRows = 0
	t.data = nil
	t.open = false
}

// readChannels validates the header row and extracts the channel surface
func (t *TxtFile) readChannels(header string) error {
	columns := strings.Split(header, "\t")
	if len(columns) < len(txtLeadingColumns) {
		return CorruptTxtError("TXT file %q corrupted: invalid file header", t.path)
	}
	for i, expected := range txtLeadingColumns {
		if columns[i] != expected {
			return CorruptTxtError("TXT file %q corrupted: column %d should be named %q, found %q", t.path, i+1, expected, columns[i])
		}
	}
	for _, column := range columns[len(txtLeadingColumns):] {
		m := txtChannelRegex.FindStringSubmatch(column)
		if m == nil {
			return CorruptTxtError("TXT file %q corrupted: cannot extract channel metal and mass from column %q", t.path, column)
		}
		mass, err := strconv.Atoi(m[3])
		if err != nil {
			return CorruptTxtError("TXT file %q corrupted: cannot extract channel mass from column %q", t.path, column)
		}
		label := m[1]
		if label == "" {
			label = fmt.Sprintf("%s%d", m[2], mass)
		}
		t.numChannels++
		t.channelMetals = append(t.channelMetals, m[2])
		t.channelMasses = append(t.channelMasses, mass)
		t.channelLabels = append(t.channelLabels, label)
	}
	t.numCols = len(columns)
	return nil
}

// NumChannels returns the number of measurement channels
func (t *TxtFile) NumChannels() int {
	return t.numChannels
}

// ChannelMetals returns the metal isotope symbols, in channel order
func (t *TxtFile) ChannelMetals() []string {
	return t.channelMetals
}

// ChannelMasses returns the metal isotope masses, in channel order
func (t *TxtFile) ChannelMasses() []int {
	return t.channelMasses
}

// ChannelLabels returns the channel labels, in channel order
func (t *TxtFile) ChannelLabels() []string {
	return t.channelLabels
}

// ChannelNames returns the channel names ("Sm154"-style), in channel order
func (t *TxtFile) ChannelNames() []string {
	names := make([]string, t.numChannels)
	for i := 0; i < t.numChannels; i++ {
		names[i] = fmt.Sprintf("%s%d", t.channelMetals[i], t.channelMasses[i])
	}
	return names
}

// ReadAcquisition scatters the in-memory rows into a dense float32 image
// of shape (channels, height, width), dimensioned by the maximum recorded
// coordinates. Narrowing and strictness follow `ReadOptions` exactly as
// for `McdFile.ReadAcquisition`.
func (t *TxtFile) ReadAcquisition(opts *ReadOptions) (*AcquisitionImage, error) {
	if !t.open {
		return nil, CorruptTxtError("TXT file %q has not been opened", t.path)
	}
	strict := GetConfig().StrictMode
	var channels []int
	var region *Region
	if opts != nil {
		strict = opts.Strict
		channels = opts.Channels
		region = opts.Region
	}

	const xCol, yCol = 3, 4
	maxX, maxY := 0, 0
	for i := 0; i < t.numRows; i++ {
		row := t.data[i*t.numCols : (i+1)*t.numCols]
		if x := int(row[xCol]); x > maxX {
			maxX = x
		}
		if y := int(row[yCol]); y > maxY {
			maxY = y
		}
	}
	width, height := maxX+1, maxY+1
	if t.numRows == 0 {
		return nil, CorruptTxtError("TXT file %q corrupted: no image data", t.path)
	}
	if width*height != t.numRows {
		if strict {
			return nil, CorruptTxtError("TXT file %q corrupted: inconsistent image data size", t.path)
		}
		Warnf("TXT file %q: inconsistent image data size", t.path)
	}

	img, err := newAcquisitionImage(t.numChannels, height, width, channels, region)
	if err != nil {
		return nil, err
	}
	outChannels := channels
	if len(outChannels) == 0 {
		outChannels = make([]int, t.numChannels)
		for i := range outChannels {
			outChannels[i] = i
		}
	}
	xMin, yMin := 0, 0
	xMax, yMax := width, height
	if region != nil {
		xMin, yMin, xMax, yMax = region.XMin, region.YMin, region.XMax, region.YMax
	}
	for i := 0; i < t.numRows; i++ {
		row := t.data[i*t.numCols : (i+1)*t.numCols]
		x, y := int(row[xCol]), int(row[yCol])
		if x < xMin || x >= xMax || y < yMin || y >= yMax {
			continue
		}
		col, rowIdx := x-xMin, y-yMin
		for j, c := range outChannels {
			img.Data[(j*img.Height+rowIdx)*img.Width+col] = row[len(txtLeadingColumns)+c]
		}
	}
	return img, nil
}
