package openimc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func encodeUTF16LE(t *testing.T, s string) []byte {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(s))
	assert.NoError(t, err)
	return encoded
}

// TestReadSchemaXML ensures that a schema document embedded after binary
// data is located and decoded
func TestReadSchemaXML(t *testing.T) {
	t.Parallel()
	doc := `<MCDSchema xmlns="ns"><Slide><ID>1</ID></Slide></MCDSchema>`
	buf := append(make([]byte, 4096), encodeUTF16LE(t, doc)...)
	src := bytes.NewReader(buf)

	schemaXML, err := readSchemaXML(src, int64(len(buf)))
	assert.NoError(t, err)
	assert.Equal(t, doc, schemaXML)
}

// TestReadSchemaXMLRightmost ensures that a stale schema copy earlier in
// the file is ignored in favour of the rightmost one
func TestReadSchemaXMLRightmost(t *testing.T) {
	t.Parallel()
	stale := `<MCDSchema><Slide><ID>999</ID></Slide></MCDSchema>`
	doc := `<MCDSchema><Slide><ID>1</ID></Slide></MCDSchema>`
	buf := encodeUTF16LE(t, stale)
	buf = append(buf, make([]byte, 512)...)
	buf = append(buf, encodeUTF16LE(t, doc)...)
	src := bytes.NewReader(buf)

	schemaXML, err := readSchemaXML(src, int64(len(buf)))
	assert.NoError(t, err)
	assert.Equal(t, doc, schemaXML)
}

// TestReadSchemaXMLAcrossChunks ensures that the backward scan finds a
// document that sits before the final scan window
func TestReadSchemaXMLAcrossChunks(t *testing.T) {
	t.Parallel()
	doc := `<MCDSchema><Slide><ID>1</ID></Slide></MCDSchema>`
	buf := append(make([]byte, 64), encodeUTF16LE(t, doc)...)
	// trailing padding larger than one scan window
	buf = append(buf, make([]byte, schemaScanChunkSize+4096)...)
	src := bytes.NewReader(buf)

	schemaXML, err := readSchemaXML(src, int64(len(buf)))
	assert.NoError(t, err)
	assert.Contains(t, schemaXML, "<MCDSchema>")
}

// TestReadSchemaXMLMissingMarkers ensures that missing start or end
// markers are reported as corruption, naming the marker
func TestReadSchemaXMLMissingMarkers(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 4096)
	_, err := readSchemaXML(bytes.NewReader(buf), int64(len(buf)))
	assert.Error(t, err)
	assert.IsType(t, &CorruptMcd{}, err)
	assert.Contains(t, err.Error(), schemaStartMarker)

	// end marker only before the start marker
	buf = encodeUTF16LE(t, `</MCDSchema>  <MCDSchema><Slide></Slide>`)
	_, err = readSchemaXML(bytes.NewReader(buf), int64(len(buf)))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), schemaEndMarker)
}

// TestReadSchemaXMLEmpty ensures that an empty input is rejected
func TestReadSchemaXMLEmpty(t *testing.T) {
	t.Parallel()
	_, err := readSchemaXML(bytes.NewReader(nil), 0)
	assert.Error(t, err)
}
