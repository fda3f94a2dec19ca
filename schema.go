package openimc

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"
)

/*
===============================================================================
    MCD-XML schema location
===============================================================================
*/

// the MCDSchema document is embedded in the file as UTF-16 little endian,
// conventionally at the tail but in practice anywhere; stale copies from
// aborted writes may precede the authoritative (rightmost) one.
const (
	schemaStartMarker = "<MCDSchema"
	schemaEndMarker   = "</MCDSchema>"

	// schemaScanChunkSize is the window size for the backward marker scan
	schemaScanChunkSize = 1 << 20
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeMarker returns `marker` encoded as UTF-16 little endian
func encodeMarker(marker string) []byte {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(marker))
	if err != nil {
		// markers are constant ASCII
		panic(err)
	}
	return encoded
}

// lastIndex scans `src` backwards from offset `from` (exclusive) for the
// rightmost occurrence of `pattern`, reading bounded chunks so that the
// file is never loaded eagerly. Returns -1 when not found.
func lastIndex(src io.ReaderAt, pattern []byte, from int64) (int64, error) {
	if from > 0 {
		overlap := int64(len(pattern) - 1)
		buf := make([]byte, schemaScanChunkSize)
		for end := from; end > 0; {
			start := end - schemaScanChunkSize
			if start < 0 {
				start = 0
			}
			// extend past `end` by the overlap so matches straddling a
			// chunk boundary are not missed
			readEnd := end + overlap
			if readEnd > from {
				readEnd = from
			}
			if int64(len(buf)) < readEnd-start {
				buf = make([]byte, readEnd-start)
			}
			chunk := buf[:readEnd-start]
			n, err := src.ReadAt(chunk, start)
			if err != nil && err != io.EOF {
				return -1, err
			}
			if idx := bytes.LastIndex(chunk[:n], pattern); idx >= 0 {
				return start + int64(idx), nil
			}
			end = start
		}
	}
	return -1, nil
}

// readSchemaXML locates and decodes the rightmost MCDSchema document in
// `src` (of `size` bytes). The rightmost end marker at or after the start
// marker closes the document; everything between (inclusive) is decoded
// from UTF-16LE.
func readSchemaXML(src io.ReaderAt, size int64) (string, error) {
	startPattern := encodeMarker(schemaStartMarker)
	endPattern := encodeMarker(schemaEndMarker)

	start, err := lastIndex(src, startPattern, size)
	if err != nil {
		return "", err
	}
	if start < 0 {
		return "", CorruptMcdError(`start of XML document "%s" not found`, schemaStartMarker)
	}
	end, err := lastIndex(src, endPattern, size)
	if err != nil {
		return "", err
	}
	if end < start {
		return "", CorruptMcdError(`end of XML document "%s" not found`, schemaEndMarker)
	}
	end += int64(len(endPattern))

	raw := make([]byte, end-start)
	if _, err := src.ReadAt(raw, start); err != nil && err != io.EOF {
		return "", err
	}
	decoded, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", CorruptMcdError("XML document cannot be decoded as UTF-16LE: %v", err)
	}
	return string(decoded), nil
}
