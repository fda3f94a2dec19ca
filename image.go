package openimc

import (
	"fmt"
	"image"
	"io"

	// decoders self-register with the stdlib image registry
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

/*
===============================================================================
    Embedded image blobs
===============================================================================
*/

// every embedded image blob is prefixed with a fixed-size proprietary
// header that must be skipped before the encoded image starts
const imageHeaderLength = 161

// CorruptImage is an error representing that an embedded image blob
// cannot be extracted or decoded
type CorruptImage struct {
	error
}

// CorruptImageError returns a `CorruptImage` with message according to `format` and `a`
func CorruptImageError(format string, a ...interface{}) *CorruptImage {
	return &CorruptImage{fmt.Errorf(format, a...)}
}

// readImage decodes the embedded image blob whose byte range `metadata`
// declares under `startKey`/`endKey`. Both offsets zero means the entity
// legitimately has no image; `found` is false and `err` nil in that case.
func (f *McdFile) readImage(metadata map[string]string, kind string, id int, startKey, endKey string) (image.Image, bool, error) {
	if f.mm == nil {
		return nil, false, f.errNotOpen()
	}
	start, okStart := int64FromMetadata(metadata, startKey)
	end, okEnd := int64FromMetadata(metadata, endKey)
	if !okStart || !okEnd {
		return nil, false, CorruptImageError("MCD file %q corrupted: cannot locate image data for %s %d", f.path, kind, id)
	}
	if start == 0 && end == 0 {
		return nil, false, nil
	}
	start += imageHeaderLength
	if start >= end {
		return nil, false, CorruptImageError("MCD file %q corrupted: invalid image data offsets for %s %d", f.path, kind, id)
	}
	img, _, err := image.Decode(io.NewSectionReader(f.mm, start, end-start))
	if err != nil {
		return nil, false, CorruptImageError("MCD file %q corrupted: cannot decode image for %s %d: %v", f.path, kind, id, err)
	}
	return img, true, nil
}

// ReadSlideImage decodes the whole-slide photograph of `slide`, when one
// was recorded.
func (f *McdFile) ReadSlideImage(slide *Slide) (image.Image, bool, error) {
	if slide == nil {
		return nil, false, CorruptImageError("slide must be specified")
	}
	return f.readImage(slide.Metadata, "slide", slide.ID, "ImageStartOffset", "ImageEndOffset")
}

// ReadPanoramaImage decodes the panorama photograph of `panorama`, when
// one was recorded.
func (f *McdFile) ReadPanoramaImage(panorama *Panorama) (image.Image, bool, error) {
	if panorama == nil {
		return nil, false, CorruptImageError("panorama must be specified")
	}
	return f.readImage(panorama.Metadata, "panorama", panorama.ID, "ImageStartOffset", "ImageEndOffset")
}

// ReadBeforeAblationImage decodes the optical image taken of the
// acquisition region before ablation, when one was recorded.
func (f *McdFile) ReadBeforeAblationImage(acquisition *Acquisition) (image.Image, bool, error) {
	if acquisition == nil {
		return nil, false, CorruptImageError("acquisition must be specified")
	}
	return f.readImage(acquisition.Metadata, "acquisition", acquisition.ID,
		"BeforeAblationImageStartOffset", "BeforeAblationImageEndOffset")
}

// ReadAfterAblationImage decodes the optical image taken of the
// acquisition region after ablation, when one was recorded.
func (f *McdFile) ReadAfterAblationImage(acquisition *Acquisition) (image.Image, bool, error) {
	if acquisition == nil {
		return nil, false, CorruptImageError("acquisition must be specified")
	}
	return f.readImage(acquisition.Metadata, "acquisition", acquisition.ID,
		"AfterAblationImageStartOffset", "AfterAblationImageEndOffset")
}
