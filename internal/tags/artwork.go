package tags

import "bytes"

// Artwork is an embedded picture pulled out of an audio file.
type Artwork struct {
	Data []byte
	MIME string
}

// SniffImageMIME identifies an image payload by its magic bytes. Anything
// unrecognized is treated as JPEG, the dominant format for embedded artwork.
func SniffImageMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
