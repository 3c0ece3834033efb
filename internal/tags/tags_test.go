package tags

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellac/internal/logging"
)

func newTestExtractor() *Extractor {
	e := NewExtractor(logging.NewLogger(logging.ErrorLevel, io.Discard))
	e.probeCheck = func() bool { return false }
	return e
}

func writeTestFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// id3v2TextFrame builds an ID3v2.3 text frame with latin-1 encoding.
func id3v2TextFrame(id, text string) []byte {
	payload := append([]byte{0x00}, []byte(text)...)
	return id3v2Frame(id, payload)
}

// id3v2PictureFrame builds an ID3v2.3 APIC frame with an empty description.
func id3v2PictureFrame(mime string, data []byte) []byte {
	payload := []byte{0x00}
	payload = append(payload, []byte(mime)...)
	payload = append(payload, 0x00) // mime terminator
	payload = append(payload, 0x03) // front cover
	payload = append(payload, 0x00) // empty description
	payload = append(payload, data...)
	return id3v2Frame("APIC", payload)
}

func id3v2Frame(id string, payload []byte) []byte {
	frame := make([]byte, 0, 10+len(payload))
	frame = append(frame, id...)
	size := len(payload)
	frame = append(frame, byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
	frame = append(frame, 0x00, 0x00)
	return append(frame, payload...)
}

func id3v2Blob(frames ...[]byte) []byte {
	var body []byte
	for _, frame := range frames {
		body = append(body, frame...)
	}
	size := len(body)
	header := []byte{
		'I', 'D', '3', 0x03, 0x00, 0x00,
		byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f),
		byte(size >> 7 & 0x7f), byte(size & 0x7f),
	}
	return append(header, body...)
}

// wavFile builds a 16-bit stereo PCM WAV holding the given whole seconds
// of silence.
func wavFile(sampleRate, seconds int) []byte {
	byteRate := sampleRate * 2 * 2
	data := make([]byte, byteRate*seconds)

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(byteRate))
	binary.Write(&b, binary.LittleEndian, uint16(4))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestExtractReadsEmbeddedTags(t *testing.T) {
	root := t.TempDir()
	blob := id3v2Blob(
		id3v2TextFrame("TIT2", "Take Me to Church"),
		id3v2TextFrame("TPE1", "Hozier"),
		id3v2TextFrame("TALB", "Hozier"),
		id3v2TextFrame("TPE2", "Hozier"),
		id3v2TextFrame("TCON", "Soul"),
		id3v2TextFrame("TYER", "2014"),
		id3v2TextFrame("TRCK", "3/13"),
		id3v2TextFrame("TPOS", "1/1"),
	)
	rel := "Hozier/Hozier/03 Take Me to Church.mp3"
	path := writeTestFile(t, root, rel, blob)

	meta := newTestExtractor().Extract(path, rel)

	assert.Equal(t, "Take Me to Church", meta.Title)
	assert.Equal(t, "Hozier", meta.Artist)
	assert.Equal(t, "Hozier", meta.Album)
	assert.Equal(t, "Hozier", meta.AlbumArtist)
	assert.Equal(t, "Soul", meta.Genre)
	assert.Equal(t, "2014", meta.Year)
	assert.Equal(t, 3, meta.TrackNumber)
	assert.Equal(t, 13, meta.TrackTotal)
	assert.Equal(t, 1, meta.DiscNumber)
	assert.Equal(t, "mp3", meta.Format)
	assert.Equal(t, int64(len(blob)), meta.FileSize)
}

func TestExtractArtworkMIMESniffedFromBytes(t *testing.T) {
	root := t.TempDir()
	pngData := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)
	// The frame lies about the MIME type; the bytes decide.
	blob := id3v2Blob(
		id3v2TextFrame("TIT2", "Cover Test"),
		id3v2PictureFrame("image/jpeg", pngData),
	)
	rel := "Artist/Album/01 Cover Test.mp3"
	path := writeTestFile(t, root, rel, blob)

	meta := newTestExtractor().Extract(path, rel)

	require.NotNil(t, meta.Artwork)
	assert.Equal(t, "image/png", meta.Artwork.MIME)
	assert.Equal(t, pngData, meta.Artwork.Data)
}

func TestExtractFallsBackToPathMetadata(t *testing.T) {
	root := t.TempDir()
	rel := "Hozier/Wasteland Baby/04 Nobody.mp3"
	path := writeTestFile(t, root, rel, bytes.Repeat([]byte{0xde, 0xad}, 16))

	meta := newTestExtractor().Extract(path, rel)

	assert.Equal(t, "Hozier", meta.Artist)
	assert.Equal(t, "Wasteland Baby", meta.Album)
	assert.Equal(t, "04 Nobody", meta.Title)
	assert.Equal(t, 4, meta.TrackNumber)
	assert.Equal(t, "mp3", meta.Format)
}

func TestExtractShallowPathHasNoDirFallback(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "loose.mp3", bytes.Repeat([]byte{0x42}, 32))

	meta := newTestExtractor().Extract(path, "loose.mp3")

	assert.Empty(t, meta.Artist)
	assert.Empty(t, meta.Album)
	assert.Equal(t, "loose", meta.Title)
	assert.Zero(t, meta.TrackNumber)
}

func TestExtractMissingFileStillReturnsMetadata(t *testing.T) {
	rel := "A/B/07 ghost.mp3"
	meta := newTestExtractor().Extract(filepath.Join(t.TempDir(), "nope.mp3"), rel)

	require.NotNil(t, meta)
	assert.Equal(t, "A", meta.Artist)
	assert.Equal(t, "B", meta.Album)
	assert.Equal(t, 7, meta.TrackNumber)
	assert.Equal(t, "07 ghost", meta.Title)
	assert.Equal(t, int64(0), meta.FileSize)
}

func TestExtractWAVUsesNativeDecoder(t *testing.T) {
	root := t.TempDir()
	rel := "Artist/Album/05 tone.wav"
	path := writeTestFile(t, root, rel, wavFile(44100, 1))

	meta := newTestExtractor().Extract(path, rel)

	assert.InDelta(t, 1.0, meta.Duration, 0.01)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, 1411200, meta.Bitrate)
	assert.Equal(t, "wav", meta.Format)
}

func TestExtractMergesProbeFields(t *testing.T) {
	root := t.TempDir()
	rel := "incoming/raw/track.aac"
	path := writeTestFile(t, root, rel, bytes.Repeat([]byte{0x7a}, 48))

	e := newTestExtractor()
	e.probeCheck = func() bool { return true }
	e.probeRun = func(string) (*probeInfo, error) {
		return &probeInfo{
			Duration:   185.2,
			Bitrate:    320000,
			SampleRate: 48000,
			Channels:   2,
			Tags: map[string]string{
				"artist": "Sigur Rós",
				"album":  "Ágætis byrjun",
				"title":  "Svefn-g-englar",
				"date":   "1999-06-12",
				"track":  "4/10",
			},
		}, nil
	}

	meta := e.Extract(path, rel)

	assert.Equal(t, "Sigur Rós", meta.Artist)
	assert.Equal(t, "Ágætis byrjun", meta.Album)
	assert.Equal(t, "Svefn-g-englar", meta.Title)
	assert.Equal(t, "1999", meta.Year)
	assert.Equal(t, 4, meta.TrackNumber)
	assert.Equal(t, 10, meta.TrackTotal)
	assert.InDelta(t, 185.2, meta.Duration, 0.001)
	assert.Equal(t, 320000, meta.Bitrate)
	assert.Equal(t, 48000, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
}

func TestExtractPrefersTagValuesOverProbe(t *testing.T) {
	root := t.TempDir()
	blob := id3v2Blob(
		id3v2TextFrame("TIT2", "From Eden"),
		id3v2TextFrame("TPE1", "Hozier"),
	)
	rel := "library/mixed/from-eden.mp3"
	path := writeTestFile(t, root, rel, blob)

	e := newTestExtractor()
	e.probeCheck = func() bool { return true }
	e.probeRun = func(string) (*probeInfo, error) {
		return &probeInfo{
			Duration: 273.0,
			Tags: map[string]string{
				"artist": "Somebody Else",
				"album":  "From Eden EP",
			},
		}, nil
	}

	meta := e.Extract(path, rel)

	assert.Equal(t, "Hozier", meta.Artist)
	assert.Equal(t, "From Eden EP", meta.Album)
	assert.Equal(t, "From Eden", meta.Title)
	assert.InDelta(t, 273.0, meta.Duration, 0.001)
}

func TestParseProbeOutput(t *testing.T) {
	probeJSON := `{
		"streams": [
			{"codec_type": "video", "codec_name": "mjpeg"},
			{"codec_type": "audio", "codec_name": "flac",
			 "sample_rate": "44100", "channels": 2,
			 "tags": {"ENCODER": "libflac 1.3.2"}}
		],
		"format": {
			"format_name": "flac",
			"duration": "245.640000",
			"bit_rate": "1034105",
			"tags": {"ARTIST": "Sigur Rós", "ALBUM": "()", "TITLE": "Untitled 1",
			         "DATE": "2002", "track": "1"}
		}
	}`

	info, err := parseProbeOutput([]byte(probeJSON))
	require.NoError(t, err)

	assert.InDelta(t, 245.64, info.Duration, 0.001)
	assert.Equal(t, 1034105, info.Bitrate)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, "Sigur Rós", info.tagValue("artist"))
	assert.Equal(t, "Untitled 1", info.tagValue("title"))
	assert.Equal(t, "1", info.tagValue("track"))
	assert.Equal(t, "libflac 1.3.2", info.tagValue("encoder"))
	assert.Empty(t, info.tagValue("composer"))
}

func TestParseProbeOutputErrors(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	assert.Error(t, err)

	_, err = parseProbeOutput([]byte(`{"streams": [{"codec_type": "video"}], "format": {}}`))
	assert.Error(t, err)
}

func TestParseNumberPair(t *testing.T) {
	tests := []struct {
		in        string
		num, totl int
	}{
		{"3", 3, 0},
		{"3/12", 3, 12},
		{" 3 / 12 ", 3, 12},
		{"", 0, 0},
		{"x", 0, 0},
		{"7/", 7, 0},
	}
	for _, tt := range tests {
		num, total := parseNumberPair(tt.in)
		assert.Equal(t, tt.num, num, "number for %q", tt.in)
		assert.Equal(t, tt.totl, total, "total for %q", tt.in)
	}
}

func TestSniffImageMIME(t *testing.T) {
	webp := append([]byte("RIFF"), 0x10, 0x00, 0x00, 0x00)
	webp = append(webp, []byte("WEBP")...)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n1234"), "image/png"},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, "image/jpeg"},
		{"webp", webp, "image/webp"},
		{"unknown defaults to jpeg", []byte("garbage"), "image/jpeg"},
		{"short data defaults to jpeg", []byte{0x00}, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffImageMIME(tt.data))
		})
	}
}
