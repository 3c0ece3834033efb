package tags

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"shellac/internal/keys"
	"shellac/internal/logging"
)

// Metadata holds everything known about an audio file before external
// resolution runs. Numeric fields are zero when the source had nothing.
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Composer    string
	Comment     string
	Genre       string
	Year        string
	TrackNumber int
	TrackTotal  int
	DiscNumber  int
	DiscTotal   int
	Duration    float64 // seconds
	Bitrate     int
	SampleRate  int
	Channels    int
	Format      string // lowercase extension without the dot
	FileSize    int64
	Artwork     *Artwork
}

// unreliableTagExts are containers whose embedded tags dhowden/tag either
// cannot read or reads inconsistently, so a probe pass always runs for them.
var unreliableTagExts = map[string]bool{
	".wav":  true,
	".aac":  true,
	".aiff": true,
}

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// Extractor reads local metadata out of audio files. Extract never fails:
// fields the file cannot supply are filled from filesystem fallbacks.
type Extractor struct {
	logger *logging.Logger

	probeCheck func() bool
	probeRun   func(path string) (*probeInfo, error)
}

// NewExtractor creates an extractor backed by ffprobe when it is installed.
func NewExtractor(log *logging.Logger) *Extractor {
	return &Extractor{
		logger:     log,
		probeCheck: probeAvailable,
		probeRun:   runProbe,
	}
}

// Extract reads tags, technical info and artwork for the file at path.
// relPath is the slash-separated path below the scan root; its ancestor
// directories provide the artist/album fallback for untagged files.
func (e *Extractor) Extract(path, relPath string) *Metadata {
	ext := strings.ToLower(filepath.Ext(path))
	meta := &Metadata{Format: strings.TrimPrefix(ext, ".")}

	if info, err := os.Stat(path); err == nil {
		meta.FileSize = info.Size()
	}

	e.readTags(path, meta)

	if meta.Artist == "" || meta.Album == "" || unreliableTagExts[ext] {
		e.mergeProbe(path, meta)
	}

	if meta.Duration == 0 {
		e.nativeProbe(path, ext, meta)
	}

	applyPathFallbacks(relPath, meta)
	return meta
}

// readTags fills meta from the file's embedded tags via dhowden/tag.
func (e *Extractor) readTags(path string, meta *Metadata) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Warnf("Cannot open %s for tag reading: %v", path, err)
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		e.logger.Debugf("No readable tags in %s: %v", path, err)
		return
	}

	meta.Title = strings.TrimSpace(m.Title())
	meta.Artist = strings.TrimSpace(m.Artist())
	meta.Album = strings.TrimSpace(m.Album())
	meta.AlbumArtist = strings.TrimSpace(m.AlbumArtist())
	meta.Composer = strings.TrimSpace(m.Composer())
	meta.Comment = strings.TrimSpace(m.Comment())
	meta.Genre = strings.TrimSpace(m.Genre())
	if m.Year() != 0 {
		meta.Year = strconv.Itoa(m.Year())
	}
	meta.TrackNumber, meta.TrackTotal = m.Track()
	meta.DiscNumber, meta.DiscTotal = m.Disc()

	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		meta.Artwork = &Artwork{
			Data: pic.Data,
			MIME: SniffImageMIME(pic.Data),
		}
	}
}

// mergeProbe runs ffprobe and fills fields the tag pass left empty.
// Values already present always win.
func (e *Extractor) mergeProbe(path string, meta *Metadata) {
	if !e.probeCheck() {
		return
	}
	info, err := e.probeRun(path)
	if err != nil {
		e.logger.Debugf("ffprobe failed for %s: %v", path, err)
		return
	}

	if meta.Duration == 0 {
		meta.Duration = info.Duration
	}
	if meta.Bitrate == 0 {
		meta.Bitrate = info.Bitrate
	}
	if meta.SampleRate == 0 {
		meta.SampleRate = info.SampleRate
	}
	if meta.Channels == 0 {
		meta.Channels = info.Channels
	}

	if meta.Title == "" {
		meta.Title = info.tagValue("title")
	}
	if meta.Artist == "" {
		meta.Artist = info.tagValue("artist")
	}
	if meta.Album == "" {
		meta.Album = info.tagValue("album")
	}
	if meta.AlbumArtist == "" {
		meta.AlbumArtist = info.tagValue("album_artist", "albumartist")
	}
	if meta.Composer == "" {
		meta.Composer = info.tagValue("composer")
	}
	if meta.Comment == "" {
		meta.Comment = info.tagValue("comment")
	}
	if meta.Genre == "" {
		meta.Genre = info.tagValue("genre")
	}
	if meta.Year == "" {
		meta.Year = keys.ExtractYear(info.tagValue("date", "year"))
	}
	if meta.TrackNumber == 0 {
		meta.TrackNumber, meta.TrackTotal = parseNumberPair(info.tagValue("track"))
	}
	if meta.DiscNumber == 0 {
		meta.DiscNumber, meta.DiscTotal = parseNumberPair(info.tagValue("disc"))
	}
}

// applyPathFallbacks fills whatever is still empty from the file's location.
func applyPathFallbacks(relPath string, meta *Metadata) {
	base := filepath.Base(filepath.FromSlash(relPath))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	// Artist/Album layouts put tracks two levels below the scan root.
	if parts := strings.Split(relPath, "/"); len(parts) >= 3 {
		if meta.Artist == "" {
			meta.Artist = parts[0]
		}
		if meta.Album == "" {
			meta.Album = parts[1]
		}
	}

	if meta.TrackNumber == 0 {
		if match := leadingDigits.FindString(stem); match != "" {
			if n, err := strconv.Atoi(match); err == nil {
				meta.TrackNumber = n
			}
		}
	}

	if meta.Title == "" {
		meta.Title = stem
	}
}

// parseNumberPair reads values like "3" or "3/12" into (number, total).
func parseNumberPair(value string) (int, int) {
	if value == "" {
		return 0, 0
	}
	num, total := value, ""
	if idx := strings.Index(value, "/"); idx >= 0 {
		num, total = value[:idx], value[idx+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, 0
	}
	t, _ := strconv.Atoi(strings.TrimSpace(total))
	return n, t
}
