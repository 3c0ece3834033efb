package keys

import (
	"regexp"
	"strings"
)

// Placeholders used when a name sanitizes down to nothing
const (
	DefaultArtist = "Unknown-Artist"
	DefaultAlbum  = "Unknown-Album"
	DefaultTrack  = "Unknown-Track"
)

var (
	whitespaceRun = regexp.MustCompile(`[\s_]+`)
	invalidChars  = regexp.MustCompile(`[^a-zA-Z0-9-]`)
	hyphenRun     = regexp.MustCompile(`-+`)
	yearPrefix    = regexp.MustCompile(`^(\d{4})`)
)

// Sanitize converts a display name into a storage-safe key segment.
// Whitespace and underscore runs become a single hyphen, every other
// non-alphanumeric character is dropped, hyphen runs collapse, and edge
// hyphens are trimmed. The fallback is substituted when nothing survives.
func Sanitize(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fallback
	}

	key := whitespaceRun.ReplaceAllString(trimmed, "-")
	key = invalidChars.ReplaceAllString(key, "")
	key = hyphenRun.ReplaceAllString(key, "-")
	key = strings.Trim(key, "-")

	if key == "" {
		return fallback
	}
	return key
}

// CanonicalKey derives the storage key for a track. The album argument must
// already be the corrected album name, not the local folder name.
func CanonicalKey(artist, album, title, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return Sanitize(artist, DefaultArtist) + "/" +
		Sanitize(album, DefaultAlbum) + "/" +
		Sanitize(title, DefaultTrack) + ext
}

// ArtistID derives the stable catalog identifier for an artist name
func ArtistID(artist string) string {
	return Sanitize(artist, DefaultArtist)
}

// AlbumID derives the stable catalog identifier for an album. The album
// argument must be the corrected album name.
func AlbumID(artist, album string) string {
	return ArtistID(artist) + "/" + Sanitize(album, DefaultAlbum)
}

// CoverKey returns the storage key for an album's cover image
func CoverKey(artist, album string) string {
	return AlbumID(artist, album) + "/cover.jpg"
}

// ArtistImageKey returns the storage key for an artist's image
func ArtistImageKey(artist string) string {
	return ArtistID(artist) + "/artist.jpg"
}

// EmbeddedArtworkKey returns the storage key for artwork lifted out of a
// track's container. PNG keeps its extension, everything else is stored
// as JPEG.
func EmbeddedArtworkKey(artist, album, mimeType string) string {
	ext := ".jpg"
	if mimeType == "image/png" {
		ext = ".png"
	}
	return AlbumID(artist, album) + "/embedded" + ext
}

// RewriteKey replaces the artist and album segments of an existing track key
// with freshly sanitized corrected names, keeping the title segment intact.
func RewriteKey(key, artist, correctedAlbum string) string {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return key
	}

	return Sanitize(artist, DefaultArtist) + "/" +
		Sanitize(correctedAlbum, DefaultAlbum) + "/" +
		parts[2]
}

// ExtractYear pulls a four digit year out of a date string such as
// "2014-09-19" or "2014". Returns the empty string when no year leads.
func ExtractYear(date string) string {
	m := yearPrefix.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return ""
	}
	return m[1]
}

// NormalizeArtistName collapses a multi-artist credit such as "A/B" down to
// the first listed artist.
func NormalizeArtistName(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}
