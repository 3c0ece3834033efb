// Package metadata resolves artist, album, and track information from
// three external services: TheAudioDB as the primary source, MusicBrainz
// for stable identifiers and structured release detail, and Last.fm as a
// fallback when the primary has nothing to say. Every service runs on its
// own rate-limit clock, memoizes answers for the lifetime of a run, and
// caches "no match" like any other answer so a missing album costs one
// lookup instead of one per track.
package metadata

import (
	"strings"
	"sync"
)

// ArtistInfo is the merged artist knowledge used for catalog entries.
type ArtistInfo struct {
	Name           string
	Bio            string
	ImageURL       string
	Genre          string
	Style          string
	Mood           string
	Type           string
	Area           string
	BeginDate      string
	EndDate        string
	Disambiguation string
	MusicBrainzID  string
}

// AlbumInfo is the merged album knowledge. Name carries the corrected
// album name when an external source had one; empty means the local tag
// stands.
type AlbumInfo struct {
	Name          string
	ImageURL      string
	Wiki          string
	ReleaseDate   string
	Genre         string
	Style         string
	Mood          string
	Theme         string
	ReleaseType   string
	Country       string
	Label         string
	Barcode       string
	MediaFormat   string
	MusicBrainzID string
}

// TrackInfo is the primary service's per-track result.
type TrackInfo struct {
	Name  string
	Album string
	Genre string
	Style string
	Mood  string
	Theme string
}

// ArtistDetails is the identifier service's structured artist record.
type ArtistDetails struct {
	MBID           string
	Name           string
	Type           string
	Area           string
	BeginDate      string
	EndDate        string
	Disambiguation string
	Tags           []string
}

// ReleaseDetails is the identifier service's structured release record.
type ReleaseDetails struct {
	MBID           string
	ReleaseGroupID string
	Title          string
	ReleaseDate    string
	ReleaseType    string
	Country        string
	Label          string
	Barcode        string
	MediaFormat    string
	Tags           []string
}

// memoCache is a run-lifetime memo for service lookups. Storing a zero
// value is meaningful: "looked up, nothing found" stays cached.
type memoCache[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func newMemoCache[V any]() *memoCache[V] {
	return &memoCache[V]{m: make(map[string]V)}
}

func (c *memoCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *memoCache[V]) set(key string, v V) {
	c.mu.Lock()
	c.m[key] = v
	c.mu.Unlock()
}

// cacheKey joins lookup terms into a case-insensitive cache key.
func cacheKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(normalized, "\x1f")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
