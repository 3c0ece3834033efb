package metadata

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"shellac/internal/logging"
)

const (
	lastFMBaseURL  = "https://ws.audioscrobbler.com/2.0/"
	lastFMInterval = 250 * time.Millisecond
)

// LastFM is the fallback album-metadata client. A client without an API
// key answers every lookup with an empty result and never touches the
// network.
type LastFM struct {
	api    *apiClient
	base   string
	apiKey string
	mirror ImageMirror
	logger *logging.Logger
	albums *memoCache[AlbumInfo]
}

func NewLastFM(apiKey string, mirror ImageMirror, logger *logging.Logger) *LastFM {
	return &LastFM{
		api:    newAPIClient("Last.fm", lastFMInterval, logger),
		base:   lastFMBaseURL,
		apiKey: apiKey,
		mirror: mirror,
		logger: logger,
		albums: newMemoCache[AlbumInfo](),
	}
}

func (l *LastFM) Enabled() bool {
	return l != nil && l.apiKey != ""
}

// GetAlbumInfo fetches album metadata with autocorrection on, mirroring
// the best-ranked image into the object store. The service reports "not
// found" as an error body inside a 200 response; that counts as a cached
// no-match, not a retryable failure.
func (l *LastFM) GetAlbumInfo(ctx context.Context, artist, album string) AlbumInfo {
	if !l.Enabled() {
		return AlbumInfo{}
	}
	key := cacheKey(artist, album)
	if cached, ok := l.albums.get(key); ok {
		return cached
	}

	var info AlbumInfo
	params := url.Values{
		"method":      {"album.getinfo"},
		"api_key":     {l.apiKey},
		"format":      {"json"},
		"artist":      {artist},
		"album":       {album},
		"autocorrect": {"1"},
	}
	var resp lastFMAlbumResponse
	err := l.api.getJSON(ctx, l.base+"?"+params.Encode(), &resp)
	switch {
	case err != nil:
		l.logger.Debugf("Last.fm album lookup failed for %q by %q: %v", album, artist, err)
	case resp.Error != 0:
		l.logger.Debugf("Last.fm error %d for %q by %q: %s", resp.Error, album, artist, resp.Message)
	case resp.Album != nil:
		info.Name = resp.Album.Name
		if resp.Album.Wiki != nil {
			info.Wiki = cleanWikiText(resp.Album.Wiki.Summary)
		}
		if imageURL := bestImage(resp.Album.Image); imageURL != "" {
			if l.mirror != nil {
				info.ImageURL = l.mirror.MirrorAlbumImage(ctx, imageURL, artist, album)
			} else {
				info.ImageURL = imageURL
			}
		}
	}

	if ctx.Err() != nil {
		return info
	}
	l.albums.set(key, info)
	return info
}

var imageSizeRank = []string{"mega", "extralarge", "large", "medium", "small"}

// bestImage picks the largest image the response carries. Entries with an
// empty URL are placeholders the service emits for sizes it lacks.
func bestImage(images []lastFMImage) string {
	bySize := make(map[string]string, len(images))
	for _, img := range images {
		if img.Size != "" && img.URL != "" {
			bySize[img.Size] = img.URL
		}
	}
	for _, size := range imageSizeRank {
		if u := bySize[size]; u != "" {
			return u
		}
	}
	return ""
}

var (
	anchorTags = regexp.MustCompile(`(?s)<a\s+[^>]*>.*?</a>`)
	htmlTags   = regexp.MustCompile(`<[^>]+>`)
)

// cleanWikiText strips the trailing read-more link and any other markup,
// collapsing the whitespace left behind.
func cleanWikiText(text string) string {
	text = anchorTags.ReplaceAllString(text, "")
	text = htmlTags.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

type lastFMImage struct {
	Size string `json:"size"`
	URL  string `json:"#text"`
}

type lastFMAlbumResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Album   *struct {
		Name  string        `json:"name"`
		Image []lastFMImage `json:"image"`
		Wiki  *struct {
			Summary string `json:"summary"`
		} `json:"wiki"`
	} `json:"album"`
}
