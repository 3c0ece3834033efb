package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"shellac/internal/keys"
	"shellac/internal/logging"
)

const (
	audioDBBaseURL    = "https://www.theaudiodb.com/api/v1/json"
	audioDBInterval   = 500 * time.Millisecond
	defaultAudioDBKey = "123"
)

// AudioDB is the primary catalog service client. When a MusicBrainz client
// is attached, album lookups try the release identifier before falling back
// to name searches.
type AudioDB struct {
	api    *apiClient
	base   string
	mb     *MusicBrainz
	mirror ImageMirror
	logger *logging.Logger

	artists    *memoCache[ArtistInfo]
	albums     *memoCache[AlbumInfo]
	tracks     *memoCache[TrackInfo]
	artistRefs *memoCache[artistRef]
}

// artistRef remembers the service's canonical spelling and internal id for
// an artist we already searched, so album lookups can reuse both.
type artistRef struct {
	Name string
	ID   string
}

// NewAudioDB returns a client for the given API key. An empty key selects
// the service's shared test key. mb and mirror may be nil.
func NewAudioDB(apiKey string, mb *MusicBrainz, mirror ImageMirror, logger *logging.Logger) *AudioDB {
	if apiKey == "" {
		apiKey = defaultAudioDBKey
	}
	return &AudioDB{
		api:        newAPIClient("TheAudioDB", audioDBInterval, logger),
		base:       audioDBBaseURL + "/" + url.PathEscape(apiKey),
		mb:         mb,
		mirror:     mirror,
		logger:     logger,
		artists:    newMemoCache[ArtistInfo](),
		albums:     newMemoCache[AlbumInfo](),
		tracks:     newMemoCache[TrackInfo](),
		artistRefs: newMemoCache[artistRef](),
	}
}

func (a *AudioDB) endpoint(name string, params url.Values) string {
	return a.base + "/" + name + "?" + params.Encode()
}

// SearchArtist looks up an artist by name, trying punctuation variations
// until one matches. The artwork, if any, is mirrored into the object
// store. No match is cached as an empty result.
func (a *AudioDB) SearchArtist(ctx context.Context, name string) ArtistInfo {
	key := cacheKey(name)
	if cached, ok := a.artists.get(key); ok {
		return cached
	}

	var info ArtistInfo
	for _, variation := range nameVariations(name) {
		var resp audioDBArtistResponse
		err := a.api.getJSON(ctx, a.endpoint("search.php", url.Values{"s": {variation}}), &resp)
		if err != nil {
			a.logger.Debugf("TheAudioDB artist search failed for %q: %v", variation, err)
			continue
		}
		if len(resp.Artists) == 0 {
			continue
		}

		artist := resp.Artists[0]
		if artist.ID != "" {
			a.artistRefs.set(key, artistRef{Name: firstNonEmpty(artist.Name, name), ID: artist.ID})
		}
		info = ArtistInfo{
			Name:  artist.Name,
			Bio:   strings.TrimSpace(artist.BiographyEN),
			Genre: artist.Genre,
			Style: artist.Style,
			Mood:  artist.Mood,
		}
		if imageURL := firstNonEmpty(artist.Thumb, artist.Fanart, artist.Fanart2); imageURL != "" {
			info.ImageURL = a.mirrorArtistImage(ctx, imageURL, name)
		}
		a.logger.Debugf("Found artist %q using variation %q", name, variation)
		break
	}

	if ctx.Err() != nil {
		return info
	}
	a.artists.set(key, info)
	return info
}

// SearchAlbum resolves an album through the lookup chain: the MusicBrainz
// release identifier, a name search with edition suffixes stripped, a name
// search with the original name, then the artist's album list. Name holds
// the service's corrected album name when any step matched.
func (a *AudioDB) SearchAlbum(ctx context.Context, artist, album string) AlbumInfo {
	key := cacheKey(artist, album)
	if cached, ok := a.albums.get(key); ok {
		return cached
	}

	canonical := artist
	artistID := ""
	if ref, ok := a.artistRefs.get(cacheKey(artist)); ok {
		canonical = ref.Name
		artistID = ref.ID
	}

	var found *audioDBAlbum
	mbTitle := ""

	if a.mb != nil {
		release := a.mb.SearchRelease(ctx, artist, album)
		mbTitle = release.Title
		if id := firstNonEmpty(release.ReleaseGroupID, release.MBID); id != "" {
			var resp audioDBAlbumResponse
			err := a.api.getJSON(ctx, a.endpoint("album-mb.php", url.Values{"i": {id}}), &resp)
			if err == nil && len(resp.Album) > 0 {
				found = &resp.Album[0]
				a.logger.Debugf("Found album %q by %q via MusicBrainz id %s", album, artist, id)
			}
		}
	}

	if found == nil {
		if normalized := normalizeAlbumName(album); normalized != album {
			found = a.searchAlbumByName(ctx, canonical, normalized)
		}
	}
	if found == nil {
		found = a.searchAlbumByName(ctx, canonical, album)
	}
	if found == nil && artistID != "" {
		found = a.findInArtistAlbums(ctx, artistID, album)
	}

	var info AlbumInfo
	if found != nil {
		info = AlbumInfo{
			Name:        firstNonEmpty(found.Name, mbTitle),
			Wiki:        strings.TrimSpace(firstNonEmpty(found.DescriptionEN, found.Description)),
			ReleaseDate: keys.ExtractYear(found.YearReleased),
			Genre:       found.Genre,
			Style:       found.Style,
			Mood:        found.Mood,
			Theme:       found.Theme,
		}
		if imageURL := firstNonEmpty(found.ThumbHQ, found.Thumb); imageURL != "" {
			info.ImageURL = a.mirrorAlbumImage(ctx, imageURL, artist, firstNonEmpty(info.Name, album))
		}
	}

	if ctx.Err() != nil {
		return info
	}
	a.albums.set(key, info)
	return info
}

// SearchTrack returns the service's metadata for a single track, mainly
// the album it files the track under.
func (a *AudioDB) SearchTrack(ctx context.Context, artist, title string) TrackInfo {
	key := cacheKey(artist, title)
	if cached, ok := a.tracks.get(key); ok {
		return cached
	}

	var info TrackInfo
	var resp audioDBTrackResponse
	err := a.api.getJSON(ctx, a.endpoint("searchtrack.php", url.Values{"s": {artist}, "t": {title}}), &resp)
	if err != nil {
		a.logger.Debugf("TheAudioDB track search failed for %q by %q: %v", title, artist, err)
	} else if len(resp.Track) > 0 {
		track := resp.Track[0]
		info = TrackInfo{
			Name:  track.Name,
			Album: track.Album,
			Genre: track.Genre,
			Style: track.Style,
			Mood:  track.Mood,
			Theme: track.Theme,
		}
	}

	if ctx.Err() != nil {
		return info
	}
	a.tracks.set(key, info)
	return info
}

func (a *AudioDB) searchAlbumByName(ctx context.Context, artist, album string) *audioDBAlbum {
	var resp audioDBAlbumResponse
	err := a.api.getJSON(ctx, a.endpoint("searchalbum.php", url.Values{"s": {artist}, "a": {album}}), &resp)
	if err != nil {
		a.logger.Debugf("TheAudioDB album search failed for %q by %q: %v", album, artist, err)
		return nil
	}
	if len(resp.Album) == 0 {
		return nil
	}
	return &resp.Album[0]
}

func (a *AudioDB) findInArtistAlbums(ctx context.Context, artistID, album string) *audioDBAlbum {
	var resp audioDBAlbumResponse
	err := a.api.getJSON(ctx, a.endpoint("album.php", url.Values{"i": {artistID}}), &resp)
	if err != nil {
		a.logger.Debugf("TheAudioDB album list failed for artist id %s: %v", artistID, err)
		return nil
	}
	for i := range resp.Album {
		if namesMatch(album, resp.Album[i].Name) {
			return &resp.Album[i]
		}
	}
	return nil
}

func (a *AudioDB) mirrorArtistImage(ctx context.Context, srcURL, artist string) string {
	if a.mirror == nil {
		return srcURL
	}
	return a.mirror.MirrorArtistImage(ctx, srcURL, artist)
}

func (a *AudioDB) mirrorAlbumImage(ctx context.Context, srcURL, artist, album string) string {
	if a.mirror == nil {
		return srcURL
	}
	return a.mirror.MirrorAlbumImage(ctx, srcURL, artist, album)
}

// nameVariations generates alternate spellings for names whose punctuation
// trips up the search endpoint, e.g. "B.O.B" -> "BOB", "AC/DC" -> "AC DC".
// Order matters: the original name is always tried first.
func nameVariations(name string) []string {
	variations := []string{name}
	seen := map[string]bool{name: true}
	add := func(v string) {
		if v != "" && !seen[v] {
			variations = append(variations, v)
			seen[v] = true
		}
	}

	add(strings.ReplaceAll(name, ".", ""))
	add(strings.TrimSpace(strings.ReplaceAll(name, ".", ". ")))
	add(strings.ReplaceAll(name, "/", ""))
	add(strings.ReplaceAll(name, "/", " "))
	return variations
}

var albumSuffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*deluxe\s*(version|edition)?\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*special\s+edition\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*expanded\s+edition\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*remaster(ed)?\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*bonus\s+track(s)?\s*\)`),
	regexp.MustCompile(`(?i)\s*-\s*single\s*$`),
	regexp.MustCompile(`(?i)\s*-\s*ep\s*$`),
}

// normalizeAlbumName strips edition suffixes so lookups hit the canonical
// album entry, e.g. "Hozier (Deluxe Edition)" -> "Hozier". Names that are
// nothing but suffix are returned unchanged.
func normalizeAlbumName(name string) string {
	normalized := name
	for _, p := range albumSuffixPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return name
	}
	return normalized
}

// namesMatch reports whether a search result plausibly names the same
// album as the query: equal after dropping case and punctuation, or one
// containing the other once both are at least three characters long.
func namesMatch(search, result string) bool {
	a := normalizeForMatch(search)
	b := normalizeForMatch(result)
	if a == b {
		return a != ""
	}
	if len(a) >= 3 && len(b) >= 3 {
		return strings.Contains(a, b) || strings.Contains(b, a)
	}
	return false
}

func normalizeForMatch(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type audioDBArtist struct {
	ID          string `json:"idArtist"`
	Name        string `json:"strArtist"`
	BiographyEN string `json:"strBiographyEN"`
	Genre       string `json:"strGenre"`
	Style       string `json:"strStyle"`
	Mood        string `json:"strMood"`
	Thumb       string `json:"strArtistThumb"`
	Fanart      string `json:"strArtistFanart"`
	Fanart2     string `json:"strArtistFanart2"`
}

type audioDBAlbum struct {
	ID            string `json:"idAlbum"`
	ArtistID      string `json:"idArtist"`
	Name          string `json:"strAlbum"`
	YearReleased  string `json:"intYearReleased"`
	Genre         string `json:"strGenre"`
	Style         string `json:"strStyle"`
	Mood          string `json:"strMood"`
	Theme         string `json:"strTheme"`
	DescriptionEN string `json:"strDescriptionEN"`
	Description   string `json:"strDescription"`
	Thumb         string `json:"strAlbumThumb"`
	ThumbHQ       string `json:"strAlbumThumbHQ"`
}

type audioDBTrack struct {
	Name  string `json:"strTrack"`
	Album string `json:"strAlbum"`
	Genre string `json:"strGenre"`
	Style string `json:"strStyle"`
	Mood  string `json:"strMood"`
	Theme string `json:"strTheme"`
}

type audioDBArtistResponse struct {
	Artists []audioDBArtist `json:"artists"`
}

type audioDBAlbumResponse struct {
	Album albumList `json:"album"`
}

type audioDBTrackResponse struct {
	Track []audioDBTrack `json:"track"`
}

// albumList accepts both shapes the album endpoints produce: a JSON array
// for searches and a bare object for identifier lookups.
type albumList []audioDBAlbum

func (l *albumList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var albums []audioDBAlbum
		if err := json.Unmarshal(trimmed, &albums); err != nil {
			return err
		}
		*l = albums
		return nil
	}
	var album audioDBAlbum
	if err := json.Unmarshal(trimmed, &album); err != nil {
		return err
	}
	*l = albumList{album}
	return nil
}
