package metadata

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"shellac/internal/keys"
	"shellac/internal/logging"
)

const (
	musicBrainzBaseURL  = "https://musicbrainz.org/ws/2"
	musicBrainzInterval = time.Second
	maxTags             = 5
)

// MusicBrainz is the identifier service client. The service requires a
// descriptive User-Agent and allows one request per second; both are wired
// in here so callers never think about them. A nil *MusicBrainz means the
// service is disabled and callers skip it.
type MusicBrainz struct {
	api    *apiClient
	base   string
	logger *logging.Logger

	artistIDs     *memoCache[string]
	artistDetails *memoCache[ArtistDetails]
	releases      *memoCache[ReleaseDetails]
}

func NewMusicBrainz(userAgent string, logger *logging.Logger) *MusicBrainz {
	api := newAPIClient("MusicBrainz", musicBrainzInterval, logger)
	api.headers = map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/json",
	}
	return &MusicBrainz{
		api:           api,
		base:          musicBrainzBaseURL,
		logger:        logger,
		artistIDs:     newMemoCache[string](),
		artistDetails: newMemoCache[ArtistDetails](),
		releases:      newMemoCache[ReleaseDetails](),
	}
}

// ArtistMBID resolves the MusicBrainz identifier for an artist name. The
// exact escaped query runs first; names carrying characters the escaping
// tends to mangle get a second, unescaped try. Not-found is cached too.
func (m *MusicBrainz) ArtistMBID(ctx context.Context, name string) string {
	key := cacheKey(name)
	if cached, ok := m.artistIDs.get(key); ok {
		return cached
	}

	mbid := m.searchArtistID(ctx, name, true)
	if mbid == "" && strings.ContainsAny(name, ".&!") {
		mbid = m.searchArtistID(ctx, name, false)
	}

	if ctx.Err() != nil {
		return mbid
	}
	m.artistIDs.set(key, mbid)
	return mbid
}

// SearchArtist resolves an artist name to its identifier and fetches the
// structured record behind it.
func (m *MusicBrainz) SearchArtist(ctx context.Context, name string) ArtistDetails {
	key := cacheKey(name)
	if cached, ok := m.artistDetails.get(key); ok {
		return cached
	}

	var details ArtistDetails
	if mbid := m.ArtistMBID(ctx, name); mbid != "" {
		details = m.GetArtist(ctx, mbid)
	}

	if ctx.Err() != nil {
		return details
	}
	m.artistDetails.set(key, details)
	return details
}

// GetArtist fetches the artist record for a known identifier.
func (m *MusicBrainz) GetArtist(ctx context.Context, mbid string) ArtistDetails {
	params := url.Values{"inc": {"tags"}, "fmt": {"json"}}
	var resp mbArtistResponse
	err := m.api.getJSON(ctx, m.base+"/artist/"+url.PathEscape(mbid)+"?"+params.Encode(), &resp)
	if err != nil {
		m.logger.Debugf("MusicBrainz artist lookup failed for %s: %v", mbid, err)
		return ArtistDetails{MBID: mbid}
	}

	details := ArtistDetails{
		MBID:           mbid,
		Name:           resp.Name,
		Type:           resp.Type,
		BeginDate:      resp.LifeSpan.Begin,
		EndDate:        resp.LifeSpan.End,
		Disambiguation: resp.Disambiguation,
		Tags:           tagNames(resp.Tags),
	}
	if resp.Area != nil {
		details.Area = resp.Area.Name
	}
	return details
}

// SearchRelease finds a release by artist and album name: an exact quoted
// query first, then a fuzzy query with edition suffixes stripped when the
// exact one misses. The empty result is cached like a found one.
func (m *MusicBrainz) SearchRelease(ctx context.Context, artist, album string) ReleaseDetails {
	key := cacheKey(artist, album)
	if cached, ok := m.releases.get(key); ok {
		return cached
	}

	query := fmt.Sprintf(`release:"%s" AND artist:"%s"`, escapeLucene(album), escapeLucene(artist))
	mbid, title := m.searchReleaseID(ctx, query)
	if mbid == "" {
		if cleaned := cleanAlbumName(album); cleaned != album && cleaned != "" {
			query = fmt.Sprintf(`release:%s AND artist:%s`, escapeLucene(cleaned), escapeLucene(artist))
			mbid, title = m.searchReleaseID(ctx, query)
		}
	}

	var details ReleaseDetails
	if mbid != "" {
		details = m.GetRelease(ctx, mbid)
		if title != "" {
			details.Title = title
		}
	}

	if ctx.Err() != nil {
		return details
	}
	m.releases.set(key, details)
	return details
}

// GetRelease fetches the release record for a known identifier, including
// label, media, release-group, and tag detail.
func (m *MusicBrainz) GetRelease(ctx context.Context, mbid string) ReleaseDetails {
	params := url.Values{"inc": {"labels+media+release-groups+tags"}, "fmt": {"json"}}
	var resp mbReleaseResponse
	err := m.api.getJSON(ctx, m.base+"/release/"+url.PathEscape(mbid)+"?"+params.Encode(), &resp)
	if err != nil {
		m.logger.Debugf("MusicBrainz release lookup failed for %s: %v", mbid, err)
		return ReleaseDetails{MBID: mbid}
	}

	details := ReleaseDetails{
		MBID:           mbid,
		ReleaseGroupID: resp.ReleaseGroup.ID,
		Title:          resp.Title,
		ReleaseDate:    keys.ExtractYear(resp.Date),
		ReleaseType:    resp.ReleaseGroup.PrimaryType,
		Country:        resp.Country,
		Barcode:        resp.Barcode,
		Tags:           tagNames(resp.Tags),
	}
	if len(resp.LabelInfo) > 0 && resp.LabelInfo[0].Label != nil {
		details.Label = resp.LabelInfo[0].Label.Name
	}
	if len(resp.Media) > 0 {
		details.MediaFormat = resp.Media[0].Format
	}
	return details
}

func (m *MusicBrainz) searchArtistID(ctx context.Context, name string, escape bool) string {
	searchName := name
	if escape {
		searchName = escapeLucene(name)
	}
	params := url.Values{
		"query": {fmt.Sprintf(`artist:"%s"`, searchName)},
		"fmt":   {"json"},
		"limit": {"5"},
	}
	var resp mbArtistSearchResponse
	if err := m.api.getJSON(ctx, m.base+"/artist?"+params.Encode(), &resp); err != nil {
		m.logger.Debugf("MusicBrainz artist search failed for %q: %v", name, err)
		return ""
	}

	// Prefer the result whose name matches outright over the top score.
	for _, artist := range resp.Artists {
		if strings.EqualFold(artist.Name, name) {
			return artist.ID
		}
	}
	if len(resp.Artists) > 0 {
		return resp.Artists[0].ID
	}
	return ""
}

func (m *MusicBrainz) searchReleaseID(ctx context.Context, query string) (string, string) {
	params := url.Values{
		"query": {query},
		"fmt":   {"json"},
		"limit": {"1"},
	}
	var resp mbReleaseSearchResponse
	if err := m.api.getJSON(ctx, m.base+"/release?"+params.Encode(), &resp); err != nil {
		m.logger.Debugf("MusicBrainz release search failed: %v", err)
		return "", ""
	}
	if len(resp.Releases) == 0 {
		return "", ""
	}
	return resp.Releases[0].ID, resp.Releases[0].Title
}

const luceneSpecials = `+-&|!(){}[]^"~*?:\/<>`

// escapeLucene backslash-escapes the characters the search syntax
// reserves.
func escapeLucene(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(luceneSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var releaseCleanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[.\s]*\([^)]*(?:deluxe|edition|version|remaster|bonus|expanded)[^)]*\)`),
	regexp.MustCompile(`(?i)\s*\[[^\]]*(?:deluxe|edition|version|remaster|bonus|expanded)[^\]]*\]`),
	regexp.MustCompile(`\s*[.\s]*\([^)]*\)\s*$`),
	regexp.MustCompile(`\s*\[[^\]]*\]\s*$`),
}

// cleanAlbumName drops edition annotations and any trailing parenthetical
// for the fuzzy second search.
func cleanAlbumName(name string) string {
	cleaned := name
	for _, p := range releaseCleanPatterns {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

func tagNames(tags []mbTag) []string {
	var names []string
	for _, t := range tags {
		if t.Name == "" {
			continue
		}
		names = append(names, t.Name)
		if len(names) == maxTags {
			break
		}
	}
	return names
}

type mbTag struct {
	Name string `json:"name"`
}

type mbArea struct {
	Name string `json:"name"`
}

type mbLifeSpan struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

type mbArtistSearchResponse struct {
	Artists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
}

type mbArtistResponse struct {
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Disambiguation string     `json:"disambiguation"`
	Area           *mbArea    `json:"area"`
	LifeSpan       mbLifeSpan `json:"life-span"`
	Tags           []mbTag    `json:"tags"`
}

type mbReleaseSearchResponse struct {
	Releases []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"releases"`
}

type mbReleaseResponse struct {
	Title        string `json:"title"`
	Date         string `json:"date"`
	Country      string `json:"country"`
	Barcode      string `json:"barcode"`
	ReleaseGroup struct {
		ID          string `json:"id"`
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
	LabelInfo []struct {
		Label *struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Media []struct {
		Format string `json:"format"`
	} `json:"media"`
	Tags []mbTag `json:"tags"`
}
