package catalog

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellac/internal/keys"
	"shellac/internal/logging"
	"shellac/internal/metadata"
	"shellac/internal/models"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.ErrorLevel, io.Discard)
}

type testURLs struct{}

func (testURLs) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type stubResolver struct {
	albums map[string]metadata.AlbumInfo
	tracks map[string]metadata.TrackInfo
	titles map[string]string

	albumLookups []string
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		albums: map[string]metadata.AlbumInfo{},
		tracks: map[string]metadata.TrackInfo{},
		titles: map[string]string{},
	}
}

func lookupKey(artist, name string) string {
	return artist + "|" + name
}

func (s *stubResolver) ResolveAlbum(_ context.Context, artist, album string) metadata.AlbumInfo {
	s.albumLookups = append(s.albumLookups, album)
	return s.albums[lookupKey(artist, album)]
}

func (s *stubResolver) ResolveTrack(_ context.Context, artist, title string) metadata.TrackInfo {
	return s.tracks[lookupKey(artist, title)]
}

func (s *stubResolver) ReleaseTitle(_ context.Context, artist, album string) string {
	return s.titles[lookupKey(artist, album)]
}

func offlineBuilder() *Builder {
	return NewBuilder(testURLs{}, nil, testLogger())
}

func testArtist(name string) models.Artist {
	return models.Artist{ID: keys.ArtistID(name), Name: name}
}

func testAlbum(artist, name string) models.Album {
	return models.Album{ID: keys.AlbumID(artist, name), ArtistID: keys.ArtistID(artist), Name: name}
}

func testTrack(artist, album, title string, disc, number int) models.Track {
	return models.Track{
		S3Key:       keys.CanonicalKey(artist, album, title, ".mp3"),
		ArtistID:    keys.ArtistID(artist),
		AlbumID:     keys.AlbumID(artist, album),
		Title:       title,
		Artist:      artist,
		Album:       album,
		DiscNumber:  disc,
		TrackNumber: number,
		Format:      "mp3",
	}
}

func TestBuildSortsArtistsAlbumsAndTracks(t *testing.T) {
	artists := []models.Artist{testArtist("Zebra"), testArtist("Alpha")}
	albums := []models.Album{
		testAlbum("Zebra", "Stripes"),
		testAlbum("Alpha", "Second"),
		testAlbum("Alpha", "First"),
	}
	tracks := []models.Track{
		testTrack("Alpha", "First", "Closing", 2, 1),
		testTrack("Alpha", "First", "Middle", 1, 2),
		testTrack("Alpha", "First", "Opening", 1, 1),
		testTrack("Alpha", "First", "Zeta Extra", 1, 0),
		testTrack("Alpha", "First", "Alpha Extra", 1, 0),
		testTrack("Alpha", "Second", "Only", 0, 1),
		testTrack("Zebra", "Stripes", "Only", 0, 1),
	}

	cat := offlineBuilder().Build(context.Background(), artists, albums, tracks)

	require.Len(t, cat.Artists, 2)
	assert.Equal(t, "Alpha", cat.Artists[0].Name)
	assert.Equal(t, "Zebra", cat.Artists[1].Name)
	assert.Equal(t, 7, cat.TrackCount)

	alpha := cat.Artists[0]
	require.Len(t, alpha.Albums, 2)
	assert.Equal(t, "First", alpha.Albums[0].Name)
	assert.Equal(t, "Second", alpha.Albums[1].Name)

	titles := []string{}
	for _, tr := range alpha.Albums[0].Tracks {
		titles = append(titles, tr.Title)
	}
	assert.Equal(t, []string{"Opening", "Middle", "Alpha Extra", "Zeta Extra", "Closing"}, titles,
		"discs ascend, untagged numbers sort last within a disc, title breaks ties")
}

func TestBuildDeduplicatesTracksByKey(t *testing.T) {
	artists := []models.Artist{testArtist("A")}
	albums := []models.Album{testAlbum("A", "B")}
	first := testTrack("A", "B", "Song", 1, 1)
	second := testTrack("A", "B", "Song", 1, 1)
	second.Duration = 200

	cat := offlineBuilder().Build(context.Background(), artists, albums, []models.Track{first, second})

	require.Len(t, cat.Artists, 1)
	require.Len(t, cat.Artists[0].Albums, 1)
	tracks := cat.Artists[0].Albums[0].Tracks
	require.Len(t, tracks, 1)
	assert.Zero(t, tracks[0].Duration, "first occurrence wins")
	assert.Equal(t, 1, cat.TrackCount)
}

func TestBuildInheritsAlbumMetadataIntoTracks(t *testing.T) {
	artists := []models.Artist{testArtist("A")}
	album := testAlbum("A", "B")
	album.Genre = "Trip-Hop"
	album.Style = "Downtempo"
	album.Mood = "Dark"
	album.Theme = "Night"

	tagged := testTrack("A", "B", "Tagged", 1, 1)
	tagged.Genre = "Electronica"
	bare := testTrack("A", "B", "Bare", 1, 2)

	cat := offlineBuilder().Build(context.Background(), artists, []models.Album{album}, []models.Track{tagged, bare})

	tracks := cat.Artists[0].Albums[0].Tracks
	require.Len(t, tracks, 2)
	assert.Equal(t, "Electronica", tracks[0].Genre, "own genre wins")
	assert.Equal(t, "Downtempo", tracks[0].Style)
	assert.Equal(t, "Trip-Hop", tracks[1].Genre)
	assert.Equal(t, "Dark", tracks[1].Mood)
	assert.Equal(t, "Night", tracks[1].Theme)
}

func TestBuildAlbumGenreFallsBackToArtist(t *testing.T) {
	artist := testArtist("A")
	artist.Genre = "Folk"
	album := testAlbum("A", "B")
	track := testTrack("A", "B", "Song", 1, 1)

	cat := offlineBuilder().Build(context.Background(), []models.Artist{artist}, []models.Album{album}, []models.Track{track})

	built := cat.Artists[0].Albums[0]
	assert.Equal(t, "Folk", built.Genre)
	assert.Equal(t, "Folk", built.Tracks[0].Genre)
}

func TestBuildFallsBackArtistImageToFirstAlbum(t *testing.T) {
	artist := testArtist("A")
	withImage := testAlbum("A", "With")
	withImage.ImageURL = "https://cdn.test/images/A/With/cover.jpg"
	without := testAlbum("A", "Bare")

	tracks := []models.Track{
		testTrack("A", "With", "Song", 1, 1),
		testTrack("A", "Bare", "Song", 1, 1),
	}

	cat := offlineBuilder().Build(context.Background(), []models.Artist{artist}, []models.Album{without, withImage}, tracks)

	require.Len(t, cat.Artists, 1)
	assert.Equal(t, "https://cdn.test/images/A/With/cover.jpg", cat.Artists[0].ImageURL,
		"artist borrows the first album image available")
}

func TestBuildUsesEmbeddedArtworkWhenAlbumImageMissing(t *testing.T) {
	artist := testArtist("A")
	album := testAlbum("A", "B")
	album.EmbeddedArtworkURL = "https://cdn.test/A/B/embedded.jpg"
	track := testTrack("A", "B", "Song", 1, 1)

	cat := offlineBuilder().Build(context.Background(), []models.Artist{artist}, []models.Album{album}, []models.Track{track})

	built := cat.Artists[0].Albums[0]
	assert.Equal(t, "https://cdn.test/A/B/embedded.jpg", built.ImageURL)
	assert.Equal(t, "https://cdn.test/A/B/embedded.jpg", built.Tracks[0].EmbeddedArtworkURL)
}

func TestBuildDropsEmptyAlbumsAndArtists(t *testing.T) {
	artists := []models.Artist{testArtist("Ghost"), testArtist("Real")}
	albums := []models.Album{
		testAlbum("Ghost", "Nothing"),
		testAlbum("Real", "Something"),
	}
	tracks := []models.Track{testTrack("Real", "Something", "Song", 1, 1)}

	cat := offlineBuilder().Build(context.Background(), artists, albums, tracks)

	require.Len(t, cat.Artists, 1)
	assert.Equal(t, "Real", cat.Artists[0].Name)
	require.Len(t, cat.Artists[0].Albums, 1)
}

func TestRefreshRewritesKeysWhenDisplayNameChanges(t *testing.T) {
	resolver := newStubResolver()
	resolver.albums[lookupKey("Hozier", "Hozier (Deluxe Version)")] = metadata.AlbumInfo{Name: "Hozier"}

	artist := testArtist("Hozier")
	album := testAlbum("Hozier", "Hozier (Deluxe Version)")
	track := testTrack("Hozier", "Hozier (Deluxe Version)", "Take Me to Church", 1, 1)

	b := NewBuilder(testURLs{}, resolver, testLogger())
	cat := b.Build(context.Background(), []models.Artist{artist}, []models.Album{album}, []models.Track{track})

	built := cat.Artists[0].Albums[0]
	assert.Equal(t, "Hozier", built.Name)

	want := keys.RewriteKey(track.S3Key, "Hozier", "Hozier")
	require.Len(t, built.Tracks, 1)
	assert.Equal(t, want, built.Tracks[0].S3Key)
	assert.Equal(t, "https://cdn.test/"+want, built.Tracks[0].URL)
	assert.Equal(t, "Hozier", built.Tracks[0].Album)
}

func TestRefreshFallsBackToTrackSearch(t *testing.T) {
	resolver := newStubResolver()
	resolver.tracks[lookupKey("A", "Opening")] = metadata.TrackInfo{Album: "Proper Name"}
	resolver.albums[lookupKey("A", "Proper Name")] = metadata.AlbumInfo{
		Name: "Proper Name", Wiki: "Found via track filing.",
	}

	artist := testArtist("A")
	album := testAlbum("A", "rip folder 01")
	tracks := []models.Track{
		testTrack("A", "rip folder 01", "Opening", 1, 1),
		testTrack("A", "rip folder 01", "Closing", 1, 2),
	}

	b := NewBuilder(testURLs{}, resolver, testLogger())
	cat := b.Build(context.Background(), []models.Artist{artist}, []models.Album{album}, tracks)

	built := cat.Artists[0].Albums[0]
	assert.Equal(t, "Proper Name", built.Name)
	assert.Equal(t, "Found via track filing.", built.Wiki, "refreshed info adopted when it has substance")
	assert.Equal(t, []string{"rip folder 01", "Proper Name"}, resolver.albumLookups,
		"the corrected filing is re-resolved")
}

func TestRefreshFallsBackToReleaseTitle(t *testing.T) {
	resolver := newStubResolver()
	resolver.titles[lookupKey("A", "rip folder 01")] = "Canonical Title"

	artist := testArtist("A")
	album := testAlbum("A", "rip folder 01")
	track := testTrack("A", "rip folder 01", "Opening", 1, 1)

	b := NewBuilder(testURLs{}, resolver, testLogger())
	cat := b.Build(context.Background(), []models.Artist{artist}, []models.Album{album}, []models.Track{track})

	assert.Equal(t, "Canonical Title", cat.Artists[0].Albums[0].Name)
}

func TestRefreshFillsOnlyGapsInStoredRow(t *testing.T) {
	resolver := newStubResolver()
	resolver.albums[lookupKey("A", "B")] = metadata.AlbumInfo{
		Name: "B", Wiki: "Fresh wiki.", ImageURL: "https://cdn.test/fresh.jpg", Genre: "Fresh Genre",
	}

	artist := testArtist("A")
	album := testAlbum("A", "B")
	album.Wiki = "Stored wiki."
	track := testTrack("A", "B", "Song", 1, 1)

	b := NewBuilder(testURLs{}, resolver, testLogger())
	cat := b.Build(context.Background(), []models.Artist{artist}, []models.Album{album}, []models.Track{track})

	built := cat.Artists[0].Albums[0]
	assert.Equal(t, "Stored wiki.", built.Wiki, "stored fields win")
	assert.Equal(t, "https://cdn.test/fresh.jpg", built.ImageURL, "gaps are filled")
	assert.Equal(t, "Fresh Genre", built.Genre)
}

func TestRefreshDedupesMergedAlbums(t *testing.T) {
	resolver := newStubResolver()
	resolver.albums[lookupKey("A", "Album")] = metadata.AlbumInfo{Name: "Album"}
	resolver.albums[lookupKey("A", "Album copy")] = metadata.AlbumInfo{Name: "Album"}

	artist := testArtist("A")
	albums := []models.Album{
		testAlbum("A", "Album"),
		testAlbum("A", "Album copy"),
	}
	tracks := []models.Track{
		testTrack("A", "Album", "Song", 1, 1),
		testTrack("A", "Album copy", "Song", 1, 1),
	}

	b := NewBuilder(testURLs{}, resolver, testLogger())
	cat := b.Build(context.Background(), []models.Artist{artist}, albums, tracks)

	require.Len(t, cat.Artists, 1)
	total := 0
	for _, built := range cat.Artists[0].Albums {
		total += len(built.Tracks)
	}
	assert.Equal(t, 1, total, "rewritten duplicates collapse across albums")
	assert.Equal(t, 1, cat.TrackCount)
}

type capturingStore struct {
	data []byte
}

func (c *capturingStore) PutCatalog(_ context.Context, data []byte) error {
	c.data = data
	return nil
}

func TestPublishUploadsIndentedJSON(t *testing.T) {
	artist := testArtist("A")
	artist.Bio = ""
	album := testAlbum("A", "B")
	track := testTrack("A", "B", "Song", 1, 1)

	cat := offlineBuilder().Build(context.Background(), []models.Artist{artist}, []models.Album{album}, []models.Track{track})
	store := &capturingStore{}
	require.NoError(t, Publish(context.Background(), store, cat))

	require.NotEmpty(t, store.data)
	assert.True(t, strings.HasPrefix(string(store.data), "{\n  "), "document is indented")

	var decoded models.Catalog
	require.NoError(t, json.Unmarshal(store.data, &decoded))
	require.Len(t, decoded.Artists, 1)
	assert.Equal(t, cat.TrackCount, decoded.TrackCount)
	assert.NotContains(t, string(store.data), `"bio"`, "absent optional fields are omitted")

	tr := decoded.Artists[0].Albums[0].Tracks[0]
	assert.Equal(t, track.S3Key, tr.S3Key)
	assert.Equal(t, "https://cdn.test/"+track.S3Key, tr.URL)
}
