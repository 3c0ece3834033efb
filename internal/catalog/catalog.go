// Package catalog assembles the persisted Artist/Album/Track entities into
// the hierarchical document downstream clients consume.
package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"shellac/internal/keys"
	"shellac/internal/logging"
	"shellac/internal/metadata"
	"shellac/internal/models"
)

// trackNumberLast pushes untagged tracks behind numbered ones when sorting.
const trackNumberLast = 999

// URLProvider maps storage keys to public URLs.
type URLProvider interface {
	PublicURL(key string) string
}

// Resolver supplies the display-name refresh lookups. Only the catalog
// rebuild path wires one; a nil resolver makes Build purely offline.
type Resolver interface {
	ResolveAlbum(ctx context.Context, artist, album string) metadata.AlbumInfo
	ResolveTrack(ctx context.Context, artist, title string) metadata.TrackInfo
	ReleaseTitle(ctx context.Context, artist, album string) string
}

// Store receives the published document.
type Store interface {
	PutCatalog(ctx context.Context, data []byte) error
}

// Builder turns entity sets into a catalog. It tolerates partially
// populated rows: any optional field may be absent.
type Builder struct {
	urls     URLProvider
	resolver Resolver
	logger   *logging.Logger
}

// NewBuilder creates a builder. resolver may be nil, in which case stored
// names are published as-is without a refresh pass.
func NewBuilder(urls URLProvider, resolver Resolver, logger *logging.Logger) *Builder {
	return &Builder{urls: urls, resolver: resolver, logger: logger}
}

// Build groups tracks under their albums and artists and emits the catalog.
// Artists and albums sort by ID, tracks by disc then track number, with
// untagged tracks last, then title. Duplicate storage keys keep their first
// occurrence. Albums that end up empty are dropped, as are artists without
// albums.
func (b *Builder) Build(ctx context.Context, artists []models.Artist, albums []models.Album, tracks []models.Track) *models.Catalog {
	albumsByArtist := make(map[string][]models.Album)
	for _, album := range albums {
		albumsByArtist[album.ArtistID] = append(albumsByArtist[album.ArtistID], album)
	}
	tracksByAlbum := make(map[string][]models.Track)
	for _, track := range tracks {
		tracksByAlbum[track.AlbumID] = append(tracksByAlbum[track.AlbumID], track)
	}

	sortedArtists := make([]models.Artist, len(artists))
	copy(sortedArtists, artists)
	sort.Slice(sortedArtists, func(i, j int) bool { return sortedArtists[i].ID < sortedArtists[j].ID })

	catalog := &models.Catalog{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Artists:     []models.CatalogArtist{},
	}
	seenKeys := make(map[string]bool)

	for _, artist := range sortedArtists {
		entry := b.buildArtist(ctx, artist, albumsByArtist[artist.ID], tracksByAlbum, seenKeys)
		if len(entry.Albums) == 0 {
			continue
		}
		for _, album := range entry.Albums {
			catalog.TrackCount += len(album.Tracks)
		}
		catalog.Artists = append(catalog.Artists, entry)
	}
	return catalog
}

func (b *Builder) buildArtist(ctx context.Context, artist models.Artist, albums []models.Album, tracksByAlbum map[string][]models.Track, seenKeys map[string]bool) models.CatalogArtist {
	sort.Slice(albums, func(i, j int) bool { return albums[i].ID < albums[j].ID })

	entry := models.CatalogArtist{
		Name:           artist.Name,
		Bio:            artist.Bio,
		ImageURL:       artist.ImageURL,
		Genre:          artist.Genre,
		Style:          artist.Style,
		Mood:           artist.Mood,
		ArtistType:     artist.ArtistType,
		Area:           artist.Area,
		BeginDate:      artist.BeginDate,
		EndDate:        artist.EndDate,
		Disambiguation: artist.Disambiguation,
		Albums:         []models.CatalogAlbum{},
	}

	for _, album := range albums {
		built := b.buildAlbum(ctx, artist, album, tracksByAlbum[album.ID], seenKeys)
		if len(built.Tracks) == 0 {
			continue
		}
		entry.Albums = append(entry.Albums, built)
	}

	if entry.ImageURL == "" {
		for _, album := range entry.Albums {
			if album.ImageURL != "" {
				entry.ImageURL = album.ImageURL
				break
			}
		}
	}
	return entry
}

func (b *Builder) buildAlbum(ctx context.Context, artist models.Artist, album models.Album, tracks []models.Track, seenKeys map[string]bool) models.CatalogAlbum {
	sorted := make([]models.Track, len(tracks))
	copy(sorted, tracks)
	sort.Slice(sorted, func(i, j int) bool {
		a, c := sorted[i], sorted[j]
		if a.DiscNumber != c.DiscNumber {
			return a.DiscNumber < c.DiscNumber
		}
		an, cn := a.TrackNumber, c.TrackNumber
		if an == 0 {
			an = trackNumberLast
		}
		if cn == 0 {
			cn = trackNumberLast
		}
		if an != cn {
			return an < cn
		}
		return a.Title < c.Title
	})

	display := album.Name
	if b.resolver != nil {
		display = b.refreshAlbum(ctx, artist.Name, &album, sorted)
	}

	albumGenre := album.Genre
	if albumGenre == "" {
		albumGenre = artist.Genre
	}
	albumImage := album.ImageURL
	if albumImage == "" {
		albumImage = album.EmbeddedArtworkURL
	}

	built := models.CatalogAlbum{
		Name:        display,
		ImageURL:    albumImage,
		Wiki:        album.Wiki,
		ReleaseDate: album.ReleaseDate,
		Genre:       albumGenre,
		Style:       album.Style,
		Mood:        album.Mood,
		Theme:       album.Theme,
		ReleaseType: album.ReleaseType,
		Country:     album.Country,
		Label:       album.Label,
		Tracks:      []models.CatalogTrack{},
	}

	for _, track := range sorted {
		key := track.S3Key
		if display != album.Name {
			key = keys.RewriteKey(key, artist.Name, display)
		}
		if seenKeys[key] {
			continue
		}
		seenKeys[key] = true

		embedded := album.EmbeddedArtworkURL
		if embedded == "" {
			embedded = albumImage
		}

		built.Tracks = append(built.Tracks, models.CatalogTrack{
			Title:              track.Title,
			Artist:             track.Artist,
			Album:              display,
			TrackNumber:        track.TrackNumber,
			Duration:           track.Duration,
			Format:             track.Format,
			S3Key:              key,
			URL:                b.urls.PublicURL(key),
			EmbeddedArtworkURL: embedded,
			Genre:              firstNonEmpty(track.Genre, albumGenre),
			Style:              firstNonEmpty(track.Style, album.Style),
			Mood:               firstNonEmpty(track.Mood, album.Mood),
			Theme:              firstNonEmpty(track.Theme, album.Theme),
		})
	}
	return built
}

// refreshAlbum re-runs the display-name cascade against the metadata
// services: corrected album search, then a track-title search adopting its
// album filing, then the identifier service's release title, then the
// stored name. Freshly resolved fields only fill gaps in the stored row.
func (b *Builder) refreshAlbum(ctx context.Context, artistName string, album *models.Album, tracks []models.Track) string {
	info := b.resolver.ResolveAlbum(ctx, artistName, album.Name)
	display := album.Name

	switch {
	case info.Name != "":
		display = info.Name
	default:
		if len(tracks) > 0 && tracks[0].Title != "" {
			filing := b.resolver.ResolveTrack(ctx, artistName, tracks[0].Title)
			if filing.Album != "" {
				display = filing.Album
				b.logger.Debugf("Album %q filed as %q via track search", album.Name, filing.Album)
				refreshed := b.resolver.ResolveAlbum(ctx, artistName, filing.Album)
				if refreshed.Wiki != "" || refreshed.ImageURL != "" {
					info = refreshed
				}
			}
		}
		if display == album.Name {
			if title := b.resolver.ReleaseTitle(ctx, artistName, album.Name); title != "" {
				display = title
			}
		}
	}

	album.ImageURL = firstNonEmpty(album.ImageURL, info.ImageURL)
	album.Wiki = firstNonEmpty(album.Wiki, info.Wiki)
	album.ReleaseDate = firstNonEmpty(album.ReleaseDate, info.ReleaseDate)
	album.Genre = firstNonEmpty(album.Genre, info.Genre)
	album.Style = firstNonEmpty(album.Style, info.Style)
	album.Mood = firstNonEmpty(album.Mood, info.Mood)
	album.Theme = firstNonEmpty(album.Theme, info.Theme)
	return display
}

// Publish encodes the catalog and replaces the stored document.
func Publish(ctx context.Context, store Store, catalog *models.Catalog) error {
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding catalog")
	}
	if err := store.PutCatalog(ctx, data); err != nil {
		return errors.Wrap(err, "publishing catalog")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
