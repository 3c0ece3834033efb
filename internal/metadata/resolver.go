package metadata

import (
	"context"

	"shellac/internal/logging"
)

// Resolver composes the three services behind one resolution surface. The
// primary source wins every field it fills; the identifier service layers
// structured release detail on top; the fallback is consulted only when
// the primary came back with neither artwork nor a description.
type Resolver struct {
	audioDB *AudioDB
	mb      *MusicBrainz
	lastFM  *LastFM
	logger  *logging.Logger
}

// NewResolver wires the services together. mb and lastFM may be nil when
// disabled; audioDB is required.
func NewResolver(audioDB *AudioDB, mb *MusicBrainz, lastFM *LastFM, logger *logging.Logger) *Resolver {
	return &Resolver{audioDB: audioDB, mb: mb, lastFM: lastFM, logger: logger}
}

// CorrectedAlbumName returns the album name storage keys must use: the
// primary service's corrected spelling when it found the album, the local
// tag otherwise.
func (r *Resolver) CorrectedAlbumName(ctx context.Context, artist, album string) string {
	if info := r.audioDB.SearchAlbum(ctx, artist, album); info.Name != "" {
		return info.Name
	}
	return album
}

// ResolveAlbum merges the services' album knowledge for catalog entries.
func (r *Resolver) ResolveAlbum(ctx context.Context, artist, album string) AlbumInfo {
	info := r.audioDB.SearchAlbum(ctx, artist, album)

	if r.mb != nil {
		release := r.mb.SearchRelease(ctx, artist, album)
		if release.MBID != "" {
			info.MusicBrainzID = release.MBID
			info.ReleaseType = release.ReleaseType
			info.Country = release.Country
			info.Label = release.Label
			info.Barcode = release.Barcode
			info.MediaFormat = release.MediaFormat
			if release.ReleaseDate != "" {
				info.ReleaseDate = release.ReleaseDate
			}
		}
	}

	if info.ImageURL == "" && info.Wiki == "" && r.lastFM.Enabled() {
		fallback := r.lastFM.GetAlbumInfo(ctx, artist, album)
		info = mergeAlbumInfo(info, fallback)
	}

	return info
}

// ResolveArtist merges the primary service's editorial fields with the
// identifier service's structured ones.
func (r *Resolver) ResolveArtist(ctx context.Context, name string) ArtistInfo {
	info := r.audioDB.SearchArtist(ctx, name)

	if r.mb != nil {
		details := r.mb.SearchArtist(ctx, name)
		info.MusicBrainzID = details.MBID
		info.Type = details.Type
		info.Area = details.Area
		info.BeginDate = details.BeginDate
		info.EndDate = details.EndDate
		info.Disambiguation = details.Disambiguation
		if info.Name == "" {
			info.Name = details.Name
		}
	}
	return info
}

// ResolveTrack exposes the primary service's track lookup, used by the
// catalog's album display-name cascade.
func (r *Resolver) ResolveTrack(ctx context.Context, artist, title string) TrackInfo {
	return r.audioDB.SearchTrack(ctx, artist, title)
}

// ReleaseTitle returns the identifier service's title for the album, used
// late in the display-name cascade.
func (r *Resolver) ReleaseTitle(ctx context.Context, artist, album string) string {
	if r.mb == nil {
		return ""
	}
	return r.mb.SearchRelease(ctx, artist, album).Title
}

// mergeAlbumInfo fills the primary result's gaps from the fallback without
// touching any field the primary populated.
func mergeAlbumInfo(primary, fallback AlbumInfo) AlbumInfo {
	merged := primary
	if merged.Name == "" {
		merged.Name = fallback.Name
	}
	if merged.ImageURL == "" {
		merged.ImageURL = fallback.ImageURL
	}
	if merged.Wiki == "" {
		merged.Wiki = fallback.Wiki
	}
	if merged.ReleaseDate == "" {
		merged.ReleaseDate = fallback.ReleaseDate
	}
	if merged.Genre == "" {
		merged.Genre = fallback.Genre
	}
	if merged.Style == "" {
		merged.Style = fallback.Style
	}
	if merged.Mood == "" {
		merged.Mood = fallback.Mood
	}
	if merged.Theme == "" {
		merged.Theme = fallback.Theme
	}
	return merged
}
