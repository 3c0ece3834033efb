package database

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"shellac/internal/models"
)

// Repository handles database operations for pipeline state and catalog
// entities. All relationships are plain string-key lookups.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetScanRecords returns every scan record keyed by relative path
func (r *Repository) GetScanRecords() (map[string]models.ScanRecord, error) {
	var records []models.ScanRecord
	if err := r.db.Find(&records).Error; err != nil {
		return nil, err
	}

	byPath := make(map[string]models.ScanRecord, len(records))
	for _, rec := range records {
		byPath[rec.RelativePath] = rec
	}
	return byPath, nil
}

// SaveScanRecord inserts or updates the record for a relative path
func (r *Repository) SaveScanRecord(rec *models.ScanRecord) error {
	var existing models.ScanRecord
	err := r.db.Where("relative_path = ?", rec.RelativePath).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.Create(rec).Error
		}
		return err
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	return r.db.Save(rec).Error
}

// DeleteScanRecord removes the record for a path whose source file is gone
func (r *Repository) DeleteScanRecord(relativePath string) error {
	return r.db.Where("relative_path = ?", relativePath).Delete(&models.ScanRecord{}).Error
}

// UpsertArtist creates the artist or fills in newly supplied fields on the
// existing row. Fields already present are only replaced by non-empty values.
func (r *Repository) UpsertArtist(artist *models.Artist) error {
	var existing models.Artist
	err := r.db.First(&existing, "id = ?", artist.ID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.Create(artist).Error
		}
		return err
	}

	merged := mergeArtist(existing, *artist)
	return r.db.Save(&merged).Error
}

// GetArtist loads one artist by ID
func (r *Repository) GetArtist(id string) (*models.Artist, error) {
	var artist models.Artist
	err := r.db.First(&artist, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artist, nil
}

// ListArtists returns all artists ordered by ID
func (r *Repository) ListArtists() ([]models.Artist, error) {
	var artists []models.Artist
	err := r.db.Order("id asc").Find(&artists).Error
	return artists, err
}

// UpsertAlbum creates the album or fills in newly supplied fields on the
// existing row
func (r *Repository) UpsertAlbum(album *models.Album) error {
	var existing models.Album
	err := r.db.First(&existing, "id = ?", album.ID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.Create(album).Error
		}
		return err
	}

	merged := mergeAlbum(existing, *album)
	return r.db.Save(&merged).Error
}

// GetAlbum loads one album by ID
func (r *Repository) GetAlbum(id string) (*models.Album, error) {
	var album models.Album
	err := r.db.First(&album, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &album, nil
}

// ListAlbums returns all albums ordered by ID
func (r *Repository) ListAlbums() ([]models.Album, error) {
	var albums []models.Album
	err := r.db.Order("id asc").Find(&albums).Error
	return albums, err
}

// UpsertTrack creates the track or fills in newly supplied fields on the
// existing row
func (r *Repository) UpsertTrack(track *models.Track) error {
	var existing models.Track
	err := r.db.First(&existing, "s3_key = ?", track.S3Key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.Create(track).Error
		}
		return err
	}

	merged := mergeTrack(existing, *track)
	return r.db.Save(&merged).Error
}

// GetTrack loads one track by its storage key
func (r *Repository) GetTrack(key string) (*models.Track, error) {
	var track models.Track
	err := r.db.First(&track, "s3_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// ListTracks returns all tracks ordered by storage key
func (r *Repository) ListTracks() ([]models.Track, error) {
	var tracks []models.Track
	err := r.db.Order("s3_key asc").Find(&tracks).Error
	return tracks, err
}

// CreateRun persists a new pipeline run
func (r *Repository) CreateRun(run *models.Run) error {
	return r.db.Create(run).Error
}

// FinishRun records the terminal state of a run
func (r *Repository) FinishRun(run *models.Run) error {
	now := time.Now()
	run.FinishedAt = &now
	return r.db.Save(run).Error
}

func mergeArtist(existing, incoming models.Artist) models.Artist {
	existing.Name = pick(incoming.Name, existing.Name)
	existing.Bio = pick(incoming.Bio, existing.Bio)
	existing.ImageURL = pick(incoming.ImageURL, existing.ImageURL)
	existing.Genre = pick(incoming.Genre, existing.Genre)
	existing.Style = pick(incoming.Style, existing.Style)
	existing.Mood = pick(incoming.Mood, existing.Mood)
	existing.ArtistType = pick(incoming.ArtistType, existing.ArtistType)
	existing.Area = pick(incoming.Area, existing.Area)
	existing.BeginDate = pick(incoming.BeginDate, existing.BeginDate)
	existing.EndDate = pick(incoming.EndDate, existing.EndDate)
	existing.Disambiguation = pick(incoming.Disambiguation, existing.Disambiguation)
	existing.MusicBrainzID = pick(incoming.MusicBrainzID, existing.MusicBrainzID)
	return existing
}

func mergeAlbum(existing, incoming models.Album) models.Album {
	existing.Name = pick(incoming.Name, existing.Name)
	existing.ImageURL = pick(incoming.ImageURL, existing.ImageURL)
	existing.EmbeddedArtworkURL = pick(incoming.EmbeddedArtworkURL, existing.EmbeddedArtworkURL)
	existing.Wiki = pick(incoming.Wiki, existing.Wiki)
	existing.ReleaseDate = pick(incoming.ReleaseDate, existing.ReleaseDate)
	existing.Genre = pick(incoming.Genre, existing.Genre)
	existing.Style = pick(incoming.Style, existing.Style)
	existing.Mood = pick(incoming.Mood, existing.Mood)
	existing.Theme = pick(incoming.Theme, existing.Theme)
	existing.ReleaseType = pick(incoming.ReleaseType, existing.ReleaseType)
	existing.Country = pick(incoming.Country, existing.Country)
	existing.Label = pick(incoming.Label, existing.Label)
	existing.Barcode = pick(incoming.Barcode, existing.Barcode)
	existing.MediaFormat = pick(incoming.MediaFormat, existing.MediaFormat)
	existing.MusicBrainzID = pick(incoming.MusicBrainzID, existing.MusicBrainzID)
	return existing
}

func mergeTrack(existing, incoming models.Track) models.Track {
	existing.Title = pick(incoming.Title, existing.Title)
	existing.Artist = pick(incoming.Artist, existing.Artist)
	existing.Album = pick(incoming.Album, existing.Album)
	existing.Year = pick(incoming.Year, existing.Year)
	existing.Format = pick(incoming.Format, existing.Format)
	existing.Genre = pick(incoming.Genre, existing.Genre)
	existing.Style = pick(incoming.Style, existing.Style)
	existing.Mood = pick(incoming.Mood, existing.Mood)
	existing.Theme = pick(incoming.Theme, existing.Theme)
	existing.RunID = pick(incoming.RunID, existing.RunID)
	if incoming.TrackNumber != 0 {
		existing.TrackNumber = incoming.TrackNumber
	}
	if incoming.DiscNumber != 0 {
		existing.DiscNumber = incoming.DiscNumber
	}
	if incoming.Duration != 0 {
		existing.Duration = incoming.Duration
	}
	if incoming.FileSize != 0 {
		existing.FileSize = incoming.FileSize
	}
	if incoming.Bitrate != 0 {
		existing.Bitrate = incoming.Bitrate
	}
	if incoming.SampleRate != 0 {
		existing.SampleRate = incoming.SampleRate
	}
	if incoming.Channels != 0 {
		existing.Channels = incoming.Channels
	}
	return existing
}

// pick returns the incoming value unless it is empty
func pick(incoming, existing string) string {
	if incoming != "" {
		return incoming
	}
	return existing
}
