package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScanRecord represents the scan_records table. One row per file ever seen
// under the scan root; used to classify files as new/changed/unchanged on
// later runs without touching the network.
type ScanRecord struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RelativePath string    `gorm:"size:1024;uniqueIndex;not null" json:"relative_path"`
	ModTime      int64     `gorm:"not null" json:"mod_time"` // unix nanoseconds
	Size         int64     `gorm:"default:0" json:"size"`
	StorageKey   string    `gorm:"size:1024;index" json:"storage_key"`
	Uploaded     bool      `gorm:"default:false" json:"uploaded"`
	RunID        string    `gorm:"size:36;index" json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}

// Artist represents the artists table. Keyed by the sanitized artist name so
// the same identifier doubles as the artist's storage-key segment.
type Artist struct {
	ID             string    `gorm:"primaryKey;size:512" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Bio            string    `json:"bio"`
	ImageURL       string    `gorm:"size:1024" json:"image_url"`
	Genre          string    `gorm:"size:255" json:"genre"`
	Style          string    `gorm:"size:255" json:"style"`
	Mood           string    `gorm:"size:255" json:"mood"`
	ArtistType     string    `gorm:"size:50" json:"artist_type"` // e.g. 'Person', 'Group'
	Area           string    `gorm:"size:255" json:"area"`
	BeginDate      string    `gorm:"size:10" json:"begin_date"`
	EndDate        string    `gorm:"size:10" json:"end_date"`
	Disambiguation string    `gorm:"size:512" json:"disambiguation"`
	MusicBrainzID  string    `gorm:"size:36;index" json:"musicbrainz_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Artist) TableName() string {
	return "artists"
}

// Album represents the albums table. Keyed by artist-id/album-id derived
// from the corrected album name, never the local folder name.
type Album struct {
	ID                 string    `gorm:"primaryKey;size:1024" json:"id"`
	ArtistID           string    `gorm:"size:512;index;not null" json:"artist_id"`
	Name               string    `gorm:"size:255;not null" json:"name"` // corrected display name
	ImageURL           string    `gorm:"size:1024" json:"image_url"`
	EmbeddedArtworkURL string    `gorm:"size:1024" json:"embedded_artwork_url"`
	Wiki               string    `json:"wiki"`
	ReleaseDate        string    `gorm:"size:10" json:"release_date"`
	Genre              string    `gorm:"size:255" json:"genre"`
	Style              string    `gorm:"size:255" json:"style"`
	Mood               string    `gorm:"size:255" json:"mood"`
	Theme              string    `gorm:"size:255" json:"theme"`
	ReleaseType        string    `gorm:"size:50" json:"release_type"` // e.g. 'Album', 'EP', 'Single'
	Country            string    `gorm:"size:10" json:"country"`
	Label              string    `gorm:"size:255" json:"label"`
	Barcode            string    `gorm:"size:50" json:"barcode"`
	MediaFormat        string    `gorm:"size:50" json:"media_format"`
	MusicBrainzID      string    `gorm:"size:36;index" json:"musicbrainz_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Album) TableName() string {
	return "albums"
}

// Track represents the tracks table. The canonical storage key is the
// primary key; artist and album references are plain string lookups, not
// gorm associations.
type Track struct {
	S3Key       string    `gorm:"primaryKey;size:1024;column:s3_key" json:"s3_key"`
	ArtistID    string    `gorm:"size:512;index;not null" json:"artist_id"`
	AlbumID     string    `gorm:"size:1024;index;not null" json:"album_id"`
	Title       string    `gorm:"size:512;not null" json:"title"`
	Artist      string    `gorm:"size:255" json:"artist"` // display credit, may differ from album artist
	Album       string    `gorm:"size:255" json:"album"`  // corrected display name
	TrackNumber int       `gorm:"default:0" json:"track_number"`
	DiscNumber  int       `gorm:"default:0" json:"disc_number"`
	Duration    float64   `gorm:"default:0" json:"duration"` // seconds
	Year        string    `gorm:"size:10" json:"year"`
	Format      string    `gorm:"size:10" json:"format"`
	Genre       string    `gorm:"size:255" json:"genre"`
	Style       string    `gorm:"size:255" json:"style"`
	Mood        string    `gorm:"size:255" json:"mood"`
	Theme       string    `gorm:"size:255" json:"theme"`
	FileSize    int64     `gorm:"default:0" json:"file_size"`
	Bitrate     int       `gorm:"default:0" json:"bitrate"`     // kbps
	SampleRate  int       `gorm:"default:0" json:"sample_rate"` // Hz
	Channels    int       `gorm:"default:0" json:"channels"`
	RunID       string    `gorm:"size:36;index" json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Track) TableName() string {
	return "tracks"
}

// Run represents the runs table, one row per pipeline execution
type Run struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Phase      string     `gorm:"size:20;not null" json:"phase"`
	TotalFiles int        `gorm:"default:0" json:"total_files"`
	Uploaded   int        `gorm:"default:0" json:"uploaded"`
	Skipped    int        `gorm:"default:0" json:"skipped"`
	Failed     int        `gorm:"default:0" json:"failed"`
	DryRun     bool       `gorm:"default:false" json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (Run) TableName() string {
	return "runs"
}

// BeforeCreate sets the run ID before creating a run
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
