package models

// Catalog is the published document downstream clients consume. Optional
// fields are omitted entirely when absent rather than defaulted.
type Catalog struct {
	GeneratedAt string          `json:"generated_at"`
	TrackCount  int             `json:"track_count"`
	Artists     []CatalogArtist `json:"artists"`
}

// CatalogArtist is one artist entry in the published catalog
type CatalogArtist struct {
	Name           string         `json:"name"`
	Bio            string         `json:"bio,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
	Genre          string         `json:"genre,omitempty"`
	Style          string         `json:"style,omitempty"`
	Mood           string         `json:"mood,omitempty"`
	ArtistType     string         `json:"artist_type,omitempty"`
	Area           string         `json:"area,omitempty"`
	BeginDate      string         `json:"begin_date,omitempty"`
	EndDate        string         `json:"end_date,omitempty"`
	Disambiguation string         `json:"disambiguation,omitempty"`
	Albums         []CatalogAlbum `json:"albums"`
}

// CatalogAlbum is one album entry in the published catalog
type CatalogAlbum struct {
	Name        string         `json:"name"`
	ImageURL    string         `json:"image_url,omitempty"`
	Wiki        string         `json:"wiki,omitempty"`
	ReleaseDate string         `json:"release_date,omitempty"`
	Genre       string         `json:"genre,omitempty"`
	Style       string         `json:"style,omitempty"`
	Mood        string         `json:"mood,omitempty"`
	Theme       string         `json:"theme,omitempty"`
	ReleaseType string         `json:"release_type,omitempty"`
	Country     string         `json:"country,omitempty"`
	Label       string         `json:"label,omitempty"`
	Tracks      []CatalogTrack `json:"tracks"`
}

// CatalogTrack is one track entry in the published catalog
type CatalogTrack struct {
	Title              string  `json:"title"`
	Artist             string  `json:"artist"`
	Album              string  `json:"album"`
	TrackNumber        int     `json:"track_number,omitempty"`
	Duration           float64 `json:"duration,omitempty"`
	Format             string  `json:"format,omitempty"`
	S3Key              string  `json:"s3_key"`
	URL                string  `json:"url"`
	EmbeddedArtworkURL string  `json:"embedded_artwork_url,omitempty"`
	Genre              string  `json:"genre,omitempty"`
	Style              string  `json:"style,omitempty"`
	Mood               string  `json:"mood,omitempty"`
	Theme              string  `json:"theme,omitempty"`
}
