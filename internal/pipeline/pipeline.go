// Package pipeline orchestrates one publish pass over a music library:
// scan, extract, resolve, convert, upload, persist. Files are processed by
// a fixed worker pool; one bad file never aborts the run.
package pipeline

import (
	"context"
	"fmt"

	"shellac/internal/logging"
	"shellac/internal/metadata"
	"shellac/internal/models"
	"shellac/internal/scanner"
	"shellac/internal/tags"
)

// Phase names the stage a run is in. During the worker pool the phase is a
// coarse last-writer indicator of what the run is currently doing.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseScanning   Phase = "scanning"
	PhaseResolving  Phase = "resolving"
	PhaseConverting Phase = "converting"
	PhaseUploading  Phase = "uploading"
	PhaseCompleted  Phase = "completed"
	PhaseCancelled  Phase = "cancelled"
	PhaseFailed     Phase = "failed"
)

const defaultWorkers = 4

// Names substituted when a file carries no usable artist or album tag.
const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
)

// FileError records a single file's failure without aborting the run.
type FileError struct {
	Path  string
	Stage string
	Err   error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Path, e.Stage, e.Err)
}

// Result is the terminal outcome of one run. In a dry run Uploaded counts
// the files that would have been uploaded.
type Result struct {
	Total    int
	Uploaded int
	Skipped  int
	Failed   int
	Errors   []string
	Phase    Phase
	RunID    string
}

// ProgressFunc receives progress updates from the run loop. completed
// counts finished files regardless of outcome.
type ProgressFunc func(phase Phase, completed, total int, currentFile string)

// Options control a single run.
type Options struct {
	Workers       int  // worker pool size, default 4
	DryRun        bool // report without touching the store or the records
	ForceReupload bool // upload even when the object already exists
	Limit         int  // cap on files processed this run, 0 = all
	Progress      ProgressFunc
}

// Extractor reads local metadata out of an audio file.
type Extractor interface {
	Extract(path, relPath string) *tags.Metadata
}

// Resolver supplies externally resolved names and metadata.
type Resolver interface {
	CorrectedAlbumName(ctx context.Context, artist, album string) string
	ResolveArtist(ctx context.Context, name string) metadata.ArtistInfo
	ResolveAlbum(ctx context.Context, artist, album string) metadata.AlbumInfo
}

// Converter re-encodes lossless audio before upload.
type Converter interface {
	Convert(ctx context.Context, src, relPath string) (string, bool, error)
}

// Store is the object-store surface the pipeline depends on.
type Store interface {
	ListAll(ctx context.Context) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, body []byte, contentType string, public bool) error
	UploadImage(ctx context.Context, key string, data []byte, mime string) (bool, error)
	PublicURL(key string) string
}

// Library persists scan records, catalog entities, and run rows.
type Library interface {
	GetScanRecords() (map[string]models.ScanRecord, error)
	SaveScanRecord(rec *models.ScanRecord) error
	DeleteScanRecord(relativePath string) error
	UpsertArtist(artist *models.Artist) error
	UpsertAlbum(album *models.Album) error
	UpsertTrack(track *models.Track) error
	CreateRun(run *models.Run) error
	FinishRun(run *models.Run) error
}

// Components are the collaborators a run is built from. Scanner and Logger
// are concrete; the rest are interfaces so runs can be assembled against
// the real services or test doubles.
type Components struct {
	Scanner   *scanner.Scanner
	Extractor Extractor
	Resolver  Resolver
	Converter Converter
	Store     Store
	Library   Library
	Logger    *logging.Logger
}
