package pipeline

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"shellac/internal/keys"
	"shellac/internal/logging"
	"shellac/internal/media"
	"shellac/internal/metadata"
	"shellac/internal/models"
	"shellac/internal/scanner"
	"shellac/internal/tags"
)

// Orchestrator drives one publish pass. It is single use: create a fresh
// one for every run so session state (claimed keys, artwork uploads) starts
// empty.
type Orchestrator struct {
	root      string
	scanner   *scanner.Scanner
	extractor Extractor
	resolver  Resolver
	converter Converter
	store     Store
	repo      Library
	logger    *logging.Logger
	opts      Options

	runID string

	mu      sync.Mutex
	phase   Phase
	claimed map[string]bool
	artwork map[string]string
}

// New builds an orchestrator rooted at the library directory.
func New(root string, c Components, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Orchestrator{
		root:      root,
		scanner:   c.Scanner,
		extractor: c.Extractor,
		resolver:  c.Resolver,
		converter: c.Converter,
		store:     c.Store,
		repo:      c.Library,
		logger:    c.Logger,
		opts:      opts,
		phase:     PhaseIdle,
		claimed:   make(map[string]bool),
		artwork:   make(map[string]string),
	}
}

// Phase returns the current run phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Run executes the pass. Per-file failures are collected into the result;
// Run itself only errors when scanning or record access fails outright.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	run := &models.Run{Phase: string(PhaseScanning), DryRun: o.opts.DryRun, StartedAt: time.Now()}
	if err := o.repo.CreateRun(run); err != nil {
		return nil, errors.Wrap(err, "recording run")
	}
	o.runID = run.ID

	result, err := o.execute(ctx)
	if err != nil {
		o.setPhase(PhaseFailed)
		run.Phase = string(PhaseFailed)
		if finishErr := o.repo.FinishRun(run); finishErr != nil {
			o.logger.Warnf("Could not finalize run %s: %v", run.ID, finishErr)
		}
		return nil, err
	}

	result.RunID = run.ID
	run.Phase = string(result.Phase)
	run.TotalFiles = result.Total
	run.Uploaded = result.Uploaded
	run.Skipped = result.Skipped
	run.Failed = result.Failed
	if err := o.repo.FinishRun(run); err != nil {
		o.logger.Warnf("Could not finalize run %s: %v", run.ID, err)
	}
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context) (*Result, error) {
	o.setPhase(PhaseScanning)
	o.report(PhaseScanning, 0, 0, "")

	prior, err := o.repo.GetScanRecords()
	if err != nil {
		return nil, errors.Wrap(err, "loading scan records")
	}

	scanResult, err := o.scanner.Scan(o.root, prior)
	if err != nil {
		return nil, errors.Wrap(err, "scanning library")
	}
	o.logger.Infof("Scan found %d new, %d changed, %d unchanged, %d deleted",
		len(scanResult.New), len(scanResult.Changed), len(scanResult.Unchanged), len(scanResult.Deleted))

	if !o.opts.DryRun {
		for _, rel := range scanResult.Deleted {
			if err := o.repo.DeleteScanRecord(rel); err != nil {
				o.logger.Warnf("Could not remove record for deleted file %s: %v", rel, err)
			}
		}
	}

	work := scanResult.Work()
	if o.opts.Limit > 0 && len(work) > o.opts.Limit {
		o.logger.Infof("Limiting run to %d of %d pending files", o.opts.Limit, len(work))
		work = work[:o.opts.Limit]
	}

	total := len(work)
	if total == 0 {
		o.setPhase(PhaseCompleted)
		o.report(PhaseCompleted, 0, 0, "")
		return &Result{Phase: PhaseCompleted}, nil
	}

	o.setPhase(PhaseResolving)
	o.report(PhaseResolving, 0, total, "")
	if !o.opts.DryRun {
		if n, err := o.store.ListAll(ctx); err != nil {
			if ctx.Err() != nil {
				o.setPhase(PhaseCancelled)
				return &Result{Total: total, Phase: PhaseCancelled}, nil
			}
			o.logger.Warnf("Could not prime existence cache: %v", err)
		} else {
			o.logger.Debugf("Existence cache primed with %d stored objects", n)
		}
	}

	workers := o.opts.Workers
	if workers > total {
		workers = total
	}

	workChan := make(chan scanner.LocalAudioFile)
	resultsChan := make(chan fileResult, total)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range workChan {
				resultsChan <- o.processFile(ctx, file)
			}
		}()
	}

	go func() {
		defer close(workChan)
		for _, file := range work {
			select {
			case <-ctx.Done():
				return
			case workChan <- file:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	result := &Result{Total: total}
	completed := 0
	cancelled := false
	for res := range resultsChan {
		completed++
		switch res.outcome {
		case outcomeUploaded, outcomeWouldUpload:
			result.Uploaded++
		case outcomeSkippedExists, outcomeSkippedDuplicate:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
			if res.err != nil {
				result.Errors = append(result.Errors, res.err.Error())
			}
		case outcomeCancelled:
			cancelled = true
		}
		o.report(o.Phase(), completed, total, res.file.RelativePath)
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	phase := PhaseCompleted
	switch {
	case cancelled:
		phase = PhaseCancelled
	case result.Failed > 0 && result.Failed == completed:
		phase = PhaseFailed
	}
	o.setPhase(phase)
	result.Phase = phase
	o.report(phase, completed, total, "")

	o.logger.Infof("Run finished %s: %d uploaded, %d skipped, %d failed of %d",
		phase, result.Uploaded, result.Skipped, result.Failed, total)
	return result, nil
}

type outcome int

const (
	outcomeUploaded outcome = iota
	outcomeWouldUpload
	outcomeSkippedExists
	outcomeSkippedDuplicate
	outcomeFailed
	outcomeCancelled
)

type fileResult struct {
	file    scanner.LocalAudioFile
	outcome outcome
	err     *FileError
}

func (o *Orchestrator) processFile(ctx context.Context, file scanner.LocalAudioFile) fileResult {
	if ctx.Err() != nil {
		return fileResult{file: file, outcome: outcomeCancelled}
	}

	meta := o.extractor.Extract(file.Path, file.RelativePath)

	albumArtist := keys.NormalizeArtistName(firstNonEmpty(meta.AlbumArtist, meta.Artist, unknownArtist))
	if albumArtist == "" {
		albumArtist = unknownArtist
	}
	localAlbum := meta.Album
	if localAlbum == "" {
		localAlbum = unknownAlbum
	}

	corrected := o.resolver.CorrectedAlbumName(ctx, albumArtist, localAlbum)

	uploadExt := file.Extension
	if media.NeedsConversion(uploadExt) {
		uploadExt = ".m4a"
	}
	key := keys.CanonicalKey(albumArtist, corrected, meta.Title, uploadExt)

	if !o.claimKey(key) {
		o.logger.Debugf("Skipping %s: duplicate of %s", file.RelativePath, key)
		if !o.opts.DryRun {
			if err := o.saveRecord(file, key, false); err != nil {
				return o.fail(ctx, file, "record", err)
			}
		}
		return fileResult{file: file, outcome: outcomeSkippedDuplicate}
	}

	if o.opts.DryRun {
		o.resolver.ResolveArtist(ctx, albumArtist)
		o.resolver.ResolveAlbum(ctx, albumArtist, localAlbum)
		o.logger.Infof("[dry-run] would publish %s as %s", file.RelativePath, key)
		return fileResult{file: file, outcome: outcomeWouldUpload}
	}

	exists := false
	if !o.opts.ForceReupload {
		var err error
		exists, err = o.store.Exists(ctx, key)
		if err != nil {
			return o.fail(ctx, file, "existence check", err)
		}
	}

	uploaded := false
	if !exists {
		src := file.Path
		if media.NeedsConversion(file.Extension) {
			o.setPhase(PhaseConverting)
			var err error
			src, _, err = o.converter.Convert(ctx, file.Path, file.RelativePath)
			if err != nil {
				return o.fail(ctx, file, "conversion", err)
			}
		}

		body, err := os.ReadFile(src)
		if err != nil {
			return o.fail(ctx, file, "read", err)
		}

		o.setPhase(PhaseUploading)
		if err := o.store.Put(ctx, key, body, audioContentType(uploadExt), true); err != nil {
			return o.fail(ctx, file, "upload", err)
		}
		uploaded = true
		o.logger.Infof("Uploaded %s as %s", file.RelativePath, key)
	} else {
		o.logger.Debugf("Skipping upload for %s: %s already stored", file.RelativePath, key)
	}

	artistInfo := o.resolver.ResolveArtist(ctx, albumArtist)
	albumInfo := o.resolver.ResolveAlbum(ctx, albumArtist, localAlbum)
	embeddedURL := o.publishEmbeddedArtwork(ctx, albumArtist, corrected, meta.Artwork)

	if err := o.persistEntities(file, meta, key, uploadExt, albumArtist, corrected, artistInfo, albumInfo, embeddedURL, uploaded || exists); err != nil {
		return o.fail(ctx, file, "persist", err)
	}

	if uploaded {
		return fileResult{file: file, outcome: outcomeUploaded}
	}
	return fileResult{file: file, outcome: outcomeSkippedExists}
}

func (o *Orchestrator) persistEntities(file scanner.LocalAudioFile, meta *tags.Metadata, key, uploadExt, albumArtist, album string, artistInfo metadata.ArtistInfo, albumInfo metadata.AlbumInfo, embeddedURL string, stored bool) error {
	artistID := keys.ArtistID(albumArtist)
	albumID := keys.AlbumID(albumArtist, album)

	artist := &models.Artist{
		ID:             artistID,
		Name:           firstNonEmpty(artistInfo.Name, albumArtist),
		Bio:            artistInfo.Bio,
		ImageURL:       artistInfo.ImageURL,
		Genre:          artistInfo.Genre,
		Style:          artistInfo.Style,
		Mood:           artistInfo.Mood,
		ArtistType:     artistInfo.Type,
		Area:           artistInfo.Area,
		BeginDate:      artistInfo.BeginDate,
		EndDate:        artistInfo.EndDate,
		Disambiguation: artistInfo.Disambiguation,
		MusicBrainzID:  artistInfo.MusicBrainzID,
	}
	if err := o.repo.UpsertArtist(artist); err != nil {
		return err
	}

	albumRow := &models.Album{
		ID:                 albumID,
		ArtistID:           artistID,
		Name:               firstNonEmpty(albumInfo.Name, album),
		ImageURL:           albumInfo.ImageURL,
		EmbeddedArtworkURL: embeddedURL,
		Wiki:               albumInfo.Wiki,
		ReleaseDate:        albumInfo.ReleaseDate,
		Genre:              firstNonEmpty(albumInfo.Genre, artistInfo.Genre),
		Style:              albumInfo.Style,
		Mood:               albumInfo.Mood,
		Theme:              albumInfo.Theme,
		ReleaseType:        albumInfo.ReleaseType,
		Country:            albumInfo.Country,
		Label:              albumInfo.Label,
		Barcode:            albumInfo.Barcode,
		MediaFormat:        albumInfo.MediaFormat,
		MusicBrainzID:      albumInfo.MusicBrainzID,
	}
	if err := o.repo.UpsertAlbum(albumRow); err != nil {
		return err
	}

	track := &models.Track{
		S3Key:       key,
		ArtistID:    artistID,
		AlbumID:     albumID,
		Title:       meta.Title,
		Artist:      firstNonEmpty(meta.Artist, albumArtist),
		Album:       album,
		TrackNumber: meta.TrackNumber,
		DiscNumber:  meta.DiscNumber,
		Duration:    meta.Duration,
		Year:        firstNonEmpty(meta.Year, albumInfo.ReleaseDate),
		Format:      strings.TrimPrefix(uploadExt, "."),
		Genre:       meta.Genre,
		FileSize:    meta.FileSize,
		Bitrate:     meta.Bitrate,
		SampleRate:  meta.SampleRate,
		Channels:    meta.Channels,
		RunID:       o.runID,
	}
	if err := o.repo.UpsertTrack(track); err != nil {
		return err
	}

	return o.saveRecord(file, key, stored)
}

// publishEmbeddedArtwork uploads a track's embedded cover once per album.
// The first track to claim the album settles it, even when it carries no
// artwork, so later tracks never retry.
func (o *Orchestrator) publishEmbeddedArtwork(ctx context.Context, artist, album string, art *tags.Artwork) string {
	albumID := keys.AlbumID(artist, album)

	o.mu.Lock()
	if url, tried := o.artwork[albumID]; tried {
		o.mu.Unlock()
		return url
	}
	o.artwork[albumID] = ""
	o.mu.Unlock()

	if art == nil || len(art.Data) == 0 {
		return ""
	}

	key := keys.EmbeddedArtworkKey(artist, album, art.MIME)
	url := ""
	if exists, err := o.store.Exists(ctx, key); err == nil && exists {
		url = o.store.PublicURL(key)
	} else {
		stored, err := o.store.UploadImage(ctx, key, art.Data, art.MIME)
		if err != nil {
			o.logger.Warnf("Embedded artwork upload failed for %s: %v", key, err)
		} else if stored {
			url = o.store.PublicURL(key)
		}
	}

	o.mu.Lock()
	o.artwork[albumID] = url
	o.mu.Unlock()
	return url
}

func (o *Orchestrator) saveRecord(file scanner.LocalAudioFile, key string, uploaded bool) error {
	return o.repo.SaveScanRecord(&models.ScanRecord{
		RelativePath: file.RelativePath,
		ModTime:      file.ModTime,
		Size:         file.Size,
		StorageKey:   key,
		Uploaded:     uploaded,
		RunID:        o.runID,
	})
}

func (o *Orchestrator) claimKey(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.claimed[key] {
		return false
	}
	o.claimed[key] = true
	return true
}

func (o *Orchestrator) fail(ctx context.Context, file scanner.LocalAudioFile, stage string, err error) fileResult {
	if ctx.Err() != nil {
		return fileResult{file: file, outcome: outcomeCancelled}
	}
	o.logger.Errorf("Processing failed for %s at %s stage: %v", file.RelativePath, stage, err)
	return fileResult{
		file:    file,
		outcome: outcomeFailed,
		err:     &FileError{Path: file.RelativePath, Stage: stage, Err: err},
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) report(phase Phase, completed, total int, current string) {
	if o.opts.Progress == nil {
		return
	}
	o.opts.Progress(phase, completed, total, current)
}

func audioContentType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "m4a", "aac":
		return "audio/mp4"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	}
	return "application/octet-stream"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
