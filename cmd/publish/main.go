package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shellac/internal/capacity"
	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/database"
	"shellac/internal/logging"
	"shellac/internal/media"
	"shellac/internal/metadata"
	"shellac/internal/objectstore"
	"shellac/internal/pipeline"
	"shellac/internal/scanner"
	"shellac/internal/tags"
)

func main() {
	root := flag.String("root", "", "Path to the music library to publish")
	workers := flag.Int("workers", 0, "Worker goroutines (0 = configured default)")
	dryRun := flag.Bool("dry-run", false, "Scan and resolve without uploading or recording")
	force := flag.Bool("force", false, "Upload even when the object already exists")
	limit := flag.Int("limit", 0, "Max files to process this run (0 = all)")
	verbose := flag.Bool("verbose", false, "Shorthand for -log-level debug")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	if *root == "" {
		fmt.Println("Usage: publish -root <music-directory> [-workers <num>] [-dry-run] [-force] [-limit <num>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*root); err != nil {
		fmt.Printf("Error: music root is not readable: %v\n", err)
		os.Exit(1)
	}

	// .env is optional; deployed environments configure through SHELLAC_*
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	level := logging.LogLevel(cfg.Log.Level)
	if *logLevel != "" {
		level = logging.LogLevel(*logLevel)
	}
	if *verbose {
		level = logging.DebugLevel
	}
	log := logging.InitGlobalLogger(level, cfg.Log.Format)

	if !cfg.KnownRegion() && cfg.Spaces.Endpoint == "" {
		log.Warnf("Region %q has no known endpoint; set spaces.endpoint explicitly", cfg.Spaces.Region)
	}

	manager, err := database.NewManager(cfg.Database.Path, log)
	if err != nil {
		fmt.Printf("Error opening state database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()
	repo := database.NewRepository(manager.GetGormDB())

	store := objectstore.NewClient(objectstore.Credentials{
		AccessKey: cfg.Spaces.Key,
		SecretKey: cfg.Spaces.Secret,
		Bucket:    cfg.Spaces.Bucket,
		Region:    cfg.Spaces.Region,
		Prefix:    cfg.Spaces.Prefix,
		Endpoint:  cfg.Spaces.Endpoint,
	}, log)

	// A dry run must not touch the store, so provider image URLs are kept
	// instead of mirrored.
	var mirror metadata.ImageMirror
	if !*dryRun {
		mirror = metadata.NewStoreMirror(store, log)
	}

	var mb *metadata.MusicBrainz
	if cfg.MusicBrainz.Enabled {
		mb = metadata.NewMusicBrainz(cfg.MusicBrainzUserAgent(), log)
	}
	var lastFM *metadata.LastFM
	if cfg.LastFMActive() {
		lastFM = metadata.NewLastFM(cfg.LastFM.APIKey, mirror, log)
	}
	audioDB := metadata.NewAudioDB(cfg.AudioDB.APIKey, mb, mirror, log)
	resolver := metadata.NewResolver(audioDB, mb, lastFM, log)

	// Dry runs never convert, so they skip the scratch space preflight.
	if !*dryRun {
		if err := os.MkdirAll(cfg.Pipeline.ConvertedDir, 0o755); err != nil {
			log.Warnf("Could not create conversion workspace %s: %v", cfg.Pipeline.ConvertedDir, err)
		} else if usage, err := capacity.Probe(cfg.Pipeline.ConvertedDir); err != nil {
			log.Warnf("Could not probe conversion workspace: %v", err)
		} else if usage.Critical() {
			log.Warnf("Conversion workspace %s is %.0f%% full (%.1f GiB free), conversions may fail", usage.Path, usage.UsedPercent, usage.FreeGiB())
		} else if usage.Constrained() {
			log.Warnf("Conversion workspace %s is %.0f%% full (%.1f GiB free)", usage.Path, usage.UsedPercent, usage.FreeGiB())
		}
	}

	converter := media.NewConverter(cfg.Pipeline.ConvertedDir, log)
	defer func() {
		if err := converter.Cleanup(); err != nil {
			log.Warnf("Could not remove converted files: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	effectiveWorkers := *workers
	if effectiveWorkers <= 0 {
		effectiveWorkers = cfg.Pipeline.Workers
	}

	orchestrator := pipeline.New(*root, pipeline.Components{
		Scanner:   scanner.NewScanner(log),
		Extractor: tags.NewExtractor(log),
		Resolver:  resolver,
		Converter: converter,
		Store:     store,
		Library:   repo,
		Logger:    log,
	}, pipeline.Options{
		Workers:       effectiveWorkers,
		DryRun:        *dryRun,
		ForceReupload: *force,
		Limit:         *limit,
		Progress: func(_ pipeline.Phase, completed, total int, current string) {
			if current == "" {
				return
			}
			fmt.Printf("[%d/%d] %s\n", completed, total, current)
		},
	})

	fmt.Printf("Publishing %s with %d workers...\n", *root, effectiveWorkers)
	result, err := orchestrator.Run(ctx)
	if err != nil {
		fmt.Printf("Error: publish run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== Publish Complete ===")
	fmt.Printf("Phase: %s\n", result.Phase)
	fmt.Printf("Total: %d\n", result.Total)
	fmt.Printf("Uploaded: %d\n", result.Uploaded)
	fmt.Printf("Skipped: %d\n", result.Skipped)
	fmt.Printf("Failed: %d\n", result.Failed)
	for _, msg := range result.Errors {
		fmt.Printf("  - %s\n", msg)
	}

	if result.Phase == pipeline.PhaseFailed {
		os.Exit(1)
	}
	if *dryRun || result.Phase != pipeline.PhaseCompleted {
		return
	}

	artists, err := repo.ListArtists()
	if err != nil {
		fmt.Printf("Error loading artists: %v\n", err)
		os.Exit(1)
	}
	albums, err := repo.ListAlbums()
	if err != nil {
		fmt.Printf("Error loading albums: %v\n", err)
		os.Exit(1)
	}
	tracksList, err := repo.ListTracks()
	if err != nil {
		fmt.Printf("Error loading tracks: %v\n", err)
		os.Exit(1)
	}

	// Entities were refreshed during this run, so the build stays offline.
	doc := catalog.NewBuilder(store, nil, log).Build(ctx, artists, albums, tracksList)
	if err := catalog.Publish(ctx, store, doc); err != nil {
		fmt.Printf("Error publishing catalog: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Catalog published: %d artists, %d tracks\n", len(doc.Artists), doc.TrackCount)
}
