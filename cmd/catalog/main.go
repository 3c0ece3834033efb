package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/database"
	"shellac/internal/logging"
	"shellac/internal/metadata"
	"shellac/internal/objectstore"
)

// Rebuilds and republishes the catalog from persisted entities without
// rescanning the library. By default the album display names are refreshed
// against the metadata services first.
func main() {
	offline := flag.Bool("offline", false, "Skip metadata refresh lookups")
	verbose := flag.Bool("verbose", false, "Shorthand for -log-level debug")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

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

	var resolver catalog.Resolver
	if !*offline {
		mirror := metadata.NewStoreMirror(store, log)
		var mb *metadata.MusicBrainz
		if cfg.MusicBrainz.Enabled {
			mb = metadata.NewMusicBrainz(cfg.MusicBrainzUserAgent(), log)
		}
		var lastFM *metadata.LastFM
		if cfg.LastFMActive() {
			lastFM = metadata.NewLastFM(cfg.LastFM.APIKey, mirror, log)
		}
		audioDB := metadata.NewAudioDB(cfg.AudioDB.APIKey, mb, mirror, log)
		resolver = metadata.NewResolver(audioDB, mb, lastFM, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	tracks, err := repo.ListTracks()
	if err != nil {
		fmt.Printf("Error loading tracks: %v\n", err)
		os.Exit(1)
	}

	if len(tracks) == 0 {
		fmt.Println("Nothing to publish: no tracks recorded yet. Run publish first.")
		os.Exit(1)
	}

	fmt.Printf("Building catalog from %d artists, %d albums, %d tracks...\n",
		len(artists), len(albums), len(tracks))

	doc := catalog.NewBuilder(store, resolver, log).Build(ctx, artists, albums, tracks)
	if err := catalog.Publish(ctx, store, doc); err != nil {
		fmt.Printf("Error publishing catalog: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== Catalog Published ===")
	fmt.Printf("Artists: %d\n", len(doc.Artists))
	fmt.Printf("Tracks: %d\n", doc.TrackCount)
	fmt.Printf("Object: %s\n", store.PublicURL(objectstore.CatalogKey))
}
