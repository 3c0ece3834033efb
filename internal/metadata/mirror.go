package metadata

import (
	"context"

	"shellac/internal/keys"
	"shellac/internal/logging"
	"shellac/internal/objectstore"
)

// ImageMirror copies remote artwork under local control. Implementations
// return the mirrored public URL, or "" when the image was skipped or the
// copy failed.
type ImageMirror interface {
	MirrorArtistImage(ctx context.Context, srcURL, artist string) string
	MirrorAlbumImage(ctx context.Context, srcURL, artist, album string) string
}

// StoreMirror re-uploads provider artwork into the object store so the
// published catalog never references a third-party image host.
type StoreMirror struct {
	store  *objectstore.Client
	logger *logging.Logger
}

func NewStoreMirror(store *objectstore.Client, logger *logging.Logger) *StoreMirror {
	return &StoreMirror{store: store, logger: logger}
}

func (m *StoreMirror) MirrorArtistImage(ctx context.Context, srcURL, artist string) string {
	return m.mirror(ctx, srcURL, keys.ArtistImageKey(artist))
}

func (m *StoreMirror) MirrorAlbumImage(ctx context.Context, srcURL, artist, album string) string {
	return m.mirror(ctx, srcURL, keys.CoverKey(artist, album))
}

func (m *StoreMirror) mirror(ctx context.Context, srcURL, key string) string {
	if exists, err := m.store.Exists(ctx, key); err == nil && exists {
		return m.store.PublicURL(key)
	}
	stored, err := m.store.UploadImageFromURL(ctx, key, srcURL)
	if err != nil {
		m.logger.Warnf("Could not mirror image %s to %s: %v", srcURL, key, err)
		return ""
	}
	if !stored {
		return ""
	}
	return m.store.PublicURL(key)
}
