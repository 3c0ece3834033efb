package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellac/internal/logging"
)

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	c := NewConverter(filepath.Join(t.TempDir(), "converted"), logging.NewLogger(logging.ErrorLevel, io.Discard))
	c.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	return c
}

func TestNeedsConversion(t *testing.T) {
	for _, ext := range []string{".flac", ".wav", ".aiff", ".aac", ".FLAC"} {
		assert.True(t, NeedsConversion(ext), ext)
	}
	for _, ext := range []string{".mp3", ".m4a", ".ogg", ""} {
		assert.False(t, NeedsConversion(ext), ext)
	}
}

func TestConvertPassesThroughNativeFormats(t *testing.T) {
	c := newTestConverter(t)
	c.run = func(context.Context, string, []string) error {
		t.Fatal("encoder must not run for native formats")
		return nil
	}

	out, converted, err := c.Convert(context.Background(), "/music/Hozier/Hozier/track.mp3", "Hozier/Hozier/track.mp3")
	require.NoError(t, err)
	assert.False(t, converted)
	assert.Equal(t, "/music/Hozier/Hozier/track.mp3", out)
}

func TestConvertBuildsEncoderInvocation(t *testing.T) {
	c := newTestConverter(t)

	var gotBin string
	var gotArgs []string
	c.run = func(_ context.Context, bin string, args []string) error {
		gotBin = bin
		gotArgs = args
		return os.WriteFile(args[len(args)-1], []byte("m4a"), 0o644)
	}

	src := filepath.Join(t.TempDir(), "song.flac")
	require.NoError(t, os.WriteFile(src, []byte("flac"), 0o644))

	out, converted, err := c.Convert(context.Background(), src, "Sigur Ros/Agaetis/04 song.flac")
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Equal(t, "/usr/bin/ffmpeg", gotBin)

	want := []string{
		"-i", src,
		"-vn",
		"-c:a", "aac",
		"-b:a", "256k",
		"-movflags", "+faststart",
		"-map_metadata", "0",
		"-y",
		out,
	}
	assert.Equal(t, want, gotArgs)

	assert.Equal(t, ".m4a", filepath.Ext(out))
	assert.Equal(t, filepath.Join(c.destDir, "Sigur Ros", "Agaetis", "04 song.m4a"), out)
	_, err = os.Stat(out)
	assert.NoError(t, err)
}

func TestConvertReportsMissingEncoder(t *testing.T) {
	c := newTestConverter(t)
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, _, err := c.Convert(context.Background(), "/music/a.flac", "a.flac")
	assert.ErrorIs(t, err, ErrEncoderNotFound)
}

func TestConvertFallsBackToAvconv(t *testing.T) {
	c := newTestConverter(t)
	c.lookPath = func(name string) (string, error) {
		if name == "avconv" {
			return "/usr/bin/avconv", nil
		}
		return "", errors.New("not found")
	}
	var gotBin string
	c.run = func(_ context.Context, bin string, args []string) error {
		gotBin = bin
		return os.WriteFile(args[len(args)-1], nil, 0o644)
	}

	_, converted, err := c.Convert(context.Background(), filepath.Join(t.TempDir(), "x.wav"), "x.wav")
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Equal(t, "/usr/bin/avconv", gotBin)
}

func TestConvertFallsBackToSecondEncoderOnFailure(t *testing.T) {
	c := newTestConverter(t)
	c.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	var attempts []string
	c.run = func(_ context.Context, bin string, args []string) error {
		attempts = append(attempts, bin)
		if bin == "/usr/bin/ffmpeg" {
			return errors.New("broken codec build")
		}
		return os.WriteFile(args[len(args)-1], nil, 0o644)
	}

	out, converted, err := c.Convert(context.Background(), "/music/a.flac", "A/B/a.flac")
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Equal(t, []string{"/usr/bin/ffmpeg", "/usr/bin/avconv"}, attempts)
	assert.Equal(t, filepath.Join(c.destDir, "A", "B", "a.m4a"), out)
}

func TestConvertRemovesPartialOutputOnFailure(t *testing.T) {
	c := newTestConverter(t)
	c.run = func(_ context.Context, _ string, args []string) error {
		require.NoError(t, os.WriteFile(args[len(args)-1], []byte("partial"), 0o644))
		return errors.New("encoder exploded")
	}

	_, _, err := c.Convert(context.Background(), "/music/bad.flac", "Artist/Album/bad.flac")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(c.destDir, "Artist", "Album", "bad.m4a"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCleanupRemovesConvertedTree(t *testing.T) {
	c := newTestConverter(t)
	c.run = func(_ context.Context, _ string, args []string) error {
		return os.WriteFile(args[len(args)-1], nil, 0o644)
	}

	_, _, err := c.Convert(context.Background(), "/music/a.flac", "A/B/a.flac")
	require.NoError(t, err)

	require.NoError(t, c.Cleanup())
	_, statErr := os.Stat(c.destDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "no encoder output", stderrTail(nil))
	assert.Equal(t, "one line", stderrTail([]byte("one line\n")))
	assert.Equal(t, "c | d | e | f", stderrTail([]byte("a\nb\nc\nd\ne\nf")))
}
