package media

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"shellac/internal/logging"
)

// ErrEncoderNotFound reports that neither ffmpeg nor avconv is installed.
// Callers treat it differently from a failed encode: nothing lossless can
// be published without an encoder, so the run stops up front.
var ErrEncoderNotFound = errors.New("no usable audio encoder found (ffmpeg or avconv)")

var encoderCandidates = []string{"ffmpeg", "avconv"}

const (
	defaultBitrate = "256k"
	encodeTimeout  = 5 * time.Minute
)

// NeedsConversion reports whether files with this extension must be
// re-encoded to AAC before upload. MP3 and M4A upload as they are.
func NeedsConversion(ext string) bool {
	switch strings.ToLower(ext) {
	case ".flac", ".wav", ".aiff", ".aac":
		return true
	}
	return false
}

// Converter re-encodes lossless and raw-stream audio into AAC m4a files
// that mirror the source tree under a working directory.
type Converter struct {
	logger  *logging.Logger
	destDir string
	bitrate string
	timeout time.Duration

	lookPath func(file string) (string, error)
	run      func(ctx context.Context, bin string, args []string) error
}

// NewConverter creates a converter writing into destDir.
func NewConverter(destDir string, log *logging.Logger) *Converter {
	c := &Converter{
		logger:   log,
		destDir:  destDir,
		bitrate:  defaultBitrate,
		timeout:  encodeTimeout,
		lookPath: exec.LookPath,
	}
	c.run = c.runEncoder
	return c
}

// Convert re-encodes src into an AAC m4a mirroring relPath under the
// converter's working directory. Native formats pass through untouched.
// The returned bool reports whether a new file was produced.
func (c *Converter) Convert(ctx context.Context, src, relPath string) (string, bool, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if !NeedsConversion(ext) {
		return src, false, nil
	}

	bins := c.encoderPaths()
	if len(bins) == 0 {
		return "", false, ErrEncoderNotFound
	}

	rel := filepath.FromSlash(relPath)
	dst := filepath.Join(c.destDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".m4a")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", false, errors.Wrap(err, "creating conversion directory")
	}

	args := []string{
		"-i", src,
		"-vn",
		"-c:a", "aac",
		"-b:a", c.bitrate,
		"-movflags", "+faststart",
		"-map_metadata", "0",
		"-y",
		dst,
	}

	// A failed encode falls through to the next encoder before the file
	// is reported as failed.
	start := time.Now()
	var lastErr error
	for _, bin := range bins {
		if err := ctx.Err(); err != nil {
			os.Remove(dst)
			return "", false, err
		}
		if lastErr = c.run(ctx, bin, args); lastErr == nil {
			c.logger.Debugf("Converted %s to AAC in %.1fs", filepath.Base(src), time.Since(start).Seconds())
			return dst, true, nil
		}
		c.logger.Warnf("Encoder %s failed for %s: %v", filepath.Base(bin), src, lastErr)
	}
	os.Remove(dst)
	return "", false, lastErr
}

// Cleanup removes the converted mirror tree.
func (c *Converter) Cleanup() error {
	if c.destDir == "" {
		return nil
	}
	return os.RemoveAll(c.destDir)
}

// encoderPaths resolves the installed encoders in preference order.
func (c *Converter) encoderPaths() []string {
	var bins []string
	for _, name := range encoderCandidates {
		if path, err := c.lookPath(name); err == nil {
			bins = append(bins, path)
		}
	}
	return bins
}

// runEncoder executes the encoder, killing it on timeout or cancellation.
func (c *Converter) runEncoder(ctx context.Context, bin string, args []string) error {
	cmd := exec.Command(bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "starting encoder")
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if err := cmd.Process.Kill(); err != nil {
			c.logger.Warnf("Failed to kill cancelled encoder: %v", err)
		}
		<-done
		return ctx.Err()
	case <-time.After(c.timeout):
		if err := cmd.Process.Kill(); err != nil {
			c.logger.Warnf("Failed to kill timed-out encoder: %v", err)
		}
		<-done
		return errors.Errorf("conversion timed out after %s", c.timeout)
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "encoder failed: %s", stderrTail(stderr.Bytes()))
		}
	}
	return nil
}

// stderrTail keeps the last few lines of encoder output for error reports.
func stderrTail(out []byte) string {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "no encoder output"
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
