package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shellac/internal/logging"
	"shellac/internal/models"
)

// LocalAudioFile describes one audio file found under the scan root.
// Recreated on every scan; nothing here is persisted directly.
type LocalAudioFile struct {
	Path         string // absolute path
	RelativePath string // slash-separated path below the scan root
	ModTime      int64  // unix nanoseconds
	Size         int64
	Extension    string // lowercase, with leading dot
}

// Result classifies everything found during one scan into disjoint sets.
// Only New and Changed become work; Deleted paths existed in the prior
// records but are gone from disk.
type Result struct {
	New       []LocalAudioFile
	Changed   []LocalAudioFile
	Unchanged []LocalAudioFile
	Deleted   []string
}

// Work returns the files that need processing this run
func (r *Result) Work() []LocalAudioFile {
	work := make([]LocalAudioFile, 0, len(r.New)+len(r.Changed))
	work = append(work, r.New...)
	work = append(work, r.Changed...)
	return work
}

// Total returns the number of audio files currently on disk
func (r *Result) Total() int {
	return len(r.New) + len(r.Changed) + len(r.Unchanged)
}

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".wav":  true,
	".aac":  true,
	".aiff": true,
}

// IsSupportedFile checks if a file has a recognized audio extension
func IsSupportedFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scanner walks a directory tree and classifies audio files against the
// prior scan records
type Scanner struct {
	logger *logging.Logger
}

// NewScanner creates a new scanner
func NewScanner(log *logging.Logger) *Scanner {
	return &Scanner{logger: log}
}

// Scan walks root and classifies every supported audio file against prior.
// A single unreadable entry is logged and skipped; only an unreadable root
// fails the scan. Scan has no side effects: the caller commits record
// changes after successful processing.
func (s *Scanner) Scan(root string, prior map[string]models.ScanRecord) (*Result, error) {
	result := &Result{}
	seen := make(map[string]bool, len(prior))

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warnf("Skipping unreadable entry %s: %v", path, err)
			return nil
		}

		name := info.Name()
		if info.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || !info.Mode().IsRegular() {
			return nil
		}

		if !IsSupportedFile(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			s.logger.Warnf("Skipping %s: %v", path, err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		file := LocalAudioFile{
			Path:         path,
			RelativePath: rel,
			ModTime:      info.ModTime().UnixNano(),
			Size:         info.Size(),
			Extension:    strings.ToLower(filepath.Ext(path)),
		}
		seen[rel] = true

		rec, known := prior[rel]
		switch {
		case !known:
			result.New = append(result.New, file)
		case rec.ModTime != file.ModTime || rec.Size != file.Size:
			result.Changed = append(result.Changed, file)
		default:
			result.Unchanged = append(result.Unchanged, file)
		}

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	for rel := range prior {
		if !seen[rel] {
			result.Deleted = append(result.Deleted, rel)
		}
	}
	sort.Strings(result.Deleted)

	s.logger.Infof("Scan completed - New: %d, Changed: %d, Unchanged: %d, Deleted: %d",
		len(result.New), len(result.Changed), len(result.Unchanged), len(result.Deleted))

	return result, nil
}
