package metadata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"shellac/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.ErrorLevel, io.Discard)
}

// recordingServer serves canned responses and keeps every request URL for
// assertions.
func recordingServer(t *testing.T, handle func(r *http.Request) (int, string)) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL)
		status, body := handle(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

type requestLog struct {
	mu   sync.Mutex
	urls []*url.URL
}

func (l *requestLog) add(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *u
	l.urls = append(l.urls, &copied)
}

func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.urls)
}

func (l *requestLog) list() []*url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*url.URL(nil), l.urls...)
}

func (l *requestLog) byEndpoint(name string) []*url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matched []*url.URL
	for _, u := range l.urls {
		if strings.HasSuffix(u.Path, "/"+name) {
			matched = append(matched, u)
		}
	}
	return matched
}

func (l *requestLog) pathContains(sub string) []*url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matched []*url.URL
	for _, u := range l.urls {
		if strings.Contains(u.Path, sub) {
			matched = append(matched, u)
		}
	}
	return matched
}

// defang removes real pacing from a client so tests run instantly.
func defang(clients ...*apiClient) {
	for _, c := range clients {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		c.sleep = func(time.Duration) {}
	}
}

type fakeMirror struct {
	mu          sync.Mutex
	artistCalls [][2]string
	albumCalls  [][3]string
	fail        bool
}

func (f *fakeMirror) MirrorArtistImage(_ context.Context, srcURL, artist string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artistCalls = append(f.artistCalls, [2]string{srcURL, artist})
	if f.fail {
		return ""
	}
	return "https://cdn.example.com/images/" + artist + "/artist.jpg"
}

func (f *fakeMirror) MirrorAlbumImage(_ context.Context, srcURL, artist, album string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.albumCalls = append(f.albumCalls, [3]string{srcURL, artist, album})
	if f.fail {
		return ""
	}
	return "https://cdn.example.com/images/" + artist + "/" + album + "/cover.jpg"
}

func TestCacheKeyNormalizesTerms(t *testing.T) {
	require.Equal(t, cacheKey("Hozier", "Hozier"), cacheKey("  hozier ", "HOZIER"))
	require.NotEqual(t, cacheKey("a", "bc"), cacheKey("ab", "c"))
}

func TestMemoCacheKeepsZeroValues(t *testing.T) {
	c := newMemoCache[AlbumInfo]()

	_, ok := c.get("missing")
	require.False(t, ok)

	c.set("miss", AlbumInfo{})
	cached, ok := c.get("miss")
	require.True(t, ok)
	require.Zero(t, cached)
}
