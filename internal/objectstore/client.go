package objectstore

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"shellac/internal/logging"
)

const (
	putAttempts        = 3
	initialRetryWait   = 2 * time.Second
	requestTimeout     = 30 * time.Second
	multipartThreshold = 8 << 20
	partSize           = 10 << 20
	maxImageBytes      = 10 << 20

	// CatalogKey is the prefix-relative key the published catalog lives at.
	CatalogKey = "music_catalog.json"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Credentials holds access to one Spaces bucket. Endpoint overrides the
// derived bucket URL and exists for tests.
type Credentials struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	Endpoint  string
}

// Client is a minimal signed client for an S3-compatible store. It carries
// an existence cache primed by ListAll and grown by successful uploads;
// the cache only ever grows during a run, except for explicit deletes.
type Client struct {
	creds      Credentials
	endpoint   string
	httpClient *http.Client
	signer     *signer
	logger     *logging.Logger
	sleep      func(time.Duration)

	mu     sync.Mutex
	known  map[string]bool
	primed bool
}

// NewClient builds a client for the bucket the credentials name.
func NewClient(creds Credentials, log *logging.Logger) *Client {
	endpoint := strings.TrimSuffix(creds.Endpoint, "/")
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.%s.digitaloceanspaces.com", creds.Bucket, creds.Region)
	}
	return &Client{
		creds:      creds,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		signer:     newSigner(creds.AccessKey, creds.SecretKey, creds.Region),
		logger:     log,
		sleep:      time.Sleep,
		known:      make(map[string]bool),
	}
}

// PublicURL returns the CDN URL clients use to fetch key.
func (c *Client) PublicURL(key string) string {
	if c.creds.Endpoint != "" {
		return c.endpoint + c.objectPath(key)
	}
	return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com%s",
		c.creds.Bucket, c.creds.Region, c.objectPath(key))
}

func (c *Client) objectPath(key string) string {
	if c.creds.Prefix == "" {
		return "/" + key
	}
	return "/" + c.creds.Prefix + "/" + key
}

// query is an unordered parameter list rendered in canonical form.
type query [][2]string

// encode renders the query AWS-escaped and sorted by name then value. The
// result is used verbatim on the wire and in the canonical request.
func (q query) encode() string {
	if len(q) == 0 {
		return ""
	}
	pairs := make([][2]string, len(q))
	for i, p := range q {
		pairs[i] = [2]string{awsEscape(p[0]), awsEscape(p[1])}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p[0] + "=" + p[1]
	}
	return strings.Join(encoded, "&")
}

func (c *Client) newRequest(ctx context.Context, method, path string, q query, body []byte) (*http.Request, error) {
	u := c.endpoint + awsEscapePath(path)
	if encoded := q.encode(); encoded != "" {
		u += "?" + encoded
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s request", method)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	return req, nil
}

// send signs and executes. Sign comes last so every header set by the
// caller participates in the signature.
func (c *Client) send(req *http.Request, payloadHash string) (*http.Response, error) {
	c.signer.Sign(req, payloadHash)
	return c.httpClient.Do(req)
}

// httpError renders a non-2xx response, keeping a bounded slice of the body.
func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return errors.Errorf("object store returned %s", resp.Status)
	}
	return errors.Errorf("object store returned %s: %s", resp.Status, detail)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

type listBucketResult struct {
	XMLName               xml.Name     `xml:"ListBucketResult"`
	IsTruncated           bool         `xml:"IsTruncated"`
	NextContinuationToken string       `xml:"NextContinuationToken"`
	Contents              []listObject `xml:"Contents"`
}

type listObject struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}

// ListAll pages through every object under the configured prefix and primes
// the existence cache with prefix-relative keys. It returns the number of
// keys found.
func (c *Client) ListAll(ctx context.Context) (int, error) {
	listPrefix := ""
	if c.creds.Prefix != "" {
		listPrefix = c.creds.Prefix + "/"
	}

	keys := make(map[string]bool)
	token := ""
	for {
		q := query{{"list-type", "2"}}
		if listPrefix != "" {
			q = append(q, [2]string{"prefix", listPrefix})
		}
		if token != "" {
			q = append(q, [2]string{"continuation-token", token})
		}

		req, err := c.newRequest(ctx, http.MethodGet, "/", q, nil)
		if err != nil {
			return 0, err
		}
		resp, err := c.send(req, emptyPayloadHash)
		if err != nil {
			return 0, errors.Wrap(err, "listing objects")
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := httpError(resp)
			resp.Body.Close()
			return 0, errors.Wrap(err, "listing objects")
		}

		var page listBucketResult
		decodeErr := xml.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return 0, errors.Wrap(decodeErr, "parsing list response")
		}

		for _, obj := range page.Contents {
			keys[strings.TrimPrefix(obj.Key, listPrefix)] = true
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}

	c.mu.Lock()
	for k := range keys {
		c.known[k] = true
	}
	c.primed = true
	c.mu.Unlock()

	c.logger.Infof("Found %d existing objects in %s/%s", len(keys), c.creds.Bucket, c.creds.Prefix)
	return len(keys), nil
}

// Exists reports whether key is present. A primed cache answers without a
// request; otherwise a single HEAD decides.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	if c.known[key] {
		c.mu.Unlock()
		return true, nil
	}
	primed := c.primed
	c.mu.Unlock()
	if primed {
		return false, nil
	}

	req, err := c.newRequest(ctx, http.MethodHead, c.objectPath(key), nil, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.send(req, emptyPayloadHash)
	if err != nil {
		return false, errors.Wrapf(err, "head %s", key)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.remember(key)
		return true, nil
	default:
		return false, errors.Errorf("head %s returned %s", key, resp.Status)
	}
}

// Put uploads body at key, retrying transient failures. Bodies at or above
// the multipart threshold go through the multipart path. Success registers
// the key in the existence cache.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string, public bool) error {
	if len(body) >= multipartThreshold {
		return c.putMultipart(ctx, key, body, contentType, public)
	}
	err := c.withRetry(ctx, "put "+key, func() error {
		return c.putObject(ctx, key, body, contentType, public, nil)
	})
	if err != nil {
		return err
	}
	c.remember(key)
	return nil
}

func (c *Client) putObject(ctx context.Context, key string, body []byte, contentType string, public bool, extra map[string]string) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.objectPath(key), nil, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if public {
		req.Header.Set("x-amz-acl", "public-read")
	}
	for name, value := range extra {
		req.Header.Set(name, value)
	}

	resp, err := c.send(req, hexSHA256(body))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpError(resp)
		resp.Body.Close()
		return err
	}
	drain(resp)
	return nil
}

// Delete removes key and forgets it in the existence cache. A missing key
// is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.objectPath(key), nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.send(req, emptyPayloadHash)
	if err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return errors.Errorf("delete %s returned %s", key, resp.Status)
	}
	c.forget(key)
	return nil
}

// PutCatalog publishes the catalog JSON with caching disabled so clients
// always see the newest copy. The previous object is deleted first; the CDN
// keeps serving an overwritten object from cache otherwise.
func (c *Client) PutCatalog(ctx context.Context, data []byte) error {
	if err := c.Delete(ctx, CatalogKey); err != nil {
		c.logger.Warnf("Could not delete previous catalog: %v", err)
	}
	err := c.withRetry(ctx, "put catalog", func() error {
		return c.putObject(ctx, CatalogKey, data, "application/json", true, map[string]string{
			"Cache-Control": "no-cache, no-store, must-revalidate",
		})
	})
	if err != nil {
		return err
	}
	c.remember(CatalogKey)
	return nil
}

// UploadImage validates and stores artwork publicly. Oversized or
// unrecognized payloads are skipped without error; the catalog publishes
// without them. The returned bool reports whether the image was stored.
func (c *Client) UploadImage(ctx context.Context, key string, data []byte, mime string) (bool, error) {
	if len(data) == 0 || len(data) > maxImageBytes {
		c.logger.Warnf("Skipping image %s: %d bytes outside allowed size", key, len(data))
		return false, nil
	}
	if !allowedImageTypes[mime] {
		c.logger.Warnf("Skipping image %s: unsupported type %q", key, mime)
		return false, nil
	}
	if err := c.Put(ctx, key, data, mime, true); err != nil {
		return false, err
	}
	return true, nil
}

// UploadImageFromURL mirrors a remote image into the store: a HEAD request
// screens size and type before the download, and the downloaded bytes are
// validated again. Returns whether the image was stored.
func (c *Client) UploadImageFromURL(ctx context.Context, key, srcURL string) (bool, error) {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, srcURL, nil)
	if err != nil {
		return false, errors.Wrap(err, "building image head request")
	}
	resp, err := c.httpClient.Do(head)
	if err != nil {
		return false, errors.Wrapf(err, "checking image %s", srcURL)
	}
	drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warnf("Skipping image %s: source returned %s", srcURL, resp.Status)
		return false, nil
	}
	if resp.ContentLength > maxImageBytes {
		c.logger.Warnf("Skipping image %s: %d bytes exceeds limit", srcURL, resp.ContentLength)
		return false, nil
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return false, errors.Wrap(err, "building image request")
	}
	resp, err = c.httpClient.Do(get)
	if err != nil {
		return false, errors.Wrapf(err, "downloading image %s", srcURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warnf("Skipping image %s: source returned %s", srcURL, resp.Status)
		return false, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return false, errors.Wrapf(err, "downloading image %s", srcURL)
	}

	mime := resp.Header.Get("Content-Type")
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return c.UploadImage(ctx, key, data, mime)
}

// withRetry runs op up to three times with doubling delays between
// attempts.
func (c *Client) withRetry(ctx context.Context, what string, op func() error) error {
	var err error
	wait := initialRetryWait
	for attempt := 1; attempt <= putAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == putAttempts {
			break
		}
		c.logger.Warnf("Attempt %d/%d failed for %s: %v", attempt, putAttempts, what, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.sleep(wait)
		wait *= 2
	}
	return errors.Wrapf(err, "%s failed after %d attempts", what, putAttempts)
}

func (c *Client) remember(key string) {
	c.mu.Lock()
	c.known[key] = true
	c.mu.Unlock()
}

func (c *Client) forget(key string) {
	c.mu.Lock()
	delete(c.known, key)
	c.mu.Unlock()
}
