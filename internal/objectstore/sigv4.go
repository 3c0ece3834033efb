package objectstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	signAlgorithm   = "AWS4-HMAC-SHA256"
	signService     = "s3"
	signTerminator  = "aws4_request"
	amzDateFormat   = "20060102T150405Z"
	shortDateFormat = "20060102"

	// SHA-256 of the empty string, the payload hash for bodyless requests.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// signer produces Signature Version 4 authorization headers for S3-style
// requests. The store recomputes the signature from the exact bytes on the
// wire, so the canonical URI and query here must match the request URL
// bit for bit; awsEscapePath and query.encode guarantee that.
type signer struct {
	accessKey string
	secretKey string
	region    string
	now       func() time.Time
}

func newSigner(accessKey, secretKey, region string) *signer {
	return &signer{
		accessKey: accessKey,
		secretKey: secretKey,
		region:    region,
		now:       time.Now,
	}
}

// Sign stamps req with x-amz-date, x-amz-content-sha256 and Authorization.
// payloadHash is the lowercase hex SHA-256 of the request body. All headers
// that participate in the signature must be set before calling Sign.
func (s *signer) Sign(req *http.Request, payloadHash string) {
	now := s.now().UTC()
	amzDate := now.Format(amzDateFormat)
	shortDate := now.Format(shortDateFormat)

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{shortDate, s.region, signService, signTerminator}, "/")
	stringToSign := strings.Join([]string{
		signAlgorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(s.signingKey(shortDate), []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signAlgorithm, s.accessKey, scope, signedHeaders, signature))
}

// signingKey derives the per-day key by chaining HMACs through the scope
// components, seeded with "AWS4" + secret.
func (s *signer) signingKey(shortDate string) []byte {
	key := hmacSHA256([]byte("AWS4"+s.secretKey), []byte(shortDate))
	key = hmacSHA256(key, []byte(s.region))
	key = hmacSHA256(key, []byte(signService))
	return hmacSHA256(key, []byte(signTerminator))
}

// canonicalizeHeaders renders the signed header block. The host header and
// every x-amz-* header always participate; range, content-type, content-md5
// and cache-control join when present.
func canonicalizeHeaders(req *http.Request) (string, string) {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	names := []string{"host"}
	values := map[string]string{"host": host}
	for name, vals := range req.Header {
		lower := strings.ToLower(name)
		switch {
		case strings.HasPrefix(lower, "x-amz-"):
		case lower == "range" || lower == "content-type" ||
			lower == "content-md5" || lower == "cache-control":
		default:
			continue
		}
		names = append(names, lower)
		values[lower] = strings.TrimSpace(strings.Join(vals, ","))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func canonicalURI(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	return path
}

// canonicalQuery re-encodes the raw query with AWS escaping, sorted by
// encoded name then encoded value.
func canonicalQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	var pairs [][2]string
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		name, value := part, ""
		if idx := strings.Index(part, "="); idx >= 0 {
			name, value = part[:idx], part[idx+1:]
		}
		pairs = append(pairs, [2]string{
			awsEscape(pathUnescape(name)),
			awsEscape(pathUnescape(value)),
		})
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

// pathUnescape decodes percent escapes without treating "+" as a space.
func pathUnescape(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// awsEscape percent-encodes everything outside the RFC 3986 unreserved set
// with uppercase hex digits.
func awsEscape(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

// awsEscapePath escapes each segment of a slash-separated path.
func awsEscapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = awsEscape(seg)
	}
	return strings.Join(segments, "/")
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
