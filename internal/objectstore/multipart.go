package objectstore

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

type initiateMultipartResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadID string   `xml:"UploadId"`
}

type completedPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type completeMultipartUpload struct {
	XMLName xml.Name        `xml:"CompleteMultipartUpload"`
	Parts   []completedPart `xml:"Part"`
}

// putMultipart uploads body in fixed-size parts: initiate, sequential part
// uploads each with its own retries, then a completion manifest. Any
// unrecoverable failure aborts the session server-side before the error
// surfaces, so the store does not accumulate half-finished uploads.
func (c *Client) putMultipart(ctx context.Context, key string, body []byte, contentType string, public bool) error {
	uploadID, err := c.initiateMultipart(ctx, key, contentType, public)
	if err != nil {
		return errors.Wrapf(err, "initiating multipart upload for %s", key)
	}

	var parts []completedPart
	for number, offset := 1, 0; offset < len(body); number++ {
		end := offset + partSize
		if end > len(body) {
			end = len(body)
		}
		etag, err := c.uploadPart(ctx, key, uploadID, number, body[offset:end])
		if err != nil {
			c.abortMultipart(key, uploadID)
			return errors.Wrapf(err, "part %d of %s", number, key)
		}
		parts = append(parts, completedPart{PartNumber: number, ETag: etag})
		offset = end
	}

	if err := c.completeMultipart(ctx, key, uploadID, parts); err != nil {
		c.abortMultipart(key, uploadID)
		return errors.Wrapf(err, "completing multipart upload for %s", key)
	}

	c.remember(key)
	c.logger.Debugf("Multipart upload of %s finished with %d parts", key, len(parts))
	return nil
}

func (c *Client) initiateMultipart(ctx context.Context, key, contentType string, public bool) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.objectPath(key), query{{"uploads", ""}}, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if public {
		req.Header.Set("x-amz-acl", "public-read")
	}

	resp, err := c.send(req, emptyPayloadHash)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpError(resp)
		resp.Body.Close()
		return "", err
	}

	var result initiateMultipartResult
	decodeErr := xml.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if decodeErr != nil {
		return "", errors.Wrap(decodeErr, "parsing initiate response")
	}
	if result.UploadID == "" {
		return "", errors.New("initiate response carried no upload id")
	}
	return result.UploadID, nil
}

// uploadPart sends one part, retrying independently of the others, and
// returns the ETag the store assigned.
func (c *Client) uploadPart(ctx context.Context, key, uploadID string, number int, part []byte) (string, error) {
	q := query{
		{"partNumber", strconv.Itoa(number)},
		{"uploadId", uploadID},
	}

	var etag string
	err := c.withRetry(ctx, fmt.Sprintf("part %d of %s", number, key), func() error {
		req, err := c.newRequest(ctx, http.MethodPut, c.objectPath(key), q, part)
		if err != nil {
			return err
		}
		resp, err := c.send(req, hexSHA256(part))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := httpError(resp)
			resp.Body.Close()
			return err
		}
		etag = resp.Header.Get("ETag")
		drain(resp)
		return nil
	})
	return etag, err
}

// completeMultipart posts the manifest. Parts are listed in ascending part
// number order regardless of the order they finished in.
func (c *Client) completeMultipart(ctx context.Context, key, uploadID string, parts []completedPart) error {
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	manifest, err := xml.Marshal(completeMultipartUpload{Parts: parts})
	if err != nil {
		return errors.Wrap(err, "encoding completion manifest")
	}
	body := append([]byte(xml.Header), manifest...)

	req, err := c.newRequest(ctx, http.MethodPost, c.objectPath(key), query{{"uploadId", uploadID}}, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.send(req, hexSHA256(body))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpError(resp)
		resp.Body.Close()
		return err
	}

	// Completion can fail inside a 200 response.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if bytes.Contains(respBody, []byte("<Error>")) {
		return errors.Errorf("completion rejected: %s", bytes.TrimSpace(respBody))
	}
	return nil
}

// abortMultipart releases the server-side session. It runs on a fresh
// context so the abort still goes out after the run context is cancelled.
func (c *Client) abortMultipart(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, c.objectPath(key), query{{"uploadId", uploadID}}, nil)
	if err != nil {
		c.logger.Warnf("Could not build abort request for %s: %v", uploadID, err)
		return
	}
	resp, err := c.send(req, emptyPayloadHash)
	if err != nil {
		c.logger.Warnf("Failed to abort multipart upload %s: %v", uploadID, err)
		return
	}
	drain(resp)
	if (resp.StatusCode < 200 || resp.StatusCode >= 300) && resp.StatusCode != http.StatusNotFound {
		c.logger.Warnf("Abort of multipart upload %s returned %s", uploadID, resp.Status)
	}
}
