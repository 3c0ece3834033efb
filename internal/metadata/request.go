package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"shellac/internal/logging"
)

const (
	fetchAttempts    = 3
	initialFetchWait = time.Second
	fetchTimeout     = 15 * time.Second
)

// apiClient is the request side shared by the service clients: one HTTP
// client, one rate limiter, and one retry policy per external service.
type apiClient struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    map[string]string
	logger     *logging.Logger
	sleep      func(time.Duration)
}

func newAPIClient(name string, interval time.Duration, logger *logging.Logger) *apiClient {
	return &apiClient{
		name:       name,
		httpClient: &http.Client{Timeout: fetchTimeout},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// getJSON fetches rawURL and decodes the body into out. Every attempt
// waits for the service's rate limiter first; failures are retried with
// doubling delays.
func (a *apiClient) getJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error
	wait := initialFetchWait
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if lastErr = a.fetchOnce(ctx, rawURL, out); lastErr == nil {
			return nil
		}
		if attempt == fetchAttempts {
			break
		}
		a.logger.Debugf("%s request failed (attempt %d/%d), retrying in %s: %v",
			a.name, attempt, fetchAttempts, wait, lastErr)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.sleep(wait)
		wait *= 2
	}
	return errors.Wrapf(lastErr, "%s request failed after %d attempts", a.name, fetchAttempts)
}

func (a *apiClient) fetchOnce(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for name, value := range a.headers {
		req.Header.Set(name, value)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return errors.Errorf("%s returned %s", a.name, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
