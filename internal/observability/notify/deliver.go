package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Delivery posts JSON bodies with a bounded number of linear-backoff retries.
type Delivery struct {
	Client     *http.Client
	RetryLimit int
	// Backoff is the delay unit between attempts; attempt n waits n*Backoff.
	Backoff time.Duration
}

// NewDelivery builds a Delivery with a timeout-bound client when hc is nil.
func NewDelivery(hc *http.Client, timeout time.Duration, retryLimit int) Delivery {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if retryLimit < 0 {
		retryLimit = 0
	}
	return Delivery{Client: hc, RetryLimit: retryLimit, Backoff: 200 * time.Millisecond}
}

// PostJSON sends body to url, retrying non-2xx answers and transport errors.
func (d Delivery) PostJSON(ctx context.Context, url string, headers map[string]string, body []byte) error {
	attempts := d.RetryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = d.post(ctx, url, headers, body)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * d.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (d Delivery) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return fmt.Errorf("drain response body: %w", err)
		}
		return nil
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := fmt.Errorf("webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	if readErr != nil {
		return errors.Join(statusErr, fmt.Errorf("read error response: %w", readErr))
	}
	return statusErr
}
