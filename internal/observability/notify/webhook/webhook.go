// Package webhook delivers job failure notifications to an arbitrary JSON endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/cutline/cutline-jobs/internal/observability/notify"
)

// Config describes the endpoint and optional body shaping.
type Config struct {
	URL string
	// BodyExpr is a JMESPath expression evaluated against the payload; the
	// result becomes the request body. Empty sends the payload as-is.
	BodyExpr   string
	Headers    map[string]string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client posts failure payloads to a webhook.
type Client struct {
	url      string
	expr     string
	headers  map[string]string
	delivery notify.Delivery
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates the configuration and compiles BodyExpr.
func NewClient(cfg Config) (*Client, error) {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return nil, errors.New("webhook url is required")
	}

	c := &Client{
		url:      u,
		headers:  cfg.Headers,
		delivery: notify.NewDelivery(cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}
	if expr := strings.TrimSpace(cfg.BodyExpr); expr != "" {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid webhook body expression: %w", err)
		}
		c.expr = expr
	}
	return c, nil
}

// SendJobFailure shapes and posts the payload.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := c.body(payload)
	if err != nil {
		return err
	}
	if err := c.delivery.PostJSON(ctx, c.url, c.headers, body); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (c *Client) body(payload notify.JobFailurePayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}
	if c.expr == "" {
		return raw, nil
	}

	// JMESPath operates on generic JSON values, not Go structs.
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	shaped, err := jmespath.Search(c.expr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate webhook body expression: %w", err)
	}
	out, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("encode shaped webhook body: %w", err)
	}
	return out, nil
}
