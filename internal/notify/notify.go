// Package notify posts plain-text alerts to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const alertTitle = "PSX forecast alert"

// Notifier sends alerts to a fixed ntfy endpoint.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// New returns a Notifier, or nil when endpoint is empty.
func New(endpoint string, client *http.Client) *Notifier {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{endpoint: endpoint, client: client}
}

// Alert sends message. A nil Notifier does nothing.
func (n *Notifier) Alert(ctx context.Context, message string) error {
	if n == nil {
		return nil
	}
	return send(ctx, n.client, n.endpoint, message, alertTitle)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return send(ctx, client, endpoint, message, "")
}

func send(ctx context.Context, client *http.Client, endpoint, message, title string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
		req.Header.Set("Tags", "chart_with_downwards_trend")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
