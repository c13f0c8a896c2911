// Package notify pushes fire-and-forget notifications to an ntfy-style
// topic endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"joinarr.org/internal/provision"
)

const defaultTimeout = 5 * time.Second

// Pusher posts the notification body to {base}/{topic} with the title and
// tags carried in headers.
type Pusher struct {
	endpoint string
	client   *http.Client
}

var _ provision.Notifier = (*Pusher)(nil)

// NewPusher constructs a Pusher for the given server URL and topic.
func NewPusher(baseURL, topic string) *Pusher {
	return &Pusher{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + topic,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

func (p *Pusher) Notify(ctx context.Context, title, body, tags string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Title", title)
	if tags != "" {
		req.Header.Set("Tags", tags)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: push returned %d", resp.StatusCode)
	}
	return nil
}

// Nop discards notifications. Used when no endpoint is configured.
type Nop struct{}

var _ provision.Notifier = Nop{}

func (Nop) Notify(context.Context, string, string, string) error { return nil }
