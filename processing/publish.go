package processing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Publisher announces updated feeds to PubSubHubbub hubs.
type Publisher struct {
	hubs   []string
	client *http.Client
}

func NewPublisher(hubs []string, client *http.Client) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Publisher{hubs: hubs, client: client}
}

// Publish notifies every hub; a failing hub does not stop the others.
func (p *Publisher) Publish(ctx context.Context, topic string) error {
	form := url.Values{"hub.mode": {"publish"}, "hub.url": {topic}}.Encode()

	var errs []error
	for _, hub := range p.hubs {
		if err := p.publish(ctx, hub, form); err != nil {
			errs = append(errs, fmt.Errorf("hub %s: %w", hub, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, hub, form string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hub, strings.NewReader(form))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
