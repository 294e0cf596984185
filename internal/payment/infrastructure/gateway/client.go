// Package gateway holds the outbound integrations with the payment
// provider: the server-side confirmation query and the notify-origin
// allowlist resolver.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const confirmTimeout = 10 * time.Second

// Client re-posts a received notification field set to the gateway's
// validation endpoint. The gateway answers with the literal body VALID
// when it currently vouches for that exact transaction.
type Client struct {
	log         *slog.Logger
	validateURL string
	http        *http.Client
}

func NewClient(log *slog.Logger, validateURL string) *Client {
	return &Client{
		log:         log,
		validateURL: validateURL,
		http:        &http.Client{Timeout: confirmTimeout},
	}
}

func (c *Client) Confirm(ctx context.Context, params map[string]string) error {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway validate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("gateway validate read: %w", err)
	}

	answer := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK || answer != "VALID" {
		return fmt.Errorf("gateway did not confirm: status=%d body=%q", resp.StatusCode, answer)
	}
	return nil
}
