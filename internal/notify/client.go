package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rlima/roomwatch/internal/config"
	"github.com/rlima/roomwatch/internal/httpkit"
)

// Client sends WhatsApp messages through the CallMeBot HTTP API.
type Client struct {
	endpoint string
	phone    string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client from cfg. The connect timeout comes from
// cfg.TimeoutSec; the whole request is bounded at three times that.
func NewClient(cfg config.NotifyConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: cfg.URL,
		phone:    cfg.Phone,
		apiKey:   cfg.APIKey,
		http: httpkit.NewClient(
			httpkit.WithDialTimeout(timeout),
			httpkit.WithTimeout(3*timeout),
		),
		logger: logger,
	}
}

// URL builds the request URL for message. The phone number and API key
// are passed as configured; only the message text is encoded.
func (c *Client) URL(message string) string {
	return c.endpoint + "?phone=" + c.phone + "&text=" + Encode(message) + "&apikey=" + c.apiKey
}

// Send issues the GET request and returns the HTTP status code. A
// non-2xx status is returned together with an error carrying the start
// of the response body. Nothing is retried.
func (c *Client) Send(ctx context.Context, message string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(message), nil)
	if err != nil {
		return 0, fmt.Errorf("build notification request: %w", err)
	}

	c.logger.Info("sending whatsapp notification")
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("notification request failed", "error", err)
		return 0, fmt.Errorf("notification request: %w", err)
	}

	c.logger.Info("notification response", "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := httpkit.ReadErrorBody(resp.Body, 256)
		return resp.StatusCode, fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, body)
	}
	httpkit.DrainAndClose(resp.Body, 64*1024)
	return resp.StatusCode, nil
}
