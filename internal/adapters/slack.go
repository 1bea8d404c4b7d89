// Package adapters holds the outbound integration clients: email relay,
// calendar API, chat webhook, the Gemini-backed composer, and the geospatial
// scoring oracle. Everything here sits behind the narrow interfaces the core
// packages define, so tests and unconfigured deployments swap in mocks.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 5 * time.Second

// SlackNotifier posts messages to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// NewSlackNotifier builds a notifier for the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type slackPayload struct {
	Text   string `json:"text"`
	Mrkdwn bool   `json:"mrkdwn"`
}

// Post sends text to the webhook. The channel is informational: incoming
// webhooks are bound to a channel at creation time.
func (n *SlackNotifier) Post(ctx context.Context, channel, text string) error {
	if strings.TrimSpace(n.WebhookURL) == "" {
		return fmt.Errorf("slack webhook not configured")
	}
	data, err := json.Marshal(slackPayload{Text: text, Mrkdwn: true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Parley-Channel", channel)
	res, err := n.client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("slack webhook status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (n *SlackNotifier) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
