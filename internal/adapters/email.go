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

// RelayEmailSender delivers mail through an HTTP relay endpoint (the
// deployment fronts the actual provider; this client just posts the
// message).
type RelayEmailSender struct {
	RelayURL string
	Client   *http.Client
}

// NewRelayEmailSender builds a sender for the given relay endpoint.
func NewRelayEmailSender(relayURL string) *RelayEmailSender {
	return &RelayEmailSender{
		RelayURL: relayURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type relayMessage struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send posts one message to the relay.
func (s *RelayEmailSender) Send(ctx context.Context, to, from, subject, body string) error {
	if strings.TrimSpace(s.RelayURL) == "" {
		return fmt.Errorf("email relay not configured")
	}
	data, err := json.Marshal(relayMessage{To: to, From: from, Subject: subject, Body: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RelayURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("email relay status %d: %s", res.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (s *RelayEmailSender) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}
