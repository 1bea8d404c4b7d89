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

	"parley/internal/executor"
)

// CalendarClient books meetings through a scheduling API (Calendly-style
// REST surface: POST /meetings with a bearer token).
type CalendarClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewCalendarClient builds a client for the given API base.
func NewCalendarClient(baseURL, token string) *CalendarClient {
	return &CalendarClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type meetingRequest struct {
	Organizer       string `json:"organizer"`
	Invitee         string `json:"invitee"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
}

type meetingResponse struct {
	EventID string `json:"event_id"`
	Link    string `json:"link"`
}

// CreateMeeting books a meeting on the organizer's calendar and invites the
// stakeholder.
func (c *CalendarClient) CreateMeeting(ctx context.Context, organizer, invitee, title, description string, durationMinutes int) (executor.MeetingReceipt, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return executor.MeetingReceipt{}, fmt.Errorf("calendar api not configured")
	}
	data, err := json.Marshal(meetingRequest{
		Organizer:       organizer,
		Invitee:         invitee,
		Title:           title,
		Description:     description,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return executor.MeetingReceipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/meetings", bytes.NewReader(data))
	if err != nil {
		return executor.MeetingReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	res, err := c.client().Do(req)
	if err != nil {
		return executor.MeetingReceipt{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return executor.MeetingReceipt{}, fmt.Errorf("calendar api status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out meetingResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return executor.MeetingReceipt{}, fmt.Errorf("decode calendar response: %w", err)
	}
	return executor.MeetingReceipt{EventID: out.EventID, Link: out.Link}, nil
}

func (c *CalendarClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}
