package parleysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Parley HTTP API client.
type Client struct {
	BaseURL     string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Instruction is one planned outreach action.
type Instruction struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Target   string         `json:"target"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Thread is the full workflow thread state.
type Thread struct {
	ThreadID         string           `json:"thread_id"`
	ProposalTitle    string           `json:"proposal_title"`
	Location         string           `json:"location"`
	EmailSender      string           `json:"email_sender"`
	MeetingOrganizer string           `json:"meeting_organizer"`
	Stakeholders     []map[string]any `json:"stakeholders"`
	Instructions     []Instruction    `json:"instructions"`
	MessageHistory   []map[string]any `json:"message_history"`
	CreatedAt        string           `json:"created_at"`
	LastUpdated      string           `json:"last_updated"`
}

// ThreadSummary is the listing view.
type ThreadSummary struct {
	ThreadID         string `json:"thread_id"`
	ProposalTitle    string `json:"proposal_title"`
	Location         string `json:"location"`
	StakeholderCount int    `json:"stakeholder_count"`
	InstructionCount int    `json:"instruction_count"`
	LastUpdated      string `json:"last_updated"`
}

// InitThreadResult is the creation response.
type InitThreadResult struct {
	ThreadID         string        `json:"thread_id"`
	ProposalTitle    string        `json:"proposal_title"`
	Location         string        `json:"location"`
	EmailSender      string        `json:"email_sender"`
	MeetingOrganizer string        `json:"meeting_organizer"`
	Instructions     []Instruction `json:"instructions"`
	StakeholderCount int           `json:"stakeholder_count"`
	Status           string        `json:"status"`
}

// MessageResult is a chat turn response.
type MessageResult struct {
	ThreadID         string        `json:"thread_id"`
	UserMessage      string        `json:"user_message"`
	Response         string        `json:"response"`
	Instructions     []Instruction `json:"instructions"`
	StakeholderCount int           `json:"stakeholder_count"`
	EmailCount       int           `json:"email_count"`
	MeetingCount     int           `json:"meeting_count"`
}

// PendingAction is a confirmation-gate record.
type PendingAction struct {
	ActionID    string         `json:"action_id"`
	Type        string         `json:"action_type"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
	Confirmed   bool           `json:"confirmed"`
	Rejected    bool           `json:"rejected"`
	RequestedAt string         `json:"requested_at"`
}

// ExecutionReport aggregates a workflow run.
type ExecutionReport struct {
	ThreadID    string           `json:"thread_id"`
	Total       int              `json:"total"`
	Executed    int              `json:"executed"`
	Failed      int              `json:"failed"`
	SuccessRate string           `json:"success_rate"`
	Results     []map[string]any `json:"results"`
	Timestamp   string           `json:"timestamp"`
}

// ConfirmResult is the outcome of approving or rejecting an action.
type ConfirmResult struct {
	Action  PendingAction    `json:"action"`
	Report  *ExecutionReport `json:"report,omitempty"`
	Message string           `json:"message"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// InitThread creates a workflow thread.
func (c *Client) InitThread(ctx context.Context, proposalTitle, location, sustainabilityContext, indigenousContext string) (InitThreadResult, error) {
	body := map[string]any{
		"proposal_title":         proposalTitle,
		"location":               location,
		"sustainability_context": sustainabilityContext,
		"indigenous_context":     indigenousContext,
	}
	var resp InitThreadResult
	err := c.do(ctx, http.MethodPost, "v0/threads", body, &resp)
	return resp, err
}

// ListThreads returns thread summaries.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	var resp struct {
		Count   int             `json:"count"`
		Threads []ThreadSummary `json:"threads"`
	}
	err := c.do(ctx, http.MethodGet, "v0/threads", nil, &resp)
	return resp.Threads, err
}

// GetThread fetches full thread state.
func (c *Client) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var resp Thread
	err := c.do(ctx, http.MethodGet, "v0/threads/"+url.PathEscape(threadID), nil, &resp)
	return resp, err
}

// DeleteThread removes a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodDelete, "v0/threads/"+url.PathEscape(threadID), nil, nil)
}

// PostMessage sends a chat message and returns the regenerated plan.
func (c *Client) PostMessage(ctx context.Context, threadID, message string) (MessageResult, error) {
	var resp MessageResult
	endpoint := fmt.Sprintf("v0/threads/%s/messages", url.PathEscape(threadID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"message": message}, &resp)
	return resp, err
}

// UpdateThreadConfig changes the thread's sender and/or organizer.
func (c *Client) UpdateThreadConfig(ctx context.Context, threadID, emailSender, meetingOrganizer string) (Thread, error) {
	body := map[string]any{}
	if emailSender != "" {
		body["email_sender"] = emailSender
	}
	if meetingOrganizer != "" {
		body["meeting_organizer"] = meetingOrganizer
	}
	var resp Thread
	endpoint := fmt.Sprintf("v0/threads/%s/config", url.PathEscape(threadID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// RequestAction stages a confirmable batch action. eventTypeName names the
// calendar event type for scheduling actions and is required by the server
// for schedule_meeting.
func (c *Client) RequestAction(ctx context.Context, threadID, actionType, contactAddress, eventTypeName string) (PendingAction, error) {
	body := map[string]any{"action_type": actionType}
	if contactAddress != "" {
		body["contact_address"] = contactAddress
	}
	if eventTypeName != "" {
		body["event_type_name"] = eventTypeName
	}
	var resp PendingAction
	endpoint := fmt.Sprintf("v0/threads/%s/actions", url.PathEscape(threadID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ConfirmAction approves or rejects a pending action.
func (c *Client) ConfirmAction(ctx context.Context, actionID string, approved bool) (ConfirmResult, error) {
	var resp ConfirmResult
	endpoint := fmt.Sprintf("v0/actions/%s/confirm", url.PathEscape(actionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"approved": approved}, &resp)
	return resp, err
}

// PendingActions lists undecided confirmations.
func (c *Client) PendingActions(ctx context.Context) ([]PendingAction, error) {
	var resp struct {
		Pending []PendingAction `json:"pending"`
	}
	err := c.do(ctx, http.MethodGet, "v0/actions", nil, &resp)
	return resp.Pending, err
}

// SweepActions purges resolved confirmations.
func (c *Client) SweepActions(ctx context.Context) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "v0/actions/sweep", map[string]any{}, &resp)
	return resp.Removed, err
}

// AskAgent routes a question to a specialized agent.
func (c *Client) AskAgent(ctx context.Context, agent, message, contextText string, lat, lon *float64) (string, error) {
	body := map[string]any{"message": message}
	if contextText != "" {
		body["context"] = contextText
	}
	if lat != nil && lon != nil {
		body["latitude"] = *lat
		body["longitude"] = *lon
	}
	var resp struct {
		Agent    string `json:"agent"`
		Response string `json:"response"`
	}
	endpoint := fmt.Sprintf("v0/agents/%s/ask", url.PathEscape(agent))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Response, err
}

// Health checks the API.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "v0/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
