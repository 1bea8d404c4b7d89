package server

import (
	"parley/internal/domain"
	"parley/internal/engine"
)

// Request payloads

type InitThreadRequest struct {
	ProposalTitle         string `json:"proposal_title"`
	Location              string `json:"location"`
	SustainabilityContext string `json:"sustainability_context,omitempty"`
	IndigenousContext     string `json:"indigenous_context,omitempty"`
	EmailSender           string `json:"email_sender,omitempty"`
	MeetingOrganizer      string `json:"meeting_organizer,omitempty"`
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

type UpdateThreadConfigRequest struct {
	EmailSender      string `json:"email_sender,omitempty"`
	MeetingOrganizer string `json:"meeting_organizer,omitempty"`
}

type RequestActionRequest struct {
	ActionType     string `json:"action_type" enum:"send_email,schedule_meeting,full_outreach,delete_contact"`
	ContactAddress string `json:"contact_address,omitempty"`
	EventTypeName  string `json:"event_type_name,omitempty"`
}

type ConfirmActionRequest struct {
	Approved bool `json:"approved"`
}

type AskAgentRequest struct {
	Message   string   `json:"message"`
	Context   string   `json:"context,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Response payloads

type InitThreadResponse struct {
	ThreadID         string               `json:"thread_id"`
	ProposalTitle    string               `json:"proposal_title"`
	Location         string               `json:"location"`
	EmailSender      string               `json:"email_sender"`
	MeetingOrganizer string               `json:"meeting_organizer"`
	Instructions     []domain.Instruction `json:"instructions"`
	StakeholderCount int                  `json:"stakeholder_count"`
	Status           string               `json:"status"`
}

type ThreadListResponse struct {
	Count   int                    `json:"count"`
	Threads []domain.ThreadSummary `json:"threads"`
}

type DeleteThreadResponse struct {
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
}

type UpdateThreadConfigResponse struct {
	ThreadID         string               `json:"thread_id"`
	EmailSender      string               `json:"email_sender"`
	MeetingOrganizer string               `json:"meeting_organizer"`
	Instructions     []domain.Instruction `json:"instructions"`
	Summary          domain.ThreadSummary `json:"summary"`
}

type PendingActionsResponse struct {
	PendingCount  int                    `json:"pending_count"`
	ExecutedCount int                    `json:"executed_count"`
	RejectedCount int                    `json:"rejected_count"`
	Pending       []domain.PendingAction `json:"pending"`
}

type SweepActionsResponse struct {
	Removed int `json:"removed"`
}

type ConfirmActionResponse struct {
	Action  domain.PendingAction    `json:"action"`
	Report  *domain.ExecutionReport `json:"report,omitempty"`
	Message string                  `json:"message"`
}

type AskAgentResponse struct {
	Agent    string `json:"agent"`
	Response string `json:"response"`
}

type AgentListResponse struct {
	Agents []string `json:"agents"`
}

func initThreadResponse(snap domain.ThreadSnapshot) InitThreadResponse {
	return InitThreadResponse{
		ThreadID:         snap.ThreadID,
		ProposalTitle:    snap.ProposalTitle,
		Location:         snap.Location,
		EmailSender:      snap.EmailSender,
		MeetingOrganizer: snap.MeetingOrganizer,
		Instructions:     snap.Instructions,
		StakeholderCount: len(snap.Stakeholders),
		Status:           "initialized",
	}
}

func summaryFromSnapshot(snap domain.ThreadSnapshot) domain.ThreadSummary {
	emails, meetings := 0, 0
	for _, inst := range snap.Instructions {
		switch inst.Type {
		case domain.InstructionEmail:
			emails++
		case domain.InstructionMeeting:
			meetings++
		}
	}
	return domain.ThreadSummary{
		ThreadID:         snap.ThreadID,
		ProposalTitle:    snap.ProposalTitle,
		Location:         snap.Location,
		EmailSender:      snap.EmailSender,
		MeetingOrganizer: snap.MeetingOrganizer,
		StakeholderCount: len(snap.Stakeholders),
		EmailCount:       emails,
		MeetingCount:     meetings,
		InstructionCount: len(snap.Instructions),
		CreatedAt:        snap.CreatedAt,
		LastUpdated:      snap.LastUpdated,
	}
}

func confirmActionResponse(result engine.ConfirmResult) ConfirmActionResponse {
	return ConfirmActionResponse{
		Action:  result.Action,
		Report:  result.Report,
		Message: result.Message,
	}
}
