// Package engine coordinates the workflow store, the confirmation gate, the
// executor, and the specialized agents behind one API surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parley/internal/adapters"
	"parley/internal/agents"
	"parley/internal/audit"
	"parley/internal/confirm"
	"parley/internal/domain"
	"parley/internal/executor"
	"parley/internal/workflow"
)

// ErrInvalid marks request validation failures.
var ErrInvalid = errors.New("invalid request")

// defaultEventType is the calendar event type used when a full outreach
// request does not name one.
const defaultEventType = "Consultation Meeting"

// Engine is the orchestration core. All thread mutations go through the
// store lock so a mutation and its regeneration are one atomic step.
type Engine struct {
	Store  *workflow.Store
	Gate   *confirm.Gate
	Exec   *executor.Executor
	Gen    workflow.Generator
	Agents *agents.Registry
	Geo    adapters.GeoScorer
	Audit  *audit.Log
	Logger *zap.Logger

	// Thread defaults applied at init when the request leaves them blank.
	DefaultSender    string
	DefaultOrganizer string
	StarterContacts  bool

	Now func() time.Time
}

// Options carries the collaborators for New.
type Options struct {
	Generator        workflow.Generator
	Executor         *executor.Executor
	Agents           *agents.Registry
	Geo              adapters.GeoScorer
	Audit            *audit.Log
	Logger           *zap.Logger
	DefaultSender    string
	DefaultOrganizer string
	StarterContacts  bool
}

// New assembles an engine with fresh store and gate state.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exec := opts.Executor
	if exec == nil {
		exec = executor.New(nil, nil, nil, logger)
	}
	return &Engine{
		Store:            workflow.NewStore(),
		Gate:             confirm.NewGate(),
		Exec:             exec,
		Gen:              opts.Generator,
		Agents:           opts.Agents,
		Geo:              opts.Geo,
		Audit:            opts.Audit,
		Logger:           logger,
		DefaultSender:    opts.DefaultSender,
		DefaultOrganizer: opts.DefaultOrganizer,
		StarterContacts:  opts.StarterContacts,
	}
}

func (e *Engine) record(ctx context.Context, evtType, threadID, entityKind, entityID, actor string, payload audit.Payload) {
	if e.Audit == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}
	if err := e.Audit.Append(ctx, evtType, threadID, entityKind, entityID, actor, payload); err != nil {
		e.Logger.Warn("audit append failed", zap.String("type", evtType), zap.Error(err))
	}
}

// InitRequest is the caller-supplied proposal context for a new thread.
type InitRequest struct {
	ProposalTitle         string
	Location              string
	SustainabilityContext string
	IndigenousContext     string
	EmailSender           string
	MeetingOrganizer      string
}

// InitThread creates a thread, seeds the starter stakeholder registry, and
// generates the initial instruction list.
func (e *Engine) InitThread(ctx context.Context, actor string, req InitRequest) (domain.ThreadSnapshot, error) {
	if strings.TrimSpace(req.ProposalTitle) == "" {
		return domain.ThreadSnapshot{}, fmt.Errorf("%w: proposal_title is required", ErrInvalid)
	}
	if strings.TrimSpace(req.Location) == "" {
		return domain.ThreadSnapshot{}, fmt.Errorf("%w: location is required", ErrInvalid)
	}

	sender := req.EmailSender
	if sender == "" {
		sender = e.DefaultSender
	}
	organizer := req.MeetingOrganizer
	if organizer == "" {
		organizer = e.DefaultOrganizer
	}

	threadID := "proposal-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	_, err := e.Store.Create(workflow.ThreadOptions{
		ID:                    threadID,
		ProposalTitle:         req.ProposalTitle,
		Location:              req.Location,
		SustainabilityContext: req.SustainabilityContext,
		IndigenousContext:     req.IndigenousContext,
		EmailSender:           sender,
		MeetingOrganizer:      organizer,
	})
	if err != nil {
		return domain.ThreadSnapshot{}, err
	}

	var snap domain.ThreadSnapshot
	err = e.Store.WithThread(threadID, func(t *workflow.Thread) error {
		t.AddMessage("system", fmt.Sprintf("Workflow initialized for: %s", req.ProposalTitle))
		if e.StarterContacts {
			seedStakeholders(t, req.Location)
		}
		e.Gen.Regenerate(ctx, t)
		snap = t.Snapshot()
		return nil
	})
	if err != nil {
		return domain.ThreadSnapshot{}, err
	}

	e.Logger.Info("thread initialized",
		zap.String("thread_id", threadID),
		zap.String("proposal", req.ProposalTitle),
		zap.Int("stakeholders", len(snap.Stakeholders)))
	e.record(ctx, "thread.initialized", threadID, "thread", threadID, actor, audit.Payload{
		"proposal_title": req.ProposalTitle,
		"location":       req.Location,
	})
	return snap, nil
}

// seedStakeholders adds the three example contacts a fresh thread starts
// with, localizing the community liaison to the location's first segment.
func seedStakeholders(t *workflow.Thread, location string) {
	locationName := location
	if i := strings.Index(location, ","); i >= 0 {
		locationName = location[:i]
	}
	t.UpsertStakeholder("sustainability.lead@example.ca", "Sustainability Lead",
		"Oversee environmental compliance and green initiatives", domain.EngagementBoth)
	t.UpsertStakeholder("indigenous.relations@example.ca", "Indigenous Relations Officer",
		"Ensure consultation and respect for traditional land stewardship", domain.EngagementBoth)
	t.UpsertStakeholder("community.liaison@example.ca", "Community Liaison",
		fmt.Sprintf("Coordinate with %s residents and local stakeholders", locationName), domain.EngagementBoth)
}

// MessageResult is what a chat turn returns: the parser's acknowledgement
// plus the freshly regenerated instruction list.
type MessageResult struct {
	ThreadID         string               `json:"thread_id"`
	UserMessage      string               `json:"user_message"`
	Response         string               `json:"response"`
	Instructions     []domain.Instruction `json:"instructions"`
	StakeholderCount int                  `json:"stakeholder_count"`
	EmailCount       int                  `json:"email_count"`
	MeetingCount     int                  `json:"meeting_count"`
	Summary          domain.ThreadSummary `json:"summary"`
}

// PostMessage records a chat message, applies at most one stakeholder
// mutation parsed from it, and regenerates the instruction list. The parse,
// the mutation, and the regeneration happen under the thread lock.
func (e *Engine) PostMessage(ctx context.Context, actor, threadID, message string) (MessageResult, error) {
	if strings.TrimSpace(message) == "" {
		return MessageResult{}, fmt.Errorf("%w: message is required", ErrInvalid)
	}

	var result MessageResult
	err := e.Store.WithThread(threadID, func(t *workflow.Thread) error {
		t.AddMessage("user", message)
		intent := workflow.ParseIntent(message)
		response := e.applyIntent(t, intent)
		instructions := e.Gen.Regenerate(ctx, t)

		emails, meetings := 0, 0
		for _, inst := range instructions {
			switch inst.Type {
			case domain.InstructionEmail:
				emails++
			case domain.InstructionMeeting:
				meetings++
			}
		}
		result = MessageResult{
			ThreadID:         t.ID,
			UserMessage:      message,
			Response:         response,
			Instructions:     instructions,
			StakeholderCount: t.StakeholderCount(),
			EmailCount:       emails,
			MeetingCount:     meetings,
			Summary:          t.Summary(),
		}
		return nil
	})
	if err != nil {
		return MessageResult{}, err
	}

	e.record(ctx, "thread.message", threadID, "message", "", actor, audit.Payload{
		"message":  message,
		"response": result.Response,
	})
	return result, nil
}

// applyIntent performs the parsed mutation and returns the acknowledgement
// text. Unrecognized intents mutate nothing.
func (e *Engine) applyIntent(t *workflow.Thread, intent workflow.Intent) string {
	switch intent.Kind {
	case workflow.IntentAddStakeholder:
		t.UpsertStakeholder(intent.Address, intent.Role, intent.Context, domain.EngagementBoth)
		response := fmt.Sprintf("✓ Added %s (%s)", intent.Role, intent.Address)
		if intent.Context != "" {
			response += " - " + intent.Context
		}
		return response

	case workflow.IntentBookMeeting:
		t.UpsertStakeholder(intent.Address, intent.Role, intent.Context, domain.EngagementMeeting)
		response := fmt.Sprintf("✓ Scheduled meeting with %s (%s)", intent.Role, intent.Address)
		if intent.Context != "" {
			response += " regarding " + intent.Context
		}
		return response

	case workflow.IntentRemoveStakeholder:
		s, ok := t.Stakeholder(intent.Address)
		if !ok {
			return fmt.Sprintf("Email %s not found in stakeholders", intent.Address)
		}
		t.RemoveStakeholder(intent.Address)
		return fmt.Sprintf("✓ Removed %s (%s)", s.Role, s.Address)

	case workflow.IntentUpdateSender:
		t.SetSender(intent.Address)
		return fmt.Sprintf("✓ Updated email sender to %s", intent.Address)

	case workflow.IntentUpdateOrganizer:
		t.SetOrganizer(intent.Address)
		return fmt.Sprintf("✓ Updated meeting organizer to %s", intent.Address)
	}
	return intent.Help
}

// UpdateConfig swaps the thread's sender and/or organizer and regenerates.
// Empty fields are left unchanged.
func (e *Engine) UpdateConfig(ctx context.Context, actor, threadID, sender, organizer string) (domain.ThreadSnapshot, error) {
	if sender == "" && organizer == "" {
		return domain.ThreadSnapshot{}, fmt.Errorf("%w: nothing to update", ErrInvalid)
	}
	var snap domain.ThreadSnapshot
	err := e.Store.WithThread(threadID, func(t *workflow.Thread) error {
		if sender != "" {
			t.SetSender(sender)
		}
		if organizer != "" {
			t.SetOrganizer(organizer)
		}
		e.Gen.Regenerate(ctx, t)
		snap = t.Snapshot()
		return nil
	})
	if err != nil {
		return domain.ThreadSnapshot{}, err
	}
	e.record(ctx, "thread.config_updated", threadID, "thread", threadID, actor, audit.Payload{
		"email_sender":      sender,
		"meeting_organizer": organizer,
	})
	return snap, nil
}

// Status returns the full thread state.
func (e *Engine) Status(threadID string) (domain.ThreadSnapshot, error) {
	return e.Store.Snapshot(threadID)
}

// ListThreads returns summaries in creation order.
func (e *Engine) ListThreads() []domain.ThreadSummary {
	return e.Store.List()
}

// DeleteThread removes a thread.
func (e *Engine) DeleteThread(ctx context.Context, actor, threadID string) error {
	if !e.Store.Delete(threadID) {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, threadID)
	}
	e.record(ctx, "thread.deleted", threadID, "thread", threadID, actor, nil)
	return nil
}

// RequestAction stages a confirmable batch action derived from the thread's
// current instruction list. Nothing executes until an explicit approval.
// Scheduling actions need an event-type name; full outreach falls back to
// the stock consultation event type when none is given.
func (e *Engine) RequestAction(ctx context.Context, actor, threadID string, actionType domain.ActionType, contactAddress, eventTypeName string) (domain.PendingAction, error) {
	if !actionType.Valid() {
		return domain.PendingAction{}, fmt.Errorf("%w: unknown action type %q", ErrInvalid, actionType)
	}

	var (
		description string
		details     = domain.ActionDetails{ThreadID: threadID}
	)
	err := e.Store.WithThread(threadID, func(t *workflow.Thread) error {
		switch actionType {
		case domain.ActionSendEmail:
			for _, inst := range t.Instructions {
				if inst.Type == domain.InstructionEmail {
					details.Recipients = append(details.Recipients, inst.Target)
				}
			}
			description = fmt.Sprintf("Send %d consultation emails for %s", len(details.Recipients), t.ProposalTitle)

		case domain.ActionScheduleMeeting:
			if eventTypeName == "" {
				return fmt.Errorf("%w: event_type_name is required for schedule_meeting", ErrInvalid)
			}
			details.EventTypeName = eventTypeName
			for _, inst := range t.Instructions {
				if inst.Type == domain.InstructionMeeting {
					details.Recipients = append(details.Recipients, inst.Metadata.AttendeeAddress)
				}
			}
			description = fmt.Sprintf("Schedule %d %s meetings for %s", len(details.Recipients), eventTypeName, t.ProposalTitle)

		case domain.ActionFullOutreach:
			if eventTypeName == "" {
				eventTypeName = defaultEventType
			}
			details.EventTypeName = eventTypeName
			description = fmt.Sprintf("Execute full outreach workflow for %s: %d instructions", t.ProposalTitle, len(t.Instructions))

		case domain.ActionDeleteContact:
			if contactAddress == "" {
				return fmt.Errorf("%w: contact_address is required for delete_contact", ErrInvalid)
			}
			s, ok := t.Stakeholder(contactAddress)
			if !ok {
				return fmt.Errorf("%w: %s", workflow.ErrNotFound, contactAddress)
			}
			details.ContactAddress = s.Address
			description = fmt.Sprintf("Remove %s (%s) from %s", s.Role, s.Address, t.ProposalTitle)
		}
		return nil
	})
	if err != nil {
		return domain.PendingAction{}, err
	}

	actionID := fmt.Sprintf("%s_%s", actionType, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	action := e.Gate.Request(actionID, actionType, description, details)
	e.record(ctx, "action.requested", threadID, "action", actionID, actor, audit.Payload{
		"action_type": string(actionType),
		"description": description,
	})
	return action, nil
}

// ConfirmResult is the outcome of an approval or rejection. Report is only
// set when an approval actually executed instructions.
type ConfirmResult struct {
	Action  domain.PendingAction    `json:"action"`
	Report  *domain.ExecutionReport `json:"report,omitempty"`
	Message string                  `json:"message"`
}

// ConfirmAction resolves a pending action. Rejection records the decision
// and nothing runs. Approval executes the instruction subset the action
// covers and posts the outcome to the thread's chat history.
func (e *Engine) ConfirmAction(ctx context.Context, actor, actionID string, approved bool) (ConfirmResult, error) {
	var (
		action domain.PendingAction
		err    error
	)
	if approved {
		// An approval on a vanished thread must not consume the action:
		// verify the thread first, so the caller can still reject it.
		pending, gerr := e.Gate.Get(actionID)
		if gerr != nil {
			return ConfirmResult{}, gerr
		}
		if _, serr := e.Store.Snapshot(pending.Details.ThreadID); serr != nil {
			return ConfirmResult{}, serr
		}
		action, err = e.Gate.Approve(actionID)
	} else {
		action, err = e.Gate.Reject(actionID)
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	decision := "rejected"
	if approved {
		decision = "approved"
	}
	e.record(ctx, "action."+decision, action.Details.ThreadID, "action", actionID, actor, audit.Payload{
		"action_type": string(action.Type),
	})

	if !approved {
		return ConfirmResult{
			Action:  action,
			Message: fmt.Sprintf("Action %s rejected; nothing was executed", actionID),
		}, nil
	}

	report, err := e.runApproved(ctx, action)
	if err != nil {
		return ConfirmResult{}, err
	}
	result := ConfirmResult{Action: action, Report: report}
	if report != nil {
		result.Message = fmt.Sprintf("Workflow executed: %d successful, %d failed", report.Executed, report.Failed)
		e.record(ctx, "workflow.executed", action.Details.ThreadID, "action", actionID, actor, audit.Payload{
			"executed": report.Executed,
			"failed":   report.Failed,
			"total":    report.Total,
		})
	} else {
		result.Message = fmt.Sprintf("Action %s applied", actionID)
	}
	return result, nil
}

// runApproved performs the side effects of an approved action under the
// thread lock, so instruction statuses and regeneration stay consistent.
func (e *Engine) runApproved(ctx context.Context, action domain.PendingAction) (*domain.ExecutionReport, error) {
	threadID := action.Details.ThreadID

	if action.Type == domain.ActionDeleteContact {
		err := e.Store.WithThread(threadID, func(t *workflow.Thread) error {
			t.RemoveStakeholder(action.Details.ContactAddress)
			e.Gen.Regenerate(ctx, t)
			t.AddMessage("system", fmt.Sprintf("Contact %s removed via confirmed action", action.Details.ContactAddress))
			return nil
		})
		return nil, err
	}

	var report domain.ExecutionReport
	err := e.Store.WithThread(threadID, func(t *workflow.Thread) error {
		batch := make([]*domain.Instruction, 0, len(t.Instructions))
		for i := range t.Instructions {
			inst := &t.Instructions[i]
			switch action.Type {
			case domain.ActionSendEmail:
				if inst.Type != domain.InstructionEmail {
					continue
				}
			case domain.ActionScheduleMeeting:
				if inst.Type != domain.InstructionMeeting {
					continue
				}
			}
			batch = append(batch, inst)
		}
		report = e.Exec.ExecuteAll(ctx, threadID, batch, t.EmailSender, t.MeetingOrganizer, action.Details.EventTypeName)
		t.AddMessage("system", fmt.Sprintf("Workflow executed: %d successful, %d failed", report.Executed, report.Failed))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// PendingActions lists undecided confirmations in request order.
func (e *Engine) PendingActions() []domain.PendingAction {
	return e.Gate.Pending()
}

// GetAction returns one confirmation record.
func (e *Engine) GetAction(actionID string) (domain.PendingAction, error) {
	return e.Gate.Get(actionID)
}

// SweepActions purges terminal confirmation records.
func (e *Engine) SweepActions(ctx context.Context, actor string) int {
	removed := e.Gate.Sweep()
	e.record(ctx, "actions.swept", "", "gate", "", actor, audit.Payload{"removed": removed})
	return removed
}

// GateStats reports confirmation counters.
func (e *Engine) GateStats() confirm.Summary {
	return e.Gate.Stats()
}

// AskAgent routes a question to one of the specialized agents. When
// coordinates are supplied and a geo oracle is wired, its score enriches the
// context the agent sees.
func (e *Engine) AskAgent(ctx context.Context, actor, name, message, contextText string, lat, lon *float64) (string, error) {
	if e.Agents == nil {
		return "", fmt.Errorf("%w: no agents configured", ErrInvalid)
	}
	agent, ok := e.Agents.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: unknown agent %q (available: %s)", ErrInvalid, name, strings.Join(e.Agents.Names(), ", "))
	}

	if lat != nil && lon != nil && e.Geo != nil {
		if score, err := e.Geo.Score(ctx, *lat, *lon); err == nil {
			contextText = strings.TrimSpace(contextText + "\n" + formatGeoScore(score))
		} else {
			e.Logger.Warn("geo score lookup failed", zap.Float64("lat", *lat), zap.Float64("lon", *lon), zap.Error(err))
		}
	}

	answer := agent.Respond(ctx, message, contextText)
	e.record(ctx, "agent.asked", "", "agent", name, actor, audit.Payload{"message": message})
	return answer, nil
}

func formatGeoScore(score domain.GeoScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Site suitability score: %.1f", score.TotalScore)
	if len(score.NearestFeatures) > 0 {
		fmt.Fprintf(&b, "\nNearby features: %s", strings.Join(score.NearestFeatures, ", "))
	}
	if len(score.Recommendations) > 0 {
		fmt.Fprintf(&b, "\nRecommendations: %s", strings.Join(score.Recommendations, "; "))
	}
	return b.String()
}
