package domain

// EngagementType says what outreach a stakeholder gets.
type EngagementType string

const (
	EngagementBoth    EngagementType = "both"
	EngagementEmail   EngagementType = "email"
	EngagementMeeting EngagementType = "meeting"
)

// Valid reports whether t is a known engagement type.
func (t EngagementType) Valid() bool {
	switch t {
	case EngagementBoth, EngagementEmail, EngagementMeeting:
		return true
	}
	return false
}

// IncludesEmail reports whether an email instruction should be generated.
func (t EngagementType) IncludesEmail() bool {
	return t == EngagementBoth || t == EngagementEmail
}

// IncludesMeeting reports whether a meeting instruction should be generated.
func (t EngagementType) IncludesMeeting() bool {
	return t == EngagementBoth || t == EngagementMeeting
}

// Stakeholder is an external contact to be consulted, keyed by address
// within its thread.
type Stakeholder struct {
	Address    string         `json:"address"`
	Role       string         `json:"role"`
	Context    string         `json:"context,omitempty"`
	Engagement EngagementType `json:"engagement" enum:"both,email,meeting"`
	AddedAt    string         `json:"added_at" format:"date-time"`
}

type InstructionType string

const (
	InstructionEmail     InstructionType = "email"
	InstructionMeeting   InstructionType = "meeting"
	InstructionSlack     InstructionType = "slack"
	InstructionMilestone InstructionType = "milestone"
)

type InstructionStatus string

const (
	StatusPending  InstructionStatus = "pending"
	StatusExecuted InstructionStatus = "executed"
	StatusFailed   InstructionStatus = "failed"
)

// InstructionMeta carries per-type extras: attendee info for meetings,
// role/context for emails.
type InstructionMeta struct {
	Role            string `json:"role,omitempty"`
	Context         string `json:"context,omitempty"`
	AttendeeAddress string `json:"attendee_address,omitempty"`
	AttendeeRole    string `json:"attendee_role,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// Instruction is one planned side-effecting action. Instructions only exist
// inside the generation pass that produced them: any thread mutation
// replaces the whole list, ids included.
type Instruction struct {
	ID       string            `json:"id"`
	Type     InstructionType   `json:"type" enum:"email,meeting,slack,milestone"`
	Target   string            `json:"target"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Status   InstructionStatus `json:"status" enum:"pending,executed,failed"`
	Metadata InstructionMeta   `json:"metadata"`
}

// Message is one entry in a thread's chat history.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

// ThreadSnapshot is the full serialized state of a workflow thread.
type ThreadSnapshot struct {
	ThreadID              string        `json:"thread_id"`
	ProposalTitle         string        `json:"proposal_title"`
	Location              string        `json:"location"`
	SustainabilityContext string        `json:"sustainability_context,omitempty"`
	IndigenousContext     string        `json:"indigenous_context,omitempty"`
	EmailSender           string        `json:"email_sender"`
	MeetingOrganizer      string        `json:"meeting_organizer"`
	Stakeholders          []Stakeholder `json:"stakeholders"`
	Instructions          []Instruction `json:"instructions"`
	MessageHistory        []Message     `json:"message_history"`
	CreatedAt             string        `json:"created_at" format:"date-time"`
	LastUpdated           string        `json:"last_updated" format:"date-time"`
}

// ThreadSummary is the listing view of a thread.
type ThreadSummary struct {
	ThreadID         string `json:"thread_id"`
	ProposalTitle    string `json:"proposal_title"`
	Location         string `json:"location"`
	EmailSender      string `json:"email_sender"`
	MeetingOrganizer string `json:"meeting_organizer"`
	StakeholderCount int    `json:"stakeholder_count"`
	EmailCount       int    `json:"email_count"`
	MeetingCount     int    `json:"meeting_count"`
	InstructionCount int    `json:"instruction_count"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	LastUpdated      string `json:"last_updated" format:"date-time"`
}

// ActionType classifies a confirmable batch action.
type ActionType string

const (
	ActionSendEmail       ActionType = "send_email"
	ActionScheduleMeeting ActionType = "schedule_meeting"
	ActionFullOutreach    ActionType = "full_outreach"
	ActionDeleteContact   ActionType = "delete_contact"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionSendEmail, ActionScheduleMeeting, ActionFullOutreach, ActionDeleteContact:
		return true
	}
	return false
}

// ActionDetails is the payload captured when an action is requested; the
// engine re-reads it at approval time.
type ActionDetails struct {
	ThreadID       string   `json:"thread_id"`
	Recipients     []string `json:"recipients,omitempty"`
	ContactAddress string   `json:"contact_address,omitempty"`
	EventTypeName  string   `json:"event_type_name,omitempty"`
}

// PendingAction is a confirmation-gate record. At most one of Confirmed and
// Rejected ever becomes true; either makes the record terminal.
type PendingAction struct {
	ActionID    string        `json:"action_id"`
	Type        ActionType    `json:"action_type" enum:"send_email,schedule_meeting,full_outreach,delete_contact"`
	Description string        `json:"description"`
	Details     ActionDetails `json:"details"`
	Confirmed   bool          `json:"confirmed"`
	Rejected    bool          `json:"rejected"`
	RequestedAt string        `json:"requested_at" format:"date-time"`
}

// ExecutionResult is the per-instruction outcome of a workflow run.
type ExecutionResult struct {
	InstructionID string          `json:"instruction_id"`
	Type          InstructionType `json:"type"`
	Target        string          `json:"target"`
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	Error         string          `json:"error,omitempty"`
	Timestamp     string          `json:"timestamp" format:"date-time"`
}

// ExecutionReport aggregates a full batch run. Every instruction in the
// batch appears exactly once in Results.
type ExecutionReport struct {
	ThreadID    string            `json:"thread_id"`
	Total       int               `json:"total"`
	Executed    int               `json:"executed"`
	Failed      int               `json:"failed"`
	SuccessRate string            `json:"success_rate"`
	Results     []ExecutionResult `json:"results"`
	Timestamp   string            `json:"timestamp" format:"date-time"`
}

// GeoScore is the read-only geospatial oracle result used to enrich agent
// prompts.
type GeoScore struct {
	TotalScore      float64            `json:"total_score"`
	ComponentScores map[string]float64 `json:"component_scores"`
	NearestFeatures []string           `json:"nearest_features"`
	Recommendations []string           `json:"recommendations"`
}
