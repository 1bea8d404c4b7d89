package workflow

import (
	"time"

	"parley/internal/domain"
)

// Thread holds the full in-memory state of one outreach workflow: proposal
// metadata, chat history, the stakeholder registry, and the instruction list
// derived from them. Threads are not safe for concurrent use on their own;
// the Store serializes access.
type Thread struct {
	ID                    string
	ProposalTitle         string
	Location              string
	SustainabilityContext string
	IndigenousContext     string

	EmailSender      string
	MeetingOrganizer string

	Instructions []domain.Instruction
	Messages     []domain.Message

	CreatedAt   string
	LastUpdated string

	Now func() time.Time

	// Registry keyed by address; order preserves insertion so regeneration
	// emits instructions in a stable, testable order.
	stakeholders map[string]*domain.Stakeholder
	order        []string
}

// ThreadOptions are the caller-supplied fields for a new thread.
type ThreadOptions struct {
	ID                    string
	ProposalTitle         string
	Location              string
	SustainabilityContext string
	IndigenousContext     string
	EmailSender           string
	MeetingOrganizer      string
}

// NewThread builds an empty thread. Instruction generation is a separate
// step so callers control when (and with which composer) it happens.
func NewThread(opts ThreadOptions) *Thread {
	t := &Thread{
		ID:                    opts.ID,
		ProposalTitle:         opts.ProposalTitle,
		Location:              opts.Location,
		SustainabilityContext: opts.SustainabilityContext,
		IndigenousContext:     opts.IndigenousContext,
		EmailSender:           opts.EmailSender,
		MeetingOrganizer:      opts.MeetingOrganizer,
		Now:                   time.Now,
		stakeholders:          make(map[string]*domain.Stakeholder),
	}
	now := t.timestamp()
	t.CreatedAt = now
	t.LastUpdated = now
	return t
}

func (t *Thread) timestamp() string {
	if t.Now == nil {
		t.Now = time.Now
	}
	return t.Now().UTC().Format(time.RFC3339)
}

// AddMessage appends to the chat history.
func (t *Thread) AddMessage(role, content string) {
	now := t.timestamp()
	t.Messages = append(t.Messages, domain.Message{Role: role, Content: content, Timestamp: now})
	t.LastUpdated = now
}

// UpsertStakeholder adds or overwrites the registry entry for address.
// Re-adding refreshes role, context, engagement, and added-at but keeps the
// original position in insertion order.
func (t *Thread) UpsertStakeholder(address, role, context string, engagement domain.EngagementType) {
	if !engagement.Valid() {
		engagement = domain.EngagementBoth
	}
	now := t.timestamp()
	if _, ok := t.stakeholders[address]; !ok {
		t.order = append(t.order, address)
	}
	t.stakeholders[address] = &domain.Stakeholder{
		Address:    address,
		Role:       role,
		Context:    context,
		Engagement: engagement,
		AddedAt:    now,
	}
	t.LastUpdated = now
}

// RemoveStakeholder deletes the entry for address, reporting whether it was
// present. Absence is not an error.
func (t *Thread) RemoveStakeholder(address string) bool {
	if _, ok := t.stakeholders[address]; !ok {
		return false
	}
	delete(t.stakeholders, address)
	for i, a := range t.order {
		if a == address {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.LastUpdated = t.timestamp()
	return true
}

// Stakeholder returns a copy of the entry for address, if present.
func (t *Thread) Stakeholder(address string) (domain.Stakeholder, bool) {
	s, ok := t.stakeholders[address]
	if !ok {
		return domain.Stakeholder{}, false
	}
	return *s, true
}

// Stakeholders returns copies of all entries in insertion order.
func (t *Thread) Stakeholders() []domain.Stakeholder {
	out := make([]domain.Stakeholder, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, *t.stakeholders[addr])
	}
	return out
}

// StakeholderCount returns the registry size.
func (t *Thread) StakeholderCount() int { return len(t.order) }

// SetSender updates the outgoing email address and touches the thread.
func (t *Thread) SetSender(address string) {
	t.EmailSender = address
	t.LastUpdated = t.timestamp()
}

// SetOrganizer updates the calendar owner address and touches the thread.
func (t *Thread) SetOrganizer(address string) {
	t.MeetingOrganizer = address
	t.LastUpdated = t.timestamp()
}

// SetInstructions atomically replaces the derived instruction list.
func (t *Thread) SetInstructions(list []domain.Instruction) {
	t.Instructions = list
	t.LastUpdated = t.timestamp()
}

func (t *Thread) countByType(typ domain.InstructionType) int {
	n := 0
	for _, inst := range t.Instructions {
		if inst.Type == typ {
			n++
		}
	}
	return n
}

// Snapshot serializes the whole thread.
func (t *Thread) Snapshot() domain.ThreadSnapshot {
	instructions := make([]domain.Instruction, len(t.Instructions))
	copy(instructions, t.Instructions)
	messages := make([]domain.Message, len(t.Messages))
	copy(messages, t.Messages)
	return domain.ThreadSnapshot{
		ThreadID:              t.ID,
		ProposalTitle:         t.ProposalTitle,
		Location:              t.Location,
		SustainabilityContext: t.SustainabilityContext,
		IndigenousContext:     t.IndigenousContext,
		EmailSender:           t.EmailSender,
		MeetingOrganizer:      t.MeetingOrganizer,
		Stakeholders:          t.Stakeholders(),
		Instructions:          instructions,
		MessageHistory:        messages,
		CreatedAt:             t.CreatedAt,
		LastUpdated:           t.LastUpdated,
	}
}

// FromSnapshot reconstructs a thread from serialized state. Regenerating on
// the result yields the same instruction list the snapshot carried, provided
// the same composer is used.
func FromSnapshot(snap domain.ThreadSnapshot) *Thread {
	t := NewThread(ThreadOptions{
		ID:                    snap.ThreadID,
		ProposalTitle:         snap.ProposalTitle,
		Location:              snap.Location,
		SustainabilityContext: snap.SustainabilityContext,
		IndigenousContext:     snap.IndigenousContext,
		EmailSender:           snap.EmailSender,
		MeetingOrganizer:      snap.MeetingOrganizer,
	})
	for _, s := range snap.Stakeholders {
		stakeholder := s
		t.stakeholders[s.Address] = &stakeholder
		t.order = append(t.order, s.Address)
	}
	t.Instructions = append(t.Instructions, snap.Instructions...)
	t.Messages = append(t.Messages, snap.MessageHistory...)
	t.CreatedAt = snap.CreatedAt
	t.LastUpdated = snap.LastUpdated
	return t
}

// Summary condenses the thread for listings.
func (t *Thread) Summary() domain.ThreadSummary {
	return domain.ThreadSummary{
		ThreadID:         t.ID,
		ProposalTitle:    t.ProposalTitle,
		Location:         t.Location,
		EmailSender:      t.EmailSender,
		MeetingOrganizer: t.MeetingOrganizer,
		StakeholderCount: len(t.order),
		EmailCount:       t.countByType(domain.InstructionEmail),
		MeetingCount:     t.countByType(domain.InstructionMeeting),
		InstructionCount: len(t.Instructions),
		CreatedAt:        t.CreatedAt,
		LastUpdated:      t.LastUpdated,
	}
}
