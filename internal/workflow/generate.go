package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"parley/internal/domain"
)

const defaultMeetingMinutes = 30

// ComposeRequest is the full proposal context handed to an email composer.
type ComposeRequest struct {
	ProposalTitle         string
	Location              string
	SustainabilityContext string
	IndigenousContext     string
	RecipientAddress      string
	RecipientRole         string
	RecipientContext      string
}

// Composer produces an outreach email subject and body. Implementations may
// call an external text-generation service; the generator falls back to the
// deterministic template whenever Compose fails.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (subject, body string, err error)
}

// TemplateComposer is the deterministic composer. It is the guaranteed
// fallback path, so its output depends only on the request.
type TemplateComposer struct{}

func (TemplateComposer) Compose(_ context.Context, req ComposeRequest) (string, string, error) {
	subject, body := templateEmail(req)
	return subject, body, nil
}

func templateEmail(req ComposeRequest) (string, string) {
	if req.RecipientContext != "" {
		subject := fmt.Sprintf("%s - Collaboration Request", req.ProposalTitle)
		body := fmt.Sprintf(`Hi %s,

I'm reaching out regarding %s at %s.

Your expertise in %s would be invaluable. The project integrates sustainable development with Indigenous land stewardship practices.

I'd like to discuss how we can collaborate. Are you available for a consultation?

Best regards`, req.RecipientRole, req.ProposalTitle, req.Location, req.RecipientContext)
		return subject, body
	}
	subject := fmt.Sprintf("Consultation: %s", req.ProposalTitle)
	body := fmt.Sprintf(`Hi %s,

I'm reaching out regarding %s at %s.

Your perspective would be invaluable for this initiative. I'd like to schedule a consultation to discuss collaboration.

Best regards`, req.RecipientRole, req.ProposalTitle, req.Location)
	return subject, body
}

// Generator rebuilds a thread's instruction list from scratch. Given
// identical thread state and a deterministic composer, two runs produce
// byte-identical lists, ids included.
type Generator struct {
	Composer     Composer
	SlackChannel string
}

// NewGenerator wires a generator with the template composer as default.
func NewGenerator(composer Composer) Generator {
	if composer == nil {
		composer = TemplateComposer{}
	}
	return Generator{Composer: composer, SlackChannel: "#general"}
}

func (g Generator) channel() string {
	if g.SlackChannel == "" {
		return "#general"
	}
	return g.SlackChannel
}

// Regenerate derives the full instruction list from current thread state and
// replaces the thread's list atomically. Order is fixed: one milestone, then
// email/meeting per stakeholder in insertion order, then one slack summary
// iff any stakeholders exist.
func (g Generator) Regenerate(ctx context.Context, t *Thread) []domain.Instruction {
	stakeholders := t.Stakeholders()
	instructions := make([]domain.Instruction, 0, 2+2*len(stakeholders))
	counter := 1

	nextID := func(typ domain.InstructionType) string {
		id := fmt.Sprintf("%s_%03d", typ, counter)
		counter++
		return id
	}

	instructions = append(instructions, domain.Instruction{
		ID:      nextID(domain.InstructionMilestone),
		Type:    domain.InstructionMilestone,
		Target:  "planning",
		Subject: fmt.Sprintf("Workflow Plan: %s", t.ProposalTitle),
		Body:    milestoneBody(t, stakeholders),
		Status:  domain.StatusPending,
	})

	for _, s := range stakeholders {
		if s.Engagement.IncludesEmail() {
			subject, body := g.composeEmail(ctx, t, s)
			instructions = append(instructions, domain.Instruction{
				ID:      nextID(domain.InstructionEmail),
				Type:    domain.InstructionEmail,
				Target:  s.Address,
				Subject: subject,
				Body:    body,
				Status:  domain.StatusPending,
				Metadata: domain.InstructionMeta{
					Role:    s.Role,
					Context: s.Context,
				},
			})
		}
		if s.Engagement.IncludesMeeting() {
			subject, body := meetingInvite(t.ProposalTitle, s)
			instructions = append(instructions, domain.Instruction{
				ID:      nextID(domain.InstructionMeeting),
				Type:    domain.InstructionMeeting,
				Target:  t.MeetingOrganizer,
				Subject: subject,
				Body:    body,
				Status:  domain.StatusPending,
				Metadata: domain.InstructionMeta{
					AttendeeAddress: s.Address,
					AttendeeRole:    s.Role,
					Context:         s.Context,
					DurationMinutes: defaultMeetingMinutes,
				},
			})
		}
	}

	if len(stakeholders) > 0 {
		emails, meetings := 0, 0
		for _, inst := range instructions {
			switch inst.Type {
			case domain.InstructionEmail:
				emails++
			case domain.InstructionMeeting:
				meetings++
			}
		}
		instructions = append(instructions, domain.Instruction{
			ID:      nextID(domain.InstructionSlack),
			Type:    domain.InstructionSlack,
			Target:  g.channel(),
			Subject: fmt.Sprintf("Workflow Initiated: %s", t.ProposalTitle),
			Body:    slackBody(t, stakeholders, emails, meetings),
			Status:  domain.StatusPending,
		})
	}

	t.SetInstructions(instructions)
	return instructions
}

func (g Generator) composeEmail(ctx context.Context, t *Thread, s domain.Stakeholder) (string, string) {
	req := ComposeRequest{
		ProposalTitle:         t.ProposalTitle,
		Location:              t.Location,
		SustainabilityContext: t.SustainabilityContext,
		IndigenousContext:     t.IndigenousContext,
		RecipientAddress:      s.Address,
		RecipientRole:         s.Role,
		RecipientContext:      s.Context,
	}
	composer := g.Composer
	if composer == nil {
		composer = TemplateComposer{}
	}
	subject, body, err := composer.Compose(ctx, req)
	if err != nil || strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		// Composer failures never surface; the template always works.
		return templateEmail(req)
	}
	return subject, strings.TrimSpace(body)
}

func milestoneBody(t *Thread, stakeholders []domain.Stakeholder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROPOSAL SYNTHESIS FOR: %s\n", t.ProposalTitle)
	fmt.Fprintf(&b, "Location: %s\n\n", t.Location)
	fmt.Fprintf(&b, "=== SUSTAINABILITY INSIGHTS ===\n%s\n\n", t.SustainabilityContext)
	fmt.Fprintf(&b, "=== INDIGENOUS PERSPECTIVES ===\n%s\n\n", t.IndigenousContext)
	fmt.Fprintf(&b, "=== STAKEHOLDERS (%d) ===\n", len(stakeholders))
	for _, s := range stakeholders {
		fmt.Fprintf(&b, "- %s (%s)\n", s.Role, s.Address)
	}
	b.WriteString("\n=== ACTION PLAN ===\n")
	b.WriteString("Each stakeholder will receive a personalized email and calendar invite.\n")
	fmt.Fprintf(&b, "All emails sent from: %s\n", t.EmailSender)
	fmt.Fprintf(&b, "All meetings scheduled for: %s", t.MeetingOrganizer)
	return b.String()
}

func meetingInvite(proposalTitle string, s domain.Stakeholder) (string, string) {
	if s.Context != "" {
		subject := fmt.Sprintf("%s - %s Discussion with %s", proposalTitle, titleWord(s.Context), s.Role)
		body := fmt.Sprintf(`30-minute consultation with %s (%s)

Topic: %s

Agenda:
- Review project scope and timeline
- Discuss %s requirements and recommendations
- Identify potential challenges and solutions
- Next steps and deliverables

Location: Video call or in-person (TBD)`, s.Role, s.Address, s.Context, s.Context)
		return subject, body
	}
	subject := fmt.Sprintf("%s - %s Consultation", proposalTitle, s.Role)
	body := fmt.Sprintf(`30-minute consultation with %s (%s)

Agenda:
- Project overview and objectives
- Stakeholder input and expertise
- Collaboration opportunities
- Next steps

Location: Video call or in-person (TBD)`, s.Role, s.Address)
	return subject, body
}

func slackBody(t *Thread, stakeholders []domain.Stakeholder, emails, meetings int) string {
	roles := make([]string, 0, len(stakeholders))
	for _, s := range stakeholders {
		roles = append(roles, s.Role)
	}
	return fmt.Sprintf("Outreach workflow launched for %s\nLocation: %s\nStakeholders: %s\nEmails to send: %d\nMeetings to schedule: %d",
		t.ProposalTitle, t.Location, strings.Join(roles, ", "), emails, meetings)
}

// titleWord title-cases the first word of a context string for use in a
// meeting subject ("water rights" -> "Water", "WATER rights" -> "Water").
func titleWord(context string) string {
	fields := strings.Fields(context)
	if len(fields) == 0 {
		return ""
	}
	runes := []rune(fields[0])
	return string(unicode.ToUpper(runes[0])) + strings.ToLower(string(runes[1:]))
}
