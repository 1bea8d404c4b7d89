package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"parley/internal/domain"
)

type fakeEmail struct {
	sent    []string
	failFor string
}

func (f *fakeEmail) Send(_ context.Context, to, from, subject, body string) error {
	if to == f.failFor {
		return errors.New("smtp relay refused message")
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeCalendar struct {
	booked []string
	titles []string
}

func (f *fakeCalendar) CreateMeeting(_ context.Context, organizer, invitee, title, description string, durationMinutes int) (MeetingReceipt, error) {
	f.booked = append(f.booked, fmt.Sprintf("%s/%s/%dm", organizer, invitee, durationMinutes))
	f.titles = append(f.titles, title)
	return MeetingReceipt{EventID: fmt.Sprintf("evt-%d", len(f.booked))}, nil
}

type fakeNotifier struct {
	posts []string
}

func (f *fakeNotifier) Post(_ context.Context, channel, text string) error {
	f.posts = append(f.posts, channel)
	return nil
}

func newTestExecutor(email EmailSender, cal Calendar, notifier Notifier) *Executor {
	e := New(email, cal, notifier, nil)
	e.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func batchInstructions() []*domain.Instruction {
	return []*domain.Instruction{
		{ID: "milestone_001", Type: domain.InstructionMilestone, Subject: "Proposal Synthesis: Eco-Village", Status: domain.StatusPending},
		{ID: "email_002", Type: domain.InstructionEmail, Target: "a@example.ca", Subject: "Consultation", Status: domain.StatusPending},
		{ID: "email_003", Type: domain.InstructionEmail, Target: "b@example.ca", Subject: "Consultation", Status: domain.StatusPending},
		{ID: "meeting_004", Type: domain.InstructionMeeting, Target: "organizer@example.ca", Subject: "Sync",
			Metadata: domain.InstructionMeta{AttendeeAddress: "a@example.ca", DurationMinutes: 30}, Status: domain.StatusPending},
		{ID: "slack_005", Type: domain.InstructionSlack, Target: "#general", Subject: "Update", Status: domain.StatusPending},
	}
}

func TestExecuteAllPartialFailure(t *testing.T) {
	email := &fakeEmail{failFor: "b@example.ca"}
	cal := &fakeCalendar{}
	notifier := &fakeNotifier{}
	exec := newTestExecutor(email, cal, notifier)

	instructions := batchInstructions()
	report := exec.ExecuteAll(context.Background(), "proposal-1", instructions, "outreach@example.ca", "organizer@example.ca", "")

	if report.Total != 5 || report.Executed != 4 || report.Failed != 1 {
		t.Fatalf("unexpected report counts: %+v", report)
	}
	if len(report.Results) != 5 {
		t.Fatalf("expected one result per instruction, got %d", len(report.Results))
	}
	if report.SuccessRate != "80.0%" {
		t.Fatalf("success rate: expected 80.0%%, got %s", report.SuccessRate)
	}
	// The failure in the middle must not abort later instructions.
	if len(cal.booked) != 1 || len(notifier.posts) != 1 {
		t.Fatalf("instructions after the failure did not run: %d meetings, %d posts", len(cal.booked), len(notifier.posts))
	}
	for _, inst := range instructions {
		if inst.Status == domain.StatusPending {
			t.Fatalf("instruction %s still pending after batch", inst.ID)
		}
	}
	if instructions[2].Status != domain.StatusFailed {
		t.Fatalf("email_003 should be failed, got %s", instructions[2].Status)
	}
	failed := report.Results[2]
	if failed.Success || failed.Error == "" {
		t.Fatalf("failed result must carry the error: %+v", failed)
	}
}

func TestExecuteEmailUsesSender(t *testing.T) {
	email := &fakeEmail{}
	exec := newTestExecutor(email, nil, nil)
	inst := &domain.Instruction{ID: "email_001", Type: domain.InstructionEmail, Target: "a@example.ca"}
	result := exec.Execute(context.Background(), inst, "outreach@example.ca", "", "")
	if !result.Success {
		t.Fatalf("execute: %s", result.Error)
	}
	if result.Message != "Email sent to a@example.ca from outreach@example.ca" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestExecuteMeetingOrganizerOverride(t *testing.T) {
	cal := &fakeCalendar{}
	exec := newTestExecutor(nil, cal, nil)
	inst := &domain.Instruction{
		ID:       "meeting_001",
		Type:     domain.InstructionMeeting,
		Target:   "default@example.ca",
		Metadata: domain.InstructionMeta{AttendeeAddress: "chief@squamish.ca"},
	}
	result := exec.Execute(context.Background(), inst, "", "boss@example.ca", "")
	if !result.Success {
		t.Fatalf("execute: %s", result.Error)
	}
	// Organizer argument wins over the instruction target, and a missing
	// duration defaults to 30 minutes.
	if cal.booked[0] != "boss@example.ca/chief@squamish.ca/30m" {
		t.Fatalf("unexpected booking %q", cal.booked[0])
	}
}

func TestExecuteMeetingEventTypeTitle(t *testing.T) {
	cal := &fakeCalendar{}
	exec := newTestExecutor(nil, cal, nil)
	inst := &domain.Instruction{
		ID:       "meeting_001",
		Type:     domain.InstructionMeeting,
		Target:   "organizer@example.ca",
		Subject:  "Water Discussion",
		Metadata: domain.InstructionMeta{AttendeeAddress: "chief@squamish.ca"},
	}
	result := exec.Execute(context.Background(), inst, "", "", "Indigenous Consultation")
	if !result.Success {
		t.Fatalf("execute: %s", result.Error)
	}
	if cal.titles[0] != "Indigenous Consultation: Water Discussion" {
		t.Fatalf("event type missing from booking title %q", cal.titles[0])
	}

	// Without an event type the subject stands alone.
	inst.Status = domain.StatusPending
	result = exec.Execute(context.Background(), inst, "", "", "")
	if !result.Success {
		t.Fatalf("execute: %s", result.Error)
	}
	if cal.titles[1] != "Water Discussion" {
		t.Fatalf("unexpected booking title %q", cal.titles[1])
	}
}

func TestExecuteMilestoneNeedsNoAdapters(t *testing.T) {
	exec := newTestExecutor(nil, nil, nil)
	inst := &domain.Instruction{ID: "milestone_001", Type: domain.InstructionMilestone, Subject: "Proposal Synthesis: Eco-Village"}
	result := exec.Execute(context.Background(), inst, "", "", "")
	if !result.Success {
		t.Fatalf("milestone should always execute: %s", result.Error)
	}
	if result.Message != "Milestone: Proposal Synthesis: Eco-Village" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if inst.Status != domain.StatusExecuted {
		t.Fatalf("status: %s", inst.Status)
	}
}

func TestExecuteMissingAdapterFails(t *testing.T) {
	exec := newTestExecutor(nil, nil, nil)
	inst := &domain.Instruction{ID: "email_001", Type: domain.InstructionEmail, Target: "a@example.ca"}
	result := exec.Execute(context.Background(), inst, "outreach@example.ca", "", "")
	if result.Success {
		t.Fatal("email without a sender adapter must fail")
	}
	if inst.Status != domain.StatusFailed {
		t.Fatalf("status: %s", inst.Status)
	}
}

func TestExecuteAllEmptyBatch(t *testing.T) {
	exec := newTestExecutor(nil, nil, nil)
	report := exec.ExecuteAll(context.Background(), "proposal-1", nil, "", "", "")
	if report.Total != 0 || report.SuccessRate != "0%" {
		t.Fatalf("unexpected empty report: %+v", report)
	}
}
