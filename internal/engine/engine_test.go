package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"parley/internal/confirm"
	"parley/internal/domain"
	"parley/internal/engine"
	"parley/internal/executor"
	"parley/internal/workflow"
)

type recordingEmail struct {
	sent    []string
	failFor string
}

func (r *recordingEmail) Send(_ context.Context, to, from, subject, body string) error {
	if to == r.failFor {
		return errors.New("relay rejected recipient")
	}
	r.sent = append(r.sent, to)
	return nil
}

type recordingCalendar struct {
	booked []string
	titles []string
}

func (r *recordingCalendar) CreateMeeting(_ context.Context, organizer, invitee, title, description string, durationMinutes int) (executor.MeetingReceipt, error) {
	r.booked = append(r.booked, invitee)
	r.titles = append(r.titles, title)
	return executor.MeetingReceipt{EventID: fmt.Sprintf("evt-%d", len(r.booked))}, nil
}

type recordingNotifier struct {
	posts []string
}

func (r *recordingNotifier) Post(_ context.Context, channel, text string) error {
	r.posts = append(r.posts, channel)
	return nil
}

type testEnv struct {
	engine   *engine.Engine
	email    *recordingEmail
	calendar *recordingCalendar
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		email:    &recordingEmail{},
		calendar: &recordingCalendar{},
		notifier: &recordingNotifier{},
	}
	exec := executor.New(env.email, env.calendar, env.notifier, nil)
	exec.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	env.engine = engine.New(engine.Options{
		Generator:        workflow.NewGenerator(nil),
		Executor:         exec,
		DefaultSender:    "outreach@example.ca",
		DefaultOrganizer: "organizer@example.ca",
		StarterContacts:  true,
	})
	return env
}

func (env *testEnv) initThread(t *testing.T) domain.ThreadSnapshot {
	t.Helper()
	snap, err := env.engine.InitThread(context.Background(), "tester", engine.InitRequest{
		ProposalTitle: "Riverside Eco-Village",
		Location:      "Squamish, BC",
	})
	if err != nil {
		t.Fatalf("init thread: %v", err)
	}
	return snap
}

func TestInitThreadSeedsStarterRegistry(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	if !strings.HasPrefix(snap.ThreadID, "proposal-") || len(snap.ThreadID) != len("proposal-")+12 {
		t.Fatalf("unexpected thread id %q", snap.ThreadID)
	}
	if len(snap.Stakeholders) != 3 {
		t.Fatalf("expected 3 starter stakeholders, got %d", len(snap.Stakeholders))
	}
	liaison := snap.Stakeholders[2]
	if liaison.Address != "community.liaison@example.ca" {
		t.Fatalf("unexpected third stakeholder %s", liaison.Address)
	}
	if !strings.Contains(liaison.Context, "Squamish residents") {
		t.Fatalf("liaison context not localized: %q", liaison.Context)
	}
	// 1 milestone + 3 emails + 3 meetings + 1 slack notification.
	if len(snap.Instructions) != 8 {
		t.Fatalf("expected 8 instructions, got %d", len(snap.Instructions))
	}
	if snap.Instructions[0].Type != domain.InstructionMilestone {
		t.Fatalf("first instruction must be the milestone, got %s", snap.Instructions[0].Type)
	}
	if len(snap.MessageHistory) != 1 || snap.MessageHistory[0].Role != "system" {
		t.Fatalf("expected one system message, got %+v", snap.MessageHistory)
	}
}

func TestInitThreadValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.InitThread(context.Background(), "tester", engine.InitRequest{Location: "Squamish, BC"})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing title: expected ErrInvalid, got %v", err)
	}
	_, err = env.engine.InitThread(context.Background(), "tester", engine.InitRequest{ProposalTitle: "Eco-Village"})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing location: expected ErrInvalid, got %v", err)
	}
}

func TestPostMessageAddStakeholder(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	result, err := env.engine.PostMessage(context.Background(), "tester", snap.ThreadID,
		"add Tribal Chief at chief@squamish.ca for water rights consultation")
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	want := "✓ Added Tribal Chief (chief@squamish.ca) - water rights consultation"
	if result.Response != want {
		t.Fatalf("response: got %q, want %q", result.Response, want)
	}
	if result.StakeholderCount != 4 {
		t.Fatalf("expected 4 stakeholders, got %d", result.StakeholderCount)
	}
	if result.EmailCount != 4 || result.MeetingCount != 4 {
		t.Fatalf("counts: %d emails, %d meetings", result.EmailCount, result.MeetingCount)
	}
	// milestone + 4 emails + 4 meetings + slack
	if len(result.Instructions) != 10 {
		t.Fatalf("expected 10 instructions after add, got %d", len(result.Instructions))
	}
}

func TestPostMessageRemoveStakeholder(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	result, err := env.engine.PostMessage(context.Background(), "tester", snap.ThreadID,
		"remove community.liaison@example.ca")
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	if result.Response != "✓ Removed Community Liaison (community.liaison@example.ca)" {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.StakeholderCount != 2 {
		t.Fatalf("expected 2 stakeholders, got %d", result.StakeholderCount)
	}
	for _, inst := range result.Instructions {
		if inst.Target == "community.liaison@example.ca" {
			t.Fatalf("instruction %s still targets removed stakeholder", inst.ID)
		}
	}
}

func TestPostMessageRemoveUnknown(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	result, err := env.engine.PostMessage(context.Background(), "tester", snap.ThreadID,
		"remove nobody@example.ca")
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	if result.Response != "Email nobody@example.ca not found in stakeholders" {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.StakeholderCount != 3 {
		t.Fatalf("registry must be unchanged, got %d", result.StakeholderCount)
	}
}

func TestPostMessageUpdateSender(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	result, err := env.engine.PostMessage(context.Background(), "tester", snap.ThreadID,
		"email from newsender@example.ca")
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	if result.Response != "✓ Updated email sender to newsender@example.ca" {
		t.Fatalf("unexpected response %q", result.Response)
	}
	after, _ := env.engine.Status(snap.ThreadID)
	if after.EmailSender != "newsender@example.ca" {
		t.Fatalf("sender not updated: %s", after.EmailSender)
	}
}

func TestPostMessageUnknownThread(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.PostMessage(context.Background(), "tester", "proposal-missing", "hello")
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestActionSendEmailDerivation(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionSendEmail, "", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	if !strings.HasPrefix(action.ActionID, "send_email_") {
		t.Fatalf("unexpected action id %q", action.ActionID)
	}
	if len(action.Details.Recipients) != 3 {
		t.Fatalf("expected 3 recipients, got %v", action.Details.Recipients)
	}
	if action.Description != "Send 3 consultation emails for Riverside Eco-Village" {
		t.Fatalf("unexpected description %q", action.Description)
	}
	if action.Confirmed || action.Rejected {
		t.Fatal("requested action must start pending")
	}
	if len(env.email.sent) != 0 {
		t.Fatal("requesting must not execute anything")
	}
}

func TestRequestActionDeleteContactValidation(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	_, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionDeleteContact, "", "")
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing contact: expected ErrInvalid, got %v", err)
	}
	_, err = env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionDeleteContact, "nobody@example.ca", "")
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("unknown contact: expected ErrNotFound, got %v", err)
	}
}

func TestRequestActionScheduleMeetingRequiresEventType(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	_, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionScheduleMeeting, "", "")
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing event type: expected ErrInvalid, got %v", err)
	}

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionScheduleMeeting, "", "Indigenous Consultation")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	if action.Details.EventTypeName != "Indigenous Consultation" {
		t.Fatalf("event type not captured: %+v", action.Details)
	}
	if len(action.Details.Recipients) != 3 {
		t.Fatalf("expected 3 invitees, got %v", action.Details.Recipients)
	}
	if action.Description != "Schedule 3 Indigenous Consultation meetings for Riverside Eco-Village" {
		t.Fatalf("unexpected description %q", action.Description)
	}
	if len(env.calendar.booked) != 0 {
		t.Fatal("requesting must not book anything")
	}
}

func TestScheduleMeetingApprovalBooksUnderEventType(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionScheduleMeeting, "", "Indigenous Consultation")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	result, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Report.Total != 3 || result.Report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", result.Report)
	}
	if len(env.calendar.titles) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(env.calendar.titles))
	}
	for _, title := range env.calendar.titles {
		if !strings.HasPrefix(title, "Indigenous Consultation: ") {
			t.Fatalf("booking title %q missing event type", title)
		}
	}
	if len(env.email.sent) != 0 || len(env.notifier.posts) != 0 {
		t.Fatal("meeting action must not touch email or chat")
	}
}

func TestFullOutreachDefaultsEventType(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionFullOutreach, "", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	if action.Details.EventTypeName != "Consultation Meeting" {
		t.Fatalf("expected default event type, got %q", action.Details.EventTypeName)
	}
}

func TestRejectExecutesNothing(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionSendEmail, "", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	result, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if result.Report != nil {
		t.Fatal("rejection must not produce an execution report")
	}
	if result.Message != fmt.Sprintf("Action %s rejected; nothing was executed", action.ActionID) {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if len(env.email.sent) != 0 {
		t.Fatalf("rejected action sent %d emails", len(env.email.sent))
	}
	if got := env.engine.GateStats(); got.PendingCount != 0 || got.RejectedCount != 1 {
		t.Fatalf("unexpected gate stats: %+v", got)
	}
}

func TestFullOutreachPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.email.failFor = "indigenous.relations@example.ca"
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionFullOutreach, "", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	result, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Report == nil {
		t.Fatal("approval must produce an execution report")
	}
	if result.Report.Total != 8 || result.Report.Executed != 7 || result.Report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", result.Report)
	}
	if result.Message != "Workflow executed: 7 successful, 1 failed" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	// The failing email must not stop the remaining batch.
	if len(env.email.sent) != 2 || len(env.calendar.booked) != 3 || len(env.notifier.posts) != 1 {
		t.Fatalf("batch incomplete: %d emails, %d meetings, %d posts",
			len(env.email.sent), len(env.calendar.booked), len(env.notifier.posts))
	}

	after, _ := env.engine.Status(snap.ThreadID)
	for _, inst := range after.Instructions {
		if inst.Status == domain.StatusPending {
			t.Fatalf("instruction %s still pending after execution", inst.ID)
		}
	}
	last := after.MessageHistory[len(after.MessageHistory)-1]
	if last.Role != "system" || last.Content != "Workflow executed: 7 successful, 1 failed" {
		t.Fatalf("missing system summary message: %+v", last)
	}
}

func TestSendEmailActionRunsOnlyEmails(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionSendEmail, "", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	result, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Report.Total != 3 {
		t.Fatalf("expected 3 instructions executed, got %d", result.Report.Total)
	}
	if len(env.calendar.booked) != 0 || len(env.notifier.posts) != 0 {
		t.Fatal("email action must not touch meetings or chat")
	}
}

func TestDoubleConfirm(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, _ := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionSendEmail, "", "")
	if _, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	_, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true)
	if !errors.Is(err, confirm.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestConfirmAfterThreadDeleteKeepsActionPending(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionSendEmail, "", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	if err := env.engine.DeleteThread(context.Background(), "tester", snap.ThreadID); err != nil {
		t.Fatalf("delete thread: %v", err)
	}

	_, err = env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true)
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(env.email.sent) != 0 {
		t.Fatal("nothing must execute against a deleted thread")
	}

	// The failed approval must not consume the action; it stays pending and
	// can still be rejected.
	pending := env.engine.PendingActions()
	if len(pending) != 1 || pending[0].ActionID != action.ActionID {
		t.Fatalf("action no longer pending: %+v", pending)
	}
	result, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if result.Report != nil {
		t.Fatal("rejection must not produce an execution report")
	}
}

func TestDeleteContactApprovalRemovesAndRegenerates(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	action, err := env.engine.RequestAction(context.Background(), "tester", snap.ThreadID, domain.ActionDeleteContact, "community.liaison@example.ca", "")
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	// Registry untouched until approval.
	before, _ := env.engine.Status(snap.ThreadID)
	if len(before.Stakeholders) != 3 {
		t.Fatalf("registry changed before approval: %d", len(before.Stakeholders))
	}

	result, err := env.engine.ConfirmAction(context.Background(), "tester", action.ActionID, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Report != nil {
		t.Fatal("delete_contact produces no execution report")
	}
	after, _ := env.engine.Status(snap.ThreadID)
	if len(after.Stakeholders) != 2 {
		t.Fatalf("expected 2 stakeholders after delete, got %d", len(after.Stakeholders))
	}
	// milestone + 2 emails + 2 meetings + slack
	if len(after.Instructions) != 6 {
		t.Fatalf("expected regenerated list of 6, got %d", len(after.Instructions))
	}
	for _, inst := range after.Instructions {
		if inst.Target == "community.liaison@example.ca" {
			t.Fatalf("instruction %s still targets deleted contact", inst.ID)
		}
	}
}

func TestUpdateConfigRequiresField(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	_, err := env.engine.UpdateConfig(context.Background(), "tester", snap.ThreadID, "", "")
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	after, err := env.engine.UpdateConfig(context.Background(), "tester", snap.ThreadID, "s@example.ca", "o@example.ca")
	if err != nil {
		t.Fatalf("update config: %v", err)
	}
	if after.EmailSender != "s@example.ca" || after.MeetingOrganizer != "o@example.ca" {
		t.Fatalf("config not applied: %+v", after)
	}
}

func TestDeleteThread(t *testing.T) {
	env := newTestEnv(t)
	snap := env.initThread(t)

	if err := env.engine.DeleteThread(context.Background(), "tester", snap.ThreadID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err := env.engine.DeleteThread(context.Background(), "tester", snap.ThreadID)
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if got := env.engine.ListThreads(); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}
}
