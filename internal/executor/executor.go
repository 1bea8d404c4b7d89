// Package executor dispatches confirmed workflow instructions to the
// outbound integrations. A single instruction's failure never aborts its
// batch: every instruction produces exactly one result and ends executed or
// failed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parley/internal/domain"
)

// EmailSender delivers one outreach email.
type EmailSender interface {
	Send(ctx context.Context, to, from, subject, body string) error
}

// MeetingReceipt is what the calendar collaborator returns for a booking.
type MeetingReceipt struct {
	EventID string `json:"event_id"`
	Link    string `json:"link,omitempty"`
}

// Calendar books a meeting on the organizer's calendar.
type Calendar interface {
	CreateMeeting(ctx context.Context, organizer, invitee, title, description string, durationMinutes int) (MeetingReceipt, error)
}

// Notifier posts a message to a team chat channel.
type Notifier interface {
	Post(ctx context.Context, channel, text string) error
}

// Executor maps instruction types to collaborators. Unconfigured
// collaborators fail the instructions that need them without touching the
// rest of the batch.
type Executor struct {
	Email    EmailSender
	Calendar Calendar
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// New wires an executor; logger may be nil.
func New(email EmailSender, calendar Calendar, notifier Notifier, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{Email: email, Calendar: calendar, Notifier: notifier, Logger: logger, Now: time.Now}
}

func (e *Executor) timestamp() string {
	if e.Now == nil {
		e.Now = time.Now
	}
	return e.Now().UTC().Format(time.RFC3339)
}

// Execute runs one instruction and records the outcome on it. sender and
// organizer are the thread defaults; they resolve the from-address for
// emails and the calendar owner for meetings. eventType, when set, names
// the calendar event type a meeting is booked under. Execution errors are
// returned inside the result, never as a Go error.
func (e *Executor) Execute(ctx context.Context, inst *domain.Instruction, sender, organizer, eventType string) domain.ExecutionResult {
	result := domain.ExecutionResult{
		InstructionID: inst.ID,
		Type:          inst.Type,
		Target:        inst.Target,
		Timestamp:     e.timestamp(),
	}

	message, err := e.dispatch(ctx, inst, sender, organizer, eventType)
	if err != nil {
		inst.Status = domain.StatusFailed
		result.Success = false
		result.Message = fmt.Sprintf("failed to execute instruction: %s", err)
		result.Error = err.Error()
		e.Logger.Warn("instruction failed",
			zap.String("instruction_id", inst.ID),
			zap.String("type", string(inst.Type)),
			zap.Error(err))
		return result
	}

	inst.Status = domain.StatusExecuted
	result.Success = true
	result.Message = message
	e.Logger.Info("instruction executed",
		zap.String("instruction_id", inst.ID),
		zap.String("type", string(inst.Type)),
		zap.String("target", inst.Target))
	return result
}

func (e *Executor) dispatch(ctx context.Context, inst *domain.Instruction, sender, organizer, eventType string) (string, error) {
	switch inst.Type {
	case domain.InstructionEmail:
		if e.Email == nil {
			return "", errors.New("email sender not configured")
		}
		if err := e.Email.Send(ctx, inst.Target, sender, inst.Subject, inst.Body); err != nil {
			return "", err
		}
		return fmt.Sprintf("Email sent to %s from %s", inst.Target, sender), nil

	case domain.InstructionMeeting:
		if e.Calendar == nil {
			return "", errors.New("calendar not configured")
		}
		owner := inst.Target
		if organizer != "" {
			owner = organizer
		}
		duration := inst.Metadata.DurationMinutes
		if duration <= 0 {
			duration = 30
		}
		title := inst.Subject
		if eventType != "" {
			title = fmt.Sprintf("%s: %s", eventType, inst.Subject)
		}
		receipt, err := e.Calendar.CreateMeeting(ctx, owner, inst.Metadata.AttendeeAddress, title, inst.Body, duration)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Meeting %s scheduled with %s on %s", receipt.EventID, inst.Metadata.AttendeeAddress, owner), nil

	case domain.InstructionSlack:
		if e.Notifier == nil {
			return "", errors.New("chat notifier not configured")
		}
		text := inst.Subject + "\n" + inst.Body
		if err := e.Notifier.Post(ctx, inst.Target, text); err != nil {
			return "", err
		}
		return "Chat notification sent", nil

	case domain.InstructionMilestone:
		// Milestones are informational; recording them is the execution.
		return fmt.Sprintf("Milestone: %s", inst.Subject), nil
	}
	return "", fmt.Errorf("unknown instruction type %q", inst.Type)
}

// ExecuteAll runs every instruction in order and aggregates a report. No
// instruction remains pending afterwards, and the batch is never aborted by
// an individual failure.
func (e *Executor) ExecuteAll(ctx context.Context, threadID string, instructions []*domain.Instruction, sender, organizer, eventType string) domain.ExecutionReport {
	report := domain.ExecutionReport{
		ThreadID:  threadID,
		Total:     len(instructions),
		Results:   make([]domain.ExecutionResult, 0, len(instructions)),
		Timestamp: e.timestamp(),
	}
	for _, inst := range instructions {
		result := e.Execute(ctx, inst, sender, organizer, eventType)
		if result.Success {
			report.Executed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}
	report.SuccessRate = successRate(report.Executed, report.Total)
	return report
}

func successRate(executed, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(executed)/float64(total)*100)
}
