package adapters

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"parley/internal/executor"
)

// The mock integrations stand in when no real endpoints are configured:
// every call is logged and succeeds locally, so workflows remain fully
// exercisable in development.

// MockEmailSender records sends in the log instead of delivering.
type MockEmailSender struct {
	Logger *zap.Logger
}

func (m MockEmailSender) Send(_ context.Context, to, from, subject, _ string) error {
	m.logger().Info("mock email sent",
		zap.String("to", to),
		zap.String("from", from),
		zap.String("subject", subject))
	return nil
}

func (m MockEmailSender) logger() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.NewNop()
}

// MockCalendar fabricates event ids locally.
type MockCalendar struct {
	Logger  *zap.Logger
	counter atomic.Int64
}

func (m *MockCalendar) CreateMeeting(_ context.Context, organizer, invitee, title, _ string, durationMinutes int) (executor.MeetingReceipt, error) {
	n := m.counter.Add(1)
	receipt := executor.MeetingReceipt{
		EventID: fmt.Sprintf("mock-event-%03d", n),
		Link:    fmt.Sprintf("https://calendar.example/mock/%03d", n),
	}
	m.logger().Info("mock meeting scheduled",
		zap.String("organizer", organizer),
		zap.String("invitee", invitee),
		zap.String("title", title),
		zap.Int("duration_minutes", durationMinutes))
	return receipt, nil
}

func (m *MockCalendar) logger() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.NewNop()
}

// MockNotifier logs chat posts.
type MockNotifier struct {
	Logger *zap.Logger
}

func (m MockNotifier) Post(_ context.Context, channel, text string) error {
	m.logger().Info("mock chat notification",
		zap.String("channel", channel),
		zap.String("text", text))
	return nil
}

func (m MockNotifier) logger() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.NewNop()
}
