package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"nstbot/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendChatAction(_ context.Context, _ int64, _ domain.Action) {
	// mocked
}

func (m *MockSender) NotifyAndReturnError(_ context.Context, _ error, _ *domain.Message) error {
	// mocked
	return nil
}

func (m *MockSender) SendMessageReply(ctx context.Context, message *domain.Message, text string) (int, error) {
	args := m.Called(ctx, message, text)
	return args.Int(0), args.Error(1)
}

func TestDebug_Respond_SendsDebugInfo(t *testing.T) {
	mockSender := new(MockSender)
	cmd := "debug"
	debugCmd := NewDebug(mockSender, nil, &MockAuthorizer{allowed: true}, cmd)

	msg := &domain.Message{ID: 123, ChatID: 456}

	mockSender.
		On(
			"SendMessageReply",
			mock.Anything,
			msg,
			mock.MatchedBy(func(text string) bool {
				return strings.Contains(text, "allocated mem:") &&
					strings.Contains(text, "threads running:") &&
					strings.Contains(text, "heap:") &&
					strings.Contains(text, "stack:") &&
					strings.Contains(text, "compiled with")
			}),
		).
		Return(1, nil)

	err := debugCmd.Respond(t.Context(), time.Second, msg)
	require.NoError(t, err)
	mockSender.AssertExpectations(t)
}

type fixedStats domain.PoolStats

func (f fixedStats) Stats() domain.PoolStats {
	return domain.PoolStats(f)
}

func TestDebug_Respond_IncludesPoolStats(t *testing.T) {
	mockSender := new(MockSender)
	stats := fixedStats{Workers: 2, Busy: 1, Queued: 3, QueueSize: 8, Completed: 5, Failed: 1, Rejected: 2}
	debugCmd := NewDebug(mockSender, stats, &MockAuthorizer{allowed: true}, "/debug")

	msg := &domain.Message{ID: 1, ChatID: 2}
	mockSender.
		On("SendMessageReply", mock.Anything, msg, mock.MatchedBy(func(text string) bool {
			return strings.Contains(text, "transfers running: 1/2") &&
				strings.Contains(text, "transfers queued: 3/8") &&
				strings.Contains(text, "completed: 5, failed: 1, rejected: 2")
		})).
		Return(1, nil)

	require.NoError(t, debugCmd.Respond(t.Context(), time.Second, msg))
	mockSender.AssertExpectations(t)
}
