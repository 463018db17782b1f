package command

import (
	"context"
	"sync"

	"nstbot/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockTextSender struct {
	mu       sync.Mutex
	err      error
	Message  string
	Messages []string
}

func (m *MockTextSender) SendMessageReply(_ context.Context, _ *domain.Message, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Message = message
	m.Messages = append(m.Messages, message)
	return 0, m.err
}

func (m *MockTextSender) NotifyAndReturnError(_ context.Context, err error, _ *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Message = err.Error()
	m.Messages = append(m.Messages, err.Error())
	if m.err != nil {
		return m.err
	}
	return err
}

func (m *MockTextSender) SendChatAction(_ context.Context, _ int64, _ domain.Action) {}

func (m *MockTextSender) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Message
}

type MockImageSender struct {
	mu     sync.Mutex
	sent   []byte
	called bool
	err    error
}

func (m *MockImageSender) SendImageFileReply(_ context.Context, _ *domain.Message, file []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = file
	m.called = true
	return m.err
}

func (m *MockImageSender) wasCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

type MockAuthorizer struct {
	allowed bool
	admin   bool
}

func (m *MockAuthorizer) IsAuthorized(_ context.Context, _ int64) bool {
	return m.allowed
}

func (m *MockAuthorizer) IsAdmin(_ int64) bool {
	return m.admin
}

type MockStyleTransfer struct {
	mock.Mock
}

func (m *MockStyleTransfer) SubmitImage(userID int64, imagePath string, onDone func(domain.Outcome)) (domain.Status, error) {
	args := m.Called(userID, imagePath, onDone)
	return args.Get(0).(domain.Status), args.Error(1)
}

func (m *MockStyleTransfer) GetResult(userID int64) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockStyleTransfer) DumpState() string {
	return m.Called().String(0)
}

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Read(path string) ([]byte, error) {
	args := m.Called(path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
