package app

import (
	"context"
	"sync"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// Create mock create conversation
func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

// FindByID mock find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// AddParticipant mock add participant
func (m *MockConversationRepository) AddParticipant(ctx context.Context, conversationID string, p domain.Participant) error {
	args := m.Called(ctx, conversationID, p)
	return args.Error(0)
}

// RemoveParticipant mock remove participant
func (m *MockConversationRepository) RemoveParticipant(ctx context.Context, conversationID, participantID string) error {
	args := m.Called(ctx, conversationID, participantID)
	return args.Error(0)
}

// FindByMember mock find conversations of member
func (m *MockConversationRepository) FindByMember(ctx context.Context, memberID string) ([]*domain.Conversation, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) != nil {
		return args.Get(0).([]*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// NextPosition mock next position
func (m *MockConversationRepository) NextPosition(ctx context.Context, conversationID string) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByID mock find message by id
func (m *MockMessageRepository) FindByID(ctx context.Context, conversationID, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindRange mock find messages by range
func (m *MockMessageRepository) FindRange(ctx context.Context, conversationID string, start, end int64) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, start, end)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// EnsureIndexes mock ensure indexes
func (m *MockMessageRepository) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockReadPointRepository Mock ReadPointRepository
type MockReadPointRepository struct {
	mock.Mock
}

// Advance mock advance read point
func (m *MockReadPointRepository) Advance(ctx context.Context, conversationID, participantID string, position int64) error {
	args := m.Called(ctx, conversationID, participantID, position)
	return args.Error(0)
}

// Find mock find read point
func (m *MockReadPointRepository) Find(ctx context.Context, conversationID, participantID string) (*domain.ReadPoint, error) {
	args := m.Called(ctx, conversationID, participantID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ReadPoint), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByConversation mock find read points of conversation
func (m *MockReadPointRepository) FindByConversation(ctx context.Context, conversationID string) ([]domain.ReadPoint, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ReadPoint), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEventBus Mock EventBus
type MockEventBus struct {
	mock.Mock
}

// Publish mock publish event
func (m *MockEventBus) Publish(ctx context.Context, ev domain.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Subscribe mock subscribe conversation
func (m *MockEventBus) Subscribe(ctx context.Context, conversationID string, handler func(domain.Event)) (func(), error) {
	args := m.Called(ctx, conversationID, handler)
	if args.Get(0) != nil {
		return args.Get(0).(func()), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockArchiver Mock MessageArchiver
type MockArchiver struct {
	mock.Mock
}

// Archive mock archive message
func (m *MockArchiver) Archive(ctx context.Context, msg domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// Close mock close
func (m *MockArchiver) Close() error {
	return m.Called().Error(0)
}

// MockDirectory Mock ParticipantDirectory
type MockDirectory struct {
	mock.Mock
}

// FindDisplayNames mock resolve names
func (m *MockDirectory) FindDisplayNames(ctx context.Context, memberIDs []string) (map[string]string, error) {
	args := m.Called(ctx, memberIDs)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTransactor runs fn with the caller's ctx and counts commits and aborts
type MockTransactor struct {
	mu        sync.Mutex
	committed int
	aborted   int
}

// WithTransaction mock transaction
func (m *MockTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.aborted++
	} else {
		m.committed++
	}
	return err
}

// Counts committed and aborted transactions so far
func (m *MockTransactor) Counts() (committed, aborted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed, m.aborted
}
