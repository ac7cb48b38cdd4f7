package ingest_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/queue"
	"github.com/kiranshivaraju/chatvault/internal/store"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// --- store ---

type mockStore struct {
	mu       sync.Mutex
	chats    map[uuid.UUID]*models.Chat
	messages map[uuid.UUID][]*models.Message
	media    map[uuid.UUID][]*models.MediaFile
	statuses []string
	deletes  int

	createMessageErr error
	onCreateMessage  func(*models.Message)
}

func newMockStore() *mockStore {
	return &mockStore{
		chats:    make(map[uuid.UUID]*models.Chat),
		messages: make(map[uuid.UUID][]*models.Message),
		media:    make(map[uuid.UUID][]*models.MediaFile),
	}
}

func (s *mockStore) addChat(job models.IngestionJob, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[job.ChatID] = &models.Chat{
		ID:               job.ChatID,
		OwnerID:          job.OwnerID,
		UploadToken:      job.UploadToken,
		OriginalFilename: job.OriginalFilename,
		Status:           status,
	}
}

func (s *mockStore) chat(id uuid.UUID) models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.chats[id]
}

func (s *mockStore) messagesOf(id uuid.UUID) []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Message(nil), s.messages[id]...)
}

func (s *mockStore) mediaOf(id uuid.UUID) []*models.MediaFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.MediaFile(nil), s.media[id]...)
}

func (s *mockStore) Ping(_ context.Context) error                       { return nil }
func (s *mockStore) CreateChat(_ context.Context, _ *models.Chat) error { return nil }
func (s *mockStore) ListMediaFiles(_ context.Context, _ uuid.UUID) ([]*models.MediaFile, error) {
	return nil, nil
}
func (s *mockStore) ListMessages(_ context.Context, _ uuid.UUID, _ store.Page) ([]*models.Message, error) {
	return nil, nil
}

func (s *mockStore) GetChat(_ context.Context, id uuid.UUID) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *mockStore) UpdateChatName(_ context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return store.ErrNotFound
	}
	c.ChatName = name
	return nil
}

func (s *mockStore) UpdateChatStatus(_ context.Context, id uuid.UUID, status string, opts ...store.ChatUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return store.ErrNotFound
	}
	if !store.CanTransition(c.Status, status) {
		return store.ErrInvalidTransition
	}
	c.Status = status
	u := store.ApplyChatUpdateOptions(opts...)
	c.ErrorMessage = u.ErrorMessage
	if u.SizeBytes != nil {
		c.SizeBytes = *u.SizeBytes
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *mockStore) FinalizeChatSummary(_ context.Context, id uuid.UUID, summary store.ChatSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Status != models.ChatStatusProcessing {
		return store.ErrInvalidTransition
	}
	c.Status = models.ChatStatusReady
	c.MessageCount = summary.MessageCount
	c.LastMessageAt = summary.LastMessageAt
	c.LastMessagePreview = summary.LastMessagePreview
	s.statuses = append(s.statuses, models.ChatStatusReady)
	return nil
}

func (s *mockStore) CreateMessage(_ context.Context, msg *models.Message) (uuid.UUID, error) {
	if s.onCreateMessage != nil {
		s.onCreateMessage(msg)
	}
	if s.createMessageErr != nil {
		return uuid.Nil, s.createMessageErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.New()
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	return msg.ID, nil
}

func (s *mockStore) DeleteChatMessages(_ context.Context, chatID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.messages[chatID]))
	delete(s.messages, chatID)
	delete(s.media, chatID)
	s.deletes++
	return n, nil
}

func (s *mockStore) CreateMediaFile(_ context.Context, file *models.MediaFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file.ID = uuid.New()
	s.media[file.ChatID] = append(s.media[file.ChatID], file)
	return nil
}

// --- progress ---

type mockSink struct {
	mu      sync.Mutex
	updates []cache.Progress
}

func (m *mockSink) SetProgress(_ context.Context, _ uuid.UUID, p cache.Progress, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, p)
	return nil
}

func (m *mockSink) snapshot() []cache.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cache.Progress(nil), m.updates...)
}

// --- job source ---

type mockSource struct {
	mu      sync.Mutex
	pending []*queue.Delivery
	acked   []uuid.UUID
	failed  []uuid.UUID
	causes  []error
	failErr error
}

func (m *mockSource) Receive(ctx context.Context, timeout time.Duration) (*queue.Delivery, error) {
	m.mu.Lock()
	if len(m.pending) > 0 {
		d := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(min(timeout, 10*time.Millisecond)):
		return nil, queue.ErrNoJob
	}
}

func (m *mockSource) Ack(_ context.Context, d *queue.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, d.ID)
	return nil
}

func (m *mockSource) Fail(_ context.Context, d *queue.Delivery, cause error) (queue.FailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, d.ID)
	m.causes = append(m.causes, cause)
	if m.failErr != nil {
		return queue.FailResult{}, m.failErr
	}
	return queue.FailResult{Dead: d.Attempt >= d.MaxAttempts}, nil
}

func (m *mockSource) counts() (acked, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked), len(m.failed)
}
