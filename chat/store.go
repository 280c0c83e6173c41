package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ryanakml/pdf-chatbots/llm"
)

var ErrChatNotFound = errors.New("chat not found")

// Store keeps chats and their append-only message log.
type Store interface {
	CreateChat(ctx context.Context, chat Chat) (Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (Chat, error)
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	AppendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)
}

func validRole(role string) bool {
	return role == llm.RoleUser || role == llm.RoleAssistant
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateChat(ctx context.Context, chat Chat) (Chat, error) {
	if s.pool == nil {
		return Chat{}, fmt.Errorf("postgres pool is nil")
	}
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO chats (id, pdf_name, pdf_url, user_id, file_key, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`, chat.ID, chat.PDFName, chat.PDFURL, chat.UserID, chat.FileKey).Scan(&chat.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID) (Chat, error) {
	if s.pool == nil {
		return Chat{}, fmt.Errorf("postgres pool is nil")
	}

	var chat Chat
	err := s.pool.QueryRow(ctx, `
		SELECT id, pdf_name, pdf_url, user_id, file_key, created_at
		FROM chats
		WHERE id = $1
	`, id).Scan(&chat.ID, &chat.PDFName, &chat.PDFURL, &chat.UserID, &chat.FileKey, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chat{}, ErrChatNotFound
		}
		return Chat{}, fmt.Errorf("query chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, pdf_name, pdf_url, user_id, file_key, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	chats := make([]Chat, 0)
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.PDFName, &chat.PDFURL, &chat.UserID, &chat.FileKey, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (Message, error) {
	if s.pool == nil {
		return Message{}, fmt.Errorf("postgres pool is nil")
	}
	if !validRole(role) {
		return Message{}, fmt.Errorf("invalid message role %q", role)
	}

	msg := Message{ChatID: chatID, Role: role, Content: content}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_id, content, role, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`, chatID, content, role).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, content, role, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at, id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Content, &msg.Role, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

var _ Store = (*PostgresStore)(nil)

// MemoryStore is a process-local Store for development without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[uuid.UUID]Chat
	messages map[uuid.UUID][]Message
	nextID   int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[uuid.UUID]Chat),
		messages: make(map[uuid.UUID][]Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateChat(_ context.Context, chat Chat) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	chat.CreatedAt = s.now()
	s.chats[chat.ID] = chat
	return chat, nil
}

func (s *MemoryStore) GetChat(_ context.Context, id uuid.UUID) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return Chat{}, ErrChatNotFound
	}
	return chat, nil
}

func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]Chat, 0)
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].CreatedAt.After(chats[j].CreatedAt)
		}
		return chats[i].ID.String() < chats[j].ID.String()
	})
	return chats, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, chatID uuid.UUID, role, content string) (Message, error) {
	if !validRole(role) {
		return Message{}, fmt.Errorf("invalid message role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return Message{}, ErrChatNotFound
	}
	s.nextID++
	msg := Message{ID: s.nextID, ChatID: chatID, Role: role, Content: content, CreatedAt: s.now()}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID uuid.UUID) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
