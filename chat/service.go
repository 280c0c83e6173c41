// Package chat answers questions about an indexed document and keeps the
// conversation log.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ryanakml/pdf-chatbots/llm"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

// RefusalAnswer is returned verbatim when no indexed text is relevant enough
// to ground an answer.
const RefusalAnswer = "I'm sorry, I couldn't find anything in this document that answers your question."

const maxSnippetRunes = 300

var ErrEmptyQuestion = errors.New("question cannot be empty")

// ContextProvider is satisfied by *Retriever.
type ContextProvider interface {
	Context(ctx context.Context, query, fileKey string) (Context, error)
}

type Options struct {
	Store        Store
	Graph        GraphStore
	Disambiguate bool
	Logger       *zap.Logger
}

type Service struct {
	retriever    ContextProvider
	llm          llm.Client
	store        Store
	graph        GraphStore
	disambiguate bool
	logger       *zap.Logger
}

func NewService(retriever ContextProvider, llmClient llm.Client, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		retriever:    retriever,
		llm:          llmClient,
		store:        opts.Store,
		graph:        opts.Graph,
		disambiguate: opts.Disambiguate,
		logger:       logger,
	}
}

// Ask answers one question. When req.FileKey is empty it is looked up from
// the chat. Both turns are appended to the chat's log on a best-effort basis.
func (s *Service) Ask(ctx context.Context, req AskRequest) (Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Response{}, ErrEmptyQuestion
	}
	if s.retriever == nil {
		return Response{}, fmt.Errorf("retriever is not configured")
	}
	if s.llm == nil {
		return Response{}, fmt.Errorf("llm client is not configured")
	}

	fileKey := req.FileKey
	if fileKey == "" {
		if s.store == nil || req.ChatID == uuid.Nil {
			return Response{}, fmt.Errorf("file key or chat id is required")
		}
		chat, err := s.store.GetChat(ctx, req.ChatID)
		if err != nil {
			return Response{}, fmt.Errorf("load chat: %w", err)
		}
		fileKey = chat.FileKey
	}

	logger := s.logger.With(zap.String("file_key", fileKey))
	s.record(ctx, logger, req.ChatID, llm.RoleUser, question)

	grounding, err := s.retriever.Context(ctx, question, fileKey)
	if err != nil {
		return Response{}, fmt.Errorf("assemble context: %w", err)
	}

	if grounding.Text == "" {
		logger.Info("no grounding context, returning refusal")
		s.record(ctx, logger, req.ChatID, llm.RoleAssistant, RefusalAnswer)
		return Response{Answer: RefusalAnswer}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt()},
		{Role: llm.RoleUser, Content: formatUserPrompt(question, grounding.Text, s.documentNote(ctx, logger, fileKey))},
	}

	chatID := ""
	if req.ChatID != uuid.Nil {
		chatID = req.ChatID.String()
	}
	answer, err := s.llm.Generate(ctx, llm.Request{ChatID: chatID, Messages: messages})
	if err != nil {
		return Response{}, fmt.Errorf("llm generate: %w", err)
	}
	answer = strings.TrimSpace(answer)

	s.record(ctx, logger, req.ChatID, llm.RoleAssistant, answer)

	return Response{
		Answer:   answer,
		Grounded: true,
		Sources:  toSources(grounding.Matches),
	}, nil
}

// Messages returns the chat's log in creation order.
func (s *Service) Messages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	if s.store == nil {
		return nil, fmt.Errorf("chat store is not configured")
	}
	return s.store.ListMessages(ctx, chatID)
}

func (s *Service) record(ctx context.Context, logger *zap.Logger, chatID uuid.UUID, role, content string) {
	if s.store == nil || chatID == uuid.Nil {
		return
	}
	if _, err := s.store.AppendMessage(ctx, chatID, role, content); err != nil {
		logger.Warn("persist message", zap.String("chat_id", chatID.String()), zap.String("role", role), zap.Error(err))
	}
}

func (s *Service) documentNote(ctx context.Context, logger *zap.Logger, fileKey string) string {
	if s.graph == nil {
		return ""
	}
	insight, err := s.graph.Insight(ctx, vectorstore.Namespace(fileKey, s.disambiguate))
	if err != nil {
		logger.Warn("graph insight", zap.Error(err))
		return ""
	}
	if insight.Pages == 0 {
		return ""
	}
	return fmt.Sprintf("The document has %d pages and %d indexed passages.", insight.Pages, insight.Chunks)
}

func toSources(matches []vectorstore.Match) []Source {
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			PageNumber: m.PageNumber,
			Score:      m.Score,
			Snippet:    truncateRunes(strings.TrimSpace(m.Text), maxSnippetRunes),
		})
	}
	return sources
}

func systemPrompt() string {
	return "You are a helpful assistant answering questions about a PDF document. Answer only from the context block supplied with the question. If the context does not contain the answer, say that you don't know instead of guessing. Keep answers concise and mention page-specific details when they matter."
}

func formatUserPrompt(question, context, note string) string {
	var sb strings.Builder
	sb.WriteString("START CONTEXT BLOCK\n")
	sb.WriteString(context)
	sb.WriteString("\nEND OF CONTEXT BLOCK\n")
	if note != "" {
		sb.WriteString(note)
		sb.WriteString("\n")
	}
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	return sb.String()
}
