package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ryanakml/pdf-chatbots/chat"
)

type createChatRequest struct {
	FileKey  string `json:"file_key"`
	FileName string `json:"file_name"`
}

type createChatResponse struct {
	ChatID string `json:"chat_id"`
}

type getMessagesRequest struct {
	ChatID string `json:"chatId"`
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type uiMessage struct {
	ID    string        `json:"id"`
	Role  string        `json:"role"`
	Parts []messagePart `json:"parts"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userID == "" {
		s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	if s.deps.Ingester == nil || s.deps.Chats == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}

	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	req.FileKey = strings.TrimSpace(req.FileKey)
	if req.FileKey == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file_key is required"))
		return
	}
	if req.FileName == "" {
		req.FileName = req.FileKey
	}

	ctx := r.Context()
	res, err := s.deps.Ingester.IngestDocument(ctx, req.FileKey)
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("ingest document: %w", err))
		return
	}

	pdfURL := ""
	if s.deps.Storage != nil {
		pdfURL = s.deps.Storage.URL(req.FileKey)
	}

	created, err := s.deps.Chats.CreateChat(ctx, chat.Chat{
		ID:      uuid.New(),
		PDFName: req.FileName,
		PDFURL:  pdfURL,
		UserID:  userID,
		FileKey: req.FileKey,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("create chat: %w", err))
		return
	}

	s.logger.Info("chat created",
		zap.String("chat_id", created.ID.String()),
		zap.String("namespace", res.Namespace),
		zap.Int("vectors", res.VectorsUpserted),
	)
	s.writeJSON(w, http.StatusOK, createChatResponse{ChatID: created.ID.String()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Asker == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat is not configured"))
		return
	}

	var body map[string]any
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	text := strings.TrimSpace(lastText(body))
	if text == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing text"))
		return
	}

	req := chat.AskRequest{Question: text, FileKey: stringField(body, "fileKey", "file_key")}

	rawID := r.URL.Query().Get("chatId")
	if rawID == "" {
		rawID = stringField(body, "chatId", "chat_id")
	}
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chatId"))
			return
		}
		req.ChatID = id
	}
	if req.ChatID == uuid.Nil && req.FileKey == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("chatId is required"))
		return
	}

	resp, err := s.deps.Asker.Ask(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, uiMessage{
		ID:    uuid.NewString(),
		Role:  "assistant",
		Parts: []messagePart{{Type: "text", Text: resp.Answer}},
	})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chats == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat store is not configured"))
		return
	}

	var req getMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	chatID, err := uuid.Parse(strings.TrimSpace(req.ChatID))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chatId"))
		return
	}

	messages, err := s.deps.Chats.ListMessages(r.Context(), chatID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list messages: %w", err))
		return
	}

	out := make([]uiMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, uiMessage{
			ID:    strconv.FormatInt(m.ID, 10),
			Role:  m.Role,
			Parts: []messagePart{{Type: "text", Text: m.Content}},
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userID == "" {
		s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	if s.deps.Chats == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat store is not configured"))
		return
	}

	chats, err := s.deps.Chats.ListChats(r.Context(), userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list chats: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, chats)
}

// lastText pulls the user's latest message out of the request shapes sent by
// chat front ends: a plain text/input/message/prompt field, or the last entry
// of a messages array whose content is a string, a parts array or a content
// array.
func lastText(body map[string]any) string {
	for _, key := range []string{"text", "input", "message", "prompt"} {
		if s, ok := body[key].(string); ok {
			return s
		}
	}

	messages, _ := body["messages"].([]any)
	if len(messages) == 0 {
		return ""
	}
	last, _ := messages[len(messages)-1].(map[string]any)
	if last == nil {
		return ""
	}

	if s, ok := last["content"].(string); ok {
		return s
	}
	if parts, ok := last["parts"].([]any); ok {
		return joinParts(parts, false)
	}
	if content, ok := last["content"].([]any); ok {
		return joinParts(content, true)
	}
	if s, ok := last["text"].(string); ok {
		return s
	}
	return ""
}

func joinParts(parts []any, allowStrings bool) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			if allowStrings && v != "" {
				texts = append(texts, v)
			}
		case map[string]any:
			if s, ok := v["text"].(string); ok && s != "" {
				texts = append(texts, s)
			}
		}
	}
	return strings.Join(texts, "\n")
}

func stringField(body map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := body[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
