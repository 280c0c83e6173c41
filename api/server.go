// Package api exposes the chat workflows over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Ryanakml/pdf-chatbots/chat"
	"github.com/Ryanakml/pdf-chatbots/config"
	"github.com/Ryanakml/pdf-chatbots/embeddings"
	"github.com/Ryanakml/pdf-chatbots/ingestion"
	"github.com/Ryanakml/pdf-chatbots/llm"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

// UserHeader carries the authenticated user id set by the fronting proxy.
const UserHeader = "X-User-ID"

type Ingester interface {
	IngestDocument(ctx context.Context, fileKey string) (ingestion.Result, error)
}

type Asker interface {
	Ask(ctx context.Context, req chat.AskRequest) (chat.Response, error)
}

type URLResolver interface {
	URL(key string) string
}

type Deps struct {
	Ingester Ingester
	Asker    Asker
	Chats    chat.Store
	Storage  URLResolver
	APIKey   string
	Logger   *zap.Logger
}

// Server routes the JSON API.
type Server struct {
	deps    Deps
	logger  *zap.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{deps: deps, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.deps.APIKey != "" {
			r.Use(AuthMiddleware(s.deps.APIKey))
		}
		r.Post("/create-chat", s.handleCreateChat)
		r.Post("/chat", s.handleChat)
		r.Post("/get-messages", s.handleGetMessages)
		r.Get("/chats", s.handleListChats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("api error", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Info("api error", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		extractErr *ingestion.ExtractionError
		cfgErr     *config.ValidationError
		embedErr   *embeddings.ServiceError
		llmErr     *llm.ServiceError
		writeErr   *vectorstore.WriteError
		queryErr   *vectorstore.QueryError
	)
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrChatNotFound):
		return http.StatusNotFound
	case errors.As(err, &extractErr), errors.Is(err, ingestion.ErrNoContent):
		return http.StatusUnprocessableEntity
	case errors.As(err, &llmErr):
		if llmErr.StatusCode >= 400 && llmErr.StatusCode < 600 {
			return llmErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.As(err, &embedErr), errors.Is(err, llm.ErrNoAnswer):
		return http.StatusBadGateway
	case errors.As(err, &writeErr), errors.As(err, &queryErr), errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
