package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

// Context is the grounding handed to the model. Matches holds only the
// matches that passed the score threshold.
type Context struct {
	Text    string
	Matches []vectorstore.Match
}

type Chat struct {
	ID        uuid.UUID `json:"id"`
	PDFName   string    `json:"pdf_name"`
	PDFURL    string    `json:"pdf_url"`
	UserID    string    `json:"user_id"`
	FileKey   string    `json:"file_key"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        int64
	ChatID    uuid.UUID
	Content   string
	Role      string
	CreatedAt time.Time
}

type AskRequest struct {
	ChatID   uuid.UUID
	FileKey  string
	Question string
}

type Source struct {
	PageNumber int
	Score      float64
	Snippet    string
}

type Response struct {
	Answer string
	// Grounded is false when no context passed the threshold and Answer is
	// the fixed refusal.
	Grounded bool
	Sources  []Source
}
