package chat

import (
	"context"

	"github.com/Ryanakml/pdf-chatbots/knowledge"
)

// GraphStore supplies per-document structure used to annotate prompts.
type GraphStore interface {
	Insight(ctx context.Context, namespace string) (knowledge.Insight, error)
}

var _ GraphStore = (*knowledge.Graph)(nil)
