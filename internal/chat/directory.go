package chat

import (
	"context"

	"github.com/pnordin/assistant-chat/internal/llm"
)

// AssistantDirectory lists and resolves the assistants of the active
// backend, normalized to {id, name}.
type AssistantDirectory struct {
	backend llm.Backend
}

func NewAssistantDirectory(backend llm.Backend) *AssistantDirectory {
	return &AssistantDirectory{backend: backend}
}

// List fetches up to one page of assistants in reverse-creation order.
func (d *AssistantDirectory) List(ctx context.Context) ([]llm.Assistant, error) {
	return d.backend.ListAssistants(ctx)
}

// Resolve looks up a single assistant by id, returning
// llm.ErrAssistantNotFound on a miss.
func (d *AssistantDirectory) Resolve(ctx context.Context, id string) (*llm.Assistant, error) {
	return d.backend.RetrieveAssistant(ctx, id)
}
