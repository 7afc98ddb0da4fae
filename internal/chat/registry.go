package chat

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pnordin/assistant-chat/internal/llm"
)

// ConversationHandle ties a user to their backend conversation. At most one
// exists per user per backend configuration; handles are not portable
// across configurations.
type ConversationHandle struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// HandleStore persists handles across restarts. The fingerprint identifies
// the backend configuration a handle was created under, so a configuration
// change never resurrects a stale handle.
type HandleStore interface {
	LoadHandle(fingerprint, userID string) (ConversationHandle, bool, error)
	SaveHandle(fingerprint string, handle ConversationHandle) error
}

// ConversationRegistry lazily creates and caches one conversation per user.
// Creation is single-flight per user: concurrent callers for the same user
// share the winner's handle instead of creating two conversations.
type ConversationRegistry struct {
	backend     llm.Backend
	fingerprint string
	store       HandleStore
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[string]ConversationHandle
	group   singleflight.Group
}

// NewConversationRegistry builds a registry for one backend configuration.
// store may be nil to keep handles in memory only.
func NewConversationRegistry(backend llm.Backend, fingerprint string, store HandleStore, logger *slog.Logger) *ConversationRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationRegistry{
		backend:     backend,
		fingerprint: fingerprint,
		store:       store,
		logger:      logger,
		handles:     make(map[string]ConversationHandle),
	}
}

func (r *ConversationRegistry) GetOrCreate(ctx context.Context, userID string) (ConversationHandle, error) {
	if handle, ok := r.cached(userID); ok {
		return handle, nil
	}

	v, err, _ := r.group.Do(userID, func() (any, error) {
		// A loser of the race reaches here after the winner finished.
		if handle, ok := r.cached(userID); ok {
			return handle, nil
		}

		if r.store != nil {
			handle, ok, err := r.store.LoadHandle(r.fingerprint, userID)
			if err != nil {
				r.logger.Warn("failed to load persisted conversation handle", "user_id", userID, "error", err)
			} else if ok {
				r.remember(handle)
				return handle, nil
			}
		}

		conversationID, err := r.backend.CreateConversation(ctx)
		if err != nil {
			return ConversationHandle{}, err
		}
		handle := ConversationHandle{UserID: userID, ConversationID: conversationID}
		r.remember(handle)
		if r.store != nil {
			if err := r.store.SaveHandle(r.fingerprint, handle); err != nil {
				r.logger.Warn("failed to persist conversation handle", "user_id", userID, "error", err)
			}
		}
		r.logger.Debug("created conversation", "user_id", userID, "conversation_id", conversationID)
		return handle, nil
	})
	if err != nil {
		return ConversationHandle{}, err
	}
	return v.(ConversationHandle), nil
}

// InvalidateAll drops every cached handle. Called when the backend
// configuration changes.
func (r *ConversationRegistry) InvalidateAll() {
	r.mu.Lock()
	r.handles = make(map[string]ConversationHandle)
	r.mu.Unlock()
}

func (r *ConversationRegistry) cached(userID string) (ConversationHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.handles[userID]
	return handle, ok
}

func (r *ConversationRegistry) remember(handle ConversationHandle) {
	r.mu.Lock()
	r.handles[handle.UserID] = handle
	r.mu.Unlock()
}
