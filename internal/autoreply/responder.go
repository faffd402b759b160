// Package autoreply is the optional auto-responder collaborator. The
// router offers each successfully broadcast message to it; a non-empty
// reply is re-injected as a message from the reserved system identity.
// The responder is never on the sender's acknowledgement path.
package autoreply

import (
	"context"

	"github.com/ogas1024/chat-room/internal/domain"
)

// Responder decides whether a message deserves an automatic reply.
// Returning an empty string means no reply.
type Responder interface {
	MaybeReply(ctx context.Context, msg domain.Message, history []domain.Message) (string, error)
}

// Disabled never replies. Used when no responder is configured.
type Disabled struct{}

func (Disabled) MaybeReply(context.Context, domain.Message, []domain.Message) (string, error) {
	return "", nil
}
