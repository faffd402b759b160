package autoreply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ogas1024/chat-room/internal/domain"
)

// HTTPResponder posts the message and its recent conversation context
// to a completion endpoint and relays the reply.
type HTTPResponder struct {
	endpoint string
	client   *http.Client
}

// NewHTTPResponder creates a responder talking to the given endpoint.
func NewHTTPResponder(endpoint string, timeout time.Duration) *HTTPResponder {
	return &HTTPResponder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type replyRequest struct {
	Message domain.Message   `json:"message"`
	Context []domain.Message `json:"context,omitempty"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

func (r *HTTPResponder) MaybeReply(ctx context.Context, msg domain.Message, history []domain.Message) (string, error) {
	body, err := json.Marshal(replyRequest{Message: msg, Context: history})
	if err != nil {
		return "", fmt.Errorf("encode reply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call responder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("responder returned status %d", resp.StatusCode)
	}

	var out replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	return out.Reply, nil
}
