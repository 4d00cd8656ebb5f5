// Package chat keeps a single conversation transcript with the remote
// assistant.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/LeventeLantos/royal-studio/internal/client"
	"github.com/LeventeLantos/royal-studio/internal/model"
)

const (
	MsgRemoteError  = "Sorry, I encountered an error. Please try again."
	MsgNetworkError = "Network error. Please check your connection and try again."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a chat message is already in flight")
)

type ChatClient interface {
	Chat(ctx context.Context, message string) (string, error)
}

type Conversation struct {
	client   ChatClient
	clock    clock.PassiveClock
	log      *slog.Logger
	newID    func() string
	inFlight atomic.Bool

	mu       sync.RWMutex
	messages []model.ChatMessage
}

func NewConversation(c ChatClient, clk clock.PassiveClock, log *slog.Logger) *Conversation {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Conversation{client: c, clock: clk, log: log, newID: uuid.NewString}
}

// Send appends text as a user message, asks the assistant and appends its
// reply. Remote and network failures become a bot message; they are not
// returned as errors.
func (c *Conversation) Send(ctx context.Context, text string) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return model.ChatMessage{}, ErrSendInFlight
	}
	defer c.inFlight.Store(false)

	c.append(model.SenderUser, text)

	reply, err := c.client.Chat(ctx, text)
	if err != nil {
		reply = replyForError(err)
		c.log.Warn("chat send failed", "err", err)
	}
	return c.append(model.SenderBot, reply), nil
}

// Transcript returns a copy of all messages, oldest first.
func (c *Conversation) Transcript() []model.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) append(sender model.Sender, text string) model.ChatMessage {
	m := model.ChatMessage{
		ID:        c.newID(),
		Text:      text,
		Sender:    sender,
		Timestamp: c.clock.Now(),
	}

	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	return m
}

func replyForError(err error) string {
	var se *client.StatusError
	if errors.As(err, &se) {
		if strings.TrimSpace(se.Message) != "" {
			return se.Message
		}
		return MsgRemoteError
	}
	return MsgNetworkError
}
