package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/LeventeLantos/royal-studio/internal/client"
	"github.com/LeventeLantos/royal-studio/internal/model"
)

type fakeChatClient struct {
	reply string
	err   error
	gate  chan struct{}
	got   []string
}

func (f *fakeChatClient) Chat(_ context.Context, message string) (string, error) {
	f.got = append(f.got, message)
	if f.gate != nil {
		<-f.gate
	}
	return f.reply, f.err
}

func newTestConversation(c ChatClient) (*Conversation, *testingclock.FakeClock) {
	fc := testingclock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	conv := NewConversation(c, fc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n := 0
	conv.newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return conv, fc
}

func TestSend_AppendsUserAndBotMessages(t *testing.T) {
	t.Parallel()

	fake := &fakeChatClient{reply: "Hello there"}
	conv, fc := newTestConversation(fake)

	reply, err := conv.Send(context.Background(), "  hi  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"hi"}, fake.got)
	assert.Equal(t, model.ChatMessage{ID: "m2", Text: "Hello there", Sender: model.SenderBot, Timestamp: fc.Now()}, reply)
	assert.Equal(t, []model.ChatMessage{
		{ID: "m1", Text: "hi", Sender: model.SenderUser, Timestamp: fc.Now()},
		reply,
	}, conv.Transcript())
}

func TestSend_FailuresBecomeBotMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "remote error text", err: &client.StatusError{StatusCode: http.StatusBadRequest, Message: "quota exceeded"}, want: "quota exceeded"},
		{name: "remote error without text", err: &client.StatusError{StatusCode: http.StatusInternalServerError}, want: MsgRemoteError},
		{name: "transport failure", err: errors.New("gateway request failed: connection refused"), want: MsgNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conv, _ := newTestConversation(&fakeChatClient{err: tt.err})

			reply, err := conv.Send(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, model.SenderBot, reply.Sender)
			assert.Equal(t, tt.want, reply.Text)
			assert.Len(t, conv.Transcript(), 2)
		})
	}
}

func TestSend_IgnoresEmptyMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeChatClient{reply: "x"}
	conv, _ := newTestConversation(fake)

	_, err := conv.Send(context.Background(), " \n ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, fake.got)
	assert.Empty(t, conv.Transcript())
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	t.Parallel()

	fake := &fakeChatClient{reply: "first", gate: make(chan struct{})}
	conv, _ := newTestConversation(fake)

	done := make(chan error, 1)
	go func() {
		_, err := conv.Send(context.Background(), "one")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(conv.Transcript()) == 1 }, time.Second, time.Millisecond)

	_, err := conv.Send(context.Background(), "two")
	require.ErrorIs(t, err, ErrSendInFlight)

	close(fake.gate)
	require.NoError(t, <-done)
	assert.Len(t, conv.Transcript(), 2)
}

func TestTranscript_ReturnsCopy(t *testing.T) {
	t.Parallel()

	conv, _ := newTestConversation(&fakeChatClient{reply: "ok"})
	_, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)

	tr := conv.Transcript()
	tr[0].Text = "changed"
	assert.Equal(t, "hi", conv.Transcript()[0].Text)
}
