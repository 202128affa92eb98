package chatclient

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentichat/sentichat/pkg/ai"
	chatv1 "github.com/sentichat/sentichat/pkg/apis/chat/v1"
	"github.com/sentichat/sentichat/pkg/chat"
	"github.com/sentichat/sentichat/pkg/chatserver"
	"github.com/sentichat/sentichat/pkg/chatstore"
	"github.com/sentichat/sentichat/pkg/uploads"
)

type fakeAPI struct {
	mu       sync.Mutex
	reply    string
	err      error
	history  []chatv1.Message
	histErr  error
	clearErr error
	release  chan struct{}

	sent    []string
	images  []string
	cleared int
}

func (f *fakeAPI) wait() {
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeAPI) Chat(_ context.Context, message, _ string) (string, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return f.reply, f.err
}

func (f *fakeAPI) ChatWithImage(_ context.Context, message, _, imagePath string) (string, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	f.images = append(f.images, imagePath)
	return f.reply, f.err
}

func (f *fakeAPI) History(context.Context, string) ([]chatv1.Message, error) {
	return f.history, f.histErr
}

func (f *fakeAPI) ClearHistory(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.clearErr
}

func TestSessionInit(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	api := &fakeAPI{history: []chatv1.Message{
		{Type: chatv1.MessageTypeUser, Content: "hi", Image: "uploads/1-cat.png", Timestamp: ts},
		{Type: chatv1.MessageTypeBot, Content: "hello", Timestamp: ts.Add(time.Second)},
	}}
	s := NewSession(api, "u1")

	require.NoError(t, s.Init(context.Background()))
	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Type: chatv1.MessageTypeUser, Text: "hi", Image: "uploads/1-cat.png", Timestamp: ts}, turns[0])
	assert.Equal(t, chatv1.MessageTypeBot, turns[1].Type)
	assert.False(t, s.Loading())
}

func TestSessionInitFailureLeavesEmptyHistory(t *testing.T) {
	api := &fakeAPI{histErr: errors.New("connection refused")}
	s := NewSession(api, "u1")

	assert.Error(t, s.Init(context.Background()))
	assert.Empty(t, s.Turns())
	assert.NotNil(t, s.Turns())
	assert.False(t, s.Loading())
}

func TestSessionSend(t *testing.T) {
	api := &fakeAPI{reply: "It's okay to feel anxious..."}
	s := NewSession(api, "u1")

	reply, err := s.Send(context.Background(), "I feel anxious")
	require.NoError(t, err)
	assert.Equal(t, "It's okay to feel anxious...", reply)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, chatv1.MessageTypeUser, turns[0].Type)
	assert.Equal(t, "I feel anxious", turns[0].Text)
	assert.Equal(t, chatv1.MessageTypeBot, turns[1].Type)
	assert.Equal(t, reply, turns[1].Text)
	assert.False(t, turns[1].Ephemeral)
	assert.Empty(t, s.Input())
}

func TestSessionSubmitRejectsEmptyInput(t *testing.T) {
	api := &fakeAPI{}
	s := NewSession(api, "u1")

	for _, input := range []string{"", "   ", "\n\t"} {
		s.SetInput(input)
		_, err := s.Submit(context.Background())
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Empty(t, s.Turns())
	assert.Empty(t, api.sent)
}

func TestSessionSubmitIsOptimisticAndSingleFlight(t *testing.T) {
	api := &fakeAPI{reply: "ok", release: make(chan struct{})}
	s := NewSession(api, "u1")

	s.SetInput("first")
	results, err := s.Submit(context.Background())
	require.NoError(t, err)

	assert.True(t, s.Loading())
	assert.Empty(t, s.Input(), "input is cleared as soon as the message is submitted")
	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "first", turns[0].Text)

	s.SetInput("second")
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSendInFlight)
	assert.Equal(t, "second", s.Input(), "rejected input is kept")

	close(api.release)
	res := <-results
	require.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Reply)
	assert.False(t, s.Loading())
	assert.Len(t, s.Turns(), 2)
	assert.Equal(t, []string{"first"}, api.sent)
}

func TestSessionSendFailureShowsFallback(t *testing.T) {
	api := &fakeAPI{err: &APIError{StatusCode: 500, Message: "Internal Server Error"}}
	s := NewSession(api, "u1")

	_, err := s.Send(context.Background(), "I feel anxious")
	assert.Error(t, err)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "I feel anxious", turns[0].Text)
	assert.Equal(t, FallbackReply, turns[1].Text)
	assert.True(t, turns[1].Ephemeral)
	assert.False(t, s.Loading())
}

func TestSessionImageAttachment(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("\x89PNG"), 0o600))

	api := &fakeAPI{reply: "cute"}
	s := NewSession(api, "u1")

	assert.Error(t, s.AttachImage(filepath.Join(t.TempDir(), "missing.png")))
	assert.Error(t, s.AttachImage(t.TempDir()))

	require.NoError(t, s.AttachImage(imagePath))
	assert.Equal(t, imagePath, s.AttachedImage())
	s.RemoveImage()
	assert.Empty(t, s.AttachedImage())

	require.NoError(t, s.AttachImage(imagePath))
	results, err := s.Submit(context.Background())
	require.NoError(t, err, "an image alone may be sent")
	assert.Empty(t, s.AttachedImage(), "attachment is cleared on submit")
	res := <-results
	require.NoError(t, res.Err)

	assert.Equal(t, []string{imagePath}, api.images)
	assert.Equal(t, imagePath, s.Turns()[0].Image)
}

func TestSessionClearDoesNotRollBack(t *testing.T) {
	api := &fakeAPI{reply: "ok", clearErr: errors.New("connection refused")}
	s := NewSession(api, "u1")
	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)

	assert.Error(t, s.Clear(context.Background()))
	assert.Empty(t, s.Turns())
	assert.Equal(t, 1, api.cleared)
}

func TestSessionOnChange(t *testing.T) {
	api := &fakeAPI{reply: "ok"}
	s := NewSession(api, "u1")

	var mu sync.Mutex
	var lengths []int
	s.OnChange(func(turns []Turn) {
		mu.Lock()
		defer mu.Unlock()
		lengths = append(lengths, len(turns))
	})

	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.NoError(t, s.Clear(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 0}, lengths)
}

func TestSessionObserverRegisteredDuringNotify(t *testing.T) {
	s := NewSession(&fakeAPI{}, "u1")

	var outer, inner int
	s.OnChange(func([]Turn) {
		outer++
		if outer == 1 {
			s.OnChange(func([]Turn) { inner++ })
		}
	})

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, 1, outer)
	assert.Equal(t, 0, inner, "observer added mid-notify should wait for the next change")

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, 2, outer)
	assert.Equal(t, 1, inner)
}

type failingGateway struct{}

func (failingGateway) Complete(context.Context, ai.CompletionRequest) (string, error) {
	return "", &ai.UpstreamError{Reason: "request failed", Err: errors.New("connection refused")}
}

func TestSessionFallbackIsNeverPersisted(t *testing.T) {
	receiver, err := uploads.NewReceiver(t.TempDir(), 0)
	require.NoError(t, err)
	svc := chat.NewService(chat.Config{}, failingGateway{}, chatstore.NewMemoryStore())
	srv := httptest.NewServer(chatserver.NewServer("", svc, receiver).Handler())
	defer srv.Close()

	client := New(WithServerURL(srv.URL))
	s := NewSession(client, "u1")
	require.NoError(t, s.Init(context.Background()))

	_, err = s.Send(context.Background(), "I feel anxious")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Internal Server Error", apiErr.Message)

	local := s.Turns()
	require.Len(t, local, 2)
	assert.Equal(t, FallbackReply, local[1].Text)

	stored, err := client.History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, stored, "neither the failed message nor the fallback may be stored")

	fresh := NewSession(client, "u1")
	require.NoError(t, fresh.Init(context.Background()))
	assert.Empty(t, fresh.Turns())
}
