package chatclient

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	chatv1 "github.com/sentichat/sentichat/pkg/apis/chat/v1"
)

// FallbackReply is shown in place of a reply when a send fails. It is never sent to or stored
// by the server.
const FallbackReply = "Sorry, I'm having trouble connecting right now. Please try again later."

var (
	ErrEmptyInput   = errors.New("nothing to send: enter a message or attach an image")
	ErrSendInFlight = errors.New("a message is already being sent")
)

// API is the subset of Client a Session needs.
type API interface {
	Chat(ctx context.Context, message, userID string) (string, error)
	ChatWithImage(ctx context.Context, message, userID, imagePath string) (string, error)
	History(ctx context.Context, userID string) ([]chatv1.Message, error)
	ClearHistory(ctx context.Context, userID string) error
}

// Turn is a message as displayed locally. Image holds the server's reference for stored turns
// and the local file path for turns sent from this session. Ephemeral turns exist only here.
type Turn struct {
	Type      chatv1.MessageType
	Text      string
	Image     string
	Timestamp time.Time
	Ephemeral bool
}

// Result is delivered once per Submit.
type Result struct {
	Reply string
	Err   error
}

// Session holds one user's conversation as shown to them: stored turns from the server,
// turns sent optimistically, and the pending input. It allows one send at a time.
type Session struct {
	api    API
	userID string
	now    func() time.Time

	mu        sync.Mutex
	turns     []Turn
	input     string
	imagePath string
	loading   bool
	observers []func([]Turn)
}

func NewSession(api API, userID string) *Session {
	return &Session{
		api:    api,
		userID: userID,
		now:    time.Now,
		turns:  []Turn{},
	}
}

func (s *Session) UserID() string {
	return s.userID
}

// OnChange registers fn to receive a copy of the turns after every change.
func (s *Session) OnChange(fn func([]Turn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Init replaces the local turns with the stored history. On failure the history stays empty
// and the error is returned for display.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	messages, err := s.api.History(ctx, s.userID)

	s.mu.Lock()
	s.loading = false
	turns := make([]Turn, 0, len(messages))
	if err != nil {
		log.WithError(err).WithField("user", s.userID).Warn("error loading chat history")
	} else {
		for _, m := range messages {
			turns = append(turns, Turn{
				Type:      m.Type,
				Text:      m.Content,
				Image:     m.Image,
				Timestamp: m.Timestamp,
			})
		}
	}
	s.turns = turns
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
	return err
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// AttachImage selects the image sent with the next message.
func (s *Session) AttachImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.WithMessage(err, "could not attach image")
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("could not attach image: %s is not a regular file", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.imagePath = path
	return nil
}

func (s *Session) RemoveImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imagePath = ""
}

func (s *Session) AttachedImage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imagePath
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Turns returns a copy of the local conversation.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTurns(s.turns)
}

// Submit sends the pending input and attachment. The user turn is shown immediately and the
// input is cleared; the reply, or FallbackReply on failure, is appended when the request
// finishes and the outcome is delivered on the returned channel.
func (s *Session) Submit(ctx context.Context) (<-chan Result, error) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	if strings.TrimSpace(s.input) == "" && s.imagePath == "" {
		s.mu.Unlock()
		return nil, ErrEmptyInput
	}

	text, imagePath := s.input, s.imagePath
	s.turns = append(s.turns, Turn{
		Type:      chatv1.MessageTypeUser,
		Text:      text,
		Image:     imagePath,
		Timestamp: s.now(),
	})
	s.input = ""
	s.imagePath = ""
	s.loading = true
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()
	notify(observers, snapshot)

	results := make(chan Result, 1)
	go func() {
		defer close(results)

		var reply string
		var err error
		if imagePath != "" {
			reply, err = s.api.ChatWithImage(ctx, text, s.userID, imagePath)
		} else {
			reply, err = s.api.Chat(ctx, text, s.userID)
		}

		botTurn := Turn{Type: chatv1.MessageTypeBot, Text: reply}
		if err != nil {
			log.WithError(err).WithField("user", s.userID).Warn("error sending message")
			botTurn.Text = FallbackReply
			botTurn.Ephemeral = true
		}

		s.mu.Lock()
		botTurn.Timestamp = s.now()
		s.turns = append(s.turns, botTurn)
		s.loading = false
		snapshot, observers := s.snapshotLocked()
		s.mu.Unlock()
		notify(observers, snapshot)

		results <- Result{Reply: reply, Err: err}
	}()

	return results, nil
}

// Send submits text with any attached image and waits for the outcome.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.SetInput(text)
	results, err := s.Submit(ctx)
	if err != nil {
		return "", err
	}
	res := <-results
	return res.Reply, res.Err
}

// Clear empties the local conversation at once and then asks the server to forget it. The
// local state is not restored if the server call fails.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.turns = []Turn{}
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()
	notify(observers, snapshot)

	if err := s.api.ClearHistory(ctx, s.userID); err != nil {
		log.WithError(err).WithField("user", s.userID).Warn("error clearing chat history")
		return err
	}
	return nil
}

func (s *Session) snapshotLocked() ([]Turn, []func([]Turn)) {
	observers := make([]func([]Turn), len(s.observers))
	copy(observers, s.observers)
	return copyTurns(s.turns), observers
}

func copyTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

func notify(observers []func([]Turn), turns []Turn) {
	for _, fn := range observers {
		fn(turns)
	}
}
