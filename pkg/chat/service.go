// Package chat runs a single request/response exchange with the completion gateway and
// records the resulting turns.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/sentichat/sentichat/pkg/ai"
	"github.com/sentichat/sentichat/pkg/chatstore"
)

// State is a step of the exchange state machine.
type State string

const (
	StateValidating State = "validating"
	StateCompleting State = "completing"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var (
	exchangesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentichat_exchanges_total",
		Help: "Chat exchanges by final state.",
	}, []string{"state"})

	persistFailuresMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentichat_persist_failures_total",
		Help: "Exchanges whose reply was returned but whose turns could not be stored.",
	})
)

// Config parameterizes the service. The model and base URL are recorded on bot turns and in
// logs; the gateway itself is configured with the same values.
type Config struct {
	ModelID                string `yaml:"modelId"`
	BaseURL                string `yaml:"baseUrl"`
	SystemInstruction      string `yaml:"systemInstruction"`
	ImageSystemInstruction string `yaml:"imageSystemInstruction"`

	// PersistUserTurnEagerly stores the user turn before calling the gateway so a failed
	// completion does not drop the message from history.
	PersistUserTurnEagerly bool `yaml:"persistUserTurnEagerly"`
}

// WithDefaults fills unset instructions.
func (c Config) WithDefaults() Config {
	if c.SystemInstruction == "" {
		c.SystemInstruction = ai.DefaultSystemInstruction
	}
	if c.ImageSystemInstruction == "" {
		c.ImageSystemInstruction = ai.DefaultImageSystemInstruction
	}
	return c
}

// ImageInfo describes an image that accompanied a message. The bytes themselves are never
// stored; Ref is an opaque reference recorded on the user turn.
type ImageInfo struct {
	Ref         string
	ContentType string
	Size        int64
}

type Request struct {
	UserID  string
	Message string
	Image   *ImageInfo
}

type Reply struct {
	Text string `json:"reply"`
}

type Service struct {
	config  Config
	gateway ai.Gateway
	store   chatstore.Store
	now     func() time.Time

	// observe, when set, is told about every state transition.
	observe func(State)
}

type Option func(*Service)

// WithClock overrides the time source used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithStateObserver registers a callback invoked on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

func NewService(config Config, gateway ai.Gateway, store chatstore.Store, opts ...Option) *Service {
	s := &Service{
		config:  config.WithDefaults(),
		gateway: gateway,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) enter(state State) {
	if s.observe != nil {
		s.observe(state)
	}
}

func (s *Service) finish(state State) {
	s.enter(state)
	exchangesMetric.WithLabelValues(string(state)).Inc()
}

// Exchange validates the request, obtains a reply from the gateway and stores both turns when
// a user id was supplied. Storage failures after a successful completion are logged and the
// reply is still returned.
func (s *Service) Exchange(ctx context.Context, req Request) (Reply, error) {
	logger := log.WithFields(log.Fields{
		"user":     req.UserID,
		"hasImage": req.Image != nil,
		"model":    s.config.ModelID,
	})

	s.enter(StateValidating)
	if strings.TrimSpace(req.Message) == "" && req.Image == nil {
		s.finish(StateFailed)
		return Reply{}, NewValidationError("message or image is required")
	}

	userTurn := chatstore.UserTurn(req.Message, "", s.now())
	if req.Image != nil {
		userTurn.ImageRef = req.Image.Ref
		userTurn.Metadata = map[string]interface{}{
			"imageContentType": req.Image.ContentType,
			"imageSize":        req.Image.Size,
		}
	}

	userStored := false
	if s.config.PersistUserTurnEagerly && req.UserID != "" {
		if err := s.store.Append(ctx, req.UserID, userTurn); err != nil {
			persistFailuresMetric.Inc()
			logger.WithError(err).Error("error saving user turn before completion")
		} else {
			userStored = true
		}
	}

	s.enter(StateCompleting)
	instruction := s.config.SystemInstruction
	if req.Image != nil {
		instruction = s.config.ImageSystemInstruction
	}
	text, err := s.gateway.Complete(ctx, ai.CompletionRequest{
		SystemInstruction: instruction,
		UserText:          req.Message,
		HasImage:          req.Image != nil,
	})
	if err != nil {
		s.finish(StateFailed)
		logger.WithError(err).Error("completion failed")
		return Reply{}, err
	}

	if req.UserID != "" {
		s.enter(StatePersisting)
		botTurn := chatstore.BotTurn(text, s.now())
		if s.config.ModelID != "" {
			botTurn.Metadata = map[string]interface{}{"model": s.config.ModelID}
		}

		turns := []chatstore.Turn{userTurn, botTurn}
		if userStored {
			turns = turns[1:]
		}
		if err := s.store.Append(ctx, req.UserID, turns...); err != nil {
			persistFailuresMetric.Inc()
			logger.WithError(err).Error("error saving exchange, returning reply anyway")
		}
	}

	s.finish(StateDone)
	logger.Debug("exchange complete")
	return Reply{Text: text}, nil
}

// History returns the stored turns for userID.
func (s *Service) History(ctx context.Context, userID string) ([]chatstore.Turn, error) {
	return s.store.Fetch(ctx, userID)
}

// Clear removes the stored conversation for userID.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
