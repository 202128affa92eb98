// Package chatserver exposes the chat session service over HTTP.
package chatserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/slok/go-http-metrics/middleware"

	"github.com/sentichat/sentichat/pkg/api"
	chatv1 "github.com/sentichat/sentichat/pkg/apis/chat/v1"
	"github.com/sentichat/sentichat/pkg/chat"
	"github.com/sentichat/sentichat/pkg/chatserver/metrics"
	"github.com/sentichat/sentichat/pkg/chatstore"
	"github.com/sentichat/sentichat/pkg/uploads"
)

const (
	// MaxChatRequestBytes bounds the JSON body accepted by POST /chatbot (1MB).
	MaxChatRequestBytes = 1024 * 1024

	internalServerError = "Internal Server Error"
)

// CachePinger is implemented by cache clients that can report their connectivity.
type CachePinger interface {
	Ping() error
}

type Server struct {
	listenAddr  string
	chat        *chat.Service
	uploads     *uploads.Receiver
	cache       CachePinger
	httpMetrics *middleware.Middleware
	httpServer  *http.Server
}

type Option func(*Server)

// WithCacheCheck includes the cache in the /healthz report.
func WithCacheCheck(c CachePinger) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithHTTPMetrics instruments every route with m.
func WithHTTPMetrics(m middleware.Middleware) Option {
	return func(s *Server) {
		s.httpMetrics = &m
	}
}

func NewServer(listenAddr string, svc *chat.Service, receiver *uploads.Receiver, opts ...Option) *Server {
	s := &Server{
		listenAddr: listenAddr,
		chat:       svc,
		uploads:    receiver,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func failureResponse(w http.ResponseWriter, code int, message string) {
	api.RespondWithJSON(code, w, chatv1.ErrorResponse{Error: message})
}

// writeExchangeError maps the exchange error taxonomy onto HTTP status codes.
func writeExchangeError(w http.ResponseWriter, logger *log.Entry, err error) {
	var validationErr *chat.ValidationError
	if errors.As(err, &validationErr) {
		failureResponse(w, http.StatusBadRequest, validationErr.Message)
		return
	}
	logger.WithError(err).Error("chat exchange failed")
	failureResponse(w, http.StatusInternalServerError, internalServerError)
}

func (s *Server) jsonChat(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, MaxChatRequestBytes)

	var request chatv1.ChatRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		log.WithError(err).Warn("error parsing chat request")
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			failureResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		failureResponse(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	logger := log.WithField("user", request.UserID)
	reply, err := s.chat.Exchange(req.Context(), chat.Request{
		UserID:  request.UserID,
		Message: request.Message,
	})
	if err != nil {
		writeExchangeError(w, logger, err)
		return
	}

	api.RespondWithJSON(http.StatusOK, w, chatv1.ChatResponse{Reply: reply.Text})
}

func (s *Server) jsonChatWithImage(w http.ResponseWriter, req *http.Request) {
	form, err := s.uploads.Receive(w, req)
	if err != nil {
		log.WithError(err).Warn("rejected image upload")
		s.uploadFailure(w, err)
		return
	}
	defer form.Release()

	chatReq := chat.Request{
		UserID:  form.UserID,
		Message: form.Message,
	}
	if form.Image != nil {
		chatReq.Image = &chat.ImageInfo{
			Ref:         form.ImageRef(),
			ContentType: form.Image.ContentType,
			Size:        form.Image.Size,
		}
	}

	logger := log.WithFields(log.Fields{
		"user":  form.UserID,
		"image": form.ImageRef(),
	})
	reply, err := s.chat.Exchange(req.Context(), chatReq)
	if err != nil {
		writeExchangeError(w, logger, err)
		return
	}

	api.RespondWithJSON(http.StatusOK, w, chatv1.ChatResponse{Reply: reply.Text})
}

func (s *Server) uploadFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		metrics.ObserveUploadRejection("too_large")
		failureResponse(w, http.StatusRequestEntityTooLarge, "Image exceeds the maximum upload size")
	case errors.Is(err, uploads.ErrNotImage):
		metrics.ObserveUploadRejection("not_image")
		failureResponse(w, http.StatusBadRequest, "Only image files are allowed!")
	case errors.Is(err, uploads.ErrExtraImages):
		metrics.ObserveUploadRejection("extra_images")
		failureResponse(w, http.StatusBadRequest, "Only one image may be uploaded")
	default:
		metrics.ObserveUploadRejection("bad_form")
		failureResponse(w, http.StatusBadRequest, "Invalid multipart form")
	}
}

func (s *Server) jsonChatHistory(w http.ResponseWriter, req *http.Request) {
	userID := mux.Vars(req)["userId"]

	turns, err := s.chat.History(req.Context(), userID)
	if err != nil {
		log.WithError(err).WithField("user", userID).Error("error fetching chat history")
		failureResponse(w, http.StatusInternalServerError, "Failed to fetch chat history")
		return
	}

	api.RespondWithJSON(http.StatusOK, w, chatv1.HistoryResponse{Messages: toMessages(turns)})
}

func (s *Server) jsonClearChatHistory(w http.ResponseWriter, req *http.Request) {
	userID := mux.Vars(req)["userId"]

	if err := s.chat.Clear(req.Context(), userID); err != nil {
		log.WithError(err).WithField("user", userID).Error("error clearing chat history")
		failureResponse(w, http.StatusInternalServerError, "Failed to clear chat history")
		return
	}

	log.WithField("user", userID).Info("chat history cleared")
	api.RespondWithJSON(http.StatusOK, w, chatv1.ClearResponse{Status: "ok"})
}

func toMessages(turns []chatstore.Turn) []chatv1.Message {
	messages := make([]chatv1.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, chatv1.Message{
			Type:      chatv1.MessageType(t.Kind),
			Content:   t.Text,
			Image:     t.ImageRef,
			Timestamp: t.CreatedAt,
		})
	}
	return messages
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	routes := []struct {
		pattern string
		method  string
		handler http.HandlerFunc
	}{
		{"/chatbot", http.MethodPost, s.jsonChat},
		{"/chatbot-with-image", http.MethodPost, s.jsonChatWithImage},
		{"/chat-history/{userId}", http.MethodGet, s.jsonChatHistory},
		{"/chat-history/{userId}", http.MethodDelete, s.jsonClearChatHistory},
		{"/healthz", http.MethodGet, s.jsonHealth},
	}
	for _, r := range routes {
		router.Handle(r.pattern, metrics.Instrument(s.httpMetrics, r.pattern, r.handler)).Methods(r.method)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		failureResponse(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		failureResponse(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return router
}

// Serve blocks until the server is shut down or fails to listen.
func (s *Server) Serve() error {
	log.Infof("Serving chat API on %s", s.listenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessage(err, "chat server exited")
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) GetHTTPServer() *http.Server {
	return s.httpServer
}
