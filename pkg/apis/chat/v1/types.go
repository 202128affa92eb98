package v1

import "time"

type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
)

// ChatRequest is the body of POST /chatbot.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

// Message is one stored turn as returned by the history endpoint. Image is the opaque
// reference recorded when the user attached an image; the file itself is not retained.
type Message struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Image     string      `json:"image,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

type ClearResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ServiceStatus values reported by GET /healthz.
type ServiceStatus string

const (
	StatusHealthy     ServiceStatus = "healthy"
	StatusDegraded    ServiceStatus = "degraded"
	StatusUnhealthy   ServiceStatus = "unhealthy"
	StatusUnavailable ServiceStatus = "unavailable"
)

type ServiceInfo struct {
	Status  ServiceStatus `json:"status"`
	Message string        `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    ServiceStatus          `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	Message   string                 `json:"message"`
}
