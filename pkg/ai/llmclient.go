package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const DefaultTimeout = 30 * time.Second

var completionDurationMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sentichat_completion_duration_seconds",
	Help:    "Latency of completion gateway calls by outcome.",
	Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30, 60},
}, []string{"model", "outcome"})

// CompletionRequest is the input to a single completion.
type CompletionRequest struct {
	SystemInstruction string
	UserText          string
	HasImage          bool
}

// Gateway produces a model reply for one prompt. Implementations do not retry and do not cache.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// UpstreamError reports that the completion provider could not produce a reply.
type UpstreamError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion failed (%s, status %d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion failed (%s): %v", e.Reason, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type LLMClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewLLMClient creates a client for an OpenAI-compatible chat completions endpoint. An empty
// apiKey falls back to OPENAI_API_KEY.
func NewLLMClient(url, model, apiKey string, timeout time.Duration) *LLMClient {
	// the SDK resolves request paths relative to the base URL
	if url != "" && !strings.HasSuffix(url, "/") {
		url += "/"
	}
	options := []option.RequestOption{
		option.WithBaseURL(url),
		option.WithMaxRetries(0),
	}

	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		log.Info("OPENAI_API_KEY environment variable is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := openai.NewClient(options...)
	return &LLMClient{client: &client, model: model, timeout: timeout}
}

func (llm *LLMClient) Model() string {
	return llm.model
}

func (llm *LLMClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, llm.timeout)
	defer cancel()

	start := time.Now()
	reply, err := llm.chat(ctx, req.SystemInstruction, DecoratePrompt(req.UserText, req.HasImage))
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	completionDurationMetric.WithLabelValues(llm.model, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		log.WithError(err).WithField("model", llm.model).Warn("completion request failed")
		return "", err
	}
	return reply, nil
}

func (llm *LLMClient) chat(ctx context.Context, instructions, data string) (string, error) {
	resp, err := llm.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(data),
		},
		Model: llm.model,
	})
	if err != nil {
		return "", classify(ctx, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", &UpstreamError{Reason: "malformed response", Err: errors.New("client didn't return any content choices")}
	}

	msg := resp.Choices[0].Message
	if !msg.JSON.Content.IsPresent() {
		return "", &UpstreamError{Reason: "malformed response", Err: errors.New("completion choice has no message content")}
	}
	return msg.Content, nil
}

func classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		return &UpstreamError{Reason: "provider error", StatusCode: apiErr.StatusCode, Err: err}
	case ctx.Err() == context.DeadlineExceeded:
		return &UpstreamError{Reason: "timeout", Err: err}
	default:
		return &UpstreamError{Reason: "request failed", Err: err}
	}
}
