// Package chatclient talks to the chat API and keeps the optimistic local view of a
// conversation.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	chatv1 "github.com/sentichat/sentichat/pkg/apis/chat/v1"
)

const (
	DefaultServerURL = "http://localhost:5001"
)

// APIError is returned for any non-2xx response. Message is the server's error text when the
// body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Message)
}

// Client is a client for the chat API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithServerURL sets the server URL for the client
func WithServerURL(url string) Option {
	return func(c *Client) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// New creates a new chat API client
func New(opts ...Option) *Client {
	client := &Client{
		BaseURL: DefaultServerURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Chat sends a text-only message and returns the reply.
func (c *Client) Chat(ctx context.Context, message, userID string) (string, error) {
	body, err := json.Marshal(chatv1.ChatRequest{Message: message, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	var result chatv1.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chatbot", "application/json", bytes.NewReader(body), &result); err != nil {
		return "", err
	}
	return result.Reply, nil
}

// ChatWithImage sends a message together with the image at imagePath.
func (c *Client) ChatWithImage(ctx context.Context, message, userID, imagePath string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	contentType, err := imageContentType(f, imagePath)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("message", message); err != nil {
		return "", fmt.Errorf("failed to write form: %w", err)
	}
	if err := mw.WriteField("userId", userID); err != nil {
		return "", fmt.Errorf("failed to write form: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(imagePath)))
	h.Set("Content-Type", contentType)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to write form: %w", err)
	}
	if _, err := io.Copy(pw, f); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to write form: %w", err)
	}

	var result chatv1.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chatbot-with-image", mw.FormDataContentType(), &buf, &result); err != nil {
		return "", err
	}
	return result.Reply, nil
}

// History returns the stored conversation for userID, oldest first.
func (c *Client) History(ctx context.Context, userID string) ([]chatv1.Message, error) {
	var result chatv1.HistoryResponse
	if err := c.do(ctx, http.MethodGet, "/chat-history/"+url.PathEscape(userID), "", nil, &result); err != nil {
		return nil, err
	}
	if result.Messages == nil {
		result.Messages = []chatv1.Message{}
	}
	return result.Messages, nil
}

// ClearHistory deletes the stored conversation for userID.
func (c *Client) ClearHistory(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/chat-history/"+url.PathEscape(userID), "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(respBody, "error").String(),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// imageContentType prefers the extension's registered type and falls back to sniffing.
func imageContentType(f *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct, nil
	}

	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}
