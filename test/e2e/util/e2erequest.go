package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"testing"
)

const (
	// APIPort is the port e2e runs launch the chat API on.
	APIPort = 15001
)

func buildURL(apiPath string) string {
	envAPIPort := os.Getenv("SENTICHAT_API_PORT")
	envEndpoint := os.Getenv("SENTICHAT_ENDPOINT")

	var port = APIPort
	if len(envAPIPort) > 0 {
		val, err := strconv.Atoi(envAPIPort)
		if err == nil {
			port = val
		}
	}
	if len(envEndpoint) == 0 {
		envEndpoint = "localhost"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(envEndpoint, strconv.Itoa(port)), apiPath)
}

// RequireServer skips the test unless a chat API is answering health checks. e2e runs start
// the server against SENTICHAT_E2E_DSN before running tests.
func RequireServer(t *testing.T) {
	if os.Getenv("SENTICHAT_E2E_DSN") == "" {
		t.Skip("SENTICHAT_E2E_DSN environment variable not set")
	}
	res, err := http.Get(buildURL("/healthz"))
	if err != nil {
		t.Skipf("chat API not reachable: %v", err)
	}
	res.Body.Close()
}

// Request performs method against path, encoding body as JSON when it is non-nil, and
// decodes the response into data. It returns the response status code.
func Request(method, path string, body, data interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, buildURL(path), reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, err
	}
	if data != nil {
		if err := json.Unmarshal(respBody, data); err != nil {
			return res.StatusCode, err
		}
	}
	return res.StatusCode, nil
}

func SentichatGet(path string, data interface{}) (int, error) {
	return Request(http.MethodGet, path, nil, data)
}
