// Package ci hands a build off to a remote CI endpoint.
//
// The bearer token is read from the environment variable named by the
// configuration. A git-ignored .env file in the project root may supply it;
// variables already set in the process environment take precedence.
package ci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"ngbuild/internal/config"
)

var (
	ErrNoEndpoint  = errors.New("ci endpoint not configured")
	ErrNoToken     = errors.New("ci token not set")
	// ErrUnreachable wraps transport failures talking to the endpoint.
	ErrUnreachable = errors.New("ci endpoint unreachable")
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ci endpoint returned %d", e.Status)
	}
	return fmt.Sprintf("ci endpoint returned %d: %s", e.Status, e.Body)
}

// Request is the JSON body of a trigger.
type Request struct {
	Environment string `json:"environment"`
	Ref         string `json:"ref"`
	Project     string `json:"project"`
	Version     string `json:"version"`
	RequestID   string `json:"request_id"`
}

// Response describes an accepted trigger.
type Response struct {
	RequestID string
	Status    int
	Body      string
}

// LoadDotEnv loads root/.env without overriding variables already set. A
// missing file is not an error.
func LoadDotEnv(root string) error {
	p := filepath.Join(root, ".env")
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("load %s: %w", p, err)
	}
	return nil
}

// Client posts triggers to one endpoint.
type Client struct {
	Endpoint string
	Token    string
	HTTP     *http.Client
	// NewID generates request ids. Nil uses random UUIDs.
	NewID func() string
}

// NewClient builds a client from cfg, reading the token from the
// environment.
func NewClient(cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.CI.Endpoint) == "" {
		return nil, ErrNoEndpoint
	}
	token := strings.TrimSpace(os.Getenv(cfg.CI.TokenEnv))
	if cfg.CI.TokenEnv == "" || token == "" {
		return nil, fmt.Errorf("%w: export %s or add it to .env", ErrNoToken, cfg.CI.TokenEnv)
	}
	return &Client{
		Endpoint: cfg.CI.Endpoint,
		Token:    token,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Trigger asks the endpoint to build ref for the target environment.
func (c *Client) Trigger(ctx context.Context, project config.Project, environment, ref string) (*Response, error) {
	if strings.TrimSpace(environment) == "" {
		return nil, errors.New("environment is required")
	}
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("ref is required")
	}

	id := uuid.NewString()
	if c.NewID != nil {
		id = c.NewID()
	}
	body, err := json.Marshal(Request{
		Environment: environment,
		Ref:         ref,
		Project:     project.Name,
		Version:     project.Version,
		RequestID:   id,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Idempotency-Key", id)

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w: %w", c.Endpoint, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", ErrUnreachable, err)
	}
	text := strings.TrimSpace(string(raw))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: text}
	}
	return &Response{RequestID: id, Status: resp.StatusCode, Body: text}, nil
}
