package ci

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ngbuild/internal/config"
)

func TestTrigger_PostsHandoff(t *testing.T) {
	var got Request
	var auth, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		key = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"queued":true}`))
	}))
	defer srv.Close()

	c := &Client{Endpoint: srv.URL, Token: "s3cret", NewID: func() string { return "req-1" }}
	resp, err := c.Trigger(context.Background(), config.Project{Name: "dash", Version: "1.2.0"}, "staging", "v1.2.0")
	require.NoError(t, err)

	assert.Equal(t, Request{Environment: "staging", Ref: "v1.2.0", Project: "dash", Version: "1.2.0", RequestID: "req-1"}, got)
	assert.Equal(t, "Bearer s3cret", auth)
	assert.Equal(t, "req-1", key)
	assert.Equal(t, &Response{RequestID: "req-1", Status: http.StatusAccepted, Body: `{"queued":true}`}, resp)
}

func TestTrigger_DefaultRequestIDIsUUID(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
	}))
	defer srv.Close()

	resp, err := (&Client{Endpoint: srv.URL, Token: "t"}).Trigger(context.Background(), config.Project{Name: "a", Version: "1"}, "prod", "main")
	require.NoError(t, err)
	assert.Len(t, resp.RequestID, 36)
	assert.Equal(t, resp.RequestID, key)
}

func TestTrigger_Non2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := (&Client{Endpoint: srv.URL, Token: "t"}).Trigger(context.Background(), config.Project{}, "prod", "main")
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "bad token", se.Body)
}

func TestTrigger_TransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := (&Client{Endpoint: url, Token: "t"}).Trigger(context.Background(), config.Project{}, "prod", "main")
	assert.ErrorIs(t, err, ErrUnreachable)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestTrigger_RequiresEnvironmentAndRef(t *testing.T) {
	c := &Client{Endpoint: "http://127.0.0.1:1", Token: "t"}
	_, err := c.Trigger(context.Background(), config.Project{}, "", "main")
	assert.ErrorContains(t, err, "environment")
	_, err = c.Trigger(context.Background(), config.Project{}, "prod", " ")
	assert.ErrorContains(t, err, "ref")
}

func TestNewClient_TokenFromEnvironmentOnly(t *testing.T) {
	cfg := config.Default()
	_, err := NewClient(cfg)
	assert.ErrorIs(t, err, ErrNoEndpoint)

	cfg.CI.Endpoint = "https://ci.example.com/hooks/build"
	cfg.CI.TokenEnv = "NGBUILD_TEST_CI_TOKEN"
	t.Setenv("NGBUILD_TEST_CI_TOKEN", "")
	_, err = NewClient(cfg)
	assert.ErrorIs(t, err, ErrNoToken)

	t.Setenv("NGBUILD_TEST_CI_TOKEN", "from-env")
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Token)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, LoadDotEnv(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("NGBUILD_TEST_DOTENV_A=file\nNGBUILD_TEST_DOTENV_B=file\n"), 0o600))
	t.Setenv("NGBUILD_TEST_DOTENV_A", "process")
	t.Setenv("NGBUILD_TEST_DOTENV_B", "")
	require.NoError(t, os.Unsetenv("NGBUILD_TEST_DOTENV_B"))

	require.NoError(t, LoadDotEnv(root))
	assert.Equal(t, "process", os.Getenv("NGBUILD_TEST_DOTENV_A"))
	assert.Equal(t, "file", os.Getenv("NGBUILD_TEST_DOTENV_B"))
}
