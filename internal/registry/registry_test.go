package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLookup_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/names/myapp-abc12345", r.URL.Path)
		_, _ = w.Write([]byte(`{"address": "tx-manifest", "record_id": "rec-1"}`))
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, testLogger())
	addr, found, err := reg.Lookup(context.Background(), "myapp-abc12345")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tx-manifest", addr)
}

func TestLookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, testLogger())
	_, found, err := reg.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/names", r.URL.Path)

		var req createRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "myapp-abc12345", req.Name)
		assert.Equal(t, "tx-manifest", req.Address)
		assert.Equal(t, 3600, req.TTL)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"record_id": "rec-42"}`))
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, testLogger())
	recordID, err := reg.Create(context.Background(), "myapp-abc12345", "tx-manifest", 3600)
	require.NoError(t, err)
	assert.Equal(t, "rec-42", recordID)
}

func TestCreate_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, testLogger())
	_, err := reg.Create(context.Background(), "taken", "tx", 60)
	require.ErrorIs(t, err, ErrNameExists)
}

func TestCreate_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := reg.Create(ctx, "slow", "tx", 60)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout classification, got %v", err)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("plain failure")))
	assert.False(t, IsTimeout(nil))
}
