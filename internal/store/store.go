package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Tag is a name/value pair attached to an uploaded blob.
type Tag struct {
	Name  string
	Value string
}

// ContentStore accepts a buffer and returns the permanent content address
// assigned to it. Uploading the same bytes twice is safe; the store may or
// may not deduplicate, and the engine does not care.
type ContentStore interface {
	Upload(ctx context.Context, data []byte, contentType string, tags []Tag) (string, error)
}

// ErrInsufficientBalance reports that the upload gateway rejected the blob
// because the funding balance cannot cover it.
var ErrInsufficientBalance = errors.New("insufficient gateway balance")

// HTTPStore uploads blobs to a content-addressed storage gateway over HTTP.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPStore creates a gateway client. apiKeyFile is optional; when set,
// its trimmed content is sent as a bearer token on every upload.
func NewHTTPStore(baseURL string, apiKeyFile string, timeout time.Duration, logger *slog.Logger) (*HTTPStore, error) {
	apiKey := ""
	if apiKeyFile != "" {
		data, err := os.ReadFile(apiKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read gateway API key file: %w", err)
		}
		apiKey = strings.TrimSpace(string(data))
	}

	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// uploadResponse is the gateway's answer to a successful upload.
type uploadResponse struct {
	ID string `json:"id"`
}

// Upload posts the blob and returns the transaction id the gateway assigned.
func (s *HTTPStore) Upload(ctx context.Context, data []byte, contentType string, tags []Tag) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/blobs", bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", contentType)
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	for _, tag := range tags {
		req.Header.Add("X-Blob-Tag", tag.Name+"="+tag.Value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", fmt.Errorf("%w: %s", ErrInsufficientBalance, strings.TrimSpace(string(body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("gateway returned empty blob id")
	}

	s.logger.Debug("uploaded blob", "address", parsed.ID, "bytes", len(data), "content_type", contentType)
	return parsed.ID, nil
}

// DryRunAddressPrefix marks addresses produced without uploading anything.
// Real gateway addresses never carry it, so dry-run output accidentally
// persisted is immediately recognizable.
const DryRunAddressPrefix = "dry-run-"

// DryRunStore fabricates deterministic placeholder addresses from the
// content itself and performs no I/O.
type DryRunStore struct{}

// NewDryRunStore creates a store for test/dry-run deployments.
func NewDryRunStore() *DryRunStore {
	return &DryRunStore{}
}

// Upload returns a placeholder address derived from the content hash.
func (s *DryRunStore) Upload(_ context.Context, data []byte, _ string, _ []Tag) (string, error) {
	sum := sha256.Sum256(data)
	return DryRunAddressPrefix + hex.EncodeToString(sum[:])[:16], nil
}
