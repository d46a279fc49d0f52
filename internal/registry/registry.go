package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single registry write when the config does not
// specify one.
const DefaultTimeout = 30 * time.Second

// ErrNameExists reports that the registry already holds a record for the
// requested name. Callers decide whether that is a benign re-deploy of the
// same commit or a lost race against a concurrent deployment.
var ErrNameExists = errors.New("name already claimed in registry")

// NameRegistry maps short commit-derived deployment names to content
// addresses.
type NameRegistry interface {
	// Lookup returns the address the name points at. found is false when
	// the registry has no record; that is not an error.
	Lookup(ctx context.Context, name string) (address string, found bool, err error)

	// Create registers name -> address with the given TTL in seconds and
	// returns the registry's record id. Returns ErrNameExists when a
	// record for name is already present.
	Create(ctx context.Context, name, address string, ttl int) (recordID string, err error)
}

// IsTimeout reports whether err is a deadline or network timeout, for which
// the write may still have landed. The caller verifies with one Lookup
// instead of retrying the write, since a blind retry can only produce a
// duplicate-name conflict.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPRegistry is a NameRegistry backed by a registry HTTP API.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPRegistry creates a registry client. The HTTP client carries no
// timeout of its own; callers bound each call through the context.
func NewHTTPRegistry(baseURL string, logger *slog.Logger) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

type recordResponse struct {
	Address  string `json:"address"`
	RecordID string `json:"record_id"`
}

type createRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	TTL     int    `json:"ttl"`
}

// Lookup fetches the record for name; a 404 means no record.
func (r *HTTPRegistry) Lookup(ctx context.Context, name string) (string, bool, error) {
	endpoint := r.baseURL + "/v1/names/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("registry lookup failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", false, fmt.Errorf("failed to read registry response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("registry lookup returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed recordResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to parse registry response: %w", err)
	}
	return parsed.Address, true, nil
}

// Create registers the name. A 409 from the registry becomes ErrNameExists.
func (r *HTTPRegistry) Create(ctx context.Context, name, address string, ttl int) (string, error) {
	payload, err := json.Marshal(createRequest{Name: name, Address: address, TTL: ttl})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/names", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry create failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read registry response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("%w: %s", ErrNameExists, name)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("registry create returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed recordResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse registry response: %w", err)
	}

	r.logger.Debug("registered name", "name", name, "address", address, "record_id", parsed.RecordID)
	return parsed.RecordID, nil
}

var _ NameRegistry = (*HTTPRegistry)(nil)
