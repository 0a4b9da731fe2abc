package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultUploadTimeout = 60 * time.Second

// HTTPBackend talks to a remote indexing service over its REST API.
// A token-bucket limiter throttles all calls so bulk jobs cannot exceed the
// service's request quota.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger // optional; when set, logs debug events
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPLogger sets a logger for debug output.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(b *HTTPBackend) { b.logger = l }
}

// WithRateLimit overrides the default request rate (requests/sec and burst).
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(b *HTTPBackend) { b.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(b *HTTPBackend) { b.client.Timeout = d }
}

// NewHTTPBackend creates a client for the indexing service at baseURL.
// apiKey may be empty for unauthenticated deployments.
func NewHTTPBackend(baseURL, apiKey string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultUploadTimeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateStore creates a remote store. Connection failures map to
// ErrUnavailable so callers can distinguish "service down" from a rejection.
func (b *HTTPBackend) CreateStore(ctx context.Context, displayName string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]string{"display_name": displayName})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/stores", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	b.setAuth(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: server returned %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", readError(resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create store response: %w", err)
	}
	if b.logger != nil {
		b.logger.Debug("backend store created", zap.String("id", out.ID), zap.String("display_name", displayName))
	}
	return out.ID, nil
}

// UploadAndIndex uploads one file as multipart form data and returns the
// remote file identifier once the service has accepted it for indexing.
func (b *HTTPBackend) UploadAndIndex(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/stores/%s/files", b.baseURL, storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	b.setAuth(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", readError(resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if b.logger != nil {
		b.logger.Debug("backend file indexed", zap.String("store_id", storeID), zap.String("filename", filename), zap.String("file_id", out.ID))
	}
	return out.ID, nil
}

// ListStores returns all remote store identifiers.
func (b *HTTPBackend) ListStores(ctx context.Context) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/stores", nil)
	if err != nil {
		return nil, err
	}
	b.setAuth(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	var out struct {
		Stores []struct {
			ID string `json:"id"`
		} `json:"stores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list stores response: %w", err)
	}
	ids := make([]string, len(out.Stores))
	for i, s := range out.Stores {
		ids[i] = s.ID
	}
	return ids, nil
}

// Close is a no-op; the backend holds no long-lived connections.
func (b *HTTPBackend) Close() error { return nil }

func (b *HTTPBackend) setAuth(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

func readError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(msg, &body) == nil && body.Error != "" {
		return &Error{Status: resp.StatusCode, Message: body.Error}
	}
	return &Error{Status: resp.StatusCode, Message: string(msg)}
}
