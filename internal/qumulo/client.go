package qumulo

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lockwatch/internal/worm"
)

const (
	userAgent          = "lockwatch/0.1.0"
	defaultCallTimeout = 30 * time.Second
	errorBodyLimit     = 2048
)

// Config captures the connection settings for the cluster REST API.
type Config struct {
	// BaseURL is the cluster endpoint, e.g. "https://cluster.example:8000".
	BaseURL  string
	Username string
	Password string
	// CallTimeout bounds every non-streaming request. Zero selects the
	// default; an unbounded call is never issued.
	CallTimeout time.Duration
	// InsecureTLS skips certificate verification for clusters with
	// self-signed certificates.
	InsecureTLS bool
}

// Client talks to the cluster REST API. It is safe for concurrent use.
type Client struct {
	cfg       Config
	client    *http.Client
	streaming *http.Client

	mu    sync.Mutex
	token string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the client used for unary calls (useful for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a cluster client from connection settings.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.CallTimeout, Transport: transport},
		// The notification stream stays open indefinitely, so it cannot
		// share the unary client's overall timeout. Header arrival is
		// still bounded; cancellation comes from the caller's context.
		streaming: &http.Client{Transport: cloneWithHeaderTimeout(transport, cfg.CallTimeout)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cloneWithHeaderTimeout(base *http.Transport, timeout time.Duration) *http.Transport {
	t := base.Clone()
	t.ResponseHeaderTimeout = timeout
	return t
}

// Login authenticates against the cluster and caches the bearer token.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/session/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransport("login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		// Bad credentials are a connection-class failure: the daemon
		// retries with backoff rather than giving up.
		return fmt.Errorf("%w: %w", worm.ErrConnection,
			&StatusError{Op: "login", StatusCode: resp.StatusCode, Body: string(snippet)})
	}

	var payload struct {
		BearerToken string `json:"bearer_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: decode login response: %w", worm.ErrConnection, err)
	}
	if strings.TrimSpace(payload.BearerToken) == "" {
		return fmt.Errorf("%w: login response missing bearer token", worm.ErrConnection)
	}

	c.mu.Lock()
	c.token = payload.BearerToken
	c.mu.Unlock()
	return nil
}

func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// FileInfo resolves a file reference to its attributes.
func (c *Client) FileInfo(ctx context.Context, ref FileRef) (FileAttr, error) {
	var payload fileAttrPayload
	path := fmt.Sprintf("/v1/files/%s/info/attributes", ref.segment())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload, "file info"); err != nil {
		return FileAttr{}, err
	}
	attr, err := payload.toAttr()
	if err != nil {
		return FileAttr{}, fmt.Errorf("%w: file info: %w", worm.ErrClassification, err)
	}
	return attr, nil
}

// GetLock queries the current WORM lock state of a file. A response body
// that cannot be decoded is a classification error, never an unlocked file.
func (c *Client) GetLock(ctx context.Context, ref FileRef) (LockResult, error) {
	path := fmt.Sprintf("/v1/files/%s/info/lock", ref.segment())
	raw, err := c.doRaw(ctx, http.MethodGet, path, nil, "lock query")
	if err != nil {
		return LockResult{}, err
	}

	var payload lockPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return LockResult{}, fmt.Errorf("%w: lock query: decode response: %w", worm.ErrClassification, err)
	}
	return LockResult{
		LegalHold:       payload.Lock.LegalHold,
		RetentionPeriod: payload.Lock.RetentionPeriod,
	}, nil
}

// SetLock applies a WORM lock. Nil retention leaves any existing retention
// untouched; retention timestamps are sent in RFC3339 UTC.
func (c *Client) SetLock(ctx context.Context, ref FileRef, legalHold bool, retention *time.Time) error {
	body := lockPayload{Lock: lockBody{LegalHold: legalHold}}
	if retention != nil {
		formatted := retention.UTC().Format(time.RFC3339)
		body.Lock.RetentionPeriod = &formatted
	}

	path := fmt.Sprintf("/v1/files/%s/info/lock", ref.segment())
	return c.doJSON(ctx, http.MethodPut, path, body, nil, "lock set")
}

// doJSON issues a request and decodes a JSON response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, op string) error {
	raw, err := c.doRaw(ctx, method, path, in, op)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", worm.ErrClassification, op, err)
	}
	return nil
}

// doRaw issues an authenticated request, retrying once through a fresh
// login when the session token has expired.
func (c *Client) doRaw(ctx context.Context, method, path string, in any, op string) ([]byte, error) {
	if c.bearerToken() == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	raw, status, err := c.send(ctx, method, path, in, op)
	if status == http.StatusUnauthorized {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		raw, status, err = c.send(ctx, method, path, in, op)
	}
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, classifyStatus(op, status, string(raw))
	}
	return raw, nil
}

func (c *Client) send(ctx context.Context, method, path string, in any, op string) ([]byte, int, error) {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, 0, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	limit := int64(errorBodyLimit)
	if resp.StatusCode < 300 {
		limit = 1 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, classifyTransport(op, err)
	}
	return raw, resp.StatusCode, nil
}
