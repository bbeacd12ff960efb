// Package api wraps the MedInsight backend. Every request picks up the bearer
// token and session identifier from durable storage at the moment it is
// sent, so a login or session bootstrap is visible to the very next call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"medinsight/internal/logging"
	"medinsight/internal/store"
)

// Header names the backend reads.
const (
	HeaderAuthorization = "Authorization"
	HeaderSessionID     = "SessionId"
)

// slowRequest is where a call gets logged as a warning. Recommendations and
// chat go through an LLM on the backend and routinely take a few seconds.
const slowRequest = 10 * time.Second

// =============================================================================
// ERRORS
// =============================================================================

// Error is the failure of any backend call. Message is the server's "error"
// field when the response carried one, otherwise a transport description.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
	}
	return "api: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the user-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	kv      store.KV
	group   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL. The default http.Client has no Timeout;
// requests end when the caller's context does.
func New(baseURL string, kv store.KV, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		kv:      kv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the resolved backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// ResolveBaseURL picks the backend root for a client running at origin.
// A development origin whose host is exactly devHost talks to devBaseURL;
// anything else talks to its own scheme and host.
func ResolveBaseURL(origin, devHost, devBaseURL string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q must include scheme and host", origin)
	}
	if u.Host == devHost {
		return strings.TrimRight(devBaseURL, "/"), nil
	}
	return u.Scheme + "://" + u.Host, nil
}

// decorate attaches the durable auth and session headers, if set.
func (c *Client) decorate(req *http.Request) {
	if c.kv == nil {
		return
	}
	if token, ok, err := store.Lookup(c.kv, store.KeyToken); err != nil {
		logging.APIDebug("token lookup failed", zap.Error(err))
	} else if ok {
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
	}
	if sid, ok, err := store.Lookup(c.kv, store.KeySessionID); err != nil {
		logging.APIDebug("session id lookup failed", zap.Error(err))
	} else if ok {
		req.Header.Set(HeaderSessionID, sid)
	}
}

// do sends one request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(req)

	timer := logging.StartTimer(logging.CategoryAPI, method+" "+path)
	resp, err := c.http.Do(req)
	timer.StopWithThreshold(slowRequest)
	if err != nil {
		logging.API("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &Error{Message: transportMessage(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := serverMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		logging.API("request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg))
		return &Error{Status: resp.StatusCode, Message: msg}
	}

	logging.APIDebug("request ok", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Status: resp.StatusCode, Message: "failed to decode response", Err: err}
	}
	return nil
}

func serverMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return body.Error
}

func transportMessage(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "request cancelled: " + ctxErr.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
