// Package google runs the Google OAuth authorization-code flow for a terminal
// client: PKCE challenge, browser hand-off, loopback callback, code exchange
// and a userinfo lookup.
package google

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"medinsight/internal/logging"
)

const (
	AuthURL      = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL     = "https://oauth2.googleapis.com/token"
	UserInfoURL  = "https://www.googleapis.com/oauth2/v1/userinfo?alt=json"
	CallbackPath = "/oauth-callback"

	DefaultCallbackPort = 51121
	DefaultTimeout      = 5 * time.Minute
)

var DefaultScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Config holds the client registration and endpoints. Endpoints default to
// Google's; tests point them at httptest servers.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackPort int // 0 picks a free port
	Timeout      time.Duration

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Scopes      []string

	HTTPClient  *http.Client
	OpenBrowser func(url string) error
}

// Token holds the OAuth token details.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	IDToken     string    `json:"id_token,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	Expiry      time.Time `json:"-"`
}

// UserInfo is the profile returned by the userinfo endpoint. ID is the
// stable subject identifier.
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Provider runs the flow and remembers the last token until Logout.
type Provider struct {
	cfg Config

	mu    sync.Mutex
	token *Token
}

// New fills in defaults for any unset Config field.
func New(cfg Config) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = UserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = OpenBrowser
	}
	return &Provider{cfg: cfg}
}

// AuthFlow holds one flow's PKCE verifier, state and authorization URL.
type AuthFlow struct {
	Verifier    string
	State       string
	RedirectURL string
	AuthURL     string
}

// StartAuth generates the PKCE challenge and authorization URL.
func (p *Provider) StartAuth(redirectURL string) (*AuthFlow, error) {
	verifier, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	state, err := randomToken(16)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(p.cfg.AuthURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client_id", p.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURL)
	q.Set("scope", strings.Join(p.cfg.Scopes, " "))
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)
	q.Set("prompt", "select_account")
	u.RawQuery = q.Encode()

	return &AuthFlow{
		Verifier:    verifier,
		State:       state,
		RedirectURL: redirectURL,
		AuthURL:     u.String(),
	}, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Authorize runs the whole browser flow and returns the exchanged token.
// The flow ends on callback, on ctx cancellation or after Config.Timeout.
func (p *Provider) Authorize(ctx context.Context) (*Token, error) {
	if p.cfg.ClientID == "" {
		return nil, fmt.Errorf("google client id is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p.cfg.CallbackPort)))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	redirect := fmt.Sprintf("http://localhost:%d%s", port, CallbackPath)

	flow, err := p.StartAuth(redirect)
	if err != nil {
		ln.Close()
		return nil, err
	}

	logging.Auth("opening browser for google sign-in", zap.Int("port", port))
	if err := p.cfg.OpenBrowser(flow.AuthURL); err != nil {
		// the URL is still usable by hand
		logging.Auth("failed to open browser", zap.Error(err), zap.String("url", flow.AuthURL))
	}

	code, err := WaitForCallback(ctx, ln, flow.State)
	if err != nil {
		return nil, err
	}
	return p.ExchangeCode(ctx, code, flow.Verifier, flow.RedirectURL)
}

// ExchangeCode executes the code exchange for tokens.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier, redirectURL string) (*Token, error) {
	data := url.Values{}
	data.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		data.Set("client_secret", p.cfg.ClientSecret)
	}
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURL)
	data.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("exchange failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	token.Expiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	p.mu.Lock()
	p.token = &token
	p.mu.Unlock()
	return &token, nil
}

// UserInfo fetches the profile behind accessToken.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("userinfo failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, fmt.Errorf("userinfo response missing id or email")
	}
	return &info, nil
}

// Token returns the token from the last successful exchange.
func (p *Provider) Token() (*Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return nil, false
	}
	t := *p.token
	return &t, true
}

// Logout forgets the cached token. It does not revoke it with Google.
func (p *Provider) Logout() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}
