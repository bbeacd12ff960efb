package google

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var noKeepAlive = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

// fakeGoogle serves the token and userinfo endpoints and checks the PKCE pair.
func fakeGoogle(t *testing.T, challenge *string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		if challenge != nil {
			sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
			assert.Equal(t, *challenge, base64.RawURLEncoding.EncodeToString(sum[:]))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":"1234567890","email":"ada@example.com","name":"Ada","picture":"https://img/ada.png"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStartAuth_BuildsPKCEURL(t *testing.T) {
	p := New(Config{ClientID: "client-1"})
	flow, err := p.StartAuth("http://localhost:51121/oauth-callback")
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, "http://localhost:51121/oauth-callback", q.Get("redirect_uri"))

	sum := sha256.Sum256([]byte(flow.Verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))

	other, err := p.StartAuth(flow.RedirectURL)
	require.NoError(t, err)
	assert.NotEqual(t, flow.State, other.State)
	assert.NotEqual(t, flow.Verifier, other.Verifier)
}

func TestAuthorize_FullFlow(t *testing.T) {
	var challenge string
	g := fakeGoogle(t, &challenge)

	p := New(Config{
		ClientID:    "client-1",
		TokenURL:    g.URL + "/token",
		UserInfoURL: g.URL + "/userinfo",
		HTTPClient:  noKeepAlive,
		Timeout:     5 * time.Second,
		OpenBrowser: func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			challenge = q.Get("code_challenge")
			cb := q.Get("redirect_uri") + "?" + url.Values{"code": {"the-code"}, "state": {q.Get("state")}}.Encode()
			go func() {
				resp, err := noKeepAlive.Get(cb)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	})

	tok, err := p.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)

	cached, ok := p.Token()
	require.True(t, ok)
	assert.Equal(t, "at-1", cached.AccessToken)

	info, err := p.UserInfo(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, &UserInfo{ID: "1234567890", Email: "ada@example.com", Name: "Ada", Picture: "https://img/ada.png"}, info)

	p.Logout()
	_, ok = p.Token()
	assert.False(t, ok)
}

func TestAuthorize_RequiresClientID(t *testing.T) {
	_, err := New(Config{}).Authorize(context.Background())
	assert.ErrorContains(t, err, "client id")
}

func TestUserInfo_Rejected(t *testing.T) {
	g := fakeGoogle(t, nil)
	p := New(Config{ClientID: "client-1", UserInfoURL: g.URL + "/userinfo", HTTPClient: noKeepAlive})
	_, err := p.UserInfo(context.Background(), "wrong")
	assert.ErrorContains(t, err, "401")
}

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, "http://" + ln.Addr().String() + CallbackPath
}

func TestWaitForCallback_StateMismatch(t *testing.T) {
	ln, cb := listen(t)
	go func() {
		resp, err := noKeepAlive.Get(cb + "?state=evil&code=x")
		if err == nil {
			resp.Body.Close()
		}
	}()
	_, err := WaitForCallback(context.Background(), ln, "good")
	assert.ErrorContains(t, err, "invalid state")
}

func TestWaitForCallback_ProviderError(t *testing.T) {
	ln, cb := listen(t)
	go func() {
		resp, err := noKeepAlive.Get(cb + "?state=s&error=access_denied")
		if err == nil {
			resp.Body.Close()
		}
	}()
	_, err := WaitForCallback(context.Background(), ln, "s")
	assert.ErrorContains(t, err, "access_denied")
}

func TestWaitForCallback_ContextCancelled(t *testing.T) {
	ln, _ := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := WaitForCallback(ctx, ln, "s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
