// Package auth holds the signed-in user. Durable storage is the source of
// truth: every change is written there first and only then reflected in
// memory, so a failed write never leaves the two disagreeing.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"medinsight/internal/api"
	"medinsight/internal/auth/google"
	"medinsight/internal/logging"
	"medinsight/internal/notify"
	"medinsight/internal/store"
)

// ErrInvalidTokenType is returned when the OAuth provider hands back
// anything other than a bearer token.
var ErrInvalidTokenType = errors.New("invalid token type")

// EmailTakenMessage is the backend's message for a sign-up collision.
const EmailTakenMessage = "Email already registered"

// State of the holder.
type State int

const (
	Unauthenticated State = iota
	Loading
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Backend is the slice of the API the holder calls.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*api.AuthResult, error)
	SignUp(ctx context.Context, req api.SignUpRequest) (*api.AuthResult, error)
	SignOut(ctx context.Context) error
}

// OAuth is the external identity provider.
type OAuth interface {
	Authorize(ctx context.Context) (*google.Token, error)
	UserInfo(ctx context.Context, accessToken string) (*google.UserInfo, error)
	Logout()
}

// Snapshot is an immutable view handed to observers.
type Snapshot struct {
	State State
	User  *api.User
}

// RegisterParams are the sign-up inputs. Provider defaults to "email".
type RegisterParams struct {
	Email    string
	Password string
	Name     string
	Avatar   string
	Provider string
}

// Holder is safe for concurrent use.
type Holder struct {
	kv      store.KV
	backend Backend
	oauth   OAuth
	notify  notify.Sink

	mu       sync.Mutex
	user     *api.User
	inflight int
	subs     map[int]func(Snapshot)
	nextSub  int
}

// NewHolder derives the initial state synchronously from durable storage.
// oauth may be nil when Google sign-in is not configured.
func NewHolder(kv store.KV, backend Backend, oauth OAuth, sink notify.Sink) *Holder {
	if sink == nil {
		sink = notify.Discard
	}
	h := &Holder{
		kv:      kv,
		backend: backend,
		oauth:   oauth,
		notify:  sink,
		subs:    make(map[int]func(Snapshot)),
	}

	raw, ok, err := store.Lookup(kv, store.KeyUser)
	switch {
	case err != nil:
		logging.Auth("failed to read stored user", zap.Error(err))
	case ok:
		var u api.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			logging.Auth("stored user is not decodable, ignoring", zap.Error(err))
		} else {
			h.user = &u
		}
	}
	return h
}

// Snapshot returns the current state and user.
func (h *Holder) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Holder) snapshotLocked() Snapshot {
	s := Snapshot{State: Unauthenticated}
	if h.user != nil {
		u := *h.user
		s.User = &u
		s.State = Authenticated
	}
	if h.inflight > 0 {
		s.State = Loading
	}
	return s
}

// State returns the current state.
func (h *Holder) State() State { return h.Snapshot().State }

// User returns the signed-in user.
func (h *Holder) User() (api.User, bool) {
	s := h.Snapshot()
	if s.User == nil {
		return api.User{}, false
	}
	return *s.User, true
}

// Subscribe registers fn for every state change. fn runs on the goroutine
// that made the change and must not call back into the holder's mutators.
func (h *Holder) Subscribe(fn func(Snapshot)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// mutate applies f under the lock and notifies observers afterwards.
func (h *Holder) mutate(f func()) {
	h.mu.Lock()
	f()
	snap := h.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (h *Holder) begin() { h.mutate(func() { h.inflight++ }) }
func (h *Holder) end()   { h.mutate(func() { h.inflight-- }) }

// Login signs in with email and password.
func (h *Holder) Login(ctx context.Context, email, password string) error {
	h.begin()
	defer h.end()
	return h.login(ctx, email, password)
}

func (h *Holder) login(ctx context.Context, email, password string) error {
	res, err := h.backend.SignIn(ctx, email, password)
	if err != nil {
		logging.Auth("sign-in failed", zap.String("email", email), zap.Error(err))
		h.notify.Show(api.Message(err), notify.Error)
		return err
	}
	return h.adopt(res)
}

// Register creates an account. A Google registration whose email already
// exists falls back to a sign-in with the same credentials, and the
// registration error is then not shown.
func (h *Holder) Register(ctx context.Context, p RegisterParams) error {
	h.begin()
	defer h.end()
	return h.register(ctx, p)
}

func (h *Holder) register(ctx context.Context, p RegisterParams) error {
	if p.Provider == "" {
		p.Provider = api.ProviderEmail
	}
	res, err := h.backend.SignUp(ctx, api.SignUpRequest{
		Name:     p.Name,
		Email:    p.Email,
		Password: p.Password,
		Provider: p.Provider,
		Avatar:   p.Avatar,
	})
	if err != nil {
		msg := api.Message(err)
		if msg == EmailTakenMessage && p.Provider == api.ProviderGoogle {
			logging.Auth("google account already registered, signing in", zap.String("email", p.Email))
			return h.login(ctx, p.Email, p.Password)
		}
		logging.Auth("sign-up failed", zap.String("email", p.Email), zap.Error(err))
		h.notify.Show(msg, notify.Error)
		return err
	}
	return h.adopt(res)
}

// LoginWithGoogle runs the OAuth flow and registers (or signs in) the
// Google account, using the subject id as the backend password.
func (h *Holder) LoginWithGoogle(ctx context.Context) error {
	if h.oauth == nil {
		err := errors.New("google sign-in is not configured")
		h.notify.Show(err.Error(), notify.Error)
		return err
	}
	h.begin()
	defer h.end()

	tok, err := h.oauth.Authorize(ctx)
	if err != nil {
		logging.Auth("google authorization failed", zap.Error(err))
		h.notify.Show(err.Error(), notify.Error)
		return err
	}
	if tok.TokenType != "Bearer" {
		logging.Auth("google returned unexpected token type", zap.String("token_type", tok.TokenType))
		h.notify.Show(ErrInvalidTokenType.Error(), notify.Error)
		return ErrInvalidTokenType
	}
	info, err := h.oauth.UserInfo(ctx, tok.AccessToken)
	if err != nil {
		logging.Auth("google userinfo failed", zap.Error(err))
		h.notify.Show(err.Error(), notify.Error)
		return err
	}
	return h.register(ctx, RegisterParams{
		Email:    info.Email,
		Password: info.ID,
		Name:     info.Name,
		Avatar:   info.Picture,
		Provider: api.ProviderGoogle,
	})
}

// adopt persists a successful sign-in, then updates memory.
func (h *Holder) adopt(res *api.AuthResult) error {
	raw, err := json.Marshal(res.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := h.kv.Set(store.KeyUser, string(raw)); err != nil {
		return h.storageFailed(err)
	}
	if err := h.kv.Set(store.KeyToken, res.Token); err != nil {
		if rbErr := store.Forget(h.kv, store.KeyUser); rbErr != nil {
			logging.Auth("failed to roll back stored user", zap.Error(rbErr))
			err = errors.Join(err, rbErr)
		}
		return h.storageFailed(err)
	}
	u := res.User
	h.mutate(func() { h.user = &u })
	logging.Auth("signed in", zap.String("user_id", u.ID), zap.String("provider", u.Provider))
	return nil
}

func (h *Holder) storageFailed(err error) error {
	logging.Auth("failed to persist session", zap.Error(err))
	h.notify.Show("Could not save your session", notify.Error)
	return fmt.Errorf("persist session: %w", err)
}

// Logout signs out server-side on a best-effort basis and always forgets
// the local session.
func (h *Holder) Logout(ctx context.Context) error {
	h.begin()
	defer h.end()

	current, _ := h.User()

	signOutErr := h.backend.SignOut(ctx)
	if signOutErr != nil {
		logging.Auth("sign-out request failed", zap.Error(signOutErr))
		h.notify.Show(api.Message(signOutErr), notify.Error)
	}

	storeErr := store.Forget(h.kv, store.KeyUser, store.KeyToken)
	if storeErr != nil {
		logging.Auth("failed to clear stored session", zap.Error(storeErr))
		storeErr = fmt.Errorf("clear session: %w", storeErr)
	}
	h.mutate(func() { h.user = nil })

	if current.Provider == api.ProviderGoogle && h.oauth != nil {
		h.oauth.Logout()
	}
	logging.Auth("signed out", zap.String("user_id", current.ID))
	return errors.Join(signOutErr, storeErr)
}
