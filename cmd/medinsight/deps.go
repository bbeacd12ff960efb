package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"medinsight/internal/api"
	"medinsight/internal/auth"
	"medinsight/internal/auth/google"
	"medinsight/internal/config"
	"medinsight/internal/notify"
	"medinsight/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// services is the set of long-lived collaborators every command shares.
type services struct {
	cfg    *config.Config
	kv     store.KV
	client *api.Client
	google *google.Provider // nil when no client id is configured
	auth   *auth.Holder
	sink   notify.Sink
}

// openServices wires storage, the API client, OAuth and the auth holder.
// sink receives every user-facing notice.
func openServices(c *config.Config, sink notify.Sink) (*services, error) {
	var kv store.KV
	if ephemeral {
		kv = store.NewMemoryKV()
	} else {
		sq, err := store.OpenSQLite(c.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		kv = sq
	}

	baseURL := c.API.BaseURL
	if baseURL == "" {
		resolved, err := api.ResolveBaseURL(c.API.Origin, c.API.DevHost, c.API.DevBaseURL)
		if err != nil {
			kv.Close()
			return nil, err
		}
		baseURL = resolved
	}
	client := api.New(baseURL, kv)

	rt := &services{cfg: c, kv: kv, client: client, sink: sink}

	// Holder takes an interface; keep it a true nil when unconfigured.
	var oauth auth.OAuth
	if c.ValidateOAuth() == nil {
		rt.google = google.New(google.Config{
			ClientID:     c.OAuth.ClientID,
			ClientSecret: c.OAuth.ClientSecret,
			CallbackPort: c.OAuth.CallbackPort,
			Timeout:      c.GetOAuthTimeout(),
		})
		oauth = rt.google
	}
	rt.auth = auth.NewHolder(kv, client, oauth, sink)

	if logger != nil {
		logger.Debug("services ready",
			zap.String("base_url", baseURL),
			zap.Bool("ephemeral", ephemeral),
			zap.Bool("google", rt.google != nil))
	}
	return rt, nil
}

// Close releases storage.
func (r *services) Close() error {
	return r.kv.Close()
}

// printSink writes notices as lines, prefixed by kind.
type printSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printSink) Show(message string, kind notify.Kind) {
	if message == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case notify.Error:
		fmt.Fprintf(p.w, "✗ %s\n", message)
	case notify.Success:
		fmt.Fprintf(p.w, "✓ %s\n", message)
	default:
		fmt.Fprintf(p.w, "• %s\n", message)
	}
}

// errReported marks a failure whose notice was already printed.
var errReported = errors.New("command failed")

// reported wraps err so main exits non-zero without printing it again.
func reported(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

// withServices opens the shared services for one command and releases them
// when fn returns. Notices go to the command's stderr.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	return withServicesFor(cmd, timeout, fn)
}

func withServicesFor(cmd *cobra.Command, budget time.Duration, fn func(ctx context.Context, s *services) error) error {
	s, err := openServices(cfg, &printSink{w: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	return fn(ctx, s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
