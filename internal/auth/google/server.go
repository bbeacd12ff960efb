package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const successPage = `<html>
<head><title>MedInsight</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
	<h1 style="color: #2563eb;">Signed in</h1>
	<p>You can close this tab and return to the terminal.</p>
	<script>window.close();</script>
</body>
</html>`

// WaitForCallback serves the OAuth redirect on ln until one callback with a
// matching state arrives, ctx ends, or the server fails. The listener is
// closed on return.
func WaitForCallback(ctx context.Context, ln net.Listener, expectedState string) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	report := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")
		code := q.Get("code")
		errStr := q.Get("error")

		if state != expectedState {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			report(fmt.Errorf("invalid state received"))
			return
		}
		if errStr != "" {
			http.Error(w, "Auth failed: "+errStr, http.StatusBadRequest)
			report(fmt.Errorf("auth failed: %s", errStr))
			return
		}
		if code == "" {
			http.Error(w, "No code received", http.StatusBadRequest)
			report(fmt.Errorf("no code received"))
			return
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(successPage))
		select {
		case codeChan <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(err)
		}
	}()

	var code string
	var err error
	select {
	case code = <-codeChan:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = server.Shutdown(shutdownCtx)
		cancel()
	case err = <-errChan:
		server.Close()
	case <-ctx.Done():
		err = ctx.Err()
		server.Close()
	}
	<-served
	return code, err
}
