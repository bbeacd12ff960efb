package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"medinsight/internal/disease"
)

// User is the account record returned as user_data.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Provider string `json:"provider"`
}

// Providers.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// AuthResult is the body of a successful sign-in or sign-up.
type AuthResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    User   `json:"user_data"`
}

// SignUpRequest is the sign-up body.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Avatar   string `json:"avatar"`
}

// ChatMessage is one transcript turn on the wire.
type ChatMessage struct {
	User    bool   `json:"user"`
	Message string `json:"message"`
}

// ChatRequest carries either Message (the server holds the transcript for
// the session) or Messages (the client sends the whole transcript).
type ChatRequest struct {
	Message        string           `json:"message,omitempty"`
	Messages       []ChatMessage    `json:"messages,omitempty"`
	FormData       disease.FormData `json:"form_data"`
	Prediction     string           `json:"prediction"`
	Recommendation string           `json:"recommendation"`
}

// FormValues is a stored form. The backend persists whatever JSON the client
// sent, so numbers and booleans are accepted alongside strings.
type FormValues disease.FormData

// UnmarshalJSON flattens scalar values to their string form.
func (f *FormValues) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*f = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(FormValues, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = tv
		case json.Number:
			out[k] = tv.String()
		case bool:
			if tv {
				out[k] = "1"
			} else {
				out[k] = "0"
			}
		default:
			return fmt.Errorf("input_data.%s: unsupported value %v", k, v)
		}
	}
	*f = out
	return nil
}

// HistoryEntry is one row of the user's prediction history.
type HistoryEntry struct {
	SessionID      string        `json:"session_id"`
	Disease        string        `json:"disease"`
	UpdatedAt      string        `json:"updated_at"`
	Prediction     string        `json:"prediction"`
	Recommendation string        `json:"recommendation,omitempty"`
	Messages       []ChatMessage `json:"messages,omitempty"`
}

// UpdatedTime parses UpdatedAt, which the backend renders as an HTTP date.
func (e HistoryEntry) UpdatedTime() (time.Time, bool) {
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC3339Nano} {
		if t, err := time.Parse(layout, e.UpdatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SessionHistory is the stored state of one (session, disease) pair.
type SessionHistory struct {
	SessionID      string        `json:"session_id"`
	Disease        string        `json:"disease"`
	Prediction     string        `json:"prediction"`
	Recommendation string        `json:"recommendation"`
	Messages       []ChatMessage `json:"messages"`
	InputData      FormValues    `json:"input_data"`
}
