package api

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"medinsight/internal/disease"
	"medinsight/internal/logging"
)

// SignIn exchanges credentials for a token and user record.
func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/sign-in", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignUp creates an account and signs it in.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	if req.Provider == "" {
		req.Provider = ProviderEmail
	}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/sign-up", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut invalidates the current token server-side.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/sign-out", nil, nil, nil)
}

// PredictionHistory lists the signed-in user's past sessions. A missing or
// null list comes back as an empty slice.
func (c *Client) PredictionHistory(ctx context.Context) ([]HistoryEntry, error) {
	var out struct {
		History []HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/prediction_history", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.History == nil {
		return []HistoryEntry{}, nil
	}
	return out.History, nil
}

// SessionHistory loads the stored state of one session. It returns nil, nil
// when the backend has nothing for the pair. Concurrent calls for the same
// pair share one request; the first caller's context governs it.
func (c *Client) SessionHistory(ctx context.Context, d disease.Disease, sessionID string) (*SessionHistory, error) {
	key := string(d) + "\x00" + sessionID
	v, err, shared := c.group.Do(key, func() (any, error) {
		q := url.Values{}
		q.Set("session_id", sessionID)
		q.Set("disease", string(d))
		var out struct {
			History *SessionHistory `json:"history"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/session_history", q, nil, &out); err != nil {
			return nil, err
		}
		return out.History, nil
	})
	if shared {
		logging.APIDebug("session history shared", zap.String("disease", string(d)))
	}
	if err != nil {
		return nil, err
	}
	h, _ := v.(*SessionHistory)
	if h == nil {
		return nil, nil
	}
	return h.clone(), nil
}

func (h *SessionHistory) clone() *SessionHistory {
	out := *h
	if h.Messages != nil {
		out.Messages = append(make([]ChatMessage, 0, len(h.Messages)), h.Messages...)
	}
	if h.InputData != nil {
		out.InputData = make(FormValues, len(h.InputData))
		for k, v := range h.InputData {
			out.InputData[k] = v
		}
	}
	return &out
}

// Predict runs the model for d on a normalized form.
func (c *Client) Predict(ctx context.Context, d disease.Disease, form disease.Payload) (string, error) {
	var out struct {
		Prediction string `json:"prediction"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/predict/"+url.PathEscape(string(d)), nil, form, &out); err != nil {
		return "", err
	}
	return out.Prediction, nil
}

// Recommend asks for advice on a normalized form and the prediction it
// produced. The prediction is appended after the form fields.
func (c *Client) Recommend(ctx context.Context, d disease.Disease, form disease.Payload, prediction string) (string, error) {
	var out struct {
		Recommendations string `json:"recommendations"`
	}
	body := form.With("prediction", prediction)
	if err := c.do(ctx, http.MethodPost, "/api/recommend/"+url.PathEscape(string(d)), nil, body, &out); err != nil {
		return "", err
	}
	return out.Recommendations, nil
}

// Chat sends one turn and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, d disease.Disease, req ChatRequest) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat/"+url.PathEscape(string(d)), nil, req, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
