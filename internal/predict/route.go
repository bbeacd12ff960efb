// Package predict is the disease-form route: form state, prediction and
// recommendation requests, and the assistant chat that rides alongside.
// A Route lives from Open to Close; anything still in flight at Close is
// cancelled and its result thrown away.
package predict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"medinsight/internal/api"
	"medinsight/internal/disease"
	"medinsight/internal/logging"
	"medinsight/internal/notify"
	"medinsight/internal/session"
	"medinsight/internal/store"
)

var (
	// ErrTurnPending rejects a send while an assistant reply is outstanding.
	ErrTurnPending = errors.New("assistant is still responding")
	// ErrEmptyMessage rejects a blank chat message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrClosed is returned by operations on, or completing after, Close.
	ErrClosed = errors.New("route closed")
	// ErrActionPending rejects a submit while the same action is in flight.
	ErrActionPending = errors.New("action already in progress")
	// ErrUnknownField rejects SetField for a name outside the schema.
	ErrUnknownField = errors.New("unknown field")
)

// User-facing failure notices.
const (
	PredictFailedNotice   = "Error predicting disease"
	RecommendFailedNotice = "Error generating recommendations"
)

// Action selects what a form submission asks for.
type Action string

const (
	ActionPredict   Action = "predict"
	ActionRecommend Action = "recommend"
)

// Backend is the slice of the API the route calls.
type Backend interface {
	Predict(ctx context.Context, d disease.Disease, form disease.Payload) (string, error)
	Recommend(ctx context.Context, d disease.Disease, form disease.Payload, prediction string) (string, error)
	Chat(ctx context.Context, d disease.Disease, req api.ChatRequest) (string, error)
}

// HistoryLoader fetches stored session state.
type HistoryLoader interface {
	SessionHistory(ctx context.Context, d disease.Disease, sessionID string) (*api.SessionHistory, error)
}

// Deps are the collaborators a route needs.
type Deps struct {
	API    Backend
	Store  store.KV
	Notify notify.Sink
}

// Params are the navigation inputs. History is the pre-loaded session
// state, if the navigation layer fetched one.
type Params struct {
	Disease   string
	SessionID string
	History   *api.SessionHistory
}

// LoadHistory is the pre-load step run before Open. Without an incoming
// session id there is nothing to load and no request is made.
func LoadHistory(ctx context.Context, loader HistoryLoader, tag, sessionID string) (*api.SessionHistory, error) {
	if sessionID == "" {
		return nil, nil
	}
	d, err := disease.Parse(tag)
	if err != nil {
		return nil, err
	}
	h, err := loader.SessionHistory(ctx, d, sessionID)
	if err != nil {
		logging.Chat("session history load failed", zap.String("disease", tag), zap.Error(err))
		return nil, err
	}
	return h, nil
}

// Route is safe for concurrent use.
type Route struct {
	deps      Deps
	disease   disease.Disease
	info      disease.Info
	schema    disease.Schema
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	form           disease.FormData
	prediction     string
	recommendation string
	predicting     bool
	recommending   bool
	chat           *transcript
}

// Open validates the disease, bootstraps the session identifier and seeds
// state from Params.History. An unknown disease fails before any request
// or storage write.
func Open(ctx context.Context, deps Deps, p Params) (*Route, error) {
	d, err := disease.Parse(p.Disease)
	if err != nil {
		return nil, err
	}
	schema, err := disease.SchemaFor(d)
	if err != nil {
		return nil, err
	}
	info, _ := disease.Lookup(d)
	if deps.Notify == nil {
		deps.Notify = notify.Discard
	}

	sid, err := session.Bootstrap(deps.Store, p.SessionID)
	if err != nil {
		return nil, err
	}

	r := &Route{
		deps:      deps,
		disease:   d,
		info:      info,
		schema:    schema,
		sessionID: sid,
		form:      disease.FormData{},
	}
	var seed []api.ChatMessage
	if h := p.History; h != nil {
		for k, v := range h.InputData {
			r.form[k] = v
		}
		r.prediction = h.Prediction
		r.recommendation = h.Recommendation
		seed = h.Messages
	}
	r.chat = newTranscript(seed)
	r.ctx, r.cancel = context.WithCancel(ctx)

	logging.Chat("route opened",
		zap.String("disease", string(d)),
		zap.String("session_id", sid),
		zap.Bool("from_history", p.History != nil))
	return r, nil
}

// Close cancels in-flight requests. Results arriving afterwards are
// discarded. Close is idempotent.
func (r *Route) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	logging.Chat("route closed", zap.String("disease", string(r.disease)))
}

// scope derives a request context that ends with the route or with ctx.
func (r *Route) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(r.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

// Disease returns the route's disease.
func (r *Route) Disease() disease.Disease { return r.disease }

// Info returns the disease display metadata.
func (r *Route) Info() disease.Info { return r.info }

// Schema returns the form schema.
func (r *Route) Schema() disease.Schema { return r.schema }

// SessionID returns the identifier bootstrapped at Open.
func (r *Route) SessionID() string { return r.sessionID }

// SetField records one form input.
func (r *Route) SetField(name, value string) error {
	if _, ok := r.schema.Field(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.form[name] = value
	return nil
}

// Field returns the raw value of one input.
func (r *Route) Field(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.form[name]
}

// Form returns a copy of the raw form.
func (r *Route) Form() disease.FormData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.form.Clone()
}

// View is a consistent snapshot for rendering.
type View struct {
	Disease        disease.Disease
	SessionID      string
	Form           disease.FormData
	Prediction     string
	Recommendation string
	Predicting     bool
	Recommending   bool
	Turns          []Turn
	Closed         bool
}

// View returns the current state.
func (r *Route) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return View{
		Disease:        r.disease,
		SessionID:      r.sessionID,
		Form:           r.form.Clone(),
		Prediction:     r.prediction,
		Recommendation: r.recommendation,
		Predicting:     r.predicting,
		Recommending:   r.recommending,
		Turns:          r.chat.snapshot(),
		Closed:         r.closed,
	}
}

// Submit validates and normalizes the form, then runs action. A failed
// request is shown in place of the result and raises a notification; the
// returned error is for callers that want it.
func (r *Route) Submit(ctx context.Context, action Action) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	switch action {
	case ActionPredict:
		if r.predicting {
			r.mu.Unlock()
			return ErrActionPending
		}
	case ActionRecommend:
		if r.recommending {
			r.mu.Unlock()
			return ErrActionPending
		}
	default:
		r.mu.Unlock()
		return fmt.Errorf("unknown action %q", action)
	}
	if err := disease.Validate(r.schema, r.form); err != nil {
		r.mu.Unlock()
		return err
	}
	payload := disease.Normalize(r.schema, r.form)
	if action == ActionPredict {
		r.predicting = true
	} else {
		r.recommending = true
	}
	r.mu.Unlock()

	rctx, done := r.scope(ctx)
	defer done()

	if action == ActionPredict {
		return r.runPredict(rctx, payload)
	}
	return r.runRecommend(rctx, payload)
}

func (r *Route) runPredict(ctx context.Context, payload disease.Payload) error {
	timer := logging.StartTimer(logging.CategoryChat, "predict")
	label, err := r.deps.API.Predict(ctx, r.disease, payload)
	timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicting = false
	if r.closed {
		return ErrClosed
	}
	if err != nil {
		r.prediction = api.Message(err)
		logging.Chat("prediction failed", zap.String("disease", string(r.disease)), zap.Error(err))
		r.deps.Notify.Show(PredictFailedNotice, notify.Error)
		return err
	}
	r.prediction = label
	logging.Chat("prediction received", zap.String("disease", string(r.disease)), zap.String("prediction", label))
	return nil
}

// runRecommend always asks for a fresh prediction first and feeds that to
// the recommender; the on-screen prediction is never reused.
func (r *Route) runRecommend(ctx context.Context, payload disease.Payload) error {
	timer := logging.StartTimer(logging.CategoryChat, "recommend")
	label, err := r.deps.API.Predict(ctx, r.disease, payload)
	var advice string
	if err == nil {
		advice, err = r.deps.API.Recommend(ctx, r.disease, payload, label)
	}
	timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recommending = false
	if r.closed {
		return ErrClosed
	}
	if err != nil {
		r.recommendation = api.Message(err)
		logging.Chat("recommendation failed", zap.String("disease", string(r.disease)), zap.Error(err))
		r.deps.Notify.Show(RecommendFailedNotice, notify.Error)
		return err
	}
	r.recommendation = advice
	return nil
}

// PendingSend is an accepted chat message awaiting its reply.
type PendingSend struct {
	Placeholder TurnID
	Request     api.ChatRequest
}

// BeginSend appends the user turn and an assistant placeholder and returns
// the request to send. It makes no request itself.
func (r *Route) BeginSend(message string) (*PendingSend, error) {
	message = strings.TrimSpace(message)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if r.chat.hasPending() {
		return nil, ErrTurnPending
	}

	req := api.ChatRequest{
		FormData:       r.form.Clone(),
		Prediction:     r.prediction,
		Recommendation: r.recommendation,
	}
	if _, ok := session.Current(r.deps.Store); ok {
		req.Message = message
	} else {
		req.Messages = append(r.chat.wire(), api.ChatMessage{User: true, Message: message})
	}

	r.chat.append(true, message, false)
	placeholder := r.chat.append(false, "", true)
	return &PendingSend{Placeholder: placeholder, Request: req}, nil
}

// CompleteSend posts a pending message. The reply replaces the placeholder;
// on failure the placeholder is dropped, the user turn stays, and the
// server's error is shown.
func (r *Route) CompleteSend(ctx context.Context, p *PendingSend) error {
	rctx, done := r.scope(ctx)
	defer done()

	timer := logging.StartTimer(logging.CategoryChat, "chat")
	reply, err := r.deps.API.Chat(rctx, r.disease, p.Request)
	timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err != nil {
		r.chat.remove(p.Placeholder)
		logging.Chat("chat failed", zap.String("disease", string(r.disease)), zap.Error(err))
		r.deps.Notify.Show(api.Message(err), notify.Error)
		return err
	}
	r.chat.resolve(p.Placeholder, reply)
	logging.ChatDebug("chat reply", zap.String("disease", string(r.disease)), zap.Int("chars", len(reply)))
	return nil
}

// Send is BeginSend followed by CompleteSend.
func (r *Route) Send(ctx context.Context, message string) error {
	p, err := r.BeginSend(message)
	if err != nil {
		return err
	}
	return r.CompleteSend(ctx, p)
}
