package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"medinsight/internal/api"
	"medinsight/internal/disease"
	"medinsight/internal/notify"
	"medinsight/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	Endpoint string
	Body     string
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	predict   func(ctx context.Context) (string, error)
	recommend func(ctx context.Context, prediction string) (string, error)
	chat      func(ctx context.Context) (string, error)
	history   *api.SessionHistory
}

func (f *fakeAPI) record(endpoint string, body any) {
	raw, _ := json.Marshal(body)
	f.mu.Lock()
	f.calls = append(f.calls, call{endpoint, string(raw)})
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeAPI) Predict(ctx context.Context, d disease.Disease, form disease.Payload) (string, error) {
	f.record("predict/"+string(d), form)
	if f.predict == nil {
		return "Negative", nil
	}
	return f.predict(ctx)
}

func (f *fakeAPI) Recommend(ctx context.Context, d disease.Disease, form disease.Payload, prediction string) (string, error) {
	f.record("recommend/"+string(d), form.With("prediction", prediction))
	if f.recommend == nil {
		return "Stay active.", nil
	}
	return f.recommend(ctx, prediction)
}

func (f *fakeAPI) Chat(ctx context.Context, d disease.Disease, req api.ChatRequest) (string, error) {
	f.record("chat/"+string(d), req)
	if f.chat == nil {
		return "Sure.", nil
	}
	return f.chat(ctx)
}

func (f *fakeAPI) SessionHistory(_ context.Context, d disease.Disease, sessionID string) (*api.SessionHistory, error) {
	f.record("session_history/"+string(d), sessionID)
	return f.history, nil
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingSink) Show(message string, kind notify.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(kind)+": "+message)
}

func (r *recordingSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type fixture struct {
	api  *fakeAPI
	kv   store.KV
	sink *recordingSink
}

func newFixture() *fixture {
	return &fixture{api: &fakeAPI{}, kv: store.NewMemoryKV(), sink: &recordingSink{}}
}

func (f *fixture) deps() Deps {
	return Deps{API: f.api, Store: f.kv, Notify: f.sink}
}

func (f *fixture) open(t *testing.T, p Params) *Route {
	t.Helper()
	r, err := Open(context.Background(), f.deps(), p)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

var diabetesForm = map[string]string{
	"Pregnancies": "6", "Glucose": "148", "BloodPressure": "72",
	"SkinThickness": "35", "Insulin": "0", "BMI": "33.6",
	"DiabetesPedigreeFunction": "0.627", "Age": "50",
}

const diabetesBody = `{"Pregnancies":"6","Glucose":"148","BloodPressure":"72","SkinThickness":"35","Insulin":"0","BMI":"33.6","DiabetesPedigreeFunction":"0.627","Age":"50"}`

func fill(t *testing.T, r *Route, form map[string]string) {
	t.Helper()
	for k, v := range form {
		require.NoError(t, r.SetField(k, v))
	}
}

func TestOpen_UnknownDiseaseMakesNoRequests(t *testing.T) {
	f := newFixture()
	r, err := Open(context.Background(), f.deps(), Params{Disease: "cancer"})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, disease.ErrUnknownDisease)
	assert.Empty(t, f.api.Calls())
	_, err = f.kv.Get(store.KeySessionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpen_GeneratesSessionAndGreeting(t *testing.T) {
	f := newFixture()
	r := f.open(t, Params{Disease: "diabetes"})

	stored, err := f.kv.Get(store.KeySessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
	assert.Equal(t, stored, r.SessionID())

	v := r.View()
	assert.Equal(t, []Turn{{ID: 1, Message: DefaultGreeting}}, v.Turns)
	assert.Empty(t, v.Prediction)
	assert.Empty(t, v.Form)
}

func TestOpen_KeepsIncomingSessionAndSeedsHistory(t *testing.T) {
	f := newFixture()
	history := &api.SessionHistory{
		Prediction:     "Positive",
		Recommendation: "## Causes",
		Messages: []api.ChatMessage{
			{User: false, Message: "Hello"},
			{User: true, Message: "Am I ok?"},
			{User: false, Message: "Let's see."},
		},
		InputData: api.FormValues{"Age": "50"},
	}
	r := f.open(t, Params{Disease: "diabetes", SessionID: "s-123", History: history})

	sid, _ := f.kv.Get(store.KeySessionID)
	assert.Equal(t, "s-123", sid)

	v := r.View()
	assert.Equal(t, "Positive", v.Prediction)
	assert.Equal(t, "## Causes", v.Recommendation)
	assert.Equal(t, disease.FormData{"Age": "50"}, v.Form)
	want := []Turn{
		{ID: 1, Message: "Hello"},
		{ID: 2, User: true, Message: "Am I ok?"},
		{ID: 3, Message: "Let's see."},
	}
	if diff := cmp.Diff(want, v.Turns); diff != "" {
		t.Errorf("seeded transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_EmptySeededTranscriptHasNoGreeting(t *testing.T) {
	f := newFixture()
	history := &api.SessionHistory{Prediction: "Positive", Messages: []api.ChatMessage{}}
	r := f.open(t, Params{Disease: "diabetes", SessionID: "s-5", History: history})
	assert.Empty(t, r.View().Turns)
}

func TestLoadHistory(t *testing.T) {
	f := newFixture()
	f.api.history = &api.SessionHistory{Prediction: "Negative"}

	h, err := LoadHistory(context.Background(), f.api, "heart", "")
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Empty(t, f.api.Calls(), "no incoming session, no request")

	h, err = LoadHistory(context.Background(), f.api, "heart", "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Negative", h.Prediction)

	_, err = LoadHistory(context.Background(), f.api, "cancer", "s-1")
	assert.ErrorIs(t, err, disease.ErrUnknownDisease)
}

func TestSetField_UnknownName(t *testing.T) {
	r := newFixture().open(t, Params{Disease: "heart"})
	assert.ErrorIs(t, r.SetField("Glucose", "1"), ErrUnknownField)
	require.NoError(t, r.SetField("chol", "240"))
	assert.Equal(t, "240", r.Field("chol"))
}

func TestSubmitPredict_Success(t *testing.T) {
	f := newFixture()
	f.api.predict = func(context.Context) (string, error) { return "Positive", nil }
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	require.NoError(t, r.Submit(context.Background(), ActionPredict))

	assert.Equal(t, []call{{"predict/diabetes", diabetesBody}}, f.api.Calls())
	v := r.View()
	assert.Equal(t, "Positive", v.Prediction)
	assert.False(t, v.Predicting)
	assert.Empty(t, f.sink.all())
}

func TestSubmit_NormalizesUncheckedBooleans(t *testing.T) {
	f := newFixture()
	r := f.open(t, Params{Disease: "heart"})
	fill(t, r, map[string]string{
		"age": "54", "cp": "2", "trestbps": "130", "chol": "246",
		"restecg": "0", "thalach": "150", "oldpeak": "1.2", "slope": "1",
		"ca": "0", "thal": "2", "exang": "1",
	})

	require.NoError(t, r.Submit(context.Background(), ActionPredict))
	calls := f.api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t,
		`{"age":"54","sex":"0","cp":"2","trestbps":"130","chol":"246","fbs":"0","restecg":"0","thalach":"150","exang":"1","oldpeak":"1.2","slope":"1","ca":"0","thal":"2"}`,
		calls[0].Body)
}

func TestSubmit_InvalidFormMakesNoRequest(t *testing.T) {
	f := newFixture()
	r := f.open(t, Params{Disease: "diabetes"})
	require.NoError(t, r.SetField("Age", "50"))

	err := r.Submit(context.Background(), ActionPredict)
	assert.ErrorIs(t, err, disease.ErrInvalidForm)
	assert.Empty(t, f.api.Calls())
	assert.False(t, r.View().Predicting)
}

func TestSubmitPredict_FailureShowsErrorText(t *testing.T) {
	f := newFixture()
	f.api.predict = func(context.Context) (string, error) {
		return "", &api.Error{Status: http.StatusBadRequest, Message: "Diabetes model expects 8 input values, but got 7"}
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	err := r.Submit(context.Background(), ActionPredict)
	require.Error(t, err)
	assert.Equal(t, "Diabetes model expects 8 input values, but got 7", r.View().Prediction)
	assert.Equal(t, []string{"error: " + PredictFailedNotice}, f.sink.all())
}

func TestSubmitRecommend_UsesFreshPrediction(t *testing.T) {
	f := newFixture()
	f.api.predict = func(context.Context) (string, error) { return "Negative", nil }
	f.api.recommend = func(_ context.Context, prediction string) (string, error) {
		return "advice for " + prediction, nil
	}
	r := f.open(t, Params{
		Disease:   "diabetes",
		SessionID: "s-1",
		History:   &api.SessionHistory{Prediction: "Positive"},
	})
	fill(t, r, diabetesForm)

	require.NoError(t, r.Submit(context.Background(), ActionRecommend))

	calls := f.api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, call{"predict/diabetes", diabetesBody}, calls[0])
	assert.Equal(t, "recommend/diabetes", calls[1].Endpoint)
	assert.JSONEq(t, diabetesBody[:len(diabetesBody)-1]+`,"prediction":"Negative"}`, calls[1].Body)

	v := r.View()
	assert.Equal(t, "advice for Negative", v.Recommendation)
	assert.Equal(t, "Positive", v.Prediction, "recommend does not touch the prediction panel")
	assert.False(t, v.Recommending)
}

func TestSubmitRecommend_PredictStepFailure(t *testing.T) {
	f := newFixture()
	f.api.predict = func(context.Context) (string, error) {
		return "", &api.Error{Message: "connection refused"}
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	require.Error(t, r.Submit(context.Background(), ActionRecommend))
	assert.Len(t, f.api.Calls(), 1, "recommend is never called")
	assert.Equal(t, "connection refused", r.View().Recommendation)
	assert.Equal(t, []string{"error: " + RecommendFailedNotice}, f.sink.all())
}

func TestSubmitRecommend_RecommendStepFailure(t *testing.T) {
	f := newFixture()
	f.api.recommend = func(context.Context, string) (string, error) {
		return "", &api.Error{Status: http.StatusInternalServerError, Message: "model unavailable"}
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	require.Error(t, r.Submit(context.Background(), ActionRecommend))
	calls := f.api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "predict/diabetes", calls[0].Endpoint)
	assert.Equal(t, "recommend/diabetes", calls[1].Endpoint)

	v := r.View()
	assert.Equal(t, "model unavailable", v.Recommendation)
	assert.False(t, v.Recommending)
	assert.Equal(t, []string{"error: " + RecommendFailedNotice}, f.sink.all())
}

func TestSubmit_SameActionInFlightRejected(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.predict = func(context.Context) (string, error) {
		close(entered)
		<-release
		return "Negative", nil
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	done := make(chan error)
	go func() { done <- r.Submit(context.Background(), ActionPredict) }()
	<-entered

	assert.True(t, r.View().Predicting)
	assert.ErrorIs(t, r.Submit(context.Background(), ActionPredict), ErrActionPending)

	close(release)
	require.NoError(t, <-done)
}

func TestSubmit_UnknownAction(t *testing.T) {
	r := newFixture().open(t, Params{Disease: "diabetes"})
	assert.Error(t, r.Submit(context.Background(), Action("explain")))
}

func TestClose_DiscardsLateResult(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	f.api.predict = func(ctx context.Context) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	done := make(chan error)
	go func() { done <- r.Submit(context.Background(), ActionPredict) }()
	<-entered
	r.Close()

	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Empty(t, r.View().Prediction)
	assert.Empty(t, f.sink.all(), "no notification after close")

	assert.ErrorIs(t, r.Submit(context.Background(), ActionPredict), ErrClosed)
	_, err := r.BeginSend("hi")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubmit_CallerContextCancels(t *testing.T) {
	f := newFixture()
	f.api.predict = func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Submit(ctx, ActionPredict)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSend_WithSessionSendsSingleMessage(t *testing.T) {
	f := newFixture()
	f.api.chat = func(context.Context) (string, error) { return "Drink water.", nil }
	r := f.open(t, Params{Disease: "diabetes"})
	require.NoError(t, r.SetField("Age", "50"))

	require.NoError(t, r.Send(context.Background(), "  What should I eat?  "))

	calls := f.api.Calls()
	require.Len(t, calls, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &body))
	assert.Equal(t, "What should I eat?", body["message"])
	assert.NotContains(t, body, "messages")
	assert.Equal(t, map[string]any{"Age": "50"}, body["form_data"])
	assert.Equal(t, "", body["prediction"])

	want := []Turn{
		{ID: 1, Message: DefaultGreeting},
		{ID: 2, User: true, Message: "What should I eat?"},
		{ID: 3, Message: "Drink water."},
	}
	if diff := cmp.Diff(want, r.View().Turns); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_WithoutSessionSendsWholeTranscript(t *testing.T) {
	f := newFixture()
	r := f.open(t, Params{Disease: "lung"})
	require.NoError(t, f.kv.Remove(store.KeySessionID))

	require.NoError(t, r.Send(context.Background(), "Hi"))

	calls := f.api.Calls()
	require.Len(t, calls, 1)
	var req api.ChatRequest
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &req))
	assert.Empty(t, req.Message)
	assert.Equal(t, []api.ChatMessage{
		{User: false, Message: DefaultGreeting},
		{User: true, Message: "Hi"},
	}, req.Messages)
}

func TestBeginSend_Guards(t *testing.T) {
	f := newFixture()
	r := f.open(t, Params{Disease: "heart"})

	_, err := r.BeginSend("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	p, err := r.BeginSend("first")
	require.NoError(t, err)
	before := r.View().Turns

	_, err = r.BeginSend("second")
	assert.ErrorIs(t, err, ErrTurnPending)
	assert.Equal(t, before, r.View().Turns, "rejected send changes nothing")
	assert.Empty(t, f.api.Calls())

	last := before[len(before)-1]
	assert.True(t, last.Pending)
	assert.Equal(t, p.Placeholder, last.ID)

	require.NoError(t, r.CompleteSend(context.Background(), p))
	_, err = r.BeginSend("second")
	assert.NoError(t, err)
}

func TestCompleteSend_FailureDropsPlaceholderOnly(t *testing.T) {
	f := newFixture()
	f.api.chat = func(context.Context) (string, error) {
		return "", &api.Error{Status: http.StatusInternalServerError, Message: "LLM quota exceeded"}
	}
	r := f.open(t, Params{Disease: "heart"})

	require.Error(t, r.Send(context.Background(), "hello"))

	want := []Turn{
		{ID: 1, Message: DefaultGreeting},
		{ID: 2, User: true, Message: "hello"},
	}
	if diff := cmp.Diff(want, r.View().Turns); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"error: LLM quota exceeded"}, f.sink.all())

	// the guard is released
	_, err := r.BeginSend("again")
	assert.NoError(t, err)
}

func TestChat_IndependentOfFormSubmission(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.predict = func(context.Context) (string, error) {
		close(entered)
		<-release
		return "Negative", nil
	}
	r := f.open(t, Params{Disease: "diabetes"})
	fill(t, r, diabetesForm)

	done := make(chan error)
	go func() { done <- r.Submit(context.Background(), ActionPredict) }()
	<-entered

	require.NoError(t, r.Send(context.Background(), "while predicting"))
	close(release)
	require.NoError(t, <-done)
	assert.Len(t, r.View().Turns, 3)
}
