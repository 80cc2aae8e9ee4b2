package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/quizgen/internal/domain"
)

func testAlert() *domain.UsageAlert {
	return &domain.UsageAlert{
		Provider: "openai", AlertType: domain.AlertDailyCost, AlertDate: "2026-10-15",
		Threshold: 50, CurrentValue: 51.2, Message: "openai daily cost $51.20 exceeds $50.00",
	}
}

func TestWebhookSink(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, NewWebhookSink(server.URL, 0).Notify(context.Background(), testAlert()))
	assert.Equal(t, "openai", got.Provider)
	assert.Equal(t, "daily_cost", got.AlertType)
	assert.Equal(t, 51.2, got.CurrentValue)
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewWebhookSink(server.URL, 0).Notify(context.Background(), testAlert())
	assert.ErrorContains(t, err, "HTTP 500")
}

type failingSink struct{ calls int }

func (f *failingSink) Notify(context.Context, *domain.UsageAlert) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiSinkCallsEverySink(t *testing.T) {
	first, second := &failingSink{}, &failingSink{}
	err := MultiSink{first, LogSink{}, second}.Notify(context.Background(), testAlert())

	assert.Error(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.NoError(t, MultiSink{LogSink{}}.Notify(context.Background(), testAlert()))
}
