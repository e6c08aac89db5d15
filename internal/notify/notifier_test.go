package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/domain"
)

type fakeSender struct {
	name string
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.sent = append(f.sent, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyDisputedFansOut(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, testLogger())

	require.NoError(t, n.NotifyDisputed(context.Background(), "mkt-1", "quorum not reached"))
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
	assert.Contains(t, a.sent[0], "mkt-1")
}

func TestNotifyDisputedPartialFailure(t *testing.T) {
	a := &fakeSender{name: "a", err: errors.New("boom")}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, testLogger())

	err := n.NotifyDisputed(context.Background(), "mkt-1", "quorum not reached")
	assert.ErrorContains(t, err, "a: boom")
	// The second channel still got the alert.
	assert.Len(t, b.sent, 1)
}

func TestNotifyDisputedNoSenders(t *testing.T) {
	n := NewNotifier(nil, testLogger())
	assert.NoError(t, n.NotifyDisputed(context.Background(), "mkt-1", "quorum not reached"))
}

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, jsonDecode(r, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Market disputed: mkt-1", "manual resolution required"))
	assert.Contains(t, got["content"], "mkt-1")
}

func TestWebhookSenderBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	err := s.Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "403")
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

var _ domain.GovernanceNotifier = (*Notifier)(nil)
