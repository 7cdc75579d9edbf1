package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/menuflow/pkg/adapters/notify"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Handoff(t *testing.T) {
	var got domain.AIHandoff
	var kind, apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind = r.Header.Get("X-Menuflow-Event")
		apiKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := notify.New(srv.URL, notify.WithHeader("X-Api-Key", "k"))
	h := domain.AIHandoff{
		CustomerAddress: "+1",
		OrganizationID:  "org",
		Channel:         domain.ChannelWebsite,
		Reason:          domain.ReasonFallbackAction,
		Variables:       map[string]string{"name": "Ana"},
		RecentTurns:     []domain.Turn{{Role: domain.RoleCustomer, Text: "help"}},
	}
	require.NoError(t, c.Handoff(context.Background(), h))

	assert.Equal(t, "handoff", kind)
	assert.Equal(t, "k", apiKey)
	assert.Equal(t, "Ana", got.Variables["name"])
	assert.Equal(t, "help", got.RecentTurns[0].Text)
}

func TestClient_EscalateAndReport(t *testing.T) {
	var kinds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kinds = append(kinds, r.Header.Get("X-Menuflow-Event"))
	}))
	defer srv.Close()

	c := notify.New(srv.URL)
	require.NoError(t, c.Escalate(context.Background(), domain.Escalation{MenuIDAtFailure: "main"}))
	require.NoError(t, c.Report(context.Background(), domain.ConfigIssue{Reason: domain.ReasonRenderOverflow}))
	assert.Equal(t, []string{"escalation", "config_issue"}, kinds)
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := notify.New(srv.URL).Escalate(context.Background(), domain.Escalation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := notify.New(srv.URL, notify.WithTimeout(20*time.Millisecond)).Report(context.Background(), domain.ConfigIssue{})
	assert.Error(t, err)
}

func TestClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := notify.New(srv.URL, notify.WithRate(1, 1))
	require.NoError(t, c.Report(context.Background(), domain.ConfigIssue{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Report(ctx, domain.ConfigIssue{})
	require.Error(t, err, "second call waits for a token past the deadline")
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), calls.Load())
}
