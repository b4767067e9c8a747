// ABOUTME: Tests for the GUI HTTP API
// ABOUTME: Exercises commands, SSE events, listings, health and metrics through httptest

package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

func newTestServer(t *testing.T, a *Assistant) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postCommand(t *testing.T, srv *httptest.Server, text string) CommandResponse {
	t.Helper()
	body, err := json.Marshal(CommandRequest{Text: text})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleCommand(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)

	resp := postCommand(t, srv, "remind me in 5 minutes to stretch")
	assert.Equal(t, plugins.ReplyOK, resp.Status)
	assert.Equal(t, "remind", resp.Plugin)
	assert.Contains(t, resp.Text, "I'll remind you to stretch")
	assert.True(t, strings.HasPrefix(resp.HTML, "<p>"), "html: %q", resp.HTML)
	assert.Empty(t, resp.Error)

	resp = postCommand(t, srv, "todo add buy milk")
	assert.Equal(t, "todo", resp.Plugin)

	resp = postCommand(t, srv, "sing me a song")
	assert.Equal(t, plugins.ReplyNotFound, resp.Status)
	assert.Equal(t, plugins.NotUnderstood, resp.Text)
}

func TestHandleCommand_HandlerErrorIsReported(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	require.NoError(t, a.Registry().Register(&plugins.Descriptor{
		Name:     "explode",
		Patterns: []plugins.Pattern{plugins.Prefix("explode")},
		Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
			panic("boom")
		},
	}))
	srv := newTestServer(t, a)

	resp := postCommand(t, srv, "explode")
	assert.Equal(t, plugins.ReplyError, resp.Status)
	assert.Equal(t, "explode", resp.Plugin)
	assert.Contains(t, resp.Error, `plugin "explode" failed`)

	resp = postCommand(t, srv, "time")
	assert.Equal(t, plugins.ReplyOK, resp.Status, "the next command is served")
}

func TestHandleCommand_BadRequests(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"empty text", http.MethodPost, `{"text":"   "}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+"/api/command", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestRenderHTML(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	html := a.renderHTML("**Your To-Do List:**\n\n1. buy milk")
	assert.Contains(t, html, "<strong>Your To-Do List:</strong>")
	assert.Contains(t, html, "<li>buy milk</li>")
}

// readSSE returns the next event name and data from an SSE stream,
// skipping comments.
func readSSE(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestHandleEvents_StreamsBridgeEvents(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/events?client=gui-test", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	event, _ := readSSE(t, r)
	require.Equal(t, "connected", event)

	stats := a.Bridge().Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "gui-test", stats[0].Name)

	a.Bridge().Publish(bridge.Event{Kind: bridge.KindReminderDue, Payload: "stretch"})
	a.Bridge().Publish(bridge.Event{Kind: bridge.KindSystem, Payload: "hello"})

	event, data := readSSE(t, r)
	assert.Equal(t, "reminder_due", event)
	var ev EventMessage
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "stretch", ev.Payload)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "Scheduled Reminder", ev.Title)

	event, data = readSSE(t, r)
	assert.Equal(t, "system", event)
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "Assistant Notice", ev.Title)
}

func TestHandleEvents_EndsOnShutdown(t *testing.T) {
	a, err := New(t.Context(), testConfig(t), nil)
	require.NoError(t, err)
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	event, _ := readSSE(t, r)
	require.Equal(t, "connected", event)

	require.NoError(t, a.Shutdown(t.Context()))

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, r)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream stayed open after shutdown")
	}
}

func TestHandlePlugins(t *testing.T) {
	cfg := testConfig(t)
	writePlugin(t, cfg, "greet.yaml", greetManifest)
	a := newTestAssistant(t, cfg)
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/api/plugins")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []PluginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, a.Registry().Len())

	byName := make(map[string]PluginResponse)
	for _, p := range list {
		byName[p.Name] = p
	}
	greet := byName["greet"]
	assert.Equal(t, "reply", greet.Kind)
	assert.Equal(t, []string{"hello", "re:^good (morning|evening)"}, greet.Patterns)
	assert.Contains(t, greet.Source, "greet.yaml")
	assert.Equal(t, plugins.SourceBuiltin, byName["remind"].Source)
}

func TestHandleReminders(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)
	ctx := t.Context()

	now := time.Now()
	pendingID, err := a.Store().CreateReminder(ctx, now.Add(time.Hour), "later", "remind")
	require.NoError(t, err)
	firedID, err := a.Store().CreateReminder(ctx, now.Add(-time.Hour), "earlier", "remind")
	require.NoError(t, err)
	_, err = a.Store().MarkFired(ctx, firedID)
	require.NoError(t, err)

	get := func(query string) (int, []ReminderResponse) {
		resp, err := http.Get(srv.URL + "/api/reminders" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out []ReminderResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	status, list := get("")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, pendingID, list[0].ID)
	assert.Equal(t, "pending", list[0].Status)

	_, list = get("?status=fired")
	require.Len(t, list, 1)
	assert.Equal(t, firedID, list[0].ID)
	assert.NotEmpty(t, list[0].FiredAt)

	_, list = get("?status=all")
	assert.Len(t, list, 2)

	status, _ = get("?status=snoozed")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandleBridge(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)

	a.Bridge().Subscribe(t.Context(), "console")
	a.Bridge().Publish(bridge.Event{Kind: bridge.KindSystem, Payload: "x"})

	resp, err := http.Get(srv.URL + "/api/bridge")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out BridgeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, uint64(1), out.Published)
	require.Len(t, out.Subscriptions, 1)
	assert.Equal(t, "console", out.Subscriptions[0].Name)
	assert.Equal(t, 1, out.Subscriptions[0].Pending)
}

func TestHealthAndReady(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "scheduler not started yet")

	require.NoError(t, a.scheduler.Start(t.Context()))
	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ready")
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAssistant(t, testConfig(t))
	srv := newTestServer(t, a)

	postCommand(t, srv, "time")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "familiar_commands_total")
	assert.Contains(t, string(body), "familiar_plugins_loaded")
}

func TestReminderFilter(t *testing.T) {
	f, err := reminderFilter("")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, f.Status)

	f, err = reminderFilter("all")
	require.NoError(t, err)
	assert.Equal(t, store.ReminderStatus(""), f.Status)

	f, err = reminderFilter("cancelled")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, f.Status)

	_, err = reminderFilter("bogus")
	assert.Error(t, err)
}
