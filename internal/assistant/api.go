// ABOUTME: HTTP API a GUI client attaches to: commands, SSE event stream, plugin and reminder listings.
// ABOUTME: Also serves health, readiness and Prometheus metrics.

package assistant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/console"
	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/scheduler"
	"github.com/2389/familiar/internal/store"
)

// maxBodyBytes bounds request bodies on every POST endpoint.
const maxBodyBytes = 1 << 20

// sseHeartbeat keeps idle event streams from being closed by proxies.
const sseHeartbeat = 25 * time.Second

// CommandRequest is the JSON request body for POST /api/command.
type CommandRequest struct {
	Text string `json:"text"`
}

// CommandResponse is the JSON response for POST /api/command.
type CommandResponse struct {
	Status plugins.ReplyStatus `json:"status"`
	Plugin string              `json:"plugin,omitempty"`
	Text   string              `json:"text"`
	HTML   string              `json:"html"`
	Error  string              `json:"error,omitempty"`
}

// PluginResponse describes one registered plugin.
type PluginResponse struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Description string   `json:"description,omitempty"`
	Usage       string   `json:"usage,omitempty"`
	Patterns    []string `json:"patterns"`
	Source      string   `json:"source"`
}

// ReminderResponse describes one stored reminder.
type ReminderResponse struct {
	ID          int64  `json:"id"`
	DueAt       string `json:"due_at"`
	Payload     string `json:"payload"`
	Status      string `json:"status"`
	Source      string `json:"source,omitempty"`
	CreatedAt   string `json:"created_at"`
	FiredAt     string `json:"fired_at,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
}

// BridgeResponse is the JSON response for GET /api/bridge.
type BridgeResponse struct {
	Published     uint64                     `json:"published"`
	Dropped       uint64                     `json:"dropped"`
	Subscriptions []bridge.SubscriptionStats `json:"subscriptions"`
}

// EventMessage is the data of one SSE event: the bridge event plus the
// notification title a GUI shows for it.
type EventMessage struct {
	bridge.Event
	Title string `json:"title"`
}

// Handler returns the HTTP handler with every route registered.
func (a *Assistant) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/health/ready", a.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/command", a.handleCommand)
	mux.HandleFunc("/api/events", a.handleEvents)
	mux.HandleFunc("/api/plugins", a.handlePlugins)
	mux.HandleFunc("/api/reminders", a.handleReminders)
	mux.HandleFunc("/api/bridge", a.handleBridge)

	if a.config.Webhook.Enabled {
		mux.HandleFunc(a.config.Webhook.Path, a.handleWebhook)
	}
	return mux
}

// handleCommand handles POST /api/command: the GUI's chat input.
func (a *Assistant) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		a.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := a.router.HandleText(r.Context(), req.Text, plugins.OriginGUI)
	if reply == nil {
		a.logger.Error("router returned no reply", "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := CommandResponse{
		Status: reply.Status,
		Plugin: reply.Plugin,
		Text:   reply.Text,
		HTML:   a.renderHTML(reply.Text),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	a.sendJSON(w, http.StatusOK, resp)
}

// renderHTML converts a reply to HTML for the GUI. Plain text passes
// through as a paragraph.
func (a *Assistant) renderHTML(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		a.logger.Warn("failed to render reply as markdown", "error", err)
		return ""
	}
	return buf.String()
}

// handleEvents handles GET /api/events: the GUI's bridge subscription,
// streamed as Server-Sent Events until the client disconnects.
func (a *Assistant) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.logger.Error("streaming not supported")
		a.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	name := r.URL.Query().Get("client")
	if name == "" {
		name = "gui"
	}
	sub := a.bridge.Subscribe(r.Context(), name)
	defer a.bridge.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	a.writeSSEEvent(w, "connected", map[string]string{"subscription_id": sub.ID})
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.stopping:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			a.writeSSEEvent(w, string(ev.Kind), EventMessage{Event: ev, Title: console.Title(ev)})
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (a *Assistant) writeSSEEvent(w io.Writer, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		a.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// handlePlugins handles GET /api/plugins in resolution order.
func (a *Assistant) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	list := a.registry.List()
	resp := make([]PluginResponse, len(list))
	for i, d := range list {
		resp[i] = PluginResponse{
			Name:        d.Name,
			Kind:        d.Kind,
			Description: d.Description,
			Usage:       d.Usage,
			Patterns:    d.PatternStrings(),
			Source:      d.Source,
		}
	}
	a.sendJSON(w, http.StatusOK, resp)
}

// handleReminders handles GET /api/reminders?status=pending|fired|cancelled|all.
// The default is pending.
func (a *Assistant) handleReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter, err := reminderFilter(r.URL.Query().Get("status"))
	if err != nil {
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	reminders, err := a.store.ListReminders(r.Context(), filter)
	if err != nil {
		a.logger.Error("failed to list reminders", "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ReminderResponse, len(reminders))
	for i, rem := range reminders {
		resp[i] = toReminderResponse(rem)
	}
	a.sendJSON(w, http.StatusOK, resp)
}

func reminderFilter(status string) (store.ReminderFilter, error) {
	switch status {
	case "":
		return store.ReminderFilter{Status: store.StatusPending}, nil
	case "all":
		return store.ReminderFilter{}, nil
	}
	s := store.ReminderStatus(status)
	if !s.Valid() {
		return store.ReminderFilter{}, fmt.Errorf("unknown status %q", status)
	}
	return store.ReminderFilter{Status: s}, nil
}

func toReminderResponse(r *store.Reminder) ReminderResponse {
	resp := ReminderResponse{
		ID:        r.ID,
		DueAt:     r.DueAt.UTC().Format(time.RFC3339),
		Payload:   r.Payload,
		Status:    string(r.Status),
		Source:    r.Source,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.FiredAt != nil {
		resp.FiredAt = r.FiredAt.UTC().Format(time.RFC3339)
	}
	if r.CancelledAt != nil {
		resp.CancelledAt = r.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// handleBridge handles GET /api/bridge: publish and drop counters.
func (a *Assistant) handleBridge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	a.sendJSON(w, http.StatusOK, BridgeResponse{
		Published:     a.bridge.Published(),
		Dropped:       a.bridge.Dropped(),
		Subscriptions: a.bridge.Stats(),
	})
}

// handleHealth returns 200 OK if the process is alive.
func (a *Assistant) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 while the scheduler is running and not degraded.
func (a *Assistant) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.scheduler.State() != scheduler.StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("scheduler not running"))
		return
	}
	if a.scheduler.Degraded() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("scheduler degraded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d plugins, up %s)", a.registry.Len(), time.Since(a.startedAt).Round(time.Second))
}

func (a *Assistant) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response with a request ID for log
// correlation.
func (a *Assistant) sendJSONError(w http.ResponseWriter, status int, message string) {
	requestID := uuid.New().String()
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "request_id", requestID, "status", status, "error", message)
	}
	a.sendJSON(w, status, map[string]string{"error": message, "request_id": requestID})
}

// isBodyTooLarge reports whether err came from http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
