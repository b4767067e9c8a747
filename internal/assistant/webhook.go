// ABOUTME: Webhook receiver that turns JSON deliveries into bridge events or routed commands.
// ABOUTME: Sonarr and Radarr payloads get a one-line summary; redeliveries are dropped.

package assistant

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/metrics"
	"github.com/2389/familiar/internal/plugins"
)

// DeliveryIDHeader carries the sender's delivery ID. When it is absent the
// body hash is used instead.
const DeliveryIDHeader = "X-Delivery-ID"

// maxSummaryLen bounds the raw-body excerpt of an unrecognized webhook.
const maxSummaryLen = 200

// WebhookResponse is the JSON response for the webhook endpoint.
type WebhookResponse struct {
	Status string `json:"status"`
	Source string `json:"source,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

func (a *Assistant) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		if isBodyTooLarge(err) {
			a.sendJSONError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		a.sendJSONError(w, http.StatusBadRequest, "reading body failed")
		return
	}
	if !gjson.ValidBytes(body) {
		metrics.WebhooksTotal.WithLabelValues("unknown", "invalid").Inc()
		a.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	source := webhookSource(body)
	deliveryID := r.Header.Get(DeliveryIDHeader)
	if deliveryID == "" {
		sum := sha256.Sum256(body)
		deliveryID = hex.EncodeToString(sum[:])
	}
	if a.deliveries.Seen(deliveryID) {
		metrics.WebhooksTotal.WithLabelValues(source, "duplicate").Inc()
		a.logger.Debug("duplicate webhook dropped", "delivery_id", deliveryID, "source", source)
		a.sendJSON(w, http.StatusOK, WebhookResponse{Status: "duplicate", Source: source})
		return
	}

	if cmd := gjson.GetBytes(body, "command"); cmd.Type == gjson.String && strings.TrimSpace(cmd.String()) != "" {
		a.routeWebhookCommand(w, r, deliveryID, cmd.String())
		return
	}

	summary := summarizeWebhook(body)
	a.bridge.Publish(bridge.Event{
		Kind:    bridge.KindWebhook,
		Payload: summary,
		Source:  source,
		Data:    map[string]string{"delivery_id": deliveryID},
	})
	metrics.WebhooksTotal.WithLabelValues(source, "accepted").Inc()
	a.logger.Info("webhook received", "source", source, "delivery_id", deliveryID)
	a.sendJSON(w, http.StatusOK, WebhookResponse{Status: "success", Source: source})
}

// routeWebhookCommand handles a delivery carrying a command. The reply is
// published so every front end sees it, and returned to the sender. A
// failed command is forgotten so the sender's retry is accepted.
func (a *Assistant) routeWebhookCommand(w http.ResponseWriter, r *http.Request, deliveryID, text string) {
	reply, err := a.router.HandleText(r.Context(), text, plugins.OriginWebhook)
	if reply == nil {
		a.deliveries.Forget(deliveryID)
		metrics.WebhooksTotal.WithLabelValues("command", "error").Inc()
		a.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	outcome := string(reply.Status)
	if err != nil {
		a.deliveries.Forget(deliveryID)
		a.logger.Warn("webhook command failed", "command", text, "error", err)
	}

	a.bridge.Publish(bridge.Event{
		Kind:    bridge.KindAsyncResult,
		Payload: reply.Text,
		Source:  reply.Plugin,
		Data: map[string]string{
			"command": text,
			"origin":  string(plugins.OriginWebhook),
			"status":  string(reply.Status),
		},
	})
	metrics.WebhooksTotal.WithLabelValues("command", outcome).Inc()
	a.sendJSON(w, http.StatusOK, WebhookResponse{Status: outcome, Source: "command", Reply: reply.Text})
}

// webhookSource names the sender from the payload shape.
func webhookSource(body []byte) string {
	switch {
	case gjson.GetBytes(body, "command").Exists():
		return "command"
	case gjson.GetBytes(body, "series").Exists() && gjson.GetBytes(body, "episodes").Exists():
		return "sonarr"
	case gjson.GetBytes(body, "movie").Exists():
		return "radarr"
	}
	return "generic"
}

// summarizeWebhook renders a delivery as one line of text.
func summarizeWebhook(body []byte) string {
	switch webhookSource(body) {
	case "sonarr":
		res := gjson.GetManyBytes(body, "series.title", "episodes.0.title")
		return "Sonarr: Downloaded '" + res[0].String() + " - " + res[1].String() + "'"
	case "radarr":
		return "Radarr: Downloaded '" + gjson.GetBytes(body, "movie.title").String() + "'"
	}

	raw := strings.Join(strings.Fields(string(body)), " ")
	if r := []rune(raw); len(r) > maxSummaryLen {
		raw = string(r[:maxSummaryLen])
	}
	return "Webhook Received: " + raw
}
