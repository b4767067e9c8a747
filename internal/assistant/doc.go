// Package assistant builds the running assistant from configuration.
//
// New opens the store, loads plugins (built-ins plus manifests from the
// plugin directory), and creates the router, scheduler, recurring
// reminders, notification bridge and HTTP server. Run starts the parts a
// mode needs:
//
//   - ModeConsole: interactive console; HTTP only when the webhook is enabled
//   - ModeGUI: HTTP API for a GUI client
//   - ModeService: HTTP API with no front end attached
//
// The scheduler runs in every mode.
//
// # HTTP API
//
//   - POST /api/command - route one command, reply as text and HTML
//   - GET /api/events - bridge events as Server-Sent Events
//   - GET /api/plugins - registered plugins in resolution order
//   - GET /api/reminders?status= - stored reminders
//   - GET /api/bridge - publish and drop counters per subscription
//   - POST /webhook - webhook receiver (path configurable)
//   - GET /health, /health/ready, /metrics
package assistant
