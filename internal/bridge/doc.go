// Package bridge carries notifications from background producers to the
// front ends that display them.
//
// Producers (the reminder scheduler, the webhook receiver, plugins finishing
// work after their reply) call Publish. Consumers (the console, the GUI event
// stream) each hold a Subscription and drain its Events channel on their own
// goroutine.
//
// # Delivery
//
// Every subscription receives every event published after it subscribed, in
// publish order. Inboxes are bounded. Publish never blocks: when an inbox is
// full its oldest undelivered event is discarded, the subscription's Dropped
// counter increments, and the new event is enqueued. A consumer that never
// drains therefore loses old events but never stalls the scheduler or the
// other consumers.
//
// # Lifetime
//
// A subscription ends when its context is cancelled, when Unsubscribe is
// called, or when the bridge is closed. Its Events channel is then closed,
// so consumers can range over it.
package bridge
