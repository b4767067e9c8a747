// Package dedupe drops repeated webhook deliveries.
//
// Senders such as Sonarr and Radarr retry a delivery when they do not see a
// timely response, so the same notification can arrive more than once. A
// Window remembers recent delivery IDs; the webhook handler asks Seen before
// turning a delivery into a bridge event.
package dedupe
