// Package console is the interactive terminal front end.
//
// It reads one command per line, prints the router's reply prefixed with
// "Bot:", and prints bridge events (reminders, background plugin results,
// webhooks, system notices) as they arrive without waiting for input.
package console
