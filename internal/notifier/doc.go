// Package notifier delivers formatted token notifications to every
// configured chat.
//
// # Fan-out
//
// Each message goes to all destinations concurrently. A destination that
// fails (after retries) is reported in its own Outcome and never affects the
// others; Deliver itself cannot fail.
//
// # Throttling
//
// A single token bucket is shared by all destinations, so Telegram sees a
// bounded send rate no matter how many chats are configured.
package notifier
