// Package notifier delivers short operator messages (run reports and warn+
// log lines) through a Sender such as the Telegram adapter.
//
// Messages go through a bounded queue drained by one worker that applies a
// rate limit, retries with backoff and suppresses duplicates inside a window.
// A full queue drops the message instead of blocking the caller.
package notifier
