// Package notifier delivers alarm notifications to a Telegram chat.
//
// Each call is a single attempt against the Bot API; the orchestrator owns
// the retry policy by re-detecting unnotified alarms on the next cycle.
package notifier
