// Package watcher implements the poll loop tying the source adapter,
// reconciler, journal, notifier and state store together.
//
// One cycle runs fetch, reconcile, per-alarm journal+notify+commit and a
// conditional state save. Any failure is contained within its cycle; only
// startup misconfiguration ends the process.
package watcher
