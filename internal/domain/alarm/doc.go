// Package alarm holds the domain model of the watcher: the Record scraped
// from the PLC alarms page, the durable SeenSet of already-surfaced keys,
// and the pure Reconcile function that diffs a snapshot against it.
package alarm
