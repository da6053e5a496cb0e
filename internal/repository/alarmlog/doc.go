// Package alarmlog implements the append-only CSV journal of detected alarms
// and the optional per-cycle signals snapshot CSV.
//
// Both files are operator-facing exports; the watcher never reads them back.
package alarmlog
