// Package config defines watcher settings and provides helpers to load them
// from a YAML file with environment-variable overrides.
//
// Required settings (PLC endpoint, credentials, Telegram bot) are validated
// at launch; everything else falls back to documented defaults.
package config
