// Package source implements the PLC web adapter: authenticated session
// handling (login form, param0 token, cookie jar) and tolerant scraping of
// the alarms and sensors tables.
//
// Every failure mode is classified: ErrAuthFailed when a session cannot be
// established, ErrParseFailed when a page does not match the expected
// structure. The adapter never returns a partial snapshot.
package source
