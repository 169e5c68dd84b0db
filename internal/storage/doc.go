// Package storage persists the delivery audit: one record per notification
// decision (forwarded, suppressed, notice, failed).
//
// The audit is write-mostly and never read back into the rate window; a
// restart always starts with an empty window.
package storage
