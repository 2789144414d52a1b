// Package analytics reads the event log and the activity trail.
//
// It owns the storage contracts for both append-only logs. Writers
// (dispatch, reconcile, the campaign and subscriber services) depend on
// narrower interfaces of their own that these repositories satisfy.
package analytics
