// Package reconcile applies asynchronous provider notifications (bounces,
// complaints, deliveries, opens, clicks) to subscriber state and the event
// log.
//
// Input is validated once by Parse into a Notification whose Kind
// discriminates the payload; Apply never re-inspects raw JSON. Apply is
// idempotent per (message id, event, recipient): providers deliver at least
// once, and a repeated notification leaves state and the event log
// unchanged.
package reconcile
