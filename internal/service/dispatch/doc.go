// Package dispatch fans a campaign out to its owner's active subscribers.
//
// A send is one sequential pass: every recipient gets exactly one transport
// attempt and exactly one sent or failed event. Per-recipient failures are
// soft and never abort the batch. Only preparation failures (campaign not
// sendable, subscriber store unreachable) are returned as errors.
package dispatch
