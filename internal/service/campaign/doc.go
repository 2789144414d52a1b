// Package campaign implements the campaign lifecycle state machine.
//
// States are draft → sending → {sent, failed}. Content is locked once a
// campaign is sending or sent, and such campaigns cannot be deleted. The
// draft → sending edge is a compare-and-swap in the repository so that
// concurrent send requests can never dispatch the same campaign twice.
//
// The service depends on the Repository interface defined in this package
// and should never import from api/. Repository implementations live in
// repository/postgres/ and repository/memory/.
package campaign
