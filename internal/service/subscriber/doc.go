// Package subscriber implements manual subscriber management.
//
// Email is the lookup key for provider notifications, so addresses are
// normalized (trimmed, lower-cased) before they reach the repository and
// are unique per owner.
//
// The service layer depends on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package subscriber
