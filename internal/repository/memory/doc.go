// Package memory provides mutex-guarded in-memory repositories. They back
// dev mode and service tests, and honour the same status guards as the
// Postgres implementations: every conditional write is checked and applied
// under one lock.
package memory
