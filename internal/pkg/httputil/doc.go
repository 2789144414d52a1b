// Package httputil writes the JSON bodies and error envelopes the API
// returns, and decodes size-capped JSON request bodies.
package httputil
