// Package session owns the CWP client connection lifecycle helpers.
//
// Ownership boundary:
// - server address resolution and TCP dialing
// - retry/backoff timing between connection attempts
// - stall and idle wait limits for the connection worker
package session
