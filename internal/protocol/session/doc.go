// Package session owns agent<->simulator session primitives.
//
// Ownership boundary:
// - server command builders (scene, init, beam, syn)
// - per-cycle outbound message queue
// - connect retry/backoff and session tunables
// - sentinel errors shared by the connection and barrier layers
package session
