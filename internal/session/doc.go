// Package session drives the per-session transcription pipeline and the
// process-wide session registry. Each session owns one capture source, one
// worker goroutine, per-channel voice segmenters, and an append-only
// transcript; the registry arbitrates exclusive ownership of session ids
// across concurrent start/stop/status calls.
package session
