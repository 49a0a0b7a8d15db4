// Package events fans transcript events out to subscribers. Session
// workers publish onto an in-process event bus; the WebSocket hub bridges
// bus events to connected clients.
package events
