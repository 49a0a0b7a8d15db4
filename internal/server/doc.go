// Package server implements the HTTP control API for transcription
// sessions. It exposes session lifecycle endpoints, the WebSocket push
// channel, and monitoring/management endpoints.
package server
