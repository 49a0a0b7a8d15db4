// Package asr defines the speech recognition engine contract and
// implements an HTTP client for Whisper-compatible transcription servers
// with retry, backoff, and concurrency limiting.
package asr
