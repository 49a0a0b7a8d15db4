// Package vad implements energy-based voice activity segmentation.
// A Segmenter consumes fixed-size mono sample chunks together with a
// per-chunk silence verdict and emits completed utterance segments when a
// speech-then-pause pattern is observed.
package vad
