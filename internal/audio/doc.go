// Package audio provides sample-level helpers for the transcription pipeline:
// RMS and mean-amplitude energy measures, peak normalization, channel
// de-interleaving, sample-rate conversion, and WAV encoding for handing
// finalized segments to the speech recognition engine.
package audio
