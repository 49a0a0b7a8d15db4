// Package transcript turns finalized voice segments into time-stamped,
// speaker-labeled transcript lines by normalizing, resampling, and
// dispatching them to the speech recognition engine.
package transcript
