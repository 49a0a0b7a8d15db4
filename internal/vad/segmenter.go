package vad

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/clinivox/transcription-service/internal/audio"
)

// nearZeroFloor is the mean absolute amplitude below which a finalized
// segment is treated as a pure silence misfire and discarded.
const nearZeroFloor = 1e-4

// Config contains segmentation parameters. All fields are required.
type Config struct {
	ChunkSize              int     // samples per chunk
	SampleRate             int     // Hz
	SilenceRMSThreshold    float64 // RMS below this is silence
	MinSpeechSeconds       float64 // minimum speech before a pause can trigger
	SilenceDurationSeconds float64 // silence that defines a pause
}

// Validate checks the segmentation parameters.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}

	if c.SilenceRMSThreshold <= 0 {
		return fmt.Errorf("silence_rms_threshold must be positive, got %f", c.SilenceRMSThreshold)
	}

	if c.MinSpeechSeconds <= 0 {
		return fmt.Errorf("min_speech_seconds must be positive, got %f", c.MinSpeechSeconds)
	}

	if c.SilenceDurationSeconds <= 0 {
		return fmt.Errorf("silence_duration_seconds must be positive, got %f", c.SilenceDurationSeconds)
	}

	return nil
}

// MinSpeechChunks returns the number of voiced chunks required before a
// pause may finalize a segment.
func (c Config) MinSpeechChunks() int {
	return int(c.MinSpeechSeconds * float64(c.SampleRate) / float64(c.ChunkSize))
}

// SilenceLimitChunks returns the number of consecutive silent chunks that
// defines a pause.
func (c Config) SilenceLimitChunks() int {
	return int(c.SilenceDurationSeconds * float64(c.SampleRate) / float64(c.ChunkSize))
}

// Segment is one finalized utterance's sample buffer for a single channel.
// Times are seconds relative to session start. Immutable once emitted.
type Segment struct {
	ID         string
	Channel    int
	Speaker    string
	StartTime  float64 // first voiced chunk
	EndTime    float64 // finalization time
	SampleRate int
	Samples    []float32
}

// Duration returns the span between speech start and finalization in seconds.
func (s *Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// CarriesSpeech reports whether the segment should be forwarded for
// transcription: its mean amplitude must clear the near-zero floor and its
// overall RMS must exceed the silence threshold.
func (s *Segment) CarriesSpeech(silenceRMSThreshold float64) bool {
	if audio.MeanAbs(s.Samples) < nearZeroFloor {
		return false
	}

	return audio.RMS(s.Samples) > silenceRMSThreshold
}

// FrameEnergy is the per-frame energy verdict shared by all channels of a
// session: a frame is silent when the loudest channel stays below threshold.
type FrameEnergy struct {
	PerChannel []float64
	Max        float64
	Silent     bool
}

// Classify computes the shared silence verdict for one frame's channels.
func Classify(channels [][]float32, silenceRMSThreshold float64) FrameEnergy {
	e := FrameEnergy{PerChannel: make([]float64, len(channels))}
	for i, ch := range channels {
		rms := audio.RMS(ch)
		e.PerChannel[i] = rms
		if rms > e.Max {
			e.Max = rms
		}
	}

	e.Silent = e.Max < silenceRMSThreshold
	return e
}

// Segmenter accumulates mono chunks for one channel and emits a Segment
// when enough speech has been followed by enough silence. It never
// finalizes early: the check happens strictly at chunk boundaries once the
// minimum-speech gate has been satisfied.
type Segmenter struct {
	cfg     Config
	channel int
	speaker string

	minSpeechChunks    int
	silenceLimitChunks int

	buf            []float32
	speakingChunks int
	silentChunks   int
	speechStart    float64
	speechSeen     bool
}

// NewSegmenter creates a segmenter for one channel. The speaker label is
// derived from the channel index ("Speaker 1" for channel 0, and so on).
func NewSegmenter(cfg Config, channel int) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if channel < 0 {
		return nil, fmt.Errorf("channel index cannot be negative, got %d", channel)
	}

	return &Segmenter{
		cfg:                cfg,
		channel:            channel,
		speaker:            fmt.Sprintf("Speaker %d", channel+1),
		minSpeechChunks:    cfg.MinSpeechChunks(),
		silenceLimitChunks: cfg.SilenceLimitChunks(),
	}, nil
}

// Speaker returns the fixed per-channel speaker label.
func (s *Segmenter) Speaker() string {
	return s.speaker
}

// BufferedSamples returns the size of the in-progress segment buffer.
func (s *Segmenter) BufferedSamples() int {
	return len(s.buf)
}

// Push consumes one chunk together with the session-wide silence verdict
// for its frame. elapsed is seconds since session start. It returns a
// finalized Segment, or nil while a segment is still in progress.
//
// Counter behavior is deliberately asymmetric: a voiced chunk resets
// silentChunks, but a silent chunk never resets speakingChunks; only
// finalization clears it.
func (s *Segmenter) Push(chunk []float32, silent bool, elapsed float64) *Segment {
	// Malformed chunks are skipped without touching counters.
	if len(chunk) == 0 {
		return nil
	}

	if !silent && !s.speechSeen {
		s.speechSeen = true
		s.speechStart = elapsed
	}

	s.buf = append(s.buf, chunk...)

	if silent {
		s.silentChunks++
	} else {
		s.silentChunks = 0
		s.speakingChunks++
	}

	if s.speakingChunks > s.minSpeechChunks && s.silentChunks > s.silenceLimitChunks {
		return s.finalize(elapsed)
	}

	return nil
}

// finalize emits the buffered samples as a Segment and resets all state
// for the next utterance.
func (s *Segmenter) finalize(elapsed float64) *Segment {
	seg := &Segment{
		ID:         uuid.NewString(),
		Channel:    s.channel,
		Speaker:    s.speaker,
		StartTime:  s.speechStart,
		EndTime:    elapsed,
		SampleRate: s.cfg.SampleRate,
		Samples:    s.buf,
	}

	s.buf = nil
	s.speakingChunks = 0
	s.silentChunks = 0
	s.speechStart = 0
	s.speechSeen = false

	return seg
}
