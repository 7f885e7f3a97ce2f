package vad

// SegmenterConfig holds the endpointing counters. Durations are counted in
// frames and samples so the segmenter stays clock free.
type SegmenterConfig struct {
	SpeechFrames  int // consecutive speech frames before an utterance starts
	SilenceFrames int // consecutive silent frames that end it
	MaxSamples    int // hard cap on one utterance
	MinSamples    int // shorter segments are dropped as clicks and coughs
	PreRoll       int // samples kept from before the trigger
}

// DefaultSegmenterConfig is tuned for 20 ms frames at 16 kHz.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SpeechFrames:  10,
		SilenceFrames: 10,
		MaxSamples:    16000 * 8,
		MinSamples:    4800,
		PreRoll:       8000,
	}
}

// Segmenter accumulates frames and emits one utterance at a time.
type Segmenter struct {
	cfg    SegmenterConfig
	engine *Engine

	buf       []int16
	speech    int
	silence   int
	triggered bool
}

func NewSegmenter(engine *Engine, cfg SegmenterConfig) *Segmenter {
	def := DefaultSegmenterConfig()
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = def.SpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = def.SilenceFrames
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.MinSamples < 0 {
		cfg.MinSamples = 0
	}
	if cfg.PreRoll < 0 {
		cfg.PreRoll = 0
	}
	return &Segmenter{cfg: cfg, engine: engine}
}

// Push feeds one frame. When an utterance completes it is returned with
// done=true; a completed segment shorter than MinSamples yields done=true
// and a nil segment.
func (s *Segmenter) Push(frame []int16) (segment []int16, done bool) {
	if s.engine.IsSpeech(frame) {
		s.speech++
		s.silence = 0
	} else {
		s.silence++
		s.speech = 0
	}

	if s.speech > s.cfg.SpeechFrames && !s.triggered {
		s.triggered = true
	}

	if !s.triggered {
		s.buf = append(s.buf, frame...)
		if over := len(s.buf) - s.cfg.PreRoll; over > 0 {
			s.buf = append(s.buf[:0], s.buf[over:]...)
		}
		return nil, false
	}

	s.buf = append(s.buf, frame...)
	if s.silence <= s.cfg.SilenceFrames && len(s.buf) <= s.cfg.MaxSamples {
		return nil, false
	}

	if len(s.buf) > s.cfg.MinSamples {
		segment = make([]int16, len(s.buf))
		copy(segment, s.buf)
	}
	s.Reset()
	return segment, true
}

// Triggered reports whether an utterance is in progress.
func (s *Segmenter) Triggered() bool { return s.triggered }

// Reset drops any buffered audio and counters.
func (s *Segmenter) Reset() {
	s.buf = s.buf[:0]
	s.speech = 0
	s.silence = 0
	s.triggered = false
}
