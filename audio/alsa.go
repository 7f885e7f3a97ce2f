package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// AplayPlayer pipes raw PCM into the ALSA aplay tool. It is the playback
// path on boards where PortAudio is not built.
type AplayPlayer struct {
	Device   string
	BufferUS int // aplay -B; larger survives CPU jitter, smaller stops faster

	mu sync.Mutex
}

func NewAplayPlayer(device string) *AplayPlayer {
	if device == "" {
		device = "default"
	}
	return &AplayPlayer{Device: device, BufferUS: 20000}
}

func (p *AplayPlayer) args(sampleRate int) []string {
	return []string{
		"-D", p.Device,
		"-q",
		"-t", "raw",
		"-r", strconv.Itoa(sampleRate),
		"-f", "S16_LE",
		"-c", "1",
		"-B", strconv.Itoa(p.BufferUS),
	}
}

// Play runs one aplay process for the clip; cancelling ctx kills it.
func (p *AplayPlayer) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, "aplay", p.args(sampleRate)...)
	cmd.Stdin = bytes.NewReader(Int16ToBytes(samples))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("aplay: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// ArecordSource captures from an ALSA device through arecord. Multichannel
// array mics are reduced to a single channel.
type ArecordSource struct {
	Device   string
	Channels int
	Channel  int // which input channel to keep; -1 averages all of them

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
}

func NewArecordSource(device string, channels, channel int) *ArecordSource {
	if device == "" {
		device = "default"
	}
	if channels <= 0 {
		channels = 1
	}
	return &ArecordSource{Device: device, Channels: channels, Channel: channel}
}

func (s *ArecordSource) args() []string {
	return []string{
		"-D", s.Device,
		"-q",
		"-c", strconv.Itoa(s.Channels),
		"-r", strconv.Itoa(SampleRate),
		"-f", "S16_LE",
		"-t", "raw",
		"--period-size=" + strconv.Itoa(FrameSamples),
	}
}

func (s *ArecordSource) start() error {
	cmd := exec.Command("arecord", s.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("arecord stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start arecord: %w", err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.buf = make([]byte, FrameSamples*s.Channels*2)
	return nil
}

// ReadFrame starts arecord lazily and reads one frame from it.
func (s *ArecordSource) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		if err := s.start(); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(s.stdout, s.buf); err != nil {
		s.stopLocked()
		return nil, fmt.Errorf("arecord read: %w", err)
	}
	return s.mono(BytesToInt16(s.buf)), nil
}

func (s *ArecordSource) mono(raw []int16) []int16 {
	if s.Channels == 1 {
		return raw
	}
	if s.Channel < 0 || s.Channel >= s.Channels {
		return Downmix(raw, s.Channels)
	}
	out := make([]int16, len(raw)/s.Channels)
	for i := range out {
		out[i] = raw[i*s.Channels+s.Channel]
	}
	return out
}

// Flush stops arecord so the next read starts from live audio instead of
// whatever piled up in the pipe.
func (s *ArecordSource) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *ArecordSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *ArecordSource) stopLocked() {
	if s.cmd == nil {
		return
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.stdout = nil
}
