package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Init must be called before opening any device stream; the returned func
// releases PortAudio.
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return func() { _ = portaudio.Terminate() }, nil
}

// Microphone captures 16 kHz mono frames from the default input device.
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

func OpenMicrophone() (*Microphone, error) {
	m := &Microphone{buf: make([]int16, FrameSamples)}
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(m.buf), m.buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	m.stream = stream
	return m, nil
}

// ReadFrame blocks for one frame. An input overflow is not an error: the
// frame is still returned and the dropped audio is lost.
func (m *Microphone) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil, errors.New("microphone closed")
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	frame := make([]int16, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

// Flush restarts the stream, dropping audio buffered since the last read.
func (m *Microphone) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	if err := m.stream.Stop(); err != nil {
		return fmt.Errorf("stop input stream: %w", err)
	}
	return m.stream.Start()
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	_ = m.stream.Stop()
	err := m.stream.Close()
	m.stream = nil
	return err
}

// DevicePlayer plays through the default output device. A stream is opened
// per call since TTS engines differ in sample rate.
type DevicePlayer struct {
	mu sync.Mutex
}

func NewDevicePlayer() *DevicePlayer { return &DevicePlayer{} }

func (p *DevicePlayer) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]int16, 1024)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}
