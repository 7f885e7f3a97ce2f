package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Mixer sets an ALSA playback control through amixer. Control names vary
// per board (Master, PCM, Speaker, vendor specific).
type Mixer struct {
	Card    int // -1 for the default card
	Control string
	RawMin  int
	RawMax  int
	// Inverted is for controls where a larger raw value is quieter.
	Inverted bool

	run func(ctx context.Context, args ...string) (string, error)
}

func NewMixer(card int, control string, rawMin, rawMax int, inverted bool) *Mixer {
	return &Mixer{Card: card, Control: control, RawMin: rawMin, RawMax: rawMax, Inverted: inverted, run: runAmixer}
}

// SetPercent sets the output volume, 0 to 100.
func (m *Mixer) SetPercent(ctx context.Context, percent int) error {
	if strings.TrimSpace(m.Control) == "" {
		return errors.New("mixer: control name is empty")
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("mixer: volume %d out of range 0-100", percent)
	}
	_, err := m.run(ctx, m.args("sset", m.Control, strconv.Itoa(m.toRaw(percent)))...)
	return err
}

// Percent reads the current volume back.
func (m *Mixer) Percent(ctx context.Context) (int, error) {
	out, err := m.run(ctx, m.args("cget", fmt.Sprintf("name='%s'", m.Control))...)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ": values=") {
			continue
		}
		// stereo controls report "values=L,R"; the left channel is enough
		val, _, _ := strings.Cut(strings.TrimPrefix(line, ": values="), ",")
		raw, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("mixer: parse %q: %w", line, err)
		}
		return m.toPercent(raw), nil
	}
	return 0, errors.New("mixer: no values line in amixer output")
}

func (m *Mixer) args(args ...string) []string {
	if m.Card < 0 {
		return args
	}
	return append([]string{"-c", strconv.Itoa(m.Card)}, args...)
}

func (m *Mixer) toRaw(percent int) int {
	span := m.RawMax - m.RawMin
	raw := m.RawMin + span*percent/100
	if m.Inverted {
		raw = m.RawMax - span*percent/100
	}
	return min(max(raw, m.RawMin), m.RawMax)
}

func (m *Mixer) toPercent(raw int) int {
	span := m.RawMax - m.RawMin
	if span <= 0 {
		return 0
	}
	raw = min(max(raw, m.RawMin), m.RawMax)
	p := (raw - m.RawMin) * 100 / span
	if m.Inverted {
		p = 100 - p
	}
	return p
}

func runAmixer(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "amixer", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("amixer %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
