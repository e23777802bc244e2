package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Output interface for audio output implementations. Samples are
// interleaved signed 16 bit frames.
type Output interface {
	Open(sampleRate, channels, bufferSize int) error
	Close() error
	Write(samples []int16) error
	IsPlaying() bool
}

// Renderer produces stereo blocks in the 14 bit chip range.
type Renderer interface {
	Render(left, right []int32)
}

// Channels is the channel count of every output opened by a Player.
const Channels = 2

var ErrAlreadyPlaying = errors.New("already playing")

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithGain scales the output after conversion.
func WithGain(g float64) PlayerOption {
	return func(p *Player) { p.gain = g }
}

// WithPacing makes the render loop wait for wall clock time between
// blocks, for outputs that do not block on Write.
func WithPacing(on bool) PlayerOption {
	return func(p *Player) { p.pace = on }
}

func WithLogger(l logrus.FieldLogger) PlayerOption {
	return func(p *Player) { p.log = l }
}

// Player pulls blocks from a Renderer and feeds them to an Output
type Player struct {
	renderer   Renderer
	output     Output
	log        logrus.FieldLogger
	gain       float64
	pace       bool
	sampleRate int
	bufferSize int
	playing    bool
	paused     bool
	frames     int64
	mu         sync.Mutex
	done       chan struct{}
}

// NewPlayer creates a new render driver
func NewPlayer(r Renderer, output Output, opts ...PlayerOption) *Player {
	p := &Player{
		renderer: r,
		output:   output,
		log:      logrus.StandardLogger(),
		gain:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens the output and starts the render loop. bufferSize is the
// number of frames per block.
func (p *Player) Start(sampleRate, bufferSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return ErrAlreadyPlaying
	}

	p.sampleRate = sampleRate
	p.bufferSize = bufferSize

	if err := p.output.Open(sampleRate, Channels, bufferSize); err != nil {
		return err
	}

	p.playing = true
	p.done = make(chan struct{})
	go p.audioLoop(p.done)

	return nil
}

// Stop stops the loop and closes the output
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	done := p.done
	p.mu.Unlock()

	<-done
	return p.output.Close()
}

// Pause keeps the output fed with silence without rendering
func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Player) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Frames returns the number of frames written so far
func (p *Player) Frames() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

func (p *Player) audioLoop(done chan struct{}) {
	defer close(done)

	left := make([]int32, p.bufferSize)
	right := make([]int32, p.bufferSize)
	buffer := make([]int16, p.bufferSize*Channels)
	start := time.Now()
	var written int64

	for {
		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			return
		}
		paused := p.paused
		p.mu.Unlock()

		if paused {
			clear(buffer)
		} else {
			p.renderer.Render(left, right)
			Convert(left, right, p.gain, buffer)
		}

		if err := p.output.Write(buffer); err != nil {
			p.log.WithError(err).Warn("audio write failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}
		written += int64(p.bufferSize)

		p.mu.Lock()
		p.frames = written
		p.mu.Unlock()

		if p.pace {
			due := start.Add(time.Duration(written) * time.Second / time.Duration(p.sampleRate))
			if d := time.Until(due); d > 0 {
				time.Sleep(d)
			}
		}
	}
}

// Convert interleaves left and right into dst, doubling the 14 bit chip
// range to 16 bits, applying gain and saturating. dst must hold
// 2*len(left) samples.
func Convert(left, right []int32, gain float64, dst []int16) {
	for i := range left {
		dst[2*i] = saturate(float64(left[i]) * 2 * gain)
		dst[2*i+1] = saturate(float64(right[i]) * 2 * gain)
	}
}

func saturate(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// BufferOutput is a simple buffer-based output for testing
type BufferOutput struct {
	buffer     []int16
	sampleRate int
	channels   int
	mu         sync.Mutex
}

// NewBufferOutput creates a new buffer output
func NewBufferOutput() *BufferOutput {
	return &BufferOutput{}
}

func (b *BufferOutput) Open(sampleRate, channels, bufferSize int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sampleRate = sampleRate
	b.channels = channels
	b.buffer = make([]int16, 0, sampleRate*channels) // one second
	return nil
}

// Close keeps the samples readable
func (b *BufferOutput) Close() error {
	return nil
}

func (b *BufferOutput) Write(samples []int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer == nil {
		return errors.New("buffer not initialized")
	}

	b.buffer = append(b.buffer, samples...)
	return nil
}

// IsPlaying always returns true for buffer output
func (b *BufferOutput) IsPlaying() bool {
	return true
}

// Samples returns a copy of the accumulated samples
func (b *BufferOutput) Samples() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]int16, len(b.buffer))
	copy(result, b.buffer)
	return result
}

// Channels returns the channel count the output was opened with
func (b *BufferOutput) Channels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels
}

// Clear clears the buffer
func (b *BufferOutput) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = b.buffer[:0]
}

// NullOutput discards all audio, taking as long as playing it would
type NullOutput struct {
	sampleRate int
	channels   int
}

func (n *NullOutput) Open(sampleRate, channels, bufferSize int) error {
	n.sampleRate = sampleRate
	n.channels = channels
	return nil
}

func (n *NullOutput) Close() error {
	return nil
}

func (n *NullOutput) Write(samples []int16) error {
	if n.sampleRate <= 0 || n.channels <= 0 {
		return errors.New("output not open")
	}
	frames := len(samples) / n.channels
	time.Sleep(time.Duration(frames) * time.Second / time.Duration(n.sampleRate))
	return nil
}

func (n *NullOutput) IsPlaying() bool {
	return n.sampleRate > 0
}
