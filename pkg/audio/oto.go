package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoContext is the process wide device handle. Oto allows one context
// per process, so its format is fixed by the first stream opened.
var otoContext struct {
	sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

func deviceContext(sampleRate, channels int, latency time.Duration) (*oto.Context, error) {
	otoContext.Lock()
	defer otoContext.Unlock()

	if otoContext.ctx != nil {
		if otoContext.sampleRate != sampleRate || otoContext.channels != channels {
			return nil, fmt.Errorf("audio device already running at %d Hz, %d channels",
				otoContext.sampleRate, otoContext.channels)
		}
		return otoContext.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	otoContext.ctx = ctx
	otoContext.sampleRate = sampleRate
	otoContext.channels = channels
	return ctx, nil
}

// StreamingOtoOutput streams to the system audio device through Oto v3.
// Write blocks while the device buffer is full, so a Player driving it
// needs no pacing.
type StreamingOtoOutput struct {
	mu         sync.Mutex
	player     *oto.Player
	pipe       *io.PipeWriter
	sampleRate int
	bufferSize int
	scratch    []byte
}

func NewStreamingOtoOutput() (*StreamingOtoOutput, error) {
	return &StreamingOtoOutput{}, nil
}

// Open starts a stream. The device buffer holds one render block, which
// bounds the latency between a MIDI event and its sound.
func (s *StreamingOtoOutput) Open(sampleRate, channels, bufferSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return fmt.Errorf("stream already open")
	}
	ctx, err := deviceContext(sampleRate, channels, blockDuration(bufferSize, sampleRate))
	if err != nil {
		return err
	}

	r, w := io.Pipe()
	s.player = ctx.NewPlayer(r)
	s.pipe = w
	s.sampleRate = sampleRate
	s.bufferSize = bufferSize
	s.player.Play()
	return nil
}

// Close ends the stream after the last block had time to play. The
// device context stays alive for the next Open.
func (s *StreamingOtoOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return nil
	}
	s.pipe.Close()
	time.Sleep(blockDuration(s.bufferSize, s.sampleRate))

	err := s.player.Close()
	s.player, s.pipe = nil, nil
	return err
}

func (s *StreamingOtoOutput) Write(samples []int16) error {
	s.mu.Lock()
	if s.pipe == nil {
		s.mu.Unlock()
		return fmt.Errorf("stream not open")
	}
	pipe := s.pipe
	if cap(s.scratch) < len(samples)*2 {
		s.scratch = make([]byte, len(samples)*2)
	}
	buf := s.scratch[:len(samples)*2]
	s.mu.Unlock()

	putSamples(buf, samples)
	_, err := pipe.Write(buf)
	return err
}

func (s *StreamingOtoOutput) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil
}

// putSamples encodes samples as 16 bit little endian PCM.
func putSamples(dst []byte, samples []int16) {
	for i, v := range samples {
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

func blockDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// FallbackOutput discards audio at real time speed, for machines without
// a usable sound device.
type FallbackOutput struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	open       bool
}

func NewFallbackOutput() (*FallbackOutput, error) {
	return &FallbackOutput{}, nil
}

func (f *FallbackOutput) Open(sampleRate, channels, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleRate, f.channels, f.open = sampleRate, channels, true
	return nil
}

func (f *FallbackOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *FallbackOutput) Write(samples []int16) error {
	f.mu.Lock()
	open, sampleRate, channels := f.open, f.sampleRate, f.channels
	f.mu.Unlock()
	if !open {
		return fmt.Errorf("output closed")
	}
	time.Sleep(blockDuration(len(samples)/max(channels, 1), sampleRate))
	return nil
}

func (f *FallbackOutput) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
