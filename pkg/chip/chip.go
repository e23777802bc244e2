// Package chip defines the contract every FM chip backend satisfies and
// implements it for the YM2151 (OPM) and YM2608 (OPNA) families.
//
// A backend owns one chip core and translates channel level operations
// (program change, note on/off, pitch bend) into register writes. Backends
// are not safe for concurrent use; callers serialize access.
package chip

import (
	"errors"
	"fmt"

	"github.com/olivierh59500/fmtoy/pkg/voice"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyInitialized = errors.New("chip already initialized")
	ErrNotInitialized     = errors.New("chip not initialized")
	ErrChannelRange       = errors.New("chip channel out of range")
	ErrUnknownChip        = errors.New("unknown chip")
)

// InitError reports a chip core that could not be created.
type InitError struct {
	Chip       string
	Clock      int
	SampleRate int
	Err        error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s (clock %d Hz, rate %d Hz): %v", e.Chip, e.Clock, e.SampleRate, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Backend is a uniform FM chip driver. Channel indices are physical chip
// channels in [0, Channels()).
type Backend interface {
	Name() string
	Channels() int
	// Clock returns the clock passed to Init, or the default clock.
	Clock() int

	Init(clock, sampleRate int) error
	Close() error

	// ProgramChange writes every voice register of ch.
	ProgramChange(ch int, v *voice.Record) error
	// NoteOn sets the pitch, scales carrier levels by velocity and keys
	// on the operators enabled by the voice.
	NoteOn(ch int, freq float64, velocity uint8) error
	NoteOff(ch int, velocity uint8) error
	// PitchBend rewrites only the pitch registers of ch.
	PitchBend(ch int, freq float64) error

	// Render produces len(left) samples per side in the 14 bit chip range.
	Render(left, right []int32)
}

// Core is a register level chip emulation.
type Core interface {
	WriteReg(bank int, addr, data uint8)
	Render(left, right []int32)
	Reset()
}

// CoreFactory creates a core running at clock Hz and rendering at
// sampleRate Hz.
type CoreFactory func(clock, sampleRate int) (Core, error)

type options struct {
	core CoreFactory
	log  logrus.FieldLogger
}

// Option configures a backend.
type Option func(*options)

// WithCore replaces the emulation core a backend drives.
func WithCore(f CoreFactory) Option {
	return func(o *options) { o.core = f }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(def CoreFactory, opts []Option) options {
	o := options{core: def, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// channelState caches what NoteOn needs from the last ProgramChange.
type channelState struct {
	voiced     bool
	connection uint8
	mask       uint8
	tl         [voice.OperatorCount]uint8
}

func (s *channelState) load(v *voice.Record) {
	s.voiced = true
	s.connection = v.Connection
	s.mask = v.OpMask
	for j := range v.Ops {
		s.tl[j] = v.Ops[j].TL
	}
}

// base holds the lifecycle shared by every backend.
type base struct {
	name         string
	defaultClock int
	clock        int
	opts         options
	core         Core
	state        []channelState
}

func newBase(name string, channels, defaultClock int, opts options) base {
	return base{
		name:         name,
		defaultClock: defaultClock,
		clock:        defaultClock,
		opts:         opts,
		state:        make([]channelState, channels),
	}
}

func (b *base) Name() string  { return b.name }
func (b *base) Channels() int { return len(b.state) }
func (b *base) Clock() int    { return b.clock }

func (b *base) open(clock, sampleRate int) error {
	if b.core != nil {
		return ErrAlreadyInitialized
	}
	if clock <= 0 {
		clock = b.defaultClock
	}
	core, err := b.opts.core(clock, sampleRate)
	if err != nil {
		return &InitError{Chip: b.name, Clock: clock, SampleRate: sampleRate, Err: err}
	}
	core.Reset()
	b.core = core
	b.clock = clock
	for i := range b.state {
		b.state[i] = channelState{}
	}
	b.opts.log.WithFields(logrus.Fields{
		"chip":        b.name,
		"clock":       clock,
		"sample_rate": sampleRate,
	}).Debug("chip initialized")
	return nil
}

// Close releases the core. Closing twice is harmless.
func (b *base) Close() error {
	if b.core == nil {
		return nil
	}
	b.core = nil
	b.opts.log.WithField("chip", b.name).Debug("chip closed")
	return nil
}

func (b *base) channel(ch int) (*channelState, error) {
	if b.core == nil {
		return nil, ErrNotInitialized
	}
	if ch < 0 || ch >= len(b.state) {
		return nil, fmt.Errorf("%w: %d (%s has %d)", ErrChannelRange, ch, b.name, len(b.state))
	}
	return &b.state[ch], nil
}

// Render fills left and right. A backend without a core renders silence.
func (b *base) Render(left, right []int32) {
	if b.core == nil {
		clear(left)
		clear(right)
		return
	}
	b.core.Render(left, right)
}

// carrierTable holds the carrier operators of each connection as a
// register order bit mask.
var carrierTable = [8]uint8{
	0x08, 0x08, 0x08, 0x08, // op 3
	0x0C,       // ops 2, 3
	0x0E, 0x0E, // ops 1, 2, 3
	0x0F, // all
}

// Carriers returns the operators whose output reaches the mixer for a
// connection, limited to the enabled operators in mask.
func Carriers(connection, mask uint8) uint8 {
	return carrierTable[connection&7] & mask
}

// VelocityAttenuation maps a MIDI velocity to additional total level
// steps: 0 at full velocity, 31 at velocity 0.
func VelocityAttenuation(velocity uint8) uint8 {
	if velocity > 127 {
		velocity = 127
	}
	return (127 - velocity) >> 2
}

func scaledTL(tl, velocity uint8) uint8 {
	t := int(tl) + int(VelocityAttenuation(velocity))
	if t > 127 {
		t = 127
	}
	return uint8(t)
}
