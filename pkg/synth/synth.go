// Package synth turns MIDI events into chip backend calls: it owns the
// per MIDI channel program and controller state and shares the chip's
// physical channels between sounding notes.
package synth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/olivierh59500/fmtoy/pkg/chip"
	"github.com/olivierh59500/fmtoy/pkg/midi"
	"github.com/olivierh59500/fmtoy/pkg/pitch"
	"github.com/olivierh59500/fmtoy/pkg/voice"
	"github.com/sirupsen/logrus"
)

// MIDIChannels is the number of MIDI channels with their own state.
const MIDIChannels = 16

// DefaultBendRange is the pitch wheel range in semitones until changed
// through RPN 0.
const DefaultBendRange = 2.0

var (
	// ErrConfig marks requests that refer to data that is not loaded,
	// such as a program beyond the end of the bank.
	ErrConfig       = errors.New("configuration error")
	ErrInvalidEvent = errors.New("invalid MIDI event")
	ErrClosed       = errors.New("synth closed")
)

// Controller numbers handled by the synth.
const (
	ccDataEntryMSB   = 6
	ccDataEntryLSB   = 38
	ccNRPNLSB        = 98
	ccNRPNMSB        = 99
	ccRPNLSB         = 100
	ccRPNMSB         = 101
	ccAllSoundOff    = 120
	ccResetAll       = 121
	ccAllNotesOff    = 123
	rpnNull          = 127
	rpnPitchBendSens = 0
)

// Stats counts what the synth did since it was created.
type Stats struct {
	NotesOn         int
	NotesOff        int
	Steals          int
	Retriggers      int
	IgnoredNoteOffs int
	Dropped         int // notes rejected by the backend
	Active          int
	Capacity        int
}

type programSlot struct {
	program int
	record  *voice.Record
}

type controllers struct {
	bend      int
	bendRange float64
	rpnMSB    int
	rpnLSB    int
}

func (c *controllers) reset(bendRange float64) {
	*c = controllers{bend: pitch.BendCenter, bendRange: bendRange, rpnMSB: rpnNull, rpnLSB: rpnNull}
}

type options struct {
	log       logrus.FieldLogger
	bendRange float64
}

// Option configures a Synth.
type Option func(*options)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithBendRange sets the initial pitch wheel range in semitones.
func WithBendRange(semitones float64) Option {
	return func(o *options) {
		if semitones > 0 {
			o.bendRange = semitones
		}
	}
}

// Synth dispatches MIDI events to a chip backend. Handle and Render may
// be called from different goroutines.
type Synth struct {
	mu       sync.Mutex
	backend  chip.Backend
	alloc    *Allocator
	bank     *voice.Bank
	log      logrus.FieldLogger
	programs [MIDIChannels]programSlot
	ctl      [MIDIChannels]controllers
	voiced   []*voice.Record // record last programmed per chip channel
	stats    Stats
	closed   bool
}

// New returns a synth driving an initialized backend with programs from
// bank. With an empty bank every channel plays voice.Init.
func New(backend chip.Backend, bank *voice.Bank, opts ...Option) *Synth {
	o := options{log: logrus.StandardLogger(), bendRange: DefaultBendRange}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Synth{
		backend: backend,
		alloc:   NewAllocator(backend.Channels()),
		bank:    bank,
		log:     o.log,
		voiced:  make([]*voice.Record, backend.Channels()),
	}
	initial := voice.Init()
	if r, err := bank.Program(0); err == nil {
		initial = r
	}
	for i := range s.programs {
		s.programs[i] = programSlot{program: 0, record: initial}
		s.ctl[i].reset(o.bendRange)
	}
	return s
}

// Handle applies one MIDI event.
func (s *Synth) Handle(e midi.Event) error {
	if e.Channel < 0 || e.Channel >= MIDIChannels {
		return fmt.Errorf("%w: channel %d", ErrInvalidEvent, e.Channel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	switch e.Type {
	case midi.NoteOn:
		if e.Data2 == 0 {
			return s.noteOff(e.Channel, e.Data1, 0)
		}
		return s.noteOn(e.Channel, e.Data1, e.Data2)
	case midi.NoteOff:
		return s.noteOff(e.Channel, e.Data1, e.Data2)
	case midi.PitchBend:
		return s.pitchBend(e.Channel, e.Value)
	case midi.ProgramChange:
		return s.programChange(e.Channel, e.Data1)
	case midi.ControlChange:
		return s.controlChange(e.Channel, e.Data1, e.Data2)
	}
	return fmt.Errorf("%w: type %q", ErrInvalidEvent, e.Type)
}

func velocity(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

func (s *Synth) frequency(mch, note int) float64 {
	c := &s.ctl[mch]
	return pitch.NoteFrequency(note, pitch.BendCents(c.bend, c.bendRange))
}

func (s *Synth) noteOn(mch, note, vel int) error {
	if note < 0 || note > 127 {
		return fmt.Errorf("%w: note %d", ErrInvalidEvent, note)
	}
	ch, stolen, retrigger := s.alloc.Acquire(mch, note)
	if ch < 0 {
		s.stats.Dropped++
		return nil
	}
	log := s.log.WithFields(logrus.Fields{"midi_channel": mch, "note": note, "chip_channel": ch})

	switch {
	case retrigger:
		s.stats.Retriggers++
	case stolen != nil:
		log.WithFields(logrus.Fields{"stolen_channel": stolen.MIDIChannel, "stolen_note": stolen.Note}).Debug("channel stolen")
	}
	if retrigger || stolen != nil {
		if err := s.backend.NoteOff(ch, 0); err != nil {
			s.alloc.Release(mch, note)
			s.stats.Dropped++
			return err
		}
	}

	rec := s.programs[mch].record
	if s.voiced[ch] != rec {
		if err := s.backend.ProgramChange(ch, rec); err != nil {
			s.alloc.Release(mch, note)
			s.stats.Dropped++
			return err
		}
		s.voiced[ch] = rec
	}

	if err := s.backend.NoteOn(ch, s.frequency(mch, note), velocity(vel)); err != nil {
		s.alloc.Release(mch, note)
		s.stats.Dropped++
		if errors.Is(err, pitch.ErrInvalidPitch) {
			log.WithError(err).Warn("note dropped")
			return nil
		}
		return err
	}
	s.stats.NotesOn++
	return nil
}

func (s *Synth) noteOff(mch, note, vel int) error {
	ch, ok := s.alloc.Release(mch, note)
	if !ok {
		s.stats.IgnoredNoteOffs++
		return nil
	}
	s.stats.NotesOff++
	return s.backend.NoteOff(ch, velocity(vel))
}

func (s *Synth) pitchBend(mch, value int) error {
	if value < 0 || value > 16383 {
		return fmt.Errorf("%w: pitch bend %d", ErrInvalidEvent, value)
	}
	s.ctl[mch].bend = value
	return s.repitch(mch)
}

// repitch sends the current bend to every channel sounding for mch.
func (s *Synth) repitch(mch int) error {
	var errs []error
	for _, ch := range s.alloc.Active(mch) {
		al, _ := s.alloc.At(ch)
		if err := s.backend.PitchBend(ch, s.frequency(mch, al.Note)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// programChange only selects the program; sounding notes keep their
// voice and the next note on re-voices its channel.
func (s *Synth) programChange(mch, program int) error {
	rec, err := s.bank.Program(program)
	if err != nil {
		err = fmt.Errorf("%w: channel %d: %w", ErrConfig, mch, err)
		s.log.WithField("midi_channel", mch).WithError(err).Warn("program change rejected")
		return err
	}
	s.programs[mch] = programSlot{program: program, record: rec}
	s.log.WithFields(logrus.Fields{"midi_channel": mch, "program": program, "voice": rec.Name}).Debug("program change")
	return nil
}

func (s *Synth) controlChange(mch, cc, value int) error {
	c := &s.ctl[mch]
	switch cc {
	case ccRPNMSB:
		c.rpnMSB = value
	case ccRPNLSB:
		c.rpnLSB = value
	case ccNRPNMSB, ccNRPNLSB:
		c.rpnMSB, c.rpnLSB = rpnNull, rpnNull
	case ccDataEntryMSB:
		if c.rpnMSB == 0 && c.rpnLSB == rpnPitchBendSens {
			cents := c.bendRange - float64(int(c.bendRange))
			c.bendRange = float64(value) + cents
			return s.repitch(mch)
		}
	case ccDataEntryLSB:
		if c.rpnMSB == 0 && c.rpnLSB == rpnPitchBendSens {
			c.bendRange = float64(int(c.bendRange)) + float64(value)/100
			return s.repitch(mch)
		}
	case ccAllSoundOff, ccAllNotesOff:
		return s.releaseAll(mch)
	case ccResetAll:
		c.bend = pitch.BendCenter
		c.rpnMSB, c.rpnLSB = rpnNull, rpnNull
		return s.repitch(mch)
	default:
		s.log.WithFields(logrus.Fields{"midi_channel": mch, "controller": cc, "value": value}).Debug("controller ignored")
	}
	return nil
}

func (s *Synth) releaseAll(mch int) error {
	var errs []error
	for _, ch := range s.alloc.Active(mch) {
		al, _ := s.alloc.At(ch)
		s.alloc.Release(mch, al.Note)
		s.stats.NotesOff++
		if err := s.backend.NoteOff(ch, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Render renders the next block from the backend.
func (s *Synth) Render(left, right []int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.Render(left, right)
}

// Program returns the program selected on MIDI channel mch.
func (s *Synth) Program(mch int) (int, *voice.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mch < 0 || mch >= MIDIChannels {
		return -1, nil
	}
	p := s.programs[mch]
	return p.program, p.record
}

// BendRange returns the pitch wheel range of mch in semitones.
func (s *Synth) BendRange(mch int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mch < 0 || mch >= MIDIChannels {
		return 0
	}
	return s.ctl[mch].bendRange
}

func (s *Synth) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Steals = s.alloc.Steals()
	st.Active = s.alloc.Count()
	st.Capacity = s.alloc.Capacity()
	return st
}

// Close shuts the backend down. Sounding notes are not released first.
func (s *Synth) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.alloc.Reset()
	return s.backend.Close()
}
