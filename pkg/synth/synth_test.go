package synth

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/olivierh59500/fmtoy/pkg/chip"
	"github.com/olivierh59500/fmtoy/pkg/midi"
	"github.com/olivierh59500/fmtoy/pkg/pitch"
	"github.com/olivierh59500/fmtoy/pkg/voice"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op     string
	ch     int
	freq   float64
	vel    uint8
	record *voice.Record
}

func (c call) String() string { return fmt.Sprintf("%s(%d)", c.op, c.ch) }

// fakeBackend records every call and checks that a channel is programmed
// before it is keyed.
type fakeBackend struct {
	channels int
	calls    []call
	voiced   map[int]bool
	closed   bool
	failOn   float64
	offErr   error
}

func newFake(channels int) *fakeBackend {
	return &fakeBackend{channels: channels, voiced: make(map[int]bool)}
}

func (f *fakeBackend) Name() string         { return "fake" }
func (f *fakeBackend) Channels() int        { return f.channels }
func (f *fakeBackend) Clock() int           { return chip.YM2151Clock }
func (f *fakeBackend) Init(_, _ int) error  { return nil }
func (f *fakeBackend) Close() error         { f.closed = true; return nil }
func (f *fakeBackend) Render(l, r []int32)  { f.calls = append(f.calls, call{op: "render", ch: len(l)}) }
func (f *fakeBackend) NoteOff(ch int, vel uint8) error {
	if f.offErr != nil {
		return f.offErr
	}
	f.calls = append(f.calls, call{op: "off", ch: ch, vel: vel})
	return nil
}

func (f *fakeBackend) ProgramChange(ch int, v *voice.Record) error {
	f.voiced[ch] = true
	f.calls = append(f.calls, call{op: "program", ch: ch, record: v})
	return nil
}

func (f *fakeBackend) NoteOn(ch int, freq float64, vel uint8) error {
	if !f.voiced[ch] {
		return fmt.Errorf("note on before program change on %d", ch)
	}
	if freq == f.failOn {
		return pitch.ErrInvalidPitch
	}
	f.calls = append(f.calls, call{op: "on", ch: ch, freq: freq, vel: vel})
	return nil
}

func (f *fakeBackend) PitchBend(ch int, freq float64) error {
	f.calls = append(f.calls, call{op: "bend", ch: ch, freq: freq})
	return nil
}

func (f *fakeBackend) take() []call {
	c := f.calls
	f.calls = nil
	return c
}

func ops(calls []call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func testBank() *voice.Bank {
	a, b := voice.Init(), voice.Init()
	a.Name, b.Name = "a", "b"
	return voice.NewBank(a, b)
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func newTestSynth(channels int) (*Synth, *fakeBackend) {
	f := newFake(channels)
	return New(f, testBank(), WithLogger(quietLogger())), f
}

func noteOn(mch, note, vel int) midi.Event {
	return midi.Event{Type: midi.NoteOn, Channel: mch, Data1: note, Data2: vel}
}

func noteOff(mch, note int) midi.Event {
	return midi.Event{Type: midi.NoteOff, Channel: mch, Data1: note}
}

func TestNoteOnProgramsFirst(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOn(0, 69, 100)))
	calls := f.take()
	assert.Equal(t, []string{"program(0)", "on(0)"}, ops(calls))
	assert.InDelta(t, 440.0, calls[1].freq, 1e-9)
	assert.Equal(t, uint8(100), calls[1].vel)
	assert.Equal(t, "a", calls[0].record.Name)

	// same voice on the same channel is not programmed again
	require.NoError(t, s.Handle(noteOff(0, 69)))
	require.NoError(t, s.Handle(noteOn(0, 70, 100)))
	assert.Equal(t, []string{"off(0)", "on(0)"}, ops(f.take()))
}

func TestRetriggerSendsNoteOffFirst(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	f.take()
	require.NoError(t, s.Handle(noteOn(0, 60, 90)))
	assert.Equal(t, []string{"off(0)", "on(0)"}, ops(f.take()))
	assert.Equal(t, 1, s.Stats().Retriggers)
	assert.Equal(t, 1, s.Stats().Active)
}

func TestStealReleasesOldest(t *testing.T) {
	s, f := newTestSynth(6)
	for n := 0; n < 6; n++ {
		require.NoError(t, s.Handle(noteOn(0, 60+n, 100)))
	}
	f.take()

	require.NoError(t, s.Handle(noteOn(1, 80, 100)))
	calls := f.take()
	// the victim is keyed off before the new note and the channel is
	// re-voiced for MIDI channel 1 only if its program differs
	assert.Equal(t, []string{"off(0)", "on(0)"}, ops(calls))

	st := s.Stats()
	assert.Equal(t, 1, st.Steals)
	assert.Equal(t, 6, st.Active)
	assert.Equal(t, 6, st.Capacity)

	// the stolen key's note off is ignored
	require.NoError(t, s.Handle(noteOff(0, 60)))
	assert.Empty(t, f.take())
	assert.Equal(t, 1, s.Stats().IgnoredNoteOffs)
}

func TestStealRevoicesForOtherProgram(t *testing.T) {
	s, f := newTestSynth(2)
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	require.NoError(t, s.Handle(noteOn(0, 61, 100)))
	require.NoError(t, s.Handle(midi.Event{Type: midi.ProgramChange, Channel: 1, Data1: 1}))
	f.take()

	require.NoError(t, s.Handle(noteOn(1, 72, 100)))
	calls := f.take()
	assert.Equal(t, []string{"off(0)", "program(0)", "on(0)"}, ops(calls))
	assert.Equal(t, "b", calls[1].record.Name)

	ch, ok := s.alloc.Lookup(1, 72)
	require.True(t, ok)
	assert.Equal(t, 0, ch)
}

func TestFailedKeyOffReleasesNewKey(t *testing.T) {
	s, f := newTestSynth(1)
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	f.take()

	f.offErr = errors.New("bus error")
	assert.Error(t, s.Handle(noteOn(0, 62, 100)))
	assert.Empty(t, f.take())

	_, ok := s.alloc.Lookup(0, 62)
	assert.False(t, ok)
	st := s.Stats()
	assert.Zero(t, st.Active)
	assert.Equal(t, 1, st.Dropped)
	assert.Equal(t, 1, st.NotesOn)

	// a failed retrigger gives the channel up too
	f.offErr = nil
	require.NoError(t, s.Handle(noteOn(0, 64, 100)))
	f.offErr = errors.New("bus error")
	assert.Error(t, s.Handle(noteOn(0, 64, 100)))
	assert.Zero(t, s.Stats().Active)
}

func TestCapacityPlusOneNotes(t *testing.T) {
	s, _ := newTestSynth(8)
	for n := 0; n < 9; n++ {
		require.NoError(t, s.Handle(noteOn(n%16, 50+n, 100)))
	}
	st := s.Stats()
	assert.Equal(t, 1, st.Steals)
	assert.Equal(t, 9, st.NotesOn)
	assert.Equal(t, 8, st.Active)
}

func TestVelocityZeroIsNoteOff(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOn(3, 60, 100)))
	f.take()
	require.NoError(t, s.Handle(noteOn(3, 60, 0)))
	assert.Equal(t, []string{"off(0)"}, ops(f.take()))
	assert.Equal(t, 1, s.Stats().NotesOff)
}

func TestUnmatchedNoteOff(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOff(0, 60)))
	assert.Empty(t, f.take())
	assert.Equal(t, 1, s.Stats().IgnoredNoteOffs)
}

func TestProgramChangeIsLazy(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	f.take()

	require.NoError(t, s.Handle(midi.Event{Type: midi.ProgramChange, Channel: 0, Data1: 1}))
	assert.Empty(t, f.take())
	prog, rec := s.Program(0)
	assert.Equal(t, 1, prog)
	assert.Equal(t, "b", rec.Name)

	// the next note gets the new voice, on a fresh channel
	require.NoError(t, s.Handle(noteOn(0, 62, 100)))
	calls := f.take()
	assert.Equal(t, []string{"program(1)", "on(1)"}, ops(calls))
	assert.Equal(t, "b", calls[0].record.Name)

	// and so does a retrigger of the old note, on its old channel
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	assert.Equal(t, []string{"off(0)", "program(0)", "on(0)"}, ops(f.take()))
}

func TestProgramChangeOutOfRange(t *testing.T) {
	s, f := newTestSynth(8)
	err := s.Handle(midi.Event{Type: midi.ProgramChange, Channel: 2, Data1: 5})
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, voice.ErrProgramRange)
	assert.Empty(t, f.take())
	prog, rec := s.Program(2)
	assert.Equal(t, 0, prog)
	assert.Equal(t, "a", rec.Name)
}

func TestEmptyBankPlaysInitVoice(t *testing.T) {
	f := newFake(6)
	s := New(f, nil, WithLogger(quietLogger()))
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	calls := f.take()
	require.Len(t, calls, 2)
	assert.Equal(t, "init", calls[0].record.Name)
}

func TestPitchBend(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOn(0, 69, 100)))
	require.NoError(t, s.Handle(noteOn(0, 57, 100)))
	require.NoError(t, s.Handle(noteOn(1, 60, 100)))
	f.take()

	require.NoError(t, s.Handle(midi.Event{Type: midi.PitchBend, Channel: 0, Value: 16383}))
	calls := f.take()
	require.Equal(t, []string{"bend(0)", "bend(1)"}, ops(calls))
	up := pitch.NoteFrequency(69, pitch.BendCents(16383, DefaultBendRange))
	assert.InDelta(t, up, calls[0].freq, 1e-9)
	assert.InDelta(t, 440*1.1225, calls[0].freq, 0.1)

	// later notes on the channel start bent
	require.NoError(t, s.Handle(noteOn(0, 81, 100)))
	calls = f.take()
	assert.InDelta(t, pitch.NoteFrequency(81, pitch.BendCents(16383, DefaultBendRange)), calls[len(calls)-1].freq, 1e-9)

	err := s.Handle(midi.Event{Type: midi.PitchBend, Channel: 0, Value: 20000})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestBendRangeRPN(t *testing.T) {
	s, f := newTestSynth(8)
	cc := func(n, v int) midi.Event {
		return midi.Event{Type: midi.ControlChange, Channel: 4, Data1: n, Data2: v}
	}
	require.NoError(t, s.Handle(noteOn(4, 60, 100)))
	f.take()

	for _, e := range []midi.Event{cc(101, 0), cc(100, 0), cc(6, 12), cc(38, 50)} {
		require.NoError(t, s.Handle(e))
	}
	assert.InDelta(t, 12.5, s.BendRange(4), 1e-9)
	assert.Equal(t, DefaultBendRange, s.BendRange(0))
	assert.Equal(t, []string{"bend(0)", "bend(0)"}, ops(f.take()))

	// data entry without RPN 0 selected is ignored
	require.NoError(t, s.Handle(cc(99, 1)))
	require.NoError(t, s.Handle(cc(6, 2)))
	assert.InDelta(t, 12.5, s.BendRange(4), 1e-9)
}

func TestAllNotesOff(t *testing.T) {
	for _, cc := range []int{120, 123} {
		s, f := newTestSynth(8)
		require.NoError(t, s.Handle(noteOn(0, 60, 100)))
		require.NoError(t, s.Handle(noteOn(1, 61, 100)))
		require.NoError(t, s.Handle(noteOn(0, 62, 100)))
		f.take()

		require.NoError(t, s.Handle(midi.Event{Type: midi.ControlChange, Channel: 0, Data1: cc}))
		assert.Equal(t, []string{"off(0)", "off(2)"}, ops(f.take()), "cc %d", cc)
		assert.Equal(t, 1, s.Stats().Active)
	}
}

func TestUnknownControllerIgnored(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(midi.Event{Type: midi.ControlChange, Channel: 0, Data1: 7, Data2: 100}))
	assert.Empty(t, f.take())
}

func TestInvalidPitchDropsNote(t *testing.T) {
	s, f := newTestSynth(8)
	f.failOn = pitch.NoteFrequency(60, 0)
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	st := s.Stats()
	assert.Equal(t, 1, st.Dropped)
	assert.Zero(t, st.Active)
	assert.Zero(t, st.NotesOn)
}

func TestInvalidEvents(t *testing.T) {
	s, _ := newTestSynth(8)
	assert.ErrorIs(t, s.Handle(noteOn(16, 60, 100)), ErrInvalidEvent)
	assert.ErrorIs(t, s.Handle(noteOn(0, 128, 100)), ErrInvalidEvent)
	assert.ErrorIs(t, s.Handle(midi.Event{Type: "sysex"}), ErrInvalidEvent)
}

func TestClose(t *testing.T) {
	s, f := newTestSynth(8)
	require.NoError(t, s.Handle(noteOn(0, 60, 100)))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, f.closed)
	assert.ErrorIs(t, s.Handle(noteOn(0, 61, 100)), ErrClosed)
	assert.Zero(t, s.Stats().Active)
}

func TestConcurrentHandleAndRender(t *testing.T) {
	s, err := newRealSynth()
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.Handle(noteOn(i%4, 40+i%30, 100))
			_ = s.Handle(noteOff(i%4, 40+(i+15)%30))
		}
	}()
	go func() {
		defer wg.Done()
		l, r := make([]int32, 64), make([]int32, 64)
		for i := 0; i < 200; i++ {
			s.Render(l, r)
		}
	}()
	wg.Wait()
	assert.LessOrEqual(t, s.Stats().Active, 8)
}

func newRealSynth() (*Synth, error) {
	b := chip.NewYM2151(chip.WithLogger(quietLogger()))
	if err := b.Init(0, 44100); err != nil {
		return nil, err
	}
	return New(b, testBank(), WithLogger(quietLogger())), nil
}

func TestRendersThroughRealChip(t *testing.T) {
	s, err := newRealSynth()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Handle(noteOn(0, 69, 127)))
	l, r := make([]int32, 1024), make([]int32, 1024)
	s.Render(l, r)
	var peak int32
	for _, v := range l {
		if v > peak {
			peak = v
		}
	}
	assert.Greater(t, peak, int32(1000))
}
