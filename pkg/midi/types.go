// Package midi normalizes raw MIDI channel messages and, when built with
// the midi_native tag, reads them from hardware ports through rtmidi.
package midi

import (
	"fmt"
	"time"
)

// Type is a MIDI event kind.
type Type string

const (
	NoteOn        Type = "note_on"
	NoteOff       Type = "note_off"
	ControlChange Type = "control_change"
	ProgramChange Type = "program_change"
	PitchBend     Type = "pitch_bend"
)

// Event is a normalized channel message.
type Event struct {
	Type    Type
	Channel int // 0-15
	Data1   int // note, controller or program number
	Data2   int // velocity or controller value
	Value   int // pitch bend, 0-16383 with 8192 at rest
	Time    time.Time
}

func (e Event) String() string {
	switch e.Type {
	case PitchBend:
		return fmt.Sprintf("%s ch=%d value=%d", e.Type, e.Channel, e.Value)
	case ProgramChange:
		return fmt.Sprintf("%s ch=%d program=%d", e.Type, e.Channel, e.Data1)
	}
	return fmt.Sprintf("%s ch=%d %d %d", e.Type, e.Channel, e.Data1, e.Data2)
}

// Input is an open MIDI input port.
type Input interface {
	Close() error
}
