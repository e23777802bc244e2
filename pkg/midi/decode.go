package midi

import gomidi "gitlab.com/gomidi/midi/v2"

// Decode parses one raw channel message. System messages, truncated
// messages and channel messages the synth has no use for (aftertouch)
// report false. A note on with velocity 0 is returned as a note off.
func Decode(b []byte) (Event, bool) {
	if !complete(b) {
		return Event{}, false
	}
	msg := gomidi.Message(b)

	var ch, d1, d2 uint8
	switch {
	case msg.GetNoteStart(&ch, &d1, &d2):
		return Event{Type: NoteOn, Channel: int(ch), Data1: int(d1), Data2: int(d2)}, true
	case msg.GetNoteOff(&ch, &d1, &d2):
		return Event{Type: NoteOff, Channel: int(ch), Data1: int(d1), Data2: int(d2)}, true
	case msg.GetNoteEnd(&ch, &d1):
		return Event{Type: NoteOff, Channel: int(ch), Data1: int(d1)}, true
	case msg.GetControlChange(&ch, &d1, &d2):
		return Event{Type: ControlChange, Channel: int(ch), Data1: int(d1), Data2: int(d2)}, true
	case msg.GetProgramChange(&ch, &d1):
		return Event{Type: ProgramChange, Channel: int(ch), Data1: int(d1)}, true
	}

	var rel int16
	var abs uint16
	if msg.GetPitchBend(&ch, &rel, &abs) {
		return Event{Type: PitchBend, Channel: int(ch), Value: int(abs)}, true
	}
	return Event{}, false
}

// complete reports whether b starts with a channel status byte and
// carries all of its data bytes.
func complete(b []byte) bool {
	if len(b) == 0 || b[0] < 0x80 || b[0] >= 0xF0 {
		return false
	}
	switch b[0] >> 4 {
	case 0xC, 0xD:
		return len(b) >= 2
	}
	return len(b) >= 3
}
