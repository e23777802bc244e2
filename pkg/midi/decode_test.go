package midi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want Event
	}{
		{"note on", []byte{0x93, 60, 100}, Event{Type: NoteOn, Channel: 3, Data1: 60, Data2: 100}},
		{"note on zero velocity", []byte{0x90, 60, 0}, Event{Type: NoteOff, Channel: 0, Data1: 60}},
		{"note off", []byte{0x8F, 61, 64}, Event{Type: NoteOff, Channel: 15, Data1: 61, Data2: 64}},
		{"control change", []byte{0xB1, 101, 0}, Event{Type: ControlChange, Channel: 1, Data1: 101}},
		{"program change", []byte{0xC2, 5}, Event{Type: ProgramChange, Channel: 2, Data1: 5}},
		{"bend centre", []byte{0xE0, 0x00, 0x40}, Event{Type: PitchBend, Value: 8192}},
		{"bend max", []byte{0xE4, 0x7F, 0x7F}, Event{Type: PitchBend, Channel: 4, Value: 16383}},
		{"bend min", []byte{0xEF, 0x00, 0x00}, Event{Type: PitchBend, Channel: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, in := range [][]byte{
		nil,
		{0x40, 1, 2},       // data byte without status
		{0xF8},             // clock
		{0xF0, 0x7E, 0xF7}, // sysex
		{0x90, 60},         // truncated
		{0xA0, 60, 10},     // poly aftertouch
		{0xD0, 10},         // channel aftertouch
		{60, 100},          // running status
		{0xB0, 7},          // truncated control change
		{0xC0},
	} {
		_, ok := Decode(in)
		assert.False(t, ok, "% x", in)
	}
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "pitch_bend ch=1 value=8192", Event{Type: PitchBend, Channel: 1, Value: 8192}.String())
	assert.Equal(t, "note_on ch=0 60 100", Event{Type: NoteOn, Data1: 60, Data2: 100}.String())
}
