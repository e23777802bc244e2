// Package pitch converts musical pitch into the frequency encodings of the
// supported FM chip families. Every function is pure.
package pitch

import (
	"errors"
	"fmt"
	"math"
)

const (
	// ConcertPitch is the frequency of MIDI note 69 (A4).
	ConcertPitch = 440.0
	// OPMReferenceClock is the clock the OPM key code table is defined for.
	OPMReferenceClock = 3579545.0
	// OPMReferenceKF is the key fraction of ConcertPitch at the reference clock.
	OPMReferenceKF = 3584

	opmStepsPerOctave = 768
	opmMaxKF          = 8*opmStepsPerOctave - 1

	opnMaxFnum  = 2047
	opnMaxBlock = 7
)

var ErrInvalidPitch = errors.New("invalid pitch")

// opmNotes maps a linear semitone (C# first) to the OPM key code, which
// skips every fourth value.
var opmNotes = [12]uint8{0, 1, 2, 4, 5, 6, 8, 9, 10, 12, 13, 14}

// KeyCode is the OPM frequency encoding.
type KeyCode struct {
	Octave   uint8 // 0-7
	Note     uint8 // OPM note code, 0-14
	Fraction uint8 // key fraction, 0-63
}

// KC is the value of the key code register (0x28+ch).
func (k KeyCode) KC() uint8 { return k.Octave<<4 | k.Note }

// KF is the value of the key fraction register (0x30+ch).
func (k KeyCode) KF() uint8 { return k.Fraction << 2 }

// Linear returns the key code as a monotonic integer.
func (k KeyCode) Linear() int {
	return int(k.KC())<<6 | int(k.Fraction)
}

func validate(freq float64, clock float64) error {
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq <= 0 {
		return fmt.Errorf("%w: frequency %v", ErrInvalidPitch, freq)
	}
	if math.IsNaN(clock) || math.IsInf(clock, 0) || clock <= 0 {
		return fmt.Errorf("%w: clock %v", ErrInvalidPitch, clock)
	}
	return nil
}

// KeyFraction returns the unquantized OPM key fraction of freq.
func KeyFraction(freq float64, clock int) (float64, error) {
	if err := validate(freq, float64(clock)); err != nil {
		return 0, err
	}
	return OPMReferenceKF + 64*12*math.Log2(freq*OPMReferenceClock/float64(clock)/ConcertPitch), nil
}

// OPMKeyCode resolves freq into the OPM octave, note code and fraction.
// Frequencies outside the eight octaves of the chip are clamped.
func OPMKeyCode(freq float64, clock int) (KeyCode, error) {
	kf, err := KeyFraction(freq, clock)
	if err != nil {
		return KeyCode{}, err
	}
	n := int(math.Floor(kf))
	if n < 0 {
		n = 0
	}
	if n > opmMaxKF {
		n = opmMaxKF
	}
	return KeyCode{
		Octave:   uint8(n / opmStepsPerOctave),
		Note:     opmNotes[(n/64)%12],
		Fraction: uint8(n % 64),
	}, nil
}

// BlockFnum is the OPN frequency encoding.
type BlockFnum struct {
	Block uint8  // 0-7
	Fnum  uint16 // 0-2047
}

// High is the value of the block/fnum-high register (0xA4+ch).
func (b BlockFnum) High() uint8 { return b.Block<<3 | uint8(b.Fnum>>8) }

// Low is the value of the fnum-low register (0xA0+ch).
func (b BlockFnum) Low() uint8 { return uint8(b.Fnum) }

// Linear returns block and fnum packed as one monotonic integer.
func (b BlockFnum) Linear() int { return int(b.Block)<<11 | int(b.Fnum) }

// OPNBlockFnum resolves freq into the OPN block and F-number, picking the
// lowest block that keeps the F-number in range.
func OPNBlockFnum(freq float64, clock int) (BlockFnum, error) {
	if err := validate(freq, float64(clock)); err != nil {
		return BlockFnum{}, err
	}
	// fnum = freq * 144 * 2^20 / clock / 2^(block-1)
	fnum := freq * 144 * (1 << 21) / float64(clock)
	block := 0
	for fnum > opnMaxFnum && block < opnMaxBlock {
		fnum /= 2
		block++
	}
	n := int(math.Round(fnum))
	if n > opnMaxFnum {
		if block < opnMaxBlock {
			n /= 2
			block++
		} else {
			n = opnMaxFnum
		}
	}
	return BlockFnum{Block: uint8(block), Fnum: uint16(n)}, nil
}

// NoteFrequency returns the frequency of a MIDI note bent by cents.
func NoteFrequency(note int, cents float64) float64 {
	return ConcertPitch * math.Pow(2, (float64(note)-69)/12+cents/1200)
}

// BendCenter is the value of an unbent 14 bit pitch wheel.
const BendCenter = 8192

// BendCents converts a 14 bit pitch wheel value into cents for the given
// bend range in semitones.
func BendCents(value int, semitones float64) float64 {
	if value < 0 {
		value = 0
	}
	if value > 16383 {
		value = 16383
	}
	return float64(value-BendCenter) / BendCenter * semitones * 100
}
