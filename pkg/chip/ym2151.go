package chip

import (
	"github.com/olivierh59500/fmtoy/pkg/fmcore"
	"github.com/olivierh59500/fmtoy/pkg/pitch"
	"github.com/olivierh59500/fmtoy/pkg/voice"
)

const (
	YM2151Channels = 8
	YM2151Clock    = 3579545
)

// OPM register map.
const (
	opmKeyOn    = 0x08
	opmRLFBCon  = 0x20
	opmKeyCode  = 0x28
	opmKeyFrac  = 0x30
	opmPMSAMS   = 0x38
	opmDT1MUL   = 0x40
	opmTL       = 0x60
	opmKSAR     = 0x80
	opmAMED1R   = 0xA0
	opmDT2D2R   = 0xC0
	opmD1LRR    = 0xE0
	opmOpStride = 8
)

// opmKeyBits are the key on bits of register 0x08 per register order
// operator (M1 M2 C1 C2).
var opmKeyBits = [voice.OperatorCount]uint8{0x08, 0x20, 0x10, 0x40}

// YM2151 drives an OPM core: eight channels of four operators.
type YM2151 struct {
	base
}

// NewYM2151 returns an uninitialized YM2151 backend.
func NewYM2151(opts ...Option) *YM2151 {
	o := buildOptions(newOPMCore, opts)
	return &YM2151{base: newBase("YM2151", YM2151Channels, YM2151Clock, o)}
}

func newOPMCore(clock, sampleRate int) (Core, error) {
	c, err := fmcore.NewOPM(clock, sampleRate)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (y *YM2151) Init(clock, sampleRate int) error {
	return y.open(clock, sampleRate)
}

func (y *YM2151) write(addr, data uint8) {
	y.core.WriteReg(0, addr, data)
}

func (y *YM2151) ProgramChange(ch int, v *voice.Record) error {
	st, err := y.channel(ch)
	if err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}
	c := uint8(ch)
	left, right := v.Sides()
	rl := uint8(0)
	if left {
		rl |= 0x40
	}
	if right {
		rl |= 0x80
	}
	y.write(opmRLFBCon+c, rl|v.Feedback<<3|v.Connection)
	y.write(opmPMSAMS+c, v.PMS<<4|v.AMS)
	for j := range v.Ops {
		op := &v.Ops[j]
		r := c + uint8(j)*opmOpStride
		ame := uint8(0)
		if op.AMEnable {
			ame = 0x80
		}
		y.write(opmDT1MUL+r, op.DT1<<4|op.MUL)
		y.write(opmTL+r, op.TL)
		y.write(opmKSAR+r, op.KS<<6|op.AR)
		y.write(opmAMED1R+r, ame|op.D1R)
		y.write(opmDT2D2R+r, op.DT2<<6|op.D2R)
		y.write(opmD1LRR+r, op.D1L<<4|op.RR)
	}
	st.load(v)
	return nil
}

func (y *YM2151) setPitch(ch int, freq float64) error {
	kc, err := pitch.OPMKeyCode(freq, y.clock)
	if err != nil {
		return err
	}
	y.write(opmKeyCode+uint8(ch), kc.KC())
	y.write(opmKeyFrac+uint8(ch), kc.KF())
	return nil
}

func (y *YM2151) NoteOn(ch int, freq float64, velocity uint8) error {
	st, err := y.channel(ch)
	if err != nil {
		return err
	}
	if err := y.setPitch(ch, freq); err != nil {
		return err
	}
	carriers := Carriers(st.connection, st.mask)
	for j := voice.OperatorCount - 1; j >= 0; j-- {
		if carriers&(1<<j) != 0 {
			y.write(opmTL+uint8(ch)+uint8(j)*opmOpStride, scaledTL(st.tl[j], velocity))
		}
	}
	y.write(opmKeyOn, opmKeyMask(st.mask)|uint8(ch))
	return nil
}

func (y *YM2151) NoteOff(ch int, _ uint8) error {
	if _, err := y.channel(ch); err != nil {
		return err
	}
	y.write(opmKeyOn, uint8(ch))
	return nil
}

func (y *YM2151) PitchBend(ch int, freq float64) error {
	if _, err := y.channel(ch); err != nil {
		return err
	}
	return y.setPitch(ch, freq)
}

func opmKeyMask(mask uint8) uint8 {
	var bits uint8
	for j, b := range opmKeyBits {
		if mask&(1<<j) != 0 {
			bits |= b
		}
	}
	return bits
}
